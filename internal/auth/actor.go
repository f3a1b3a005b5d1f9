// Package auth models the acting user and the two capability checks the core
// relies on: is the actor an admin, and does the actor own a provider's data.
package auth

import "context"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Actor is the authenticated caller. ProviderID is set when the user is
// themselves a provider (a staff member with an agenda).
type Actor struct {
	UserID     int64
	Role       Role
	ProviderID *int64
}

// Authorizer is the authorization boundary used by the core.
type Authorizer interface {
	IsAdmin(actor Actor) bool
	OwnsResource(actor Actor, providerID int64) bool
}

// Policy is the role-based Authorizer.
type Policy struct{}

func (Policy) IsAdmin(actor Actor) bool {
	return actor.Role == RoleAdmin
}

func (Policy) OwnsResource(actor Actor, providerID int64) bool {
	return actor.ProviderID != nil && *actor.ProviderID == providerID
}

// CanManageProvider is the owner-or-admin rule shared by absences and appointments.
func CanManageProvider(a Authorizer, actor Actor, providerID int64) bool {
	return a.IsAdmin(actor) || a.OwnsResource(actor, providerID)
}

type ctxKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
