package absence

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

var (
	ErrAbsenceNotFound  = errors.New("absence not found")
	ErrProviderNotFound = errors.New("provider not found")
)

type Repository interface {
	ProviderExists(ctx context.Context, id int64) (bool, error)

	GetAbsenceByID(ctx context.Context, id int64) (*Absence, error)
	// ListByProvider returns absences sharing at least one date with r.
	ListByProvider(ctx context.Context, providerID int64, r calendar.DateRange) ([]Absence, error)
	// CountAbsencesCovering counts absences whose range contains date.
	CountAbsencesCovering(ctx context.Context, providerID int64, date time.Time) (int, error)

	CreateAbsence(ctx context.Context, a Absence) (*Absence, error)
	UpdateAbsence(ctx context.Context, a Absence) (*Absence, error)
	DeleteAbsence(ctx context.Context, id int64) error
}
