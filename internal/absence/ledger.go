// Package absence owns provider absence periods. Overlapping appointments are
// reported back to the caller as a warning count; they never block a write.
package absence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/validation"
)

// OverlapCounter is satisfied by *appointment.ConflictDetector.
type OverlapCounter interface {
	CountOverlapping(ctx context.Context, providerID int64, r calendar.DateRange) (int, error)
}

type CreateInput struct {
	ProviderID int64     `json:"provider_id" validate:"gt=0"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
	Type       Type      `json:"type" validate:"required,oneof=leave illness training other"`
	Reason     string    `json:"reason" validate:"max=500"`
}

type UpdateInput struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Type      Type      `json:"type" validate:"required,oneof=leave illness training other"`
	Reason    string    `json:"reason" validate:"max=500"`
}

// Result is a successful write plus the number of the provider's appointments
// falling inside the period.
type Result struct {
	Absence      *Absence
	OverlapCount int
}

type Ledger struct {
	repo      Repository
	conflicts OverlapCounter
	authz     auth.Authorizer
	audit     *audit.Recorder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewLedger(repo Repository, conflicts OverlapCounter, authz auth.Authorizer, recorder *audit.Recorder, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:      repo,
		conflicts: conflicts,
		authz:     authz,
		audit:     recorder,
		metrics:   m,
		logger:    logger.With().Str("component", "absences").Logger(),
	}
}

func (l *Ledger) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Result, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	period, err := checkPeriod(in.StartDate, in.EndDate, in.Type, in.Reason)
	if err != nil {
		return nil, err
	}
	if !auth.CanManageProvider(l.authz, actor, in.ProviderID) {
		return nil, apperr.Newf(apperr.CodeForbidden, "only provider #%d or an admin can record absences for this provider", in.ProviderID)
	}

	ok, err := l.repo.ProviderExists(ctx, in.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !ok {
		return nil, apperr.Wrap(ErrProviderNotFound, apperr.CodeNotFound, fmt.Sprintf("provider #%d not found", in.ProviderID))
	}

	period.ProviderID = in.ProviderID
	created, err := l.repo.CreateAbsence(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("create absence: %w", err)
	}

	l.metrics.IncAbsencesCreated()
	l.audit.Record(ctx, actor.UserID, audit.ActionAbsenceCreated, audit.EntityAbsence, idString(created.ID),
		fmt.Sprintf("Absence #%d (%s) %s for provider #%d", created.ID, created.Type, created.Range(), created.ProviderID))

	return &Result{Absence: created, OverlapCount: l.overlapCount(ctx, created)}, nil
}

func (l *Ledger) Update(ctx context.Context, actor auth.Actor, id int64, in UpdateInput) (*Result, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	period, err := checkPeriod(in.StartDate, in.EndDate, in.Type, in.Reason)
	if err != nil {
		return nil, err
	}

	existing, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanManageProvider(l.authz, actor, existing.ProviderID) {
		return nil, apperr.Newf(apperr.CodeForbidden, "only provider #%d or an admin can change this absence", existing.ProviderID)
	}

	period.ID = existing.ID
	period.ProviderID = existing.ProviderID
	updated, err := l.repo.UpdateAbsence(ctx, period)
	if err != nil {
		if errors.Is(err, ErrAbsenceNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("absence #%d not found", id))
		}
		return nil, fmt.Errorf("update absence: %w", err)
	}

	l.audit.Record(ctx, actor.UserID, audit.ActionAbsenceUpdated, audit.EntityAbsence, idString(updated.ID),
		fmt.Sprintf("Absence #%d changed from %s to %s (%s)", updated.ID, existing.Range(), updated.Range(), updated.Type))

	return &Result{Absence: updated, OverlapCount: l.overlapCount(ctx, updated)}, nil
}

// Delete removes the period for good.
func (l *Ledger) Delete(ctx context.Context, actor auth.Actor, id int64) error {
	existing, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanManageProvider(l.authz, actor, existing.ProviderID) {
		return apperr.Newf(apperr.CodeForbidden, "only provider #%d or an admin can delete this absence", existing.ProviderID)
	}

	if err := l.repo.DeleteAbsence(ctx, id); err != nil {
		if errors.Is(err, ErrAbsenceNotFound) {
			return apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("absence #%d not found", id))
		}
		return fmt.Errorf("delete absence: %w", err)
	}

	l.audit.Record(ctx, actor.UserID, audit.ActionAbsenceDeleted, audit.EntityAbsence, idString(id),
		fmt.Sprintf("Absence #%d (%s) %s of provider #%d deleted", id, existing.Type, existing.Range(), existing.ProviderID))
	return nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (*Absence, error) {
	a, err := l.repo.GetAbsenceByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAbsenceNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("absence #%d not found", id))
		}
		return nil, fmt.Errorf("get absence: %w", err)
	}
	return a, nil
}

func (l *Ledger) ListByProvider(ctx context.Context, providerID int64, r calendar.DateRange) ([]Absence, error) {
	if !r.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "date range %s ends before it starts", r)
	}
	list, err := l.repo.ListByProvider(ctx, providerID, r)
	if err != nil {
		return nil, fmt.Errorf("list absences by provider: %w", err)
	}
	return list, nil
}

// checkPeriod applies the rules shared by create and update and returns the
// normalized period.
func checkPeriod(start, end time.Time, t Type, reason string) (Absence, error) {
	r := calendar.NewDateRange(start, end)
	if !r.Valid() {
		return Absence{}, apperr.Newf(apperr.CodeValidation, "end_date %s is before start_date %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	if !t.Valid() {
		return Absence{}, apperr.Newf(apperr.CodeValidation, "unknown absence type %q", t)
	}

	reason = strings.TrimSpace(reason)
	if t == TypeOther && reason == "" {
		return Absence{}, apperr.New(apperr.CodeValidation, "reason is required for absences of type other")
	}

	a := Absence{StartDate: r.Start, EndDate: r.End, Type: t}
	if reason != "" {
		a.Reason = &reason
	}
	return a, nil
}

// overlapCount is advisory; a failed count is logged and reported as zero.
func (l *Ledger) overlapCount(ctx context.Context, a *Absence) int {
	n, err := l.conflicts.CountOverlapping(ctx, a.ProviderID, a.Range())
	if err != nil {
		l.logger.Warn().Err(err).Int64("absence_id", a.ID).Msg("overlap check failed")
		return 0
	}
	if n > 0 {
		l.metrics.IncAbsenceOverlapWarnings()
		l.logger.Info().
			Int64("absence_id", a.ID).
			Int64("provider_id", a.ProviderID).
			Int("appointments", n).
			Msg("absence overlaps existing appointments")
	}
	return n
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
