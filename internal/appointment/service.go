package appointment

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

const defaultSweepBatch = 500

type Settings struct {
	InitialStatus Status
	NoShowGrace   time.Duration
	SweepBatch    int
	Clock         func() time.Time
}

type Service struct {
	repo      Repository
	conflicts *ConflictDetector
	authz     auth.Authorizer
	audit     *audit.Recorder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	settings  Settings
}

func NewService(
	repo Repository,
	conflicts *ConflictDetector,
	authz auth.Authorizer,
	recorder *audit.Recorder,
	m *metrics.Metrics,
	logger zerolog.Logger,
	settings Settings,
) *Service {
	if settings.InitialStatus == "" {
		settings.InitialStatus = StatusToConfirm
	}
	if settings.SweepBatch <= 0 {
		settings.SweepBatch = defaultSweepBatch
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	return &Service{
		repo:      repo,
		conflicts: conflicts,
		authz:     authz,
		audit:     recorder,
		metrics:   m,
		logger:    logger.With().Str("component", "appointments").Logger(),
		settings:  settings,
	}
}

type CreateInput struct {
	ProviderID      int64     `json:"provider_id" validate:"gt=0"`
	PatientID       *int64    `json:"patient_id" validate:"omitempty,gt=0"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0,lte=720"`
	Type            Type      `json:"type" validate:"required"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

type CreateResult struct {
	Appointment *Appointment
	// CoveringAbsences is advisory: the appointment is stored regardless.
	CoveringAbsences int
}

// Create schedules a single appointment in the configured initial status.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*CreateResult, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown appointment type %q", in.Type)
	}
	if !auth.CanManageProvider(s.authz, actor, in.ProviderID) {
		return nil, apperr.Newf(apperr.CodeForbidden, "only provider #%d or an admin can schedule in this agenda", in.ProviderID)
	}
	if err := s.checkParties(ctx, in.ProviderID, in.PatientID); err != nil {
		return nil, err
	}

	duration, err := s.resolveDuration(ctx, in.Type, in.DurationMinutes)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateAppointment(ctx, Appointment{
		ProviderID:  in.ProviderID,
		PatientID:   in.PatientID,
		ScheduledAt: in.ScheduledAt,
		Duration:    duration,
		Type:        in.Type,
		Status:      s.settings.InitialStatus,
		Notes:       trimmedOrNil(in.Notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.metrics.IncAppointmentsCreated()
	s.audit.Record(ctx, actor.UserID, audit.ActionAppointmentCreated, audit.EntityAppointment, idString(created.ID),
		fmt.Sprintf("Appointment #%d (%s) scheduled at %s with provider #%d",
			created.ID, created.Type, created.ScheduledAt.In(s.conflicts.Location()).Format("2006-01-02 15:04"), created.ProviderID))

	covering := s.coveringAbsences(ctx, created)

	return &CreateResult{Appointment: created, CoveringAbsences: covering}, nil
}

type StatusChange struct {
	Appointment *Appointment
	Transition  Transition
}

// ChangeStatus applies one lifecycle move. The stored status is updated with
// a compare-and-set so two concurrent moves cannot both succeed.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id int64, to Status) (*StatusChange, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanManageProvider(s.authz, actor, appt.ProviderID) {
		return nil, apperr.Newf(apperr.CodeForbidden, "only provider #%d or an admin can update this appointment", appt.ProviderID)
	}

	tr, err := CheckTransition(appt.Status, to)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyTransition(ctx, actor.UserID, appt.ID, tr)
	if err != nil {
		return nil, err
	}
	return &StatusChange{Appointment: updated, Transition: tr}, nil
}

func (s *Service) applyTransition(ctx context.Context, actorID, id int64, tr Transition) (*Appointment, error) {
	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, tr.From, tr.To)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}
		// The row is gone or someone else moved it first.
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperr.Newf(apperr.CodeInvalidTransition, "appointment #%d changed to %s in the meantime", id, current.Status)
	}

	s.metrics.IncStatusTransition(string(tr.From), string(tr.To))

	desc := fmt.Sprintf("Appointment #%d status %s -> %s", id, tr.From, tr.To)
	if w := tr.Warning(); w != "" {
		desc += " (" + w + ")"
		s.logger.Warn().
			Int64("appointment_id", id).
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Str("kind", string(tr.Kind)).
			Msg(w)
	}
	s.audit.Record(ctx, actorID, audit.ActionAppointmentStatus, audit.EntityAppointment, idString(id), desc)

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("appointment #%d not found", id))
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListByProvider returns the provider's appointments starting on the dates of r.
func (s *Service) ListByProvider(ctx context.Context, providerID int64, r calendar.DateRange) ([]Appointment, error) {
	if !r.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "date range %s ends before it starts", r)
	}
	from, to := r.Bounds(s.conflicts.Location())
	appts, err := s.repo.ListByProvider(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return appts, nil
}

type RecurringInput struct {
	ProviderID      int64     `json:"provider_id" validate:"gt=0"`
	PatientID       int64     `json:"patient_id" validate:"gt=0"`
	FirstStart      time.Time `json:"first_start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0,lte=720"`
	Type            Type      `json:"type" validate:"required"`
	IntervalWeeks   int       `json:"interval_weeks" validate:"gte=1,lte=4"`
	Occurrences     int       `json:"occurrences" validate:"gte=1,lte=52"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

type RecurringResult struct {
	Series       *Series
	Appointments []Appointment
	// OccurrencesDuringAbsence counts generated appointments falling on a
	// date the provider is absent.
	OccurrencesDuringAbsence int
}

// CreateRecurring generates a weekly series for one patient. Occurrences keep
// the wall-clock time of the first one across DST changes.
func (s *Service) CreateRecurring(ctx context.Context, actor auth.Actor, in RecurringInput) (*RecurringResult, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown appointment type %q", in.Type)
	}
	if !auth.CanManageProvider(s.authz, actor, in.ProviderID) {
		return nil, apperr.Newf(apperr.CodeForbidden, "only provider #%d or an admin can schedule in this agenda", in.ProviderID)
	}
	patientID := in.PatientID
	if err := s.checkParties(ctx, in.ProviderID, &patientID); err != nil {
		return nil, err
	}

	duration, err := s.resolveDuration(ctx, in.Type, in.DurationMinutes)
	if err != nil {
		return nil, err
	}

	first := in.FirstStart.In(s.conflicts.Location())
	notes := trimmedOrNil(in.Notes)
	occurrences := make([]Appointment, 0, in.Occurrences)
	for i := 0; i < in.Occurrences; i++ {
		occurrences = append(occurrences, Appointment{
			ProviderID:  in.ProviderID,
			PatientID:   &patientID,
			ScheduledAt: first.AddDate(0, 0, 7*in.IntervalWeeks*i),
			Duration:    duration,
			Type:        in.Type,
			Status:      s.settings.InitialStatus,
			Notes:       notes,
		})
	}

	series, created, err := s.repo.CreateSeries(ctx, Series{
		PatientID:     patientID,
		ProviderID:    in.ProviderID,
		FirstStart:    in.FirstStart,
		IntervalWeeks: in.IntervalWeeks,
		Occurrences:   in.Occurrences,
	}, occurrences)
	if err != nil {
		return nil, fmt.Errorf("create recurrence series: %w", err)
	}

	for range created {
		s.metrics.IncAppointmentsCreated()
	}
	s.audit.Record(ctx, actor.UserID, audit.ActionSeriesCreated, audit.EntitySeries, idString(series.ID),
		fmt.Sprintf("Recurrence series #%d: %d occurrences every %d week(s) with provider #%d",
			series.ID, len(created), series.IntervalWeeks, series.ProviderID))

	during := 0
	for i := range created {
		if s.coveringAbsences(ctx, &created[i]) > 0 {
			during++
		}
	}

	return &RecurringResult{Series: series, Appointments: created, OccurrencesDuringAbsence: during}, nil
}

type TypeSettingsInput struct {
	Label                  string `json:"label" validate:"notblank,max=60"`
	DefaultDurationMinutes int    `json:"default_duration_minutes" validate:"gt=0,lte=720"`
	Color                  string `json:"color" validate:"required,hexcolor"`
}

// ConfigureType updates the attributes of an existing code. The set of codes
// itself is fixed.
func (s *Service) ConfigureType(ctx context.Context, actor auth.Actor, code Type, in TypeSettingsInput) (*TypeSettings, error) {
	if !s.authz.IsAdmin(actor) {
		return nil, apperr.New(apperr.CodeForbidden, "only an admin can configure appointment types")
	}
	if !code.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown appointment type %q; types cannot be added", code)
	}
	if err := validation.Validate(in); err != nil {
		return nil, err
	}

	ts := TypeSettings{
		Code:            code,
		Label:           strings.TrimSpace(in.Label),
		DefaultDuration: time.Duration(in.DefaultDurationMinutes) * time.Minute,
		Color:           strings.ToLower(in.Color),
	}
	if err := s.repo.UpsertTypeSettings(ctx, ts); err != nil {
		return nil, fmt.Errorf("upsert appointment type settings: %w", err)
	}

	s.audit.Record(ctx, actor.UserID, audit.ActionAppointmentTypeConf, audit.EntityAppointmentType, string(code),
		fmt.Sprintf("Appointment type %s set to %q, %d min, %s", code, ts.Label, in.DefaultDurationMinutes, ts.Color))

	return &ts, nil
}

func (s *Service) ListTypes(ctx context.Context) ([]TypeSettings, error) {
	types, err := s.repo.ListTypeSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointment types: %w", err)
	}
	return types, nil
}

// SweepNoShows marks unconfirmed and confirmed appointments that ended more
// than the grace period ago as no-shows. It is called periodically by the
// worker and returns how many appointments it moved.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := s.settings.Clock().Add(-s.settings.NoShowGrace)
	stale, err := s.repo.FindStaleOpen(ctx, cutoff, s.settings.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("find stale open appointments: %w", err)
	}

	moved := 0
	for _, appt := range stale {
		tr, err := CheckTransition(appt.Status, StatusNoShow)
		if err != nil {
			continue
		}
		if _, err := s.applyTransition(ctx, audit.SystemActor, appt.ID, tr); err != nil {
			if apperr.HasCode(err, apperr.CodeInvalidTransition) || apperr.HasCode(err, apperr.CodeNotFound) {
				continue
			}
			s.logger.Error().Err(err).Int64("appointment_id", appt.ID).Msg("failed to mark appointment as no-show")
			continue
		}
		moved++
	}

	return moved, nil
}

func (s *Service) checkParties(ctx context.Context, providerID int64, patientID *int64) error {
	ok, err := s.repo.ProviderExists(ctx, providerID)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}
	if !ok {
		return apperr.Wrap(ErrProviderNotFound, apperr.CodeNotFound, fmt.Sprintf("provider #%d not found", providerID))
	}

	if patientID == nil {
		return nil
	}
	ok, err = s.repo.PatientExists(ctx, *patientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "patient #%d not found", *patientID)
	}
	return nil
}

// resolveDuration falls back to the type's default when minutes is zero.
func (s *Service) resolveDuration(ctx context.Context, t Type, minutes int) (time.Duration, error) {
	if minutes > 0 {
		return time.Duration(minutes) * time.Minute, nil
	}
	ts, err := s.repo.GetTypeSettings(ctx, t)
	if err != nil {
		if errors.Is(err, ErrTypeSettingsNotFound) {
			return 0, apperr.Newf(apperr.CodeValidation, "duration_minutes is required for type %s", t)
		}
		return 0, fmt.Errorf("load appointment type settings: %w", err)
	}
	return ts.DefaultDuration, nil
}

// coveringAbsences is advisory; a failed lookup is logged and reported as zero.
func (s *Service) coveringAbsences(ctx context.Context, appt *Appointment) int {
	n, err := s.conflicts.CountCoveringAbsences(ctx, appt.ProviderID, appt.ScheduledAt)
	if err != nil {
		s.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("absence check failed")
		return 0
	}
	if n > 0 {
		s.logger.Warn().
			Int64("appointment_id", appt.ID).
			Int64("provider_id", appt.ProviderID).
			Int("absences", n).
			Msg("appointment scheduled during provider absence")
	}
	return n
}

func trimmedOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
