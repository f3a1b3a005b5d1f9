package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProviderNotFound     = errors.New("provider not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrTypeSettingsNotFound = errors.New("appointment type settings not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	PatientExists(ctx context.Context, id int64) (bool, error)
	ProviderExists(ctx context.Context, id int64) (bool, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListByProvider(ctx context.Context, providerID int64, from, to time.Time) ([]Appointment, error)

	// For conflict checks: appointments with from <= scheduled_at < to that
	// are not cancelled.
	CountOverlapping(ctx context.Context, providerID int64, from, to time.Time) (int, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set on the current status; it
	// returns ErrAppointmentNotFound when no row still has status from.
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)
	// CreateSeries stores a series and all of its occurrences atomically.
	CreateSeries(ctx context.Context, s Series, occurrences []Appointment) (*Series, []Appointment, error)

	// No-show worker: unconfirmed or confirmed appointments that ended before cutoff.
	FindStaleOpen(ctx context.Context, endedBefore time.Time, limit int) ([]Appointment, error)

	GetTypeSettings(ctx context.Context, code Type) (*TypeSettings, error)
	ListTypeSettings(ctx context.Context) ([]TypeSettings, error)
	UpsertTypeSettings(ctx context.Context, ts TypeSettings) error
}

// AbsenceCounter is implemented by the absence store.
type AbsenceCounter interface {
	CountAbsencesCovering(ctx context.Context, providerID int64, date time.Time) (int, error)
}
