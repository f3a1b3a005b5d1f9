package patient

import (
	"context"
	"errors"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrDuplicateNIN    = errors.New("a patient with this identity number already exists")
)

type Repository interface {
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	ExistsByNIN(ctx context.Context, number string) (bool, error)
	// CreatePatient returns ErrDuplicateNIN when the unique constraint fires.
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)

	ListAppointmentsByPatient(ctx context.Context, patientID int64) ([]appointment.Appointment, error)
	ListSeriesByPatient(ctx context.Context, patientID int64) ([]appointment.Series, error)

	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx ErasureTx) error) error
}

// ErasureTx holds the steps of an erasure. They are only valid inside RunInTx.
type ErasureTx interface {
	// LockPatient returns ErrPatientNotFound when the row is absent.
	LockPatient(ctx context.Context, id int64) error
	DetachAppointments(ctx context.Context, patientID int64) (int, error)
	DeleteRecurrenceSeries(ctx context.Context, patientID int64) (int, error)
	DeletePatient(ctx context.Context, id int64) error
}
