package patient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

// Export is everything stored about one patient, for right-of-access requests.
type Export struct {
	Patient      Patient
	Appointments []appointment.Appointment
	Series       []appointment.Series
	ExportedAt   time.Time
}

type Exporter struct {
	repo  Repository
	authz auth.Authorizer
	audit *audit.Recorder
	now   func() time.Time
}

func NewExporter(repo Repository, authz auth.Authorizer, recorder *audit.Recorder) *Exporter {
	return &Exporter{repo: repo, authz: authz, audit: recorder, now: time.Now}
}

func (x *Exporter) Export(ctx context.Context, actor auth.Actor, patientID int64) (*Export, error) {
	if !x.authz.IsAdmin(actor) {
		return nil, apperr.New(apperr.CodeForbidden, "only an admin can export patient data")
	}

	p, err := x.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("patient #%d not found", patientID))
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}

	appts, err := x.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	series, err := x.repo.ListSeriesByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list recurrence series by patient: %w", err)
	}

	x.audit.Record(ctx, actor.UserID, audit.ActionPatientExported, audit.EntityPatient, strconv.FormatInt(patientID, 10),
		fmt.Sprintf("Patient #%d data exported", patientID))

	return &Export{
		Patient:      *p,
		Appointments: appts,
		Series:       series,
		ExportedAt:   x.now().UTC(),
	}, nil
}
