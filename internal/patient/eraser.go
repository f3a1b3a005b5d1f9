package patient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

const (
	DefaultMinJustification = 20
	excerptRunes            = 60
)

type ErasureResult struct {
	PatientID              int64
	AppointmentsAnonymized int
	SeriesDeleted          int
}

// Eraser permanently removes a patient's personal data. Appointments survive
// without a patient so statistics stay intact.
type Eraser struct {
	repo             Repository
	authz            auth.Authorizer
	audit            *audit.Recorder
	metrics          *metrics.Metrics
	logger           zerolog.Logger
	minJustification int
}

func NewEraser(repo Repository, authz auth.Authorizer, recorder *audit.Recorder, m *metrics.Metrics, logger zerolog.Logger, minJustification int) *Eraser {
	if minJustification <= 0 {
		minJustification = DefaultMinJustification
	}
	return &Eraser{
		repo:             repo,
		authz:            authz,
		audit:            recorder,
		metrics:          m,
		logger:           logger.With().Str("component", "eraser").Logger(),
		minJustification: minJustification,
	}
}

// Erase detaches appointments, deletes recurrence series and deletes the
// patient in one transaction. Nothing is kept on failure; callers retry the
// whole operation.
func (e *Eraser) Erase(ctx context.Context, actor auth.Actor, patientID int64, justification string) (*ErasureResult, error) {
	if !e.authz.IsAdmin(actor) {
		return nil, apperr.New(apperr.CodeForbidden, "only an admin can erase a patient")
	}

	justification = strings.TrimSpace(justification)
	if utf8.RuneCountInString(justification) < e.minJustification {
		return nil, apperr.Newf(apperr.CodeValidation, "justification must be at least %d characters", e.minJustification)
	}

	res := ErasureResult{PatientID: patientID}
	err := e.repo.RunInTx(ctx, func(tx ErasureTx) error {
		if err := tx.LockPatient(ctx, patientID); err != nil {
			return fmt.Errorf("lock patient: %w", err)
		}

		n, err := tx.DetachAppointments(ctx, patientID)
		if err != nil {
			return fmt.Errorf("detach appointments: %w", err)
		}
		res.AppointmentsAnonymized = n

		n, err = tx.DeleteRecurrenceSeries(ctx, patientID)
		if err != nil {
			return fmt.Errorf("delete recurrence series: %w", err)
		}
		res.SeriesDeleted = n

		if err := tx.DeletePatient(ctx, patientID); err != nil {
			return fmt.Errorf("delete patient: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("patient #%d not found", patientID))
		}
		e.metrics.IncErasuresFailed()
		e.logger.Error().Err(err).Int64("patient_id", patientID).Msg("erasure rolled back")
		return nil, apperr.Wrap(err, apperr.CodeTransactionFailure, fmt.Sprintf("erasure of patient #%d failed and was rolled back", patientID))
	}

	e.metrics.IncPatientsErased()
	e.audit.Record(ctx, actor.UserID, audit.ActionPatientErased, audit.EntityPatient, strconv.FormatInt(patientID, 10),
		fmt.Sprintf("Patient #%d erased; %d appointment(s) anonymized; justification: %s",
			patientID, res.AppointmentsAnonymized, excerpt(justification, excerptRunes)))

	return &res, nil
}

// excerpt cuts s to at most n runes, marking the cut with an ellipsis.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
