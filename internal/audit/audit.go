// Package audit is the append-only record of state-changing actions.
//
// Descriptions are read by back-office staff; they must never contain an
// identity number or any other direct identifier of an erased patient.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type Action string

const (
	ActionPatientRegistered   Action = "PATIENT_REGISTERED"
	ActionPatientErased       Action = "PATIENT_ERASED"
	ActionPatientExported     Action = "PATIENT_EXPORTED"
	ActionAbsenceCreated      Action = "ABSENCE_CREATED"
	ActionAbsenceUpdated      Action = "ABSENCE_UPDATED"
	ActionAbsenceDeleted      Action = "ABSENCE_DELETED"
	ActionAppointmentCreated  Action = "APPOINTMENT_CREATED"
	ActionAppointmentStatus   Action = "APPOINTMENT_STATUS_CHANGED"
	ActionSeriesCreated       Action = "RECURRENCE_SERIES_CREATED"
	ActionAppointmentTypeConf Action = "APPOINTMENT_TYPE_CONFIGURED"
)

type EntityType string

const (
	EntityPatient         EntityType = "patient"
	EntityAbsence         EntityType = "absence"
	EntityAppointment     EntityType = "appointment"
	EntitySeries          EntityType = "recurrence_series"
	EntityAppointmentType EntityType = "appointment_type"
)

// SystemActor is the actor id used by background workers.
const SystemActor int64 = 0

type Event struct {
	ID          uuid.UUID
	OccurredAt  time.Time
	ActorID     int64
	Action      Action
	EntityType  EntityType
	EntityID    string
	Description string
}

// Sink is the audit boundary.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Recorder applies the fire-and-continue policy: a failed write is logged and
// counted but never returned to the caller, so it cannot undo the primary
// mutation it describes.
type Recorder struct {
	sink    Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(sink Sink, logger zerolog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		sink:    sink,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (r *Recorder) Record(ctx context.Context, actorID int64, action Action, entity EntityType, entityID, description string) {
	ev := Event{
		ID:          uuid.New(),
		OccurredAt:  r.now().UTC(),
		ActorID:     actorID,
		Action:      action,
		EntityType:  entity,
		EntityID:    entityID,
		Description: description,
	}

	if err := r.sink.Record(ctx, ev); err != nil {
		r.metrics.IncAuditFailures()
		r.logger.Error().
			Err(err).
			Str("action", string(action)).
			Str("entity_type", string(entity)).
			Str("entity_id", entityID).
			Msg("failed to record audit event")
	}
}
