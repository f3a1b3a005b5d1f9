package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Record(_ context.Context, ev Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func TestRecorderStampsEvent(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, zerolog.Nop(), nil)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Record(context.Background(), 3, ActionAbsenceCreated, EntityAbsence, "17", "Absence 2024-03-01..2024-03-05 created")

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, fixed, ev.OccurredAt)
	assert.Equal(t, int64(3), ev.ActorID)
	assert.Equal(t, ActionAbsenceCreated, ev.Action)
	assert.Equal(t, "17", ev.EntityID)
}

func TestRecorderSwallowsSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())
	r := NewRecorder(&captureSink{err: errors.New("audit table locked")}, zerolog.New(&buf), m)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), 1, ActionPatientErased, EntityPatient, "9", "Patient #9 erased")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures))
	assert.Contains(t, buf.String(), "failed to record audit event")
	assert.Contains(t, buf.String(), "audit table locked")
}
