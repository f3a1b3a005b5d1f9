package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

func TestCheckTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to Status
		kind     TransitionKind
	}{
		{StatusToConfirm, StatusConfirmed, KindForward},
		{StatusConfirmed, StatusInWaitingRoom, KindForward},
		{StatusInWaitingRoom, StatusInProgress, KindForward},
		{StatusInProgress, StatusCompleted, KindForward},
		{StatusToConfirm, StatusCompleted, KindSkip},
		{StatusConfirmed, StatusInProgress, KindSkip},
		{StatusInWaitingRoom, StatusConfirmed, KindCorrection},
		{StatusInProgress, StatusInWaitingRoom, KindCorrection},
		{StatusConfirmed, StatusToConfirm, KindCorrection},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			tr, err := CheckTransition(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, tr.Kind)
			if tt.kind == KindForward {
				assert.Empty(t, tr.Warning())
			} else {
				assert.NotEmpty(t, tr.Warning())
			}
		})
	}
}

func TestSideExitsFromEveryOpenStatus(t *testing.T) {
	for _, from := range allStatuses {
		if from.Terminal() {
			continue
		}
		for _, to := range []Status{StatusNoShow, StatusCancelled} {
			tr, err := CheckTransition(from, to)
			require.NoError(t, err, "%s -> %s", from, to)
			assert.Equal(t, KindSideExit, tr.Kind)
			assert.Empty(t, tr.Warning())
		}
	}
}

func TestTerminalStatusesNeverChange(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusNoShow, StatusCancelled} {
		for _, to := range allStatuses {
			_, err := CheckTransition(from, to)
			assert.ErrorIs(t, err, apperr.InvalidTransition, "%s -> %s", from, to)
		}
	}
}

func TestCheckTransitionRejected(t *testing.T) {
	tests := []struct {
		name     string
		from, to Status
		code     apperr.Code
	}{
		{"same status", StatusConfirmed, StatusConfirmed, apperr.CodeInvalidTransition},
		{"two steps back", StatusInProgress, StatusConfirmed, apperr.CodeInvalidTransition},
		{"back to start from waiting room", StatusInWaitingRoom, StatusToConfirm, apperr.CodeInvalidTransition},
		{"unknown target", StatusConfirmed, Status("archived"), apperr.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckTransition(tt.from, tt.to)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestEveryTableEntryIsBetweenKnownStatuses(t *testing.T) {
	for from, targets := range transitions {
		assert.True(t, from.Valid())
		assert.False(t, from.Terminal())
		for to := range targets {
			assert.True(t, to.Valid())
			assert.NotEqual(t, from, to)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	s, err := InitialStatus("to_confirm")
	require.NoError(t, err)
	assert.Equal(t, StatusToConfirm, s)

	s, err = InitialStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)

	for _, raw := range []string{"", "completed", "in_progress", "bogus"} {
		_, err := InitialStatus(raw)
		assert.Error(t, err, raw)
	}
}

func TestTypesIsClosedSet(t *testing.T) {
	types := Types()
	assert.Len(t, types, 5)
	for _, ty := range types {
		assert.True(t, ty.Valid())
	}
	assert.False(t, Type("massage").Valid())

	// Callers cannot grow the catalog through the returned slice.
	types[0] = "massage"
	assert.Equal(t, TypeConsultation, Types()[0])
}
