package appointment

import (
	"fmt"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

type TransitionKind string

const (
	// KindForward is the next step of the normal visit flow.
	KindForward TransitionKind = "forward"
	// KindSideExit ends a visit early: no-show or cancellation.
	KindSideExit TransitionKind = "side_exit"
	// KindSkip jumps over one or more forward steps. Legal, with a warning.
	KindSkip TransitionKind = "skip"
	// KindCorrection steps back once to undo a mis-click. Legal, with a warning.
	KindCorrection TransitionKind = "correction"
)

type Transition struct {
	From Status
	To   Status
	Kind TransitionKind
}

// Warning is empty for forward moves and side exits.
func (t Transition) Warning() string {
	switch t.Kind {
	case KindSkip:
		return fmt.Sprintf("status jumped from %s to %s, skipping intermediate steps", t.From, t.To)
	case KindCorrection:
		return fmt.Sprintf("status moved back from %s to %s", t.From, t.To)
	}
	return ""
}

// transitions is the allow-list. Terminal statuses have no entry.
var transitions = map[Status]map[Status]TransitionKind{
	StatusToConfirm: {
		StatusConfirmed:     KindForward,
		StatusInWaitingRoom: KindSkip,
		StatusInProgress:    KindSkip,
		StatusCompleted:     KindSkip,
		StatusNoShow:        KindSideExit,
		StatusCancelled:     KindSideExit,
	},
	StatusConfirmed: {
		StatusToConfirm:     KindCorrection,
		StatusInWaitingRoom: KindForward,
		StatusInProgress:    KindSkip,
		StatusCompleted:     KindSkip,
		StatusNoShow:        KindSideExit,
		StatusCancelled:     KindSideExit,
	},
	StatusInWaitingRoom: {
		StatusConfirmed:  KindCorrection,
		StatusInProgress: KindForward,
		StatusCompleted:  KindSkip,
		StatusNoShow:     KindSideExit,
		StatusCancelled:  KindSideExit,
	},
	StatusInProgress: {
		StatusInWaitingRoom: KindCorrection,
		StatusCompleted:     KindForward,
		StatusNoShow:        KindSideExit,
		StatusCancelled:     KindSideExit,
	},
}

// CheckTransition returns the kind of move from -> to, or an InvalidTransition
// error when the table does not allow it.
func CheckTransition(from, to Status) (Transition, error) {
	if !to.Valid() {
		return Transition{}, apperr.Newf(apperr.CodeValidation, "unknown appointment status %q", to)
	}
	if from.Terminal() {
		return Transition{}, apperr.Newf(apperr.CodeInvalidTransition, "appointment is %s; a terminal status cannot change", from)
	}
	if from == to {
		return Transition{}, apperr.Newf(apperr.CodeInvalidTransition, "appointment is already %s", from)
	}

	kind, ok := transitions[from][to]
	if !ok {
		return Transition{}, apperr.Newf(apperr.CodeInvalidTransition, "cannot move appointment from %s to %s", from, to)
	}
	return Transition{From: from, To: to, Kind: kind}, nil
}

// InitialStatus validates the configured status new appointments start in.
func InitialStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusToConfirm, StatusConfirmed:
		return s, nil
	default:
		return "", fmt.Errorf("initial appointment status must be %s or %s, got %q", StatusToConfirm, StatusConfirmed, raw)
	}
}
