package appointment

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusToConfirm     Status = "to_confirm"
	StatusConfirmed     Status = "confirmed"
	StatusInWaitingRoom Status = "in_waiting_room"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusNoShow        Status = "no_show"
	StatusCancelled     Status = "cancelled"
)

var allStatuses = []Status{
	StatusToConfirm,
	StatusConfirmed,
	StatusInWaitingRoom,
	StatusInProgress,
	StatusCompleted,
	StatusNoShow,
	StatusCancelled,
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow || s == StatusCancelled
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
	return s, nil
}

// Type is the closed set of appointment codes. Codes are configured, never
// added at runtime.
type Type string

const (
	TypeConsultation     Type = "consultation"
	TypeFollowUp         Type = "follow_up"
	TypeHomeVisit        Type = "home_visit"
	TypeTeleconsultation Type = "teleconsultation"
	TypeBlocked          Type = "blocked"
)

var allTypes = []Type{
	TypeConsultation,
	TypeFollowUp,
	TypeHomeVisit,
	TypeTeleconsultation,
	TypeBlocked,
}

func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Types returns the closed set in display order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Appointment belongs to one provider and at most one patient. PatientID
// becomes nil for good once the patient is erased.
type Appointment struct {
	ID          int64
	ProviderID  int64
	PatientID   *int64
	SeriesID    *int64
	ScheduledAt time.Time
	Duration    time.Duration
	Type        Type
	Status      Status
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(a.Duration)
}

// Series groups the appointments generated from one weekly template for a
// patient.
type Series struct {
	ID            int64
	PatientID     int64
	ProviderID    int64
	FirstStart    time.Time
	IntervalWeeks int
	Occurrences   int
	CreatedAt     time.Time
}

// TypeSettings are the display and scheduling attributes of a Type.
type TypeSettings struct {
	Code            Type
	Label           string
	DefaultDuration time.Duration
	Color           string
}
