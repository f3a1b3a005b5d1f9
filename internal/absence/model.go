package absence

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

// Type is the closed set of absence kinds.
type Type string

const (
	TypeLeave    Type = "leave"
	TypeIllness  Type = "illness"
	TypeTraining Type = "training"
	TypeOther    Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLeave, TypeIllness, TypeTraining, TypeOther:
		return true
	}
	return false
}

// Absence is a provider's unavailability over whole civil dates. StartDate and
// EndDate are UTC midnights and both are included.
type Absence struct {
	ID         int64
	ProviderID int64
	StartDate  time.Time
	EndDate    time.Time
	Type       Type
	Reason     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a Absence) Range() calendar.DateRange {
	return calendar.DateRange{Start: a.StartDate, End: a.EndDate}
}
