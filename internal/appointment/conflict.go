package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

// OverlapQuerier is the slice of Repository the detector needs.
type OverlapQuerier interface {
	CountOverlapping(ctx context.Context, providerID int64, from, to time.Time) (int, error)
}

// ConflictDetector answers advisory overlap questions between absences and
// appointments. It never blocks a write.
type ConflictDetector struct {
	appointments OverlapQuerier
	absences     AbsenceCounter
	loc          *time.Location
}

func NewConflictDetector(appointments OverlapQuerier, absences AbsenceCounter, loc *time.Location) *ConflictDetector {
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictDetector{
		appointments: appointments,
		absences:     absences,
		loc:          loc,
	}
}

// CountOverlapping counts the provider's non-cancelled appointments starting
// on any date of r, in the clinic location.
func (d *ConflictDetector) CountOverlapping(ctx context.Context, providerID int64, r calendar.DateRange) (int, error) {
	if !r.Valid() {
		return 0, apperr.Newf(apperr.CodeValidation, "date range %s ends before it starts", r)
	}

	from, to := r.Bounds(d.loc)
	n, err := d.appointments.CountOverlapping(ctx, providerID, from, to)
	if err != nil {
		return 0, fmt.Errorf("count overlapping appointments: %w", err)
	}
	return n, nil
}

// CountCoveringAbsences counts the provider's absences whose dates include
// the civil date of at.
func (d *ConflictDetector) CountCoveringAbsences(ctx context.Context, providerID int64, at time.Time) (int, error) {
	if d.absences == nil {
		return 0, nil
	}
	n, err := d.absences.CountAbsencesCovering(ctx, providerID, calendar.DateOf(at, d.loc))
	if err != nil {
		return 0, fmt.Errorf("count covering absences: %w", err)
	}
	return n, nil
}

func (d *ConflictDetector) Location() *time.Location {
	return d.loc
}
