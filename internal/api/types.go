package api

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

// AbsenceRequest is the body of POST /absences and PUT /absences/{id}.
// Dates are civil dates (YYYY-MM-DD); provider_id is ignored on update.
type AbsenceRequest struct {
	ProviderID int64  `json:"provider_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
}

type StatusChangeRequest struct {
	Status string `json:"status"`
}

type ErasureRequest struct {
	Justification string `json:"justification"`
}

type AppointmentResponse struct {
	ID              int64     `json:"id"`
	ProviderID      int64     `json:"provider_id"`
	PatientID       *int64    `json:"patient_id"`
	SeriesID        *int64    `json:"series_id,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	EndsAt          time.Time `json:"ends_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		SeriesID:        a.SeriesID,
		ScheduledAt:     a.ScheduledAt,
		EndsAt:          a.EndsAt(),
		DurationMinutes: int(a.Duration / time.Minute),
		Type:            string(a.Type),
		Status:          string(a.Status),
		Notes:           a.Notes,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

type CreateAppointmentResponse struct {
	Appointment      AppointmentResponse `json:"appointment"`
	CoveringAbsences int                 `json:"covering_absences"`
	Warning          string              `json:"warning,omitempty"`
}

type StatusChangeResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Kind        string              `json:"transition"`
	Warning     string              `json:"warning,omitempty"`
}

type SeriesResponse struct {
	ID            int64     `json:"id"`
	PatientID     int64     `json:"patient_id"`
	ProviderID    int64     `json:"provider_id"`
	FirstStart    time.Time `json:"first_start"`
	IntervalWeeks int       `json:"interval_weeks"`
	Occurrences   int       `json:"occurrences"`
}

func toSeriesResponse(s *appointment.Series) SeriesResponse {
	return SeriesResponse{
		ID:            s.ID,
		PatientID:     s.PatientID,
		ProviderID:    s.ProviderID,
		FirstStart:    s.FirstStart,
		IntervalWeeks: s.IntervalWeeks,
		Occurrences:   s.Occurrences,
	}
}

type RecurringResponse struct {
	Series                   SeriesResponse        `json:"series"`
	Appointments             []AppointmentResponse `json:"appointments"`
	OccurrencesDuringAbsence int                   `json:"occurrences_during_absence"`
	Warning                  string                `json:"warning,omitempty"`
}

type TypeSettingsResponse struct {
	Code                   string `json:"code"`
	Label                  string `json:"label"`
	DefaultDurationMinutes int    `json:"default_duration_minutes"`
	Color                  string `json:"color"`
}

func toTypeSettingsResponse(ts *appointment.TypeSettings) TypeSettingsResponse {
	return TypeSettingsResponse{
		Code:                   string(ts.Code),
		Label:                  ts.Label,
		DefaultDurationMinutes: int(ts.DefaultDuration / time.Minute),
		Color:                  ts.Color,
	}
}

type AbsenceResponse struct {
	ID         int64   `json:"id"`
	ProviderID int64   `json:"provider_id"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Type       string  `json:"type"`
	Reason     *string `json:"reason,omitempty"`
}

func toAbsenceResponse(a *absence.Absence) AbsenceResponse {
	return AbsenceResponse{
		ID:         a.ID,
		ProviderID: a.ProviderID,
		StartDate:  a.StartDate.Format(time.DateOnly),
		EndDate:    a.EndDate.Format(time.DateOnly),
		Type:       string(a.Type),
		Reason:     a.Reason,
	}
}

type AbsenceResultResponse struct {
	Absence      AbsenceResponse `json:"absence"`
	OverlapCount int             `json:"overlap_count"`
	Warning      string          `json:"warning,omitempty"`
}

// PatientResponse deliberately omits the identity number.
type PatientResponse struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	BirthDate string  `json:"birth_date"`
	Sex       string  `json:"sex"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
}

func toPatientResponse(p *patient.Patient) PatientResponse {
	return PatientResponse{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthDate: p.BirthDate.Format(time.DateOnly),
		Sex:       string(p.Sex),
		Email:     p.Email,
		Phone:     p.Phone,
		Address:   p.Address,
	}
}

// ExportResponse is the right-of-access document, so it does carry the NIN.
type ExportResponse struct {
	Patient      PatientResponse       `json:"patient"`
	NIN          string                `json:"nin"`
	Appointments []AppointmentResponse `json:"appointments"`
	Series       []SeriesResponse      `json:"series"`
	ExportedAt   time.Time             `json:"exported_at"`
}

func toExportResponse(x *patient.Export) ExportResponse {
	series := make([]SeriesResponse, 0, len(x.Series))
	for i := range x.Series {
		series = append(series, toSeriesResponse(&x.Series[i]))
	}
	return ExportResponse{
		Patient:      toPatientResponse(&x.Patient),
		NIN:          x.Patient.NIN,
		Appointments: toAppointmentResponses(x.Appointments),
		Series:       series,
		ExportedAt:   x.ExportedAt,
	}
}

type ErasureResponse struct {
	PatientID              int64 `json:"patient_id"`
	AppointmentsAnonymized int   `json:"appointments_anonymized"`
	SeriesDeleted          int   `json:"series_deleted"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
