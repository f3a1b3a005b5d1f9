package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

const maxBodyBytes = 1 << 20

// --- patients ---

func registerPatientHandler(reg *patient.Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req patient.RegisterInput
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := reg.Register(r.Context(), actor, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPatientResponse(p))
	}
}

func exportPatientHandler(exp *patient.Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		x, err := exp.Export(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toExportResponse(x))
	}
}

func erasePatientHandler(eraser *patient.Eraser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ErasureRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := eraser.Erase(r.Context(), actor, id, req.Justification)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, ErasureResponse{
			PatientID:              res.PatientID,
			AppointmentsAnonymized: res.AppointmentsAnonymized,
			SeriesDeleted:          res.SeriesDeleted,
		})
	}
}

// --- absences ---

func createAbsenceHandler(ledger *absence.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req AbsenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, end, ok := absenceDates(w, req)
		if !ok {
			return
		}

		res, err := ledger.Create(r.Context(), actor, absence.CreateInput{
			ProviderID: req.ProviderID,
			StartDate:  start,
			EndDate:    end,
			Type:       absence.Type(req.Type),
			Reason:     req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAbsenceResult(res))
	}
}

func updateAbsenceHandler(ledger *absence.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req AbsenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, end, ok := absenceDates(w, req)
		if !ok {
			return
		}

		res, err := ledger.Update(r.Context(), actor, id, absence.UpdateInput{
			StartDate: start,
			EndDate:   end,
			Type:      absence.Type(req.Type),
			Reason:    req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAbsenceResult(res))
	}
}

func deleteAbsenceHandler(ledger *absence.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := ledger.Delete(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listAbsencesHandler(ledger *absence.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r)
		if !ok {
			return
		}
		dr, ok := dateRangeQuery(w, r)
		if !ok {
			return
		}

		list, err := ledger.ListByProvider(r.Context(), providerID, dr)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]AbsenceResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAbsenceResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func toAbsenceResult(res *absence.Result) AbsenceResultResponse {
	out := AbsenceResultResponse{
		Absence:      toAbsenceResponse(res.Absence),
		OverlapCount: res.OverlapCount,
	}
	if res.OverlapCount > 0 {
		out.Warning = fmt.Sprintf("%d appointment(s) already scheduled in this period", res.OverlapCount)
	}
	return out
}

// --- appointments ---

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req appointment.CreateInput
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Create(r.Context(), actor, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := CreateAppointmentResponse{
			Appointment:      toAppointmentResponse(res.Appointment),
			CoveringAbsences: res.CoveringAbsences,
		}
		if res.CoveringAbsences > 0 {
			resp.Warning = "the provider is recorded as absent on this date"
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func createRecurringHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req appointment.RecurringInput
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.CreateRecurring(r.Context(), actor, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := RecurringResponse{
			Series:                   toSeriesResponse(res.Series),
			Appointments:             toAppointmentResponses(res.Appointments),
			OccurrencesDuringAbsence: res.OccurrencesDuringAbsence,
		}
		if res.OccurrencesDuringAbsence > 0 {
			resp.Warning = fmt.Sprintf("%d occurrence(s) fall on dates the provider is absent", res.OccurrencesDuringAbsence)
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func changeStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req StatusChangeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		change, err := svc.ChangeStatus(r.Context(), actor, id, appointment.Status(req.Status))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusChangeResponse{
			Appointment: toAppointmentResponse(change.Appointment),
			Kind:        string(change.Transition.Kind),
			Warning:     change.Transition.Warning(),
		})
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r)
		if !ok {
			return
		}
		dr, ok := dateRangeQuery(w, r)
		if !ok {
			return
		}

		list, err := svc.ListByProvider(r.Context(), providerID, dr)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func listTypesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListTypes(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]TypeSettingsResponse, 0, len(types))
		for i := range types {
			resp = append(resp, toTypeSettingsResponse(&types[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func configureTypeHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req appointment.TypeSettingsInput
		if !decodeJSON(w, r, &req) {
			return
		}

		ts, err := svc.ConfigureType(r.Context(), actor, appointment.Type(chi.URLParam(r, "code")), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toTypeSettingsResponse(ts))
	}
}

// --- helpers ---

func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "missing bearer token")
	}
	return actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, string(apperr.CodeValidation), "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// dateRangeQuery reads the mandatory from/to query parameters (YYYY-MM-DD).
func dateRangeQuery(w http.ResponseWriter, r *http.Request) (calendar.DateRange, bool) {
	q := r.URL.Query()
	from, err := calendar.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.CodeValidation), "from must be a date (YYYY-MM-DD)")
		return calendar.DateRange{}, false
	}
	to, err := calendar.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.CodeValidation), "to must be a date (YYYY-MM-DD)")
		return calendar.DateRange{}, false
	}
	return calendar.NewDateRange(from, to), true
}

// absenceDates parses the civil dates of an absence body. Empty values stay
// zero so the ledger reports them as missing.
func absenceDates(w http.ResponseWriter, req AbsenceRequest) (start, end time.Time, ok bool) {
	parse := func(field, raw string) (time.Time, bool) {
		if raw == "" {
			return time.Time{}, true
		}
		d, err := calendar.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(apperr.CodeValidation), field+" must be a date (YYYY-MM-DD)")
			return time.Time{}, false
		}
		return d, true
	}

	if start, ok = parse("start_date", req.StartDate); !ok {
		return
	}
	end, ok = parse("end_date", req.EndDate)
	return
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.CodeValidation), "could not parse JSON")
		return false
	}
	return true
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeInvalidIdentity, apperr.CodeDecode:
		return http.StatusUnprocessableEntity
	case apperr.CodeDuplicateIdentity, apperr.CodeInvalidTransition:
		return http.StatusConflict
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a core error to its HTTP status. Untyped errors are
// storage faults: they are logged and their text is not sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", string(code)).Msg("request failed")
	}

	details := err.Error()
	if code == apperr.CodeInternal {
		details = "internal error"
	}
	writeError(w, status, string(code), details)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
