package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Absences     *absence.Ledger
	Registrar    *patient.Registrar
	Eraser       *patient.Eraser
	Exporter     *patient.Exporter
	Tokens       TokenParser
	Postgres     Pinger
	Redis        Pinger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Post("/patients", registerPatientHandler(cfg.Registrar))
		r.Get("/patients/{id}/export", exportPatientHandler(cfg.Exporter))
		r.Delete("/patients/{id}", erasePatientHandler(cfg.Eraser))

		r.Post("/absences", createAbsenceHandler(cfg.Absences))
		r.Put("/absences/{id}", updateAbsenceHandler(cfg.Absences))
		r.Delete("/absences/{id}", deleteAbsenceHandler(cfg.Absences))
		r.Get("/providers/{id}/absences", listAbsencesHandler(cfg.Absences))

		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/recurring", createRecurringHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/status", changeStatusHandler(cfg.Appointments))
		r.Get("/providers/{id}/appointments", listAppointmentsHandler(cfg.Appointments))

		r.Get("/appointment-types", listTypesHandler(cfg.Appointments))
		r.Put("/appointment-types/{code}", configureTypeHandler(cfg.Appointments))
	})

	return r
}
