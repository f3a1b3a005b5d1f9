package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the clinic core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	PatientsRegistered     prometheus.Counter
	RegistrationsRejected  *prometheus.CounterVec
	PatientsErased         prometheus.Counter
	ErasuresFailed         prometheus.Counter
	AbsencesCreated        prometheus.Counter
	AbsenceOverlapWarnings prometheus.Counter
	AppointmentsCreated    prometheus.Counter
	StatusTransitions      *prometheus.CounterVec
	AuditFailures          prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PatientsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_patients_registered_total",
			Help: "Total number of patients admitted through registration",
		}),
		RegistrationsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_patient_registrations_rejected_total",
			Help: "Rejected patient registrations by error code",
		}, []string{"code"}),
		PatientsErased: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_patients_erased_total",
			Help: "Total number of completed privacy erasures",
		}),
		ErasuresFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_erasures_failed_total",
			Help: "Erasure transactions that were rolled back",
		}),
		AbsencesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_absences_created_total",
			Help: "Total number of absence periods created",
		}),
		AbsenceOverlapWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_absence_overlap_warnings_total",
			Help: "Absence writes that overlapped at least one appointment",
		}),
		AppointmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_appointments_created_total",
			Help: "Total number of appointments created",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_appointment_status_transitions_total",
			Help: "Applied appointment status transitions",
		}, []string{"from", "to"}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_audit_failures_total",
			Help: "Audit events that could not be recorded",
		}),
	}
}

func (m *Metrics) IncPatientsRegistered() {
	if m == nil {
		return
	}
	m.PatientsRegistered.Inc()
}

func (m *Metrics) IncRegistrationRejected(code string) {
	if m == nil {
		return
	}
	m.RegistrationsRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) IncPatientsErased() {
	if m == nil {
		return
	}
	m.PatientsErased.Inc()
}

func (m *Metrics) IncErasuresFailed() {
	if m == nil {
		return
	}
	m.ErasuresFailed.Inc()
}

func (m *Metrics) IncAbsencesCreated() {
	if m == nil {
		return
	}
	m.AbsencesCreated.Inc()
}

func (m *Metrics) IncAbsenceOverlapWarnings() {
	if m == nil {
		return
	}
	m.AbsenceOverlapWarnings.Inc()
}

func (m *Metrics) IncAppointmentsCreated() {
	if m == nil {
		return
	}
	m.AppointmentsCreated.Inc()
}

func (m *Metrics) IncStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncAuditFailures() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
