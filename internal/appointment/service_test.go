package appointment_test

import (
	"context"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	loc      *time.Location
	store    *memstore.Store
	metrics  *metrics.Metrics
	now      time.Time
	svc      *appointment.Service
	provider int64
	other    int64
	patient  int64
	admin    auth.Actor
	owner    auth.Actor
	stranger auth.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.loc, err = time.LoadLocation("Europe/Brussels")
	s.Require().NoError(err)

	s.store = memstore.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.provider = s.store.AddProvider("Dr. Peeters")
	s.other = s.store.AddProvider("Dr. Janssens")

	p, err := s.store.Patients().CreatePatient(s.ctx, patient.Patient{NIN: "85073003328", FirstName: "Jan", LastName: "Maes"})
	s.Require().NoError(err)
	s.patient = p.ID

	s.admin = auth.Actor{UserID: 1, Role: auth.RoleAdmin}
	s.owner = auth.Actor{UserID: 2, Role: auth.RoleStaff, ProviderID: &s.provider}
	s.stranger = auth.Actor{UserID: 3, Role: auth.RoleStaff, ProviderID: &s.other}

	s.now = time.Date(2024, 3, 15, 12, 0, 0, 0, s.loc)
	s.svc = s.newService(appointment.StatusToConfirm)
}

func (s *ServiceSuite) newService(initial appointment.Status) *appointment.Service {
	conflicts := appointment.NewConflictDetector(s.store.Appointments(), s.store.Absences(), s.loc)
	recorder := audit.NewRecorder(s.store.Audit(), zerolog.Nop(), s.metrics)
	return appointment.NewService(s.store.Appointments(), conflicts, auth.Policy{}, recorder, s.metrics, zerolog.Nop(), appointment.Settings{
		InitialStatus: initial,
		NoShowGrace:   24 * time.Hour,
		Clock:         func() time.Time { return s.now },
	})
}

func (s *ServiceSuite) at(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, s.loc)
}

func (s *ServiceSuite) create(actor auth.Actor, start time.Time) *appointment.Appointment {
	res, err := s.svc.Create(s.ctx, actor, appointment.CreateInput{
		ProviderID:  s.provider,
		PatientID:   &s.patient,
		ScheduledAt: start,
		Type:        appointment.TypeConsultation,
	})
	s.Require().NoError(err)
	return res.Appointment
}

func (s *ServiceSuite) TestCreate() {
	s.Run("uses type default duration and initial status", func() {
		res, err := s.svc.Create(s.ctx, s.owner, appointment.CreateInput{
			ProviderID:  s.provider,
			PatientID:   &s.patient,
			ScheduledAt: s.at(20, 9),
			Type:        appointment.TypeHomeVisit,
			Notes:       "  bring results  ",
		})
		s.Require().NoError(err)

		a := res.Appointment
		s.Equal(45*time.Minute, a.Duration)
		s.Equal(appointment.StatusToConfirm, a.Status)
		s.Require().NotNil(a.Notes)
		s.Equal("bring results", *a.Notes)
		s.Zero(res.CoveringAbsences)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AppointmentsCreated))

		events := s.store.Events()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionAppointmentCreated, events[0].Action)
		s.NotContains(events[0].Description, "Maes")
	})

	s.Run("administrative time without a patient", func() {
		res, err := s.svc.Create(s.ctx, s.owner, appointment.CreateInput{
			ProviderID:      s.provider,
			ScheduledAt:     s.at(20, 12),
			DurationMinutes: 60,
			Type:            appointment.TypeBlocked,
		})
		s.Require().NoError(err)
		s.Nil(res.Appointment.PatientID)
		s.Equal(time.Hour, res.Appointment.Duration)
	})

	s.Run("initial status from settings", func() {
		svc := s.newService(appointment.StatusConfirmed)
		res, err := svc.Create(s.ctx, s.admin, appointment.CreateInput{
			ProviderID:  s.provider,
			ScheduledAt: s.at(21, 9),
			Type:        appointment.TypeConsultation,
		})
		s.Require().NoError(err)
		s.Equal(appointment.StatusConfirmed, res.Appointment.Status)
	})

	s.Run("reports covering absence without blocking", func() {
		_, err := s.store.Absences().CreateAbsence(s.ctx, absence.Absence{
			ProviderID: s.provider,
			StartDate:  time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2024, 3, 26, 0, 0, 0, 0, time.UTC),
			Type:       absence.TypeTraining,
		})
		s.Require().NoError(err)

		res, err := s.svc.Create(s.ctx, s.owner, appointment.CreateInput{
			ProviderID:  s.provider,
			ScheduledAt: s.at(26, 23),
			Type:        appointment.TypeConsultation,
		})
		s.Require().NoError(err)
		s.NotZero(res.Appointment.ID)
		s.Equal(1, res.CoveringAbsences)
	})
}

func (s *ServiceSuite) TestCreateRejections() {
	missing := int64(9999)

	tests := []struct {
		name  string
		actor auth.Actor
		in    appointment.CreateInput
		code  apperr.Code
	}{
		{
			name:  "other provider's agenda",
			actor: s.stranger,
			in:    appointment.CreateInput{ProviderID: s.provider, ScheduledAt: s.at(20, 9), Type: appointment.TypeConsultation},
			code:  apperr.CodeForbidden,
		},
		{
			name:  "unknown provider",
			actor: s.admin,
			in:    appointment.CreateInput{ProviderID: missing, ScheduledAt: s.at(20, 9), Type: appointment.TypeConsultation},
			code:  apperr.CodeNotFound,
		},
		{
			name:  "unknown patient",
			actor: s.admin,
			in:    appointment.CreateInput{ProviderID: s.provider, PatientID: &missing, ScheduledAt: s.at(20, 9), Type: appointment.TypeConsultation},
			code:  apperr.CodeNotFound,
		},
		{
			name:  "unknown type",
			actor: s.admin,
			in:    appointment.CreateInput{ProviderID: s.provider, ScheduledAt: s.at(20, 9), Type: "massage"},
			code:  apperr.CodeValidation,
		},
		{
			name:  "missing start",
			actor: s.admin,
			in:    appointment.CreateInput{ProviderID: s.provider, Type: appointment.TypeConsultation},
			code:  apperr.CodeValidation,
		},
		{
			name:  "negative duration",
			actor: s.admin,
			in:    appointment.CreateInput{ProviderID: s.provider, ScheduledAt: s.at(20, 9), DurationMinutes: -5, Type: appointment.TypeConsultation},
			code:  apperr.CodeValidation,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Create(s.ctx, tt.actor, tt.in)
			s.Require().Error(err)
			s.Equal(tt.code, apperr.CodeOf(err))
		})
	}

	s.Empty(s.store.Events())
}

func (s *ServiceSuite) TestCreateWithoutTypeDefaultNeedsDuration() {
	s.store.Appointments().RemoveTypeSettings(appointment.TypeFollowUp)

	_, err := s.svc.Create(s.ctx, s.owner, appointment.CreateInput{
		ProviderID:  s.provider,
		ScheduledAt: s.at(20, 9),
		Type:        appointment.TypeFollowUp,
	})
	s.ErrorIs(err, apperr.Validation)

	res, err := s.svc.Create(s.ctx, s.owner, appointment.CreateInput{
		ProviderID:      s.provider,
		ScheduledAt:     s.at(20, 9),
		DurationMinutes: 15,
		Type:            appointment.TypeFollowUp,
	})
	s.Require().NoError(err)
	s.Equal(15*time.Minute, res.Appointment.Duration)
}

func (s *ServiceSuite) TestChangeStatus() {
	a := s.create(s.owner, s.at(20, 9))

	change, err := s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusConfirmed)
	s.Require().NoError(err)
	s.Equal(appointment.StatusConfirmed, change.Appointment.Status)
	s.Equal(appointment.KindForward, change.Transition.Kind)

	change, err = s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusInProgress)
	s.Require().NoError(err)
	s.Equal(appointment.KindSkip, change.Transition.Kind)

	change, err = s.svc.ChangeStatus(s.ctx, s.admin, a.ID, appointment.StatusInWaitingRoom)
	s.Require().NoError(err)
	s.Equal(appointment.KindCorrection, change.Transition.Kind)

	_, err = s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusCompleted)
	s.Require().NoError(err)

	_, err = s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusCancelled)
	s.ErrorIs(err, apperr.InvalidTransition)

	stored, err := s.svc.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(appointment.StatusCompleted, stored.Status)

	var descriptions []string
	for _, ev := range s.store.Events() {
		if ev.Action == audit.ActionAppointmentStatus {
			descriptions = append(descriptions, ev.Description)
		}
	}
	s.Require().Len(descriptions, 4)
	s.NotContains(descriptions[0], "(")
	s.Contains(descriptions[1], "skipping")
	s.Contains(descriptions[2], "moved back")

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.StatusTransitions.WithLabelValues("to_confirm", "confirmed")))
}

func (s *ServiceSuite) TestChangeStatusRejections() {
	a := s.create(s.owner, s.at(20, 9))

	s.Run("stranger", func() {
		_, err := s.svc.ChangeStatus(s.ctx, s.stranger, a.ID, appointment.StatusConfirmed)
		s.ErrorIs(err, apperr.Forbidden)
	})

	s.Run("missing appointment", func() {
		_, err := s.svc.ChangeStatus(s.ctx, s.admin, 424242, appointment.StatusConfirmed)
		s.ErrorIs(err, apperr.NotFound)
	})

	s.Run("same status", func() {
		_, err := s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusToConfirm)
		s.ErrorIs(err, apperr.InvalidTransition)
	})

	s.Run("unknown status", func() {
		_, err := s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.Status("archived"))
		s.ErrorIs(err, apperr.Validation)
	})
}

// staleRepo serves one outdated read, as if another request changed the
// appointment between load and update.
type staleRepo struct {
	*memstore.AppointmentRepo
	stale *appointment.Appointment
}

func (r *staleRepo) GetAppointmentByID(ctx context.Context, id int64) (*appointment.Appointment, error) {
	if r.stale != nil {
		a := *r.stale
		r.stale = nil
		return &a, nil
	}
	return r.AppointmentRepo.GetAppointmentByID(ctx, id)
}

func (s *ServiceSuite) TestChangeStatusLosesRace() {
	a := s.create(s.owner, s.at(20, 9))
	stale := *a

	_, err := s.svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusCancelled)
	s.Require().NoError(err)

	repo := &staleRepo{AppointmentRepo: s.store.Appointments(), stale: &stale}
	conflicts := appointment.NewConflictDetector(repo, s.store.Absences(), s.loc)
	recorder := audit.NewRecorder(s.store.Audit(), zerolog.Nop(), nil)
	svc := appointment.NewService(repo, conflicts, auth.Policy{}, recorder, nil, zerolog.Nop(), appointment.Settings{})

	_, err = svc.ChangeStatus(s.ctx, s.owner, a.ID, appointment.StatusConfirmed)
	s.Require().ErrorIs(err, apperr.InvalidTransition)
	s.Contains(err.Error(), "cancelled")

	stored, err := s.svc.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(appointment.StatusCancelled, stored.Status)
}

func (s *ServiceSuite) TestListByProvider() {
	s.create(s.owner, s.at(3, 8))
	s.create(s.owner, s.at(5, 23))
	s.create(s.owner, s.at(6, 0))

	list, err := s.svc.ListByProvider(s.ctx, s.provider, calendar.DateRange{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.True(list[0].ScheduledAt.Before(list[1].ScheduledAt))

	_, err = s.svc.ListByProvider(s.ctx, s.provider, calendar.DateRange{
		Start: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	s.ErrorIs(err, apperr.Validation)
}

func (s *ServiceSuite) TestCreateRecurringKeepsWallClockAcrossDST() {
	res, err := s.svc.CreateRecurring(s.ctx, s.owner, appointment.RecurringInput{
		ProviderID:    s.provider,
		PatientID:     s.patient,
		FirstStart:    s.at(20, 10),
		Type:          appointment.TypeFollowUp,
		IntervalWeeks: 1,
		Occurrences:   3,
	})
	s.Require().NoError(err)
	s.Require().Len(res.Appointments, 3)

	for i, a := range res.Appointments {
		// 2024-03-31 is the spring DST switch in Brussels.
		want := time.Date(2024, time.March, 20+7*i, 10, 0, 0, 0, s.loc)
		s.True(want.Equal(a.ScheduledAt), "occurrence %d at %s", i, a.ScheduledAt.In(s.loc))
		s.Require().NotNil(a.SeriesID)
		s.Equal(res.Series.ID, *a.SeriesID)
		s.Equal(s.patient, *a.PatientID)
		s.Equal(20*time.Minute, a.Duration)
	}

	series, err := s.store.Patients().ListSeriesByPatient(s.ctx, s.patient)
	s.Require().NoError(err)
	s.Len(series, 1)
	s.Equal(float64(3), testutil.ToFloat64(s.metrics.AppointmentsCreated))
}

func (s *ServiceSuite) TestCreateRecurringCountsOccurrencesDuringAbsence() {
	_, err := s.store.Absences().CreateAbsence(s.ctx, absence.Absence{
		ProviderID: s.provider,
		StartDate:  time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC),
		Type:       absence.TypeLeave,
	})
	s.Require().NoError(err)

	res, err := s.svc.CreateRecurring(s.ctx, s.owner, appointment.RecurringInput{
		ProviderID:    s.provider,
		PatientID:     s.patient,
		FirstStart:    s.at(25, 14),
		Type:          appointment.TypeConsultation,
		IntervalWeeks: 1,
		Occurrences:   4,
	})
	s.Require().NoError(err)
	s.Equal(2, res.OccurrencesDuringAbsence)
}

func (s *ServiceSuite) TestCreateRecurringRejections() {
	s.Run("too many occurrences", func() {
		_, err := s.svc.CreateRecurring(s.ctx, s.owner, appointment.RecurringInput{
			ProviderID: s.provider, PatientID: s.patient, FirstStart: s.at(20, 10),
			Type: appointment.TypeConsultation, IntervalWeeks: 1, Occurrences: 60,
		})
		s.ErrorIs(err, apperr.Validation)
	})

	s.Run("stranger", func() {
		_, err := s.svc.CreateRecurring(s.ctx, s.stranger, appointment.RecurringInput{
			ProviderID: s.provider, PatientID: s.patient, FirstStart: s.at(20, 10),
			Type: appointment.TypeConsultation, IntervalWeeks: 2, Occurrences: 2,
		})
		s.ErrorIs(err, apperr.Forbidden)
	})

	s.Run("storage failure creates nothing", func() {
		s.store.FailOn(memstore.OpCreateSeries, nil)
		defer s.store.Clear(memstore.OpCreateSeries)

		_, err := s.svc.CreateRecurring(s.ctx, s.owner, appointment.RecurringInput{
			ProviderID: s.provider, PatientID: s.patient, FirstStart: s.at(20, 10),
			Type: appointment.TypeConsultation, IntervalWeeks: 1, Occurrences: 2,
		})
		s.ErrorIs(err, memstore.ErrInjected)

		appts, err := s.store.Patients().ListAppointmentsByPatient(s.ctx, s.patient)
		s.Require().NoError(err)
		s.Empty(appts)
	})
}

func (s *ServiceSuite) TestConfigureType() {
	s.Run("admin reconfigures an existing code", func() {
		ts, err := s.svc.ConfigureType(s.ctx, s.admin, appointment.TypeConsultation, appointment.TypeSettingsInput{
			Label: " Long consultation ", DefaultDurationMinutes: 40, Color: "#AA0000",
		})
		s.Require().NoError(err)
		s.Equal("Long consultation", ts.Label)
		s.Equal("#aa0000", ts.Color)

		res, err := s.svc.Create(s.ctx, s.owner, appointment.CreateInput{
			ProviderID: s.provider, ScheduledAt: s.at(20, 9), Type: appointment.TypeConsultation,
		})
		s.Require().NoError(err)
		s.Equal(40*time.Minute, res.Appointment.Duration)
	})

	s.Run("staff cannot configure", func() {
		_, err := s.svc.ConfigureType(s.ctx, s.owner, appointment.TypeConsultation, appointment.TypeSettingsInput{
			Label: "x", DefaultDurationMinutes: 10, Color: "#000000",
		})
		s.ErrorIs(err, apperr.Forbidden)
	})

	s.Run("codes cannot be added", func() {
		_, err := s.svc.ConfigureType(s.ctx, s.admin, "massage", appointment.TypeSettingsInput{
			Label: "Massage", DefaultDurationMinutes: 60, Color: "#000000",
		})
		s.ErrorIs(err, apperr.Validation)

		types, err := s.svc.ListTypes(s.ctx)
		s.Require().NoError(err)
		s.Len(types, len(appointment.Types()))
	})

	s.Run("invalid color", func() {
		_, err := s.svc.ConfigureType(s.ctx, s.admin, appointment.TypeBlocked, appointment.TypeSettingsInput{
			Label: "Blocked", DefaultDurationMinutes: 60, Color: "grey",
		})
		s.ErrorIs(err, apperr.Validation)
	})
}

func (s *ServiceSuite) TestSweepNoShows() {
	stale := s.create(s.owner, s.at(13, 9))
	confirmed := s.create(s.owner, s.at(13, 10))
	_, err := s.svc.ChangeStatus(s.ctx, s.owner, confirmed.ID, appointment.StatusConfirmed)
	s.Require().NoError(err)
	inProgress := s.create(s.owner, s.at(13, 11))
	_, err = s.svc.ChangeStatus(s.ctx, s.owner, inProgress.ID, appointment.StatusInProgress)
	s.Require().NoError(err)
	recent := s.create(s.owner, s.at(15, 9))

	moved, err := s.svc.SweepNoShows(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, moved)

	for id, want := range map[int64]appointment.Status{
		stale.ID:      appointment.StatusNoShow,
		confirmed.ID:  appointment.StatusNoShow,
		inProgress.ID: appointment.StatusInProgress,
		recent.ID:     appointment.StatusToConfirm,
	} {
		a, err := s.svc.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(want, a.Status, "appointment %d", id)
	}

	var bySystem int
	for _, ev := range s.store.Events() {
		if ev.Action == audit.ActionAppointmentStatus && ev.ActorID == audit.SystemActor {
			bySystem++
			s.True(strings.HasSuffix(ev.Description, "-> no_show"))
		}
	}
	s.Equal(2, bySystem)

	moved, err = s.svc.SweepNoShows(s.ctx)
	s.Require().NoError(err)
	s.Zero(moved)
}

func (s *ServiceSuite) TestAuditFailureDoesNotUndoCreate() {
	s.store.FailOn(memstore.OpAuditRecord, nil)
	defer s.store.Clear(memstore.OpAuditRecord)

	a := s.create(s.owner, s.at(20, 9))

	stored, err := s.svc.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.ID, stored.ID)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AuditFailures))
}
