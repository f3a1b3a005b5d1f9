//go:build integration

package patient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/testutil/pgtest"
)

type PgPatientSuite struct {
	suite.Suite
	pg        *pgtest.Postgres
	ctx       context.Context
	repo      *patient.PgRepository
	appts     *appointment.PgRepository
	registrar *patient.Registrar
	admin     auth.Actor
	provider  int64
}

func TestPgPatientSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PgPatientSuite))
}

func (s *PgPatientSuite) SetupSuite() {
	s.pg = pgtest.Start(s.T())
	s.ctx = context.Background()
	s.repo = patient.NewPgRepository(s.pg.Pool)
	s.appts = appointment.NewPgRepository(s.pg.Pool)
	s.admin = auth.Actor{UserID: 1, Role: auth.RoleAdmin}
}

func (s *PgPatientSuite) SetupTest() {
	s.pg.Reset(s.T())
	s.provider = s.pg.AddProvider(s.T(), "Dr. Peeters")
	s.registrar = patient.NewRegistrar(s.repo, redisclient.NewLocalLocker(), s.recorder(), nil, zerolog.Nop())
}

func (s *PgPatientSuite) recorder() *audit.Recorder {
	return audit.NewRecorder(audit.NewPgSink(s.pg.Pool), zerolog.Nop(), nil)
}

func (s *PgPatientSuite) register() *patient.Patient {
	p, err := s.registrar.Register(s.ctx, s.admin, patient.RegisterInput{
		NIN: "85073003328", FirstName: "Jan", LastName: "Maes",
	})
	s.Require().NoError(err)
	return p
}

// seedHistory links three appointments and one series to the patient.
func (s *PgPatientSuite) seedHistory(patientID int64) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	_, err := s.appts.CreateAppointment(s.ctx, appointment.Appointment{
		ProviderID: s.provider, PatientID: &patientID, ScheduledAt: start,
		Duration: 30 * time.Minute, Type: appointment.TypeConsultation, Status: appointment.StatusCompleted,
	})
	s.Require().NoError(err)

	occ := []appointment.Appointment{
		{ProviderID: s.provider, PatientID: &patientID, ScheduledAt: start.AddDate(0, 0, 7), Duration: 20 * time.Minute, Type: appointment.TypeFollowUp, Status: appointment.StatusConfirmed},
		{ProviderID: s.provider, PatientID: &patientID, ScheduledAt: start.AddDate(0, 0, 14), Duration: 20 * time.Minute, Type: appointment.TypeFollowUp, Status: appointment.StatusToConfirm},
	}
	_, created, err := s.appts.CreateSeries(s.ctx, appointment.Series{
		PatientID: patientID, ProviderID: s.provider, FirstStart: occ[0].ScheduledAt, IntervalWeeks: 1, Occurrences: 2,
	}, occ)
	s.Require().NoError(err)
	s.Require().Len(created, 2)
}

func (s *PgPatientSuite) count(query string, args ...any) int {
	var n int
	s.Require().NoError(s.pg.Pool.QueryRow(s.ctx, query, args...).Scan(&n))
	return n
}

func (s *PgPatientSuite) TestRegisterAndUniqueConstraint() {
	p := s.register()
	s.Equal(time.Date(1985, 7, 30, 0, 0, 0, 0, time.UTC), p.BirthDate.UTC())

	_, err := s.repo.CreatePatient(s.ctx, patient.Patient{
		NIN: p.NIN, FirstName: "Other", LastName: "Person", BirthDate: p.BirthDate, Sex: p.Sex,
	})
	s.ErrorIs(err, patient.ErrDuplicateNIN)

	_, err = s.registrar.Register(s.ctx, s.admin, patient.RegisterInput{NIN: p.NIN, FirstName: "A", LastName: "B"})
	s.ErrorIs(err, apperr.DuplicateIdentity)

	s.Equal(1, s.count(`SELECT count(*) FROM audit_events WHERE action = $1`, string(audit.ActionPatientRegistered)))
	s.Zero(s.count(`SELECT count(*) FROM audit_events WHERE description LIKE '%' || $1 || '%'`, p.NIN))
}

func (s *PgPatientSuite) TestErase() {
	p := s.register()
	s.seedHistory(p.ID)

	eraser := patient.NewEraser(s.repo, auth.Policy{}, s.recorder(), nil, zerolog.Nop(), 20)
	res, err := eraser.Erase(s.ctx, s.admin, p.ID, "Written request received on 2024-03-01")
	s.Require().NoError(err)
	s.Equal(3, res.AppointmentsAnonymized)
	s.Equal(1, res.SeriesDeleted)

	s.Equal(3, s.count(`SELECT count(*) FROM appointments WHERE patient_id IS NULL`))
	s.Zero(s.count(`SELECT count(*) FROM appointments WHERE series_id IS NOT NULL`))
	s.Zero(s.count(`SELECT count(*) FROM recurrence_series`))

	_, err = s.repo.GetPatientByID(s.ctx, p.ID)
	s.ErrorIs(err, patient.ErrPatientNotFound)

	s.Zero(s.count(`SELECT count(*) FROM audit_events WHERE description LIKE '%Maes%' AND action = $1`, string(audit.ActionPatientErased)))
}

// faultyRepo breaks the last erasure step inside a real transaction.
type faultyRepo struct {
	*patient.PgRepository
}

type faultyTx struct {
	patient.ErasureTx
}

var errDiskFull = errors.New("disk full")

func (faultyTx) DeletePatient(context.Context, int64) error {
	return errDiskFull
}

func (r faultyRepo) RunInTx(ctx context.Context, fn func(tx patient.ErasureTx) error) error {
	return r.PgRepository.RunInTx(ctx, func(tx patient.ErasureTx) error {
		return fn(faultyTx{tx})
	})
}

func (s *PgPatientSuite) TestEraseRollsBack() {
	p := s.register()
	s.seedHistory(p.ID)

	eraser := patient.NewEraser(faultyRepo{s.repo}, auth.Policy{}, s.recorder(), nil, zerolog.Nop(), 20)
	_, err := eraser.Erase(s.ctx, s.admin, p.ID, "Written request received on 2024-03-01")
	s.Require().ErrorIs(err, apperr.TransactionFailure)
	s.ErrorIs(err, errDiskFull)

	s.Equal(3, s.count(`SELECT count(*) FROM appointments WHERE patient_id = $1`, p.ID))
	s.Equal(1, s.count(`SELECT count(*) FROM recurrence_series WHERE patient_id = $1`, p.ID))
	s.Equal(2, s.count(`SELECT count(*) FROM appointments WHERE series_id IS NOT NULL`))

	_, err = s.repo.GetPatientByID(s.ctx, p.ID)
	s.NoError(err)
}

func (s *PgPatientSuite) TestEraseMissingPatient() {
	eraser := patient.NewEraser(s.repo, auth.Policy{}, s.recorder(), nil, zerolog.Nop(), 20)
	_, err := eraser.Erase(s.ctx, s.admin, 4242, "Written request received on 2024-03-01")
	s.ErrorIs(err, apperr.NotFound)
}
