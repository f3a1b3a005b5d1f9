package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/nin"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

type seeder struct {
	pool     *pgxpool.Pool
	loc      *time.Location
	logger   zerolog.Logger
	patients *patient.PgRepository
	appts    *appointment.PgRepository
	absences *absence.PgRepository
	initial  appointment.Status
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	initial, err := appointment.InitialStatus(cfg.InitialAppointmentStatus)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid initial status")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	s := &seeder{
		pool:     pool,
		loc:      cfg.ClinicLocation,
		logger:   logger,
		patients: patient.NewPgRepository(pool),
		appts:    appointment.NewPgRepository(pool),
		absences: absence.NewPgRepository(pool),
		initial:  initial,
	}

	if err := s.run(context.Background(),
		getInt("SEED_PROVIDERS", 20),
		getInt("SEED_PATIENTS", 2000),
		getInt("SEED_APPOINTMENTS_PER_PROVIDER", 60),
	); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}

	logger.Info().Msg("seed complete")
}

func (s *seeder) run(ctx context.Context, providers, patients, perProvider int) error {
	providerIDs, err := s.seedProviders(ctx, providers)
	if err != nil {
		return fmt.Errorf("seed providers: %w", err)
	}
	patientIDs, err := s.seedPatients(ctx, patients)
	if err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	if err := s.seedAbsences(ctx, providerIDs); err != nil {
		return fmt.Errorf("seed absences: %w", err)
	}
	if err := s.seedAppointments(ctx, providerIDs, patientIDs, perProvider); err != nil {
		return fmt.Errorf("seed appointments: %w", err)
	}
	return nil
}

func (s *seeder) seedProviders(ctx context.Context, count int) ([]int64, error) {
	s.logger.Info().Int("count", count).Msg("seeding providers")

	disciplines := []string{
		"General Practice",
		"Physiotherapy",
		"Speech Therapy",
		"Dermatology",
		"Pediatrics",
		"Psychology",
		"Dietetics",
		"Nursing",
	}

	ids := make([]int64, 0, count)
	err := db.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO providers (name, email, discipline)
				VALUES ($1, $2, $3)
				RETURNING id
			`, "Dr. "+gofakeit.Name(), gofakeit.Email(), gofakeit.RandomString(disciplines)).Scan(&id)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("count", len(ids)).Msg("providers seeded")
	return ids, nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) ([]int64, error) {
	s.logger.Info().Int("count", count).Msg("seeding patients")

	oldest := time.Date(1930, 1, 1, 0, 0, 0, 0, time.UTC)
	youngest := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)

	ids := make([]int64, 0, count)
	skipped := 0
	for len(ids) < count {
		birth := gofakeit.DateRange(oldest, youngest)
		birth = time.Date(birth.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, time.UTC)
		number, err := nin.Generate(birth, gofakeit.Number(1, 998))
		if err != nil {
			return nil, err
		}

		email := gofakeit.Email()
		phone := gofakeit.Phone()
		address := gofakeit.Address().Address

		p, err := s.patients.CreatePatient(ctx, patient.Patient{
			NIN:       number,
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			BirthDate: birth,
			Sex:       nin.DecodeSex(number),
			Email:     &email,
			Phone:     &phone,
			Address:   &address,
		})
		if errors.Is(err, patient.ErrDuplicateNIN) {
			skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)

		if len(ids)%500 == 0 {
			s.logger.Info().Int("seeded", len(ids)).Int("total", count).Msg("patients progress")
		}
	}

	s.logger.Info().Int("count", len(ids)).Int("duplicates_skipped", skipped).Msg("patients seeded")
	return ids, nil
}

// seedAbsences gives roughly one provider in four a week of leave starting
// in the next month.
func (s *seeder) seedAbsences(ctx context.Context, providers []int64) error {
	today := time.Now().In(s.loc)
	base := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	types := []absence.Type{absence.TypeLeave, absence.TypeIllness, absence.TypeTraining}
	created := 0
	for _, providerID := range providers {
		if gofakeit.Number(0, 3) != 0 {
			continue
		}
		start := base.AddDate(0, 0, gofakeit.Number(1, 30))
		_, err := s.absences.CreateAbsence(ctx, absence.Absence{
			ProviderID: providerID,
			StartDate:  start,
			EndDate:    start.AddDate(0, 0, gofakeit.Number(0, 6)),
			Type:       types[gofakeit.Number(0, len(types)-1)],
		})
		if err != nil {
			return err
		}
		created++
	}

	s.logger.Info().Int("count", created).Msg("absences seeded")
	return nil
}

// seedAppointments spreads appointments over the working hours of the next
// four weeks, skipping weekends.
func (s *seeder) seedAppointments(ctx context.Context, providers, patients []int64, perProvider int) error {
	if len(patients) == 0 {
		return nil
	}

	var bookable []appointment.Type
	for _, t := range appointment.Types() {
		if t != appointment.TypeBlocked {
			bookable = append(bookable, t)
		}
	}
	durations := map[appointment.Type]time.Duration{}
	settings, err := s.appts.ListTypeSettings(ctx)
	if err != nil {
		return err
	}
	for _, ts := range settings {
		durations[ts.Code] = ts.DefaultDuration
	}

	today := time.Now().In(s.loc)
	total := 0
	for _, providerID := range providers {
		for i := 0; i < perProvider; i++ {
			day := today.AddDate(0, 0, gofakeit.Number(1, 28))
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			at := time.Date(day.Year(), day.Month(), day.Day(), gofakeit.Number(8, 16), 15*gofakeit.Number(0, 3), 0, 0, s.loc)
			typ := bookable[gofakeit.Number(0, len(bookable)-1)]
			patientID := patients[gofakeit.Number(0, len(patients)-1)]

			duration := durations[typ]
			if duration <= 0 {
				duration = 30 * time.Minute
			}

			if _, err := s.appts.CreateAppointment(ctx, appointment.Appointment{
				ProviderID:  providerID,
				PatientID:   &patientID,
				ScheduledAt: at,
				Duration:    duration,
				Type:        typ,
				Status:      s.initial,
			}); err != nil {
				return err
			}
			total++
		}
	}

	s.logger.Info().Int("count", total).Msg("appointments seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
