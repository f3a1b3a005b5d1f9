package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const tokenTTL = 12 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api-server stopped")
	}
	logger.Info().Msg("api-server stopped")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initial, err := appointment.InitialStatus(cfg.InitialAppointmentStatus)
	if err != nil {
		return err
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.Connect(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	policy := auth.Policy{}
	recorder := audit.NewRecorder(audit.NewPgSink(pgPool), logger, m)

	apptRepo := appointment.NewPgRepository(pgPool)
	absenceRepo := absence.NewPgRepository(pgPool)
	patientRepo := patient.NewPgRepository(pgPool)
	conflicts := appointment.NewConflictDetector(apptRepo, absenceRepo, cfg.ClinicLocation)

	handler := api.NewRouter(api.RouterConfig{
		Appointments: appointment.NewService(apptRepo, conflicts, policy, recorder, m, logger, appointment.Settings{
			InitialStatus: initial,
			NoShowGrace:   cfg.NoShowGrace,
		}),
		Absences:  absence.NewLedger(absenceRepo, conflicts, policy, recorder, m, logger),
		Registrar: patient.NewRegistrar(patientRepo, redisclient.NewRedisLocker(rdb, cfg.LockTTL), recorder, m, logger),
		Eraser:    patient.NewEraser(patientRepo, policy, recorder, m, logger, cfg.ErasureMinJustification),
		Exporter:  patient.NewExporter(patientRepo, policy, recorder),
		Tokens:    auth.NewTokenService(cfg.JWTSigningKey, auth.TokenIssuer, tokenTTL),
		Postgres:  pgPool,
		Redis:     api.RedisPinger(rdb),
		Gatherer:  reg,
		Logger:    logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
