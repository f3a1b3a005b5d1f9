package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	StatusRatio   float64
	ReadRatio     float64
	ProviderLimit int
	PatientLimit  int
}

// DataPool holds ids loaded from Postgres plus the appointments created
// during the run.
type DataPool struct {
	Providers    []int64
	Patients     []int64
	mu           sync.RWMutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Metrics struct {
	Booking        OperationMetrics
	StatusChange   OperationMetrics
	ReadByID       OperationMetrics
	ListByProvider OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	loc     *time.Location
	logger  zerolog.Logger
	metrics Metrics
}

// nextStatuses are the targets a worker may request. Many requests are
// refused by the lifecycle (409) once appointments reach a terminal status.
var nextStatuses = []appointment.Status{
	appointment.StatusConfirmed,
	appointment.StatusInWaitingRoom,
	appointment.StatusInProgress,
	appointment.StatusCompleted,
	appointment.StatusCancelled,
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulator config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("status", cfg.StatusRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("providers", len(dataPool.Providers)).Int("patients", len(dataPool.Patients)).Msg("data pool loaded")

	// The simulator acts as an admin so every provider agenda is writable.
	tokens := auth.NewTokenService(baseCfg.JWTSigningKey, auth.TokenIssuer, cfg.Duration+time.Minute)
	token, err := tokens.Issue(auth.Actor{UserID: 1, Role: auth.RoleAdmin}, time.Now())
	if err != nil {
		logger.Fatal().Err(err).Msg("issue simulator token")
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		loc:    baseCfg.ClinicLocation,
		logger: logger,
	}

	sim.Run()
	sim.PrintReport(os.Stdout)
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		StatusRatio:   getFloat("SIM_STATUS_RATIO", 0.3),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 100),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	dataPool.Providers, err = loadIDs(ctx, pool, `SELECT id FROM providers ORDER BY id LIMIT $1`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients ORDER BY id LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded; run cmd/seed first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded; run cmd/seed first")
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]int64, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.StatusRatio:
				s.doStatusChange(ctx, rng)
			case rng.Intn(2) == 0:
				s.doReadByID(ctx, rng)
			default:
				s.doListByProvider(ctx, rng)
			}
		}
	}
}

// call sends one authenticated request and returns the status code, or 0 on
// transport failure.
func (s *Simulator) call(ctx context.Context, method, path string, body any, out any) int {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	day := time.Now().In(s.loc).AddDate(0, 0, 1+rng.Intn(60))
	at := time.Date(day.Year(), day.Month(), day.Day(), 8+rng.Intn(9), 15*rng.Intn(4), 0, 0, s.loc)
	types := bookableTypes()

	var created struct {
		Appointment struct {
			ID int64 `json:"id"`
		} `json:"appointment"`
	}

	start := time.Now()
	code := s.call(ctx, http.MethodPost, "/appointments", map[string]any{
		"provider_id":  providerID,
		"patient_id":   patientID,
		"scheduled_at": at,
		"type":         types[rng.Intn(len(types))],
	}, &created)
	latency := time.Since(start)

	success := code == http.StatusCreated
	if success && created.Appointment.ID > 0 {
		s.pool.AddAppointment(created.Appointment.ID)
	}
	s.metrics.Booking.Record(latency, success, code == http.StatusConflict)
}

func (s *Simulator) doStatusChange(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	to := nextStatuses[rng.Intn(len(nextStatuses))]

	start := time.Now()
	code := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/status", apptID), map[string]string{"status": string(to)}, nil)
	latency := time.Since(start)

	s.metrics.StatusChange.Record(latency, code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	code := s.call(ctx, http.MethodGet, fmt.Sprintf("/appointments/%d", apptID), nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), code == http.StatusOK, false)
}

func (s *Simulator) doListByProvider(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	from := time.Now().In(s.loc)
	to := from.AddDate(0, 0, 14)

	start := time.Now()
	code := s.call(ctx, http.MethodGet, fmt.Sprintf("/providers/%d/appointments?from=%s&to=%s",
		providerID, from.Format(time.DateOnly), to.Format(time.DateOnly)), nil, nil)
	s.metrics.ListByProvider.Record(time.Since(start), code == http.StatusOK, false)
}

// bookableTypes drops the blocked code, which carries no patient.
func bookableTypes() []appointment.Type {
	var out []appointment.Type
	for _, t := range appointment.Types() {
		if t != appointment.TypeBlocked {
			out = append(out, t)
		}
	}
	return out
}

func (s *Simulator) PrintReport(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(w, "Workers: %d\n\n", s.config.Workers)

	printOperationReport(w, "Booking", &s.metrics.Booking)
	printOperationReport(w, "Status change", &s.metrics.StatusChange)
	printOperationReport(w, "Read by ID", &s.metrics.ReadByID)
	printOperationReport(w, "List by provider", &s.metrics.ListByProvider)
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
