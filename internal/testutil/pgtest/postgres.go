//go:build integration

// Package pgtest starts a throwaway Postgres with the schema applied.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/migrations"
)

type Postgres struct {
	Container *postgres.PostgresContainer
	DSN       string
	Pool      *pgxpool.Pool
}

// Start runs a container, applies every migration and registers cleanup on t.
func Start(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clinic_test"),
		postgres.WithUsername("clinic"),
		postgres.WithPassword("clinic_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &Postgres{Container: container, DSN: dsn, Pool: pool}
}

// Reset empties every data table and keeps the seeded type catalog.
func (p *Postgres) Reset(t *testing.T) {
	t.Helper()
	_, err := p.Pool.Exec(context.Background(), `
		TRUNCATE audit_events, absence_periods, appointments, recurrence_series, patients, providers
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

// AddProvider inserts a provider and returns its id.
func (p *Postgres) AddProvider(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	err := p.Pool.QueryRow(context.Background(),
		`INSERT INTO providers (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert provider: %v", err)
	}
	return id
}
