package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, provider_id, patient_id, series_id, scheduled_at, duration_minutes, type, status, notes, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var minutes int

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.SeriesID,
		&a.ScheduledAt,
		&minutes,
		&a.Type,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Duration = time.Duration(minutes) * time.Minute
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanTypeSettings(row pgx.Row) (*TypeSettings, error) {
	var ts TypeSettings
	var minutes int

	err := row.Scan(&ts.Code, &ts.Label, &minutes, &ts.Color)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTypeSettingsNotFound
		}
		return nil, err
	}

	ts.DefaultDuration = time.Duration(minutes) * time.Minute
	return &ts, nil
}

func minutesOf(d time.Duration) int {
	return int(d / time.Minute)
}

// Interface methods

func (r *PgRepository) PatientExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *PgRepository) ProviderExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID int64, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at, id
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountOverlapping(ctx context.Context, providerID int64, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status <> 'cancelled'
	`, providerID, from, to).Scan(&n)
	return n, err
}

func insertAppointment(ctx context.Context, q db.DBTX, a Appointment) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO appointments (provider_id, patient_id, series_id, scheduled_at, duration_minutes, type, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		a.ProviderID, a.PatientID, a.SeriesID, a.ScheduledAt, minutesOf(a.Duration), a.Type, a.Status, a.Notes)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	return insertAppointment(ctx, r.pool, a)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) CreateSeries(ctx context.Context, s Series, occurrences []Appointment) (*Series, []Appointment, error) {
	var (
		series  Series
		created []Appointment
	)

	err := db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO recurrence_series (patient_id, provider_id, first_start, interval_weeks, occurrences, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			RETURNING id, patient_id, provider_id, first_start, interval_weeks, occurrences, created_at
		`, s.PatientID, s.ProviderID, s.FirstStart, s.IntervalWeeks, s.Occurrences).Scan(
			&series.ID,
			&series.PatientID,
			&series.ProviderID,
			&series.FirstStart,
			&series.IntervalWeeks,
			&series.Occurrences,
			&series.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert recurrence series: %w", err)
		}

		created = make([]Appointment, 0, len(occurrences))
		for _, occ := range occurrences {
			occ.SeriesID = &series.ID
			a, err := insertAppointment(ctx, tx, occ)
			if err != nil {
				return fmt.Errorf("insert occurrence: %w", err)
			}
			created = append(created, *a)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &series, created, nil
}

func (r *PgRepository) FindStaleOpen(ctx context.Context, endedBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('to_confirm', 'confirmed')
		  AND scheduled_at + make_interval(mins => duration_minutes) < $1
		ORDER BY scheduled_at
		LIMIT $2
	`, endedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetTypeSettings(ctx context.Context, code Type) (*TypeSettings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT code, label, default_duration_minutes, color
		FROM appointment_type_settings
		WHERE code = $1
	`, code)
	return scanTypeSettings(row)
}

func (r *PgRepository) ListTypeSettings(ctx context.Context) ([]TypeSettings, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, label, default_duration_minutes, color
		FROM appointment_type_settings
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TypeSettings
	for rows.Next() {
		ts, err := scanTypeSettings(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpsertTypeSettings(ctx context.Context, ts TypeSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_type_settings (code, label, default_duration_minutes, color)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE
		SET label = EXCLUDED.label,
		    default_duration_minutes = EXCLUDED.default_duration_minutes,
		    color = EXCLUDED.color
	`, ts.Code, ts.Label, minutesOf(ts.DefaultDuration), ts.Color)
	if err != nil {
		return fmt.Errorf("upsert appointment type settings: %w", err)
	}
	return nil
}
