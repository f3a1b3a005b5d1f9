package absence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const absenceColumns = `id, provider_id, start_date, end_date, type, reason, created_at, updated_at`

func scanAbsence(row pgx.Row) (*Absence, error) {
	var a Absence

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.StartDate,
		&a.EndDate,
		&a.Type,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAbsenceNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) ProviderExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *PgRepository) GetAbsenceByID(ctx context.Context, id int64) (*Absence, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+absenceColumns+`
		FROM absence_periods
		WHERE id = $1
	`, id)
	return scanAbsence(row)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID int64, dr calendar.DateRange) ([]Absence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+absenceColumns+`
		FROM absence_periods
		WHERE provider_id = $1
		  AND start_date <= $3
		  AND end_date >= $2
		ORDER BY start_date, id
	`, providerID, dr.Start, dr.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Absence
	for rows.Next() {
		a, err := scanAbsence(rows)
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

func (r *PgRepository) CountAbsencesCovering(ctx context.Context, providerID int64, date time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM absence_periods
		WHERE provider_id = $1
		  AND start_date <= $2
		  AND end_date >= $2
	`, providerID, date).Scan(&n)
	return n, err
}

func (r *PgRepository) CreateAbsence(ctx context.Context, a Absence) (*Absence, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO absence_periods (provider_id, start_date, end_date, type, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+absenceColumns,
		a.ProviderID, a.StartDate, a.EndDate, a.Type, a.Reason)
	return scanAbsence(row)
}

func (r *PgRepository) UpdateAbsence(ctx context.Context, a Absence) (*Absence, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE absence_periods
		SET start_date = $2,
		    end_date = $3,
		    type = $4,
		    reason = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+absenceColumns,
		a.ID, a.StartDate, a.EndDate, a.Type, a.Reason)
	return scanAbsence(row)
}

func (r *PgRepository) DeleteAbsence(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM absence_periods WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAbsenceNotFound
	}
	return nil
}
