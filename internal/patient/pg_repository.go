package patient

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const patientColumns = `id, nin, first_name, last_name, birth_date, sex, email, phone, address, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.NIN,
		&p.FirstName,
		&p.LastName,
		&p.BirthDate,
		&p.Sex,
		&p.Email,
		&p.Phone,
		&p.Address,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ExistsByNIN(ctx context.Context, number string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE nin = $1)`, number).Scan(&ok)
	return ok, err
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (nin, first_name, last_name, birth_date, sex, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+patientColumns,
		p.NIN, p.FirstName, p.LastName, p.BirthDate, p.Sex, p.Email, p.Phone, p.Address)

	created, err := scanPatient(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateNIN
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID int64) ([]appointment.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, patient_id, series_id, scheduled_at, duration_minutes, type, status, notes, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at, id
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []appointment.Appointment
	for rows.Next() {
		var a appointment.Appointment
		var minutes int
		if err := rows.Scan(
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
		); err != nil {
			return nil, err
		}
		a.Duration = time.Duration(minutes) * time.Minute
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListSeriesByPatient(ctx context.Context, patientID int64) ([]appointment.Series, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, provider_id, first_start, interval_weeks, occurrences, created_at
		FROM recurrence_series
		WHERE patient_id = $1
		ORDER BY id
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []appointment.Series
	for rows.Next() {
		var s appointment.Series
		if err := rows.Scan(
			&s.ID,
			&s.PatientID,
			&s.ProviderID,
			&s.FirstStart,
			&s.IntervalWeeks,
			&s.Occurrences,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) RunInTx(ctx context.Context, fn func(tx ErasureTx) error) error {
	return db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgErasureTx{tx: tx})
	})
}

type pgErasureTx struct {
	tx pgx.Tx
}

// LockPatient holds the row until commit so a concurrent registration or
// appointment cannot link to a patient being erased.
func (t *pgErasureTx) LockPatient(ctx context.Context, id int64) error {
	var locked int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM patients WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	return err
}

func (t *pgErasureTx) DetachAppointments(ctx context.Context, patientID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET patient_id = NULL,
		    updated_at = now()
		WHERE patient_id = $1
	`, patientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgErasureTx) DeleteRecurrenceSeries(ctx context.Context, patientID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM recurrence_series WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgErasureTx) DeletePatient(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}
