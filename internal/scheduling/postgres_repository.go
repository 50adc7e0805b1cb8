package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, starts_at, service, professional, status, notified_24h, notified_3h, created_at`

func scanAppointment(row pgx.Row, a *Appointment) error {
	return row.Scan(
		&a.ID, &a.PatientID, &a.StartsAt, &a.Service, &a.Professional,
		&a.Status, &a.Notified24h, &a.Notified3h, &a.CreatedAt,
	)
}

// GetByID fetches one appointment row.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var a Appointment
	if err := scanAppointment(r.pool.QueryRow(ctx, query, id), &a); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: select failed: %w", err)
	}
	return &a, nil
}

// ListDay returns non-cancelled appointments for a professional on one day.
func (r *PostgresRepository) ListDay(ctx context.Context, professional string, dayStart, dayEnd time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE professional = $1
		  AND starts_at >= $2 AND starts_at <= $3
		  AND status <> 'cancelled'
		ORDER BY starts_at
	`
	return r.list(ctx, query, professional, dayStart, dayEnd)
}

// ListActiveByPatientIDs returns non-cancelled appointments for the patients.
func (r *PostgresRepository) ListActiveByPatientIDs(ctx context.Context, patientIDs []int64) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = ANY($1)
		  AND status <> 'cancelled'
		ORDER BY starts_at
	`
	return r.list(ctx, query, patientIDs)
}

// ListUpcoming returns future non-cancelled appointments for the reminder sweep.
func (r *PostgresRepository) ListUpcoming(ctx context.Context, after time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE starts_at > $1
		  AND status <> 'cancelled'
		ORDER BY starts_at
	`
	return r.list(ctx, query, after)
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	query := `
		INSERT INTO appointments (patient_id, starts_at, service, professional, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	var (
		id        int64
		createdAt time.Time
	)
	if err := r.pool.QueryRow(ctx, query,
		a.PatientID, a.StartsAt, a.Service, a.Professional, a.Status,
	).Scan(&id, &createdAt); err != nil {
		return nil, fmt.Errorf("scheduling: insert failed: %w", err)
	}
	created := *a
	created.ID = id
	created.CreatedAt = createdAt
	return &created, nil
}

// Update persists all mutable fields of an appointment.
func (r *PostgresRepository) Update(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE appointments
		SET patient_id = $2, starts_at = $3, service = $4, professional = $5,
		    status = $6, notified_24h = $7, notified_3h = $8
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.PatientID, a.StartsAt, a.Service, a.Professional,
		a.Status, a.Notified24h, a.Notified3h,
	)
	if err != nil {
		return fmt.Errorf("scheduling: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: select failed: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var a Appointment
		if err := scanAppointment(rows, &a); err != nil {
			return nil, fmt.Errorf("scheduling: scan failed: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}
