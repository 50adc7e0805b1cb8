package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the repository; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("patient: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// GetByID fetches one patient row.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Patient, error) {
	query := `
		SELECT id, name, phone, contact_phone, responsible_name, created_at
		FROM patients
		WHERE id = $1
	`
	var p Patient
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Phone, &p.ContactPhone, &p.ResponsibleName, &p.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patient: select failed: %w", err)
	}
	return &p, nil
}

// FindByContactPhone returns all patients sharing the normalized phone.
// Matching happens on the digits-only form so formatting differences between
// the gateway and stored rows do not split identities.
func (r *PostgresRepository) FindByContactPhone(ctx context.Context, phone string) ([]Patient, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	query := `
		SELECT id, name, phone, contact_phone, responsible_name, created_at
		FROM patients
		WHERE regexp_replace(COALESCE(NULLIF(contact_phone, ''), phone), '\D', '', 'g') = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("patient: select by contact failed: %w", err)
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.ContactPhone, &p.ResponsibleName, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("patient: scan failed: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, p *Patient) (*Patient, error) {
	query := `
		INSERT INTO patients (name, phone, contact_phone, responsible_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	var (
		id        int64
		createdAt time.Time
	)
	if err := r.pool.QueryRow(ctx, query, p.Name, p.Phone, p.ContactPhone, p.ResponsibleName).
		Scan(&id, &createdAt); err != nil {
		return nil, fmt.Errorf("patient: insert failed: %w", err)
	}
	created := *p
	created.ID = id
	created.CreatedAt = createdAt
	return &created, nil
}

// Update persists mutable identity fields.
func (r *PostgresRepository) Update(ctx context.Context, p *Patient) error {
	query := `
		UPDATE patients
		SET name = $2, phone = $3, contact_phone = $4, responsible_name = $5
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.Phone, p.ContactPhone, p.ResponsibleName); err != nil {
		return fmt.Errorf("patient: update failed: %w", err)
	}
	return nil
}
