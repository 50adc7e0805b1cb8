package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Notification kinds and outcomes recorded in the audit log.
const (
	Kind24h = "24h"
	Kind3h  = "3h"

	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// NotificationLog is one append-only audit row per send attempt. Rows are
// never mutated; idempotence is enforced by the appointment flags, the log
// only proves it.
type NotificationLog struct {
	ID            int64
	AppointmentID int64
	Kind          string
	Status        string
	ErrorMessage  string
	AttemptCount  int
	SentAt        time.Time
}

// LogStore appends notification audit rows.
type LogStore interface {
	Append(ctx context.Context, entry *NotificationLog) error
	ListForAppointment(ctx context.Context, appointmentID int64) ([]NotificationLog, error)
}

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLogStore persists notification logs in the relational database.
type PostgresLogStore struct {
	pool PgxPool
}

// NewPostgresLogStore initializes a store backed by a pgx pool.
func NewPostgresLogStore(pool PgxPool) *PostgresLogStore {
	if pool == nil {
		panic("reminder: pgx pool required")
	}
	return &PostgresLogStore{pool: pool}
}

// Append inserts one audit row.
func (s *PostgresLogStore) Append(ctx context.Context, entry *NotificationLog) error {
	query := `
		INSERT INTO notification_log (appointment_id, kind, status, error_message, attempt_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sent_at
	`
	attempts := entry.AttemptCount
	if attempts <= 0 {
		attempts = 1
	}
	if err := s.pool.QueryRow(ctx, query,
		entry.AppointmentID, entry.Kind, entry.Status, entry.ErrorMessage, attempts,
	).Scan(&entry.ID, &entry.SentAt); err != nil {
		return fmt.Errorf("reminder: append log: %w", err)
	}
	return nil
}

// ListForAppointment returns the audit trail for one appointment.
func (s *PostgresLogStore) ListForAppointment(ctx context.Context, appointmentID int64) ([]NotificationLog, error) {
	query := `
		SELECT id, appointment_id, kind, status, error_message, attempt_count, sent_at
		FROM notification_log
		WHERE appointment_id = $1
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminder: list log: %w", err)
	}
	defer rows.Close()

	var entries []NotificationLog
	for rows.Next() {
		var e NotificationLog
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.Kind, &e.Status, &e.ErrorMessage, &e.AttemptCount, &e.SentAt); err != nil {
			return nil, fmt.Errorf("reminder: scan log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MemoryLogStore is an in-memory LogStore for tests.
type MemoryLogStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []NotificationLog
}

// NewMemoryLogStore creates an empty in-memory log store.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{nextID: 1}
}

func (s *MemoryLogStore) Append(_ context.Context, entry *NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID
	if entry.AttemptCount <= 0 {
		entry.AttemptCount = 1
	}
	entry.SentAt = time.Now()
	s.nextID++
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryLogStore) ListForAppointment(_ context.Context, appointmentID int64) ([]NotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []NotificationLog
	for _, e := range s.entries {
		if e.AppointmentID == appointmentID {
			matches = append(matches, e)
		}
	}
	return matches, nil
}
