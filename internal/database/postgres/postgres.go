// Package postgres is the PostgreSQL implementation of domain.Repository.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agenda/internal/domain"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const uniqueViolation = "23505"

type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
	now    func() time.Time
}

// Open connects with dsn and applies the schema.
func Open(ctx context.Context, dsn string, logger *zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := NewStore(db, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info().Msg("postgres store initialized")
	return s, nil
}

// NewStore wraps an existing connection pool without touching the schema.
func NewStore(db *sql.DB, logger *zerolog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS plans (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        max_professionals INTEGER NOT NULL DEFAULT 0,
        max_monthly_appointments INTEGER NOT NULL DEFAULT 0,
        overage_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
        features JSONB NOT NULL DEFAULT '{}',
        created_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS companies (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        slug TEXT NOT NULL,
        timezone TEXT NOT NULL DEFAULT 'UTC',
        slot_minutes INTEGER NOT NULL DEFAULT 30,
        working_hours JSONB NOT NULL DEFAULT '{}',
        plan_id TEXT REFERENCES plans(id),
        telegram_chat_id BIGINT NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        CONSTRAINT companies_slug_key UNIQUE (slug)
    )`,
	`CREATE TABLE IF NOT EXISTS professionals (
        id TEXT PRIMARY KEY,
        company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
        name TEXT NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        phone TEXT NOT NULL DEFAULT '',
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS services (
        id TEXT PRIMARY KEY,
        company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        duration_minutes INTEGER NOT NULL DEFAULT 30,
        price NUMERIC(12,2) NOT NULL DEFAULT 0,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS appointments (
        id TEXT PRIMARY KEY,
        company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
        professional_id TEXT REFERENCES professionals(id),
        service_id TEXT NOT NULL REFERENCES services(id),
        client_name TEXT NOT NULL,
        client_phone TEXT NOT NULL,
        client_email TEXT NOT NULL DEFAULT '',
        scheduled_at TIMESTAMPTZ NOT NULL,
        status TEXT NOT NULL DEFAULT 'scheduled'
            CHECK (status IN ('scheduled', 'confirmed', 'cancelled')),
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS time_blocks (
        id TEXT PRIMARY KEY,
        company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
        professional_id TEXT REFERENCES professionals(id),
        start_time TIMESTAMPTZ NOT NULL,
        end_time TIMESTAMPTZ NOT NULL,
        reason TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        CHECK (start_time < end_time)
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS unique_professional_booking_slot
        ON appointments(professional_id, scheduled_at)
        WHERE professional_id IS NOT NULL AND status IN ('scheduled', 'confirmed')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS unique_service_booking_slot
        ON appointments(company_id, service_id, scheduled_at)
        WHERE professional_id IS NULL AND status IN ('scheduled', 'confirmed')`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_company_date ON appointments(company_id, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_time_blocks_company_range ON time_blocks(company_id, start_time, end_time)`,
}

// Migrate applies the schema in a single transaction.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// translateError maps unique violations to domain.UniqueViolationError.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return &domain.UniqueViolationError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}

// args collects positional arguments and hands out $n placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}
