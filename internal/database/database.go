package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the sqlite implementation of domain.Repository.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("sqlite database initialized")
	}
	return &DB{DB: sqlDB, path: path, logger: logger, now: time.Now}, nil
}

// Path is the database file, used by the backup service.
func (db *DB) Path() string { return db.path }

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS plans (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            max_professionals INTEGER NOT NULL DEFAULT 0,
            max_monthly_appointments INTEGER NOT NULL DEFAULT 0,
            overage_fee TEXT NOT NULL DEFAULT '0',
            features TEXT NOT NULL DEFAULT '{}',
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS companies (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            slug TEXT NOT NULL UNIQUE,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            slot_minutes INTEGER NOT NULL DEFAULT 30,
            working_hours TEXT NOT NULL DEFAULT '{}',
            plan_id TEXT REFERENCES plans(id),
            telegram_chat_id INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS professionals (
            id TEXT PRIMARY KEY,
            company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS services (
            id TEXT PRIMARY KEY,
            company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            duration_minutes INTEGER NOT NULL DEFAULT 30,
            price TEXT NOT NULL DEFAULT '0',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS appointments (
            id TEXT PRIMARY KEY,
            company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
            professional_id TEXT REFERENCES professionals(id),
            service_id TEXT NOT NULL REFERENCES services(id),
            client_name TEXT NOT NULL,
            client_phone TEXT NOT NULL,
            client_email TEXT NOT NULL DEFAULT '',
            scheduled_at TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'scheduled'
                CHECK (status IN ('scheduled', 'confirmed', 'cancelled')),
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS time_blocks (
            id TEXT PRIMARY KEY,
            company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
            professional_id TEXT REFERENCES professionals(id),
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            CHECK (start_time < end_time)
        )`,

		// Slot arbitration: at most one active appointment per slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS unique_professional_booking_slot
            ON appointments(professional_id, scheduled_at)
            WHERE professional_id IS NOT NULL AND status IN ('scheduled', 'confirmed')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS unique_service_booking_slot
            ON appointments(company_id, service_id, scheduled_at)
            WHERE professional_id IS NULL AND status IN ('scheduled', 'confirmed')`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_company_date ON appointments(company_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_time_blocks_company_range ON time_blocks(company_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_professionals_company ON professionals(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_services_company ON services(company_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return q[:i]
	}
	return q
}

// Instants are stored as fixed-width UTC text so equality and range
// comparisons work on the raw column.
const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC().Truncate(time.Second)
}
