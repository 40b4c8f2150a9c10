package database

import (
	"context"
	"fmt"

	"agenda/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (db *DB) CreateProfessional(ctx context.Context, p *models.Professional) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = db.timestamp()

	query := `INSERT INTO professionals (id, company_id, name, email, phone, is_active, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, p.ID, p.CompanyID, p.Name, p.Email, p.Phone, p.IsActive, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create professional: %w", translateError(err))
	}
	return nil
}

const professionalColumns = `id, company_id, name, email, phone, is_active, created_at`

func scanProfessional(row rowScanner) (*models.Professional, error) {
	var (
		p         models.Professional
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Email, &p.Phone, &p.IsActive, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) GetProfessional(ctx context.Context, id string) (*models.Professional, error) {
	row := db.QueryRowContext(ctx, `SELECT `+professionalColumns+` FROM professionals WHERE id = ?`, id)
	p, err := scanProfessional(row)
	if err != nil {
		return nil, notFound("professional", err)
	}
	return p, nil
}

func (db *DB) ListProfessionals(ctx context.Context, companyID string) ([]*models.Professional, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE company_id = ? ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list professionals: %w", err)
	}
	defer rows.Close()

	var out []*models.Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan professional: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) CountProfessionals(ctx context.Context, companyID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM professionals WHERE company_id = ? AND is_active = 1`, companyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count professionals: %w", err)
	}
	return count, nil
}

func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = db.timestamp()

	query := `INSERT INTO services (id, company_id, name, description, duration_minutes, price, is_active, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, s.ID, s.CompanyID, s.Name, s.Description, s.DurationMinutes,
		s.Price.String(), s.IsActive, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", translateError(err))
	}
	return nil
}

const serviceColumns = `id, company_id, name, description, duration_minutes, price, is_active, created_at`

func scanService(row rowScanner) (*models.Service, error) {
	var (
		s                models.Service
		price, createdAt string
	)
	if err := row.Scan(&s.ID, &s.CompanyID, &s.Name, &s.Description, &s.DurationMinutes, &price, &s.IsActive, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("failed to parse service price %q: %w", price, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if err != nil {
		return nil, notFound("service", err)
	}
	return s, nil
}

func (db *DB) ListServices(ctx context.Context, companyID string) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE company_id = ? ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
