package postgres

import (
	"context"
	"fmt"

	"agenda/internal/models"

	"github.com/google/uuid"
)

const (
	professionalColumns = `id, company_id, name, email, phone, is_active, created_at`
	serviceColumns      = `id, company_id, name, description, duration_minutes, price, is_active, created_at`
)

func (s *Store) CreateProfessional(ctx context.Context, p *models.Professional) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.timestamp()

	_, err := s.db.ExecContext(ctx, `INSERT INTO professionals (`+professionalColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.CompanyID, p.Name, p.Email, p.Phone, p.IsActive, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create professional: %w", translateError(err))
	}
	return nil
}

func scanProfessional(row rowScanner) (*models.Professional, error) {
	var p models.Professional
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Email, &p.Phone, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProfessional(ctx context.Context, id string) (*models.Professional, error) {
	p, err := scanProfessional(s.db.QueryRowContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("professional", err)
	}
	return p, nil
}

func (s *Store) ListProfessionals(ctx context.Context, companyID string) ([]*models.Professional, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE company_id = $1 ORDER BY name`, companyID)
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

func (s *Store) CountProfessionals(ctx context.Context, companyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM professionals WHERE company_id = $1 AND is_active`, companyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count professionals: %w", err)
	}
	return count, nil
}

func (s *Store) CreateService(ctx context.Context, svc *models.Service) error {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	svc.CreatedAt = s.timestamp()

	_, err := s.db.ExecContext(ctx, `INSERT INTO services (`+serviceColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		svc.ID, svc.CompanyID, svc.Name, svc.Description, svc.DurationMinutes, svc.Price, svc.IsActive, svc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", translateError(err))
	}
	return nil
}

func scanService(row rowScanner) (*models.Service, error) {
	var svc models.Service
	err := row.Scan(&svc.ID, &svc.CompanyID, &svc.Name, &svc.Description, &svc.DurationMinutes,
		&svc.Price, &svc.IsActive, &svc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) GetService(ctx context.Context, id string) (*models.Service, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("service", err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, companyID string) ([]*models.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE company_id = $1 ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}
