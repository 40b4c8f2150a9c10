package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/google/uuid"
)

const companyColumns = `id, name, slug, timezone, slot_minutes, working_hours, plan_id, telegram_chat_id, created_at, updated_at`

func (s *Store) CreateCompany(ctx context.Context, c *models.Company) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = models.DefaultSlotMinutes
	}
	now := s.timestamp()
	c.CreatedAt, c.UpdatedAt = now, now

	hours, err := json.Marshal(c.WorkingHours)
	if err != nil {
		return fmt.Errorf("failed to encode working hours: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO companies (`+companyColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, c.Slug, c.Timezone, c.SlotMinutes, hours,
		models.OptionalString(c.PlanID), c.TelegramChatID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", translateError(err))
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

func (s *Store) GetCompanyBySlug(ctx context.Context, slug string) (*models.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE slug = $1`, slug))
}

func scanCompany(row rowScanner) (*models.Company, error) {
	var (
		c      models.Company
		hours  []byte
		planID sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Timezone, &c.SlotMinutes, &hours, &planID,
		&c.TelegramChatID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &c.WorkingHours); err != nil {
			return nil, fmt.Errorf("failed to decode working hours: %w", err)
		}
	}
	c.PlanID = planID.String
	return &c, nil
}

func (s *Store) CreatePlan(ctx context.Context, p *models.Plan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.timestamp()

	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to encode plan features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO plans
        (id, name, description, max_professionals, max_monthly_appointments, overage_fee, features, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Description, p.MaxProfessionals, p.MaxMonthlyAppointments,
		p.OverageFee, features, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", translateError(err))
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var (
		p        models.Plan
		features []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description, max_professionals,
        max_monthly_appointments, overage_fee, features, created_at FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.MaxProfessionals, &p.MaxMonthlyAppointments,
			&p.OverageFee, &features, &p.CreatedAt)
	if err != nil {
		return nil, notFound("plan", err)
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, fmt.Errorf("failed to decode plan features: %w", err)
	}
	return &p, nil
}
