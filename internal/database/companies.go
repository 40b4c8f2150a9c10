package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const companyColumns = `id, name, slug, timezone, slot_minutes, working_hours, plan_id, telegram_chat_id, created_at, updated_at`

func (db *DB) CreateCompany(ctx context.Context, c *models.Company) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := db.timestamp()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = models.DefaultSlotMinutes
	}

	hours, err := json.Marshal(c.WorkingHours)
	if err != nil {
		return fmt.Errorf("failed to encode working hours: %w", err)
	}

	query := `INSERT INTO companies (` + companyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		c.ID, c.Name, c.Slug, c.Timezone, c.SlotMinutes, string(hours),
		nullString(models.OptionalString(c.PlanID)), c.TelegramChatID,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", translateError(err))
	}
	return nil
}

func (db *DB) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	row := db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	return scanCompany(row)
}

func (db *DB) GetCompanyBySlug(ctx context.Context, slug string) (*models.Company, error) {
	row := db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE slug = ?`, slug)
	return scanCompany(row)
}

func scanCompany(row rowScanner) (*models.Company, error) {
	var (
		c                    models.Company
		hours                string
		planID               sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Timezone, &c.SlotMinutes, &hours, &planID,
		&c.TelegramChatID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	if err := json.Unmarshal([]byte(hours), &c.WorkingHours); err != nil {
		return nil, fmt.Errorf("failed to decode working hours: %w", err)
	}
	c.PlanID = planID.String
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreatePlan(ctx context.Context, p *models.Plan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = db.timestamp()

	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to encode plan features: %w", err)
	}

	query := `INSERT INTO plans (id, name, description, max_professionals, max_monthly_appointments, overage_fee, features, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.MaxProfessionals,
		p.MaxMonthlyAppointments, p.OverageFee.String(), string(features), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", translateError(err))
	}
	return nil
}

func (db *DB) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	query := `SELECT id, name, description, max_professionals, max_monthly_appointments, overage_fee, features, created_at
              FROM plans WHERE id = ?`

	var (
		p                  models.Plan
		fee, features, cAt string
	)
	err := db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.MaxProfessionals,
		&p.MaxMonthlyAppointments, &fee, &features, &cAt)
	if err != nil {
		return nil, notFound("plan", err)
	}
	if p.OverageFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("failed to parse overage fee %q: %w", fee, err)
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("failed to decode plan features: %w", err)
	}
	if p.CreatedAt, err = parseTime(cAt); err != nil {
		return nil, err
	}
	return &p, nil
}
