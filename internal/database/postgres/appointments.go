package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"agenda/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const appointmentColumns = `id, company_id, professional_id, service_id, client_name, client_phone,
    client_email, scheduled_at, status, created_at, updated_at`

func (s *Store) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusScheduled
	}
	now := s.timestamp()
	a.CreatedAt, a.UpdatedAt = now, now
	a.ScheduledAt = a.ScheduledAt.UTC()

	_, err := s.db.ExecContext(ctx, `INSERT INTO appointments (`+appointmentColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.CompanyID, a.ProfessionalID, a.ServiceID, a.ClientName, a.ClientPhone,
		a.ClientEmail, a.ScheduledAt, a.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", translateError(err))
	}
	return nil
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a              models.Appointment
		professionalID sql.NullString
	)
	err := row.Scan(&a.ID, &a.CompanyID, &professionalID, &a.ServiceID, &a.ClientName, &a.ClientPhone,
		&a.ClientEmail, &a.ScheduledAt, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if professionalID.Valid {
		a.ProfessionalID = &professionalID.String
	}
	return &a, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("appointment", err)
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	var a args
	where := []string{"company_id = " + a.add(filter.CompanyID)}
	if filter.ProfessionalID != nil {
		where = append(where, "professional_id = "+a.add(*filter.ProfessionalID))
	}
	if filter.ServiceID != "" {
		where = append(where, "service_id = "+a.add(filter.ServiceID))
	}
	if !filter.From.IsZero() {
		where = append(where, "scheduled_at >= "+a.add(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "scheduled_at < "+a.add(filter.To))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+a.add(pq.Array(filter.Statuses))+")")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE `+
		strings.Join(where, " AND ")+` ORDER BY scheduled_at, created_at`, a...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (s *Store) FindActiveAppointment(ctx context.Context, slot models.SlotKey) (*models.Appointment, error) {
	var row *sql.Row
	if slot.ProfessionalID != nil {
		row = s.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments
            WHERE professional_id = $1 AND scheduled_at = $2 AND status = ANY($3) LIMIT 1`,
			*slot.ProfessionalID, slot.ScheduledAt.UTC(), pq.Array(models.ActiveStatuses))
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments
            WHERE company_id = $1 AND service_id = $2 AND professional_id IS NULL
              AND scheduled_at = $3 AND status = ANY($4) LIMIT 1`,
			slot.CompanyID, slot.ServiceID, slot.ScheduledAt.UTC(), pq.Array(models.ActiveStatuses))
	}

	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active appointment: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`, status, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", translateError(err))
	}
	return requireAffected(res, "appointment", id)
}

func (s *Store) CountAppointments(ctx context.Context, companyID string, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments
        WHERE company_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3 AND status <> $4`,
		companyID, from, to, models.StatusCancelled).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count, nil
}
