package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/google/uuid"
)

const appointmentColumns = `id, company_id, professional_id, service_id, client_name, client_phone,
       client_email, scheduled_at, status, created_at, updated_at`

// CreateAppointment inserts an appointment. A second active appointment for
// the same slot fails with *domain.UniqueViolationError.
func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusScheduled
	}
	now := db.timestamp()
	a.CreatedAt, a.UpdatedAt = now, now
	a.ScheduledAt = a.ScheduledAt.UTC().Truncate(time.Second)

	query := `INSERT INTO appointments (` + appointmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		a.ID, a.CompanyID, nullString(a.ProfessionalID), a.ServiceID,
		a.ClientName, a.ClientPhone, a.ClientEmail,
		formatTime(a.ScheduledAt), a.Status, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", translateError(err))
	}
	return nil
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a                                 models.Appointment
		professionalID                    sql.NullString
		scheduledAt, createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.CompanyID, &professionalID, &a.ServiceID, &a.ClientName, &a.ClientPhone,
		&a.ClientEmail, &scheduledAt, &a.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.ProfessionalID = stringPtr(professionalID)
	if a.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, notFound("appointment", err)
	}
	return a, nil
}

func (db *DB) ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	var (
		where = []string{"company_id = ?"}
		args  = []any{filter.CompanyID}
	)
	if filter.ProfessionalID != nil {
		where = append(where, "professional_id = ?")
		args = append(args, *filter.ProfessionalID)
	}
	if filter.ServiceID != "" {
		where = append(where, "service_id = ?")
		args = append(args, filter.ServiceID)
	}
	if !filter.From.IsZero() {
		where = append(where, "scheduled_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "scheduled_at < ?")
		args = append(args, formatTime(filter.To))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY scheduled_at, created_at`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindActiveAppointment returns the active appointment occupying slot, or
// nil when the slot is free.
func (db *DB) FindActiveAppointment(ctx context.Context, slot models.SlotKey) (*models.Appointment, error) {
	var row *sql.Row
	if slot.ProfessionalID != nil {
		row = db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments
            WHERE professional_id = ? AND scheduled_at = ? AND status IN (?, ?) LIMIT 1`,
			*slot.ProfessionalID, formatTime(slot.ScheduledAt), models.StatusScheduled, models.StatusConfirmed)
	} else {
		row = db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments
            WHERE company_id = ? AND service_id = ? AND professional_id IS NULL
              AND scheduled_at = ? AND status IN (?, ?) LIMIT 1`,
			slot.CompanyID, slot.ServiceID, formatTime(slot.ScheduledAt), models.StatusScheduled, models.StatusConfirmed)
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

func (db *DB) UpdateAppointmentStatus(ctx context.Context, id, status string) error {
	res, err := db.ExecContext(ctx, `UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(db.timestamp()), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", translateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CountAppointments counts non-cancelled appointments scheduled in [from, to).
func (db *DB) CountAppointments(ctx context.Context, companyID string, from, to time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments
        WHERE company_id = ? AND scheduled_at >= ? AND scheduled_at < ? AND status != ?`,
		companyID, formatTime(from), formatTime(to), models.StatusCancelled).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
