package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/google/uuid"
)

const timeBlockColumns = `id, company_id, professional_id, start_time, end_time, reason, created_at, updated_at`

func (db *DB) CreateTimeBlock(ctx context.Context, b *models.TimeBlock) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := db.timestamp()
	b.CreatedAt, b.UpdatedAt = now, now

	query := `INSERT INTO time_blocks (` + timeBlockColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, b.ID, b.CompanyID, nullString(b.ProfessionalID),
		formatTime(b.Start), formatTime(b.End), b.Reason, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create time block: %w", err)
	}
	return nil
}

func scanTimeBlock(row rowScanner) (*models.TimeBlock, error) {
	var (
		b                                models.TimeBlock
		professionalID                   sql.NullString
		start, end, createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.CompanyID, &professionalID, &start, &end, &b.Reason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.ProfessionalID = stringPtr(professionalID)
	if b.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error) {
	row := db.QueryRowContext(ctx, `SELECT `+timeBlockColumns+` FROM time_blocks WHERE id = ?`, id)
	b, err := scanTimeBlock(row)
	if err != nil {
		return nil, notFound("time block", err)
	}
	return b, nil
}

func (db *DB) UpdateTimeBlock(ctx context.Context, b *models.TimeBlock) error {
	b.UpdatedAt = db.timestamp()
	res, err := db.ExecContext(ctx, `UPDATE time_blocks
        SET professional_id = ?, start_time = ?, end_time = ?, reason = ?, updated_at = ?
        WHERE id = ? AND company_id = ?`,
		nullString(b.ProfessionalID), formatTime(b.Start), formatTime(b.End), b.Reason,
		formatTime(b.UpdatedAt), b.ID, b.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to update time block: %w", err)
	}
	return requireAffected(res, "time block", b.ID)
}

func (db *DB) DeleteTimeBlock(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM time_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete time block: %w", err)
	}
	return requireAffected(res, "time block", id)
}

// ListTimeBlocks returns blocks intersecting [From, To). With a professional
// set, only that professional's blocks and company-wide blocks are returned.
func (db *DB) ListTimeBlocks(ctx context.Context, filter models.TimeBlockFilter) ([]*models.TimeBlock, error) {
	var (
		where = []string{"company_id = ?"}
		args  = []any{filter.CompanyID}
	)
	if filter.ProfessionalID != nil {
		where = append(where, "(professional_id IS NULL OR professional_id = ?)")
		args = append(args, *filter.ProfessionalID)
	}
	if !filter.To.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(filter.To))
	}
	if !filter.From.IsZero() {
		where = append(where, "end_time > ?")
		args = append(args, formatTime(filter.From))
	}

	query := `SELECT ` + timeBlockColumns + ` FROM time_blocks WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY start_time`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list time blocks: %w", err)
	}
	defer rows.Close()

	var out []*models.TimeBlock
	for rows.Next() {
		b, err := scanTimeBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
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
