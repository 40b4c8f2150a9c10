package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"agenda/internal/models"

	"github.com/google/uuid"
)

const timeBlockColumns = `id, company_id, professional_id, start_time, end_time, reason, created_at, updated_at`

func (s *Store) CreateTimeBlock(ctx context.Context, b *models.TimeBlock) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.timestamp()
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `INSERT INTO time_blocks (`+timeBlockColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.CompanyID, b.ProfessionalID, b.Start.UTC(), b.End.UTC(), b.Reason, now, now)
	if err != nil {
		return fmt.Errorf("failed to create time block: %w", err)
	}
	return nil
}

func scanTimeBlock(row rowScanner) (*models.TimeBlock, error) {
	var (
		b              models.TimeBlock
		professionalID sql.NullString
	)
	err := row.Scan(&b.ID, &b.CompanyID, &professionalID, &b.Start, &b.End, &b.Reason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if professionalID.Valid {
		b.ProfessionalID = &professionalID.String
	}
	return &b, nil
}

func (s *Store) GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error) {
	b, err := scanTimeBlock(s.db.QueryRowContext(ctx, `SELECT `+timeBlockColumns+` FROM time_blocks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("time block", err)
	}
	return b, nil
}

func (s *Store) UpdateTimeBlock(ctx context.Context, b *models.TimeBlock) error {
	b.UpdatedAt = s.timestamp()
	res, err := s.db.ExecContext(ctx, `UPDATE time_blocks
        SET professional_id = $1, start_time = $2, end_time = $3, reason = $4, updated_at = $5
        WHERE id = $6 AND company_id = $7`,
		b.ProfessionalID, b.Start.UTC(), b.End.UTC(), b.Reason, b.UpdatedAt, b.ID, b.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to update time block: %w", err)
	}
	return requireAffected(res, "time block", b.ID)
}

func (s *Store) DeleteTimeBlock(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete time block: %w", err)
	}
	return requireAffected(res, "time block", id)
}

func (s *Store) ListTimeBlocks(ctx context.Context, filter models.TimeBlockFilter) ([]*models.TimeBlock, error) {
	var a args
	where := []string{"company_id = " + a.add(filter.CompanyID)}
	if filter.ProfessionalID != nil {
		where = append(where, "(professional_id IS NULL OR professional_id = "+a.add(*filter.ProfessionalID)+")")
	}
	if !filter.To.IsZero() {
		where = append(where, "start_time < "+a.add(filter.To))
	}
	if !filter.From.IsZero() {
		where = append(where, "end_time > "+a.add(filter.From))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+timeBlockColumns+` FROM time_blocks WHERE `+
		strings.Join(where, " AND ")+` ORDER BY start_time`, a...)
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
