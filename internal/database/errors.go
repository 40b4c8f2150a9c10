package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/mattn/go-sqlite3"
)

// sqlite reports unique violations by column list, not index name.
var uniqueColumns = map[string]string{
	"appointments.professional_id, appointments.scheduled_at":                     models.ConstraintProfessionalSlot,
	"appointments.company_id, appointments.service_id, appointments.scheduled_at": models.ConstraintServiceSlot,
	"companies.slug": "companies_slug_key",
}

// translateError maps sqlite unique violations to domain.UniqueViolationError.
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}
	return &domain.UniqueViolationError{Constraint: constraintName(sqliteErr.Error()), Err: err}
}

func constraintName(msg string) string {
	detail := strings.TrimSpace(strings.TrimPrefix(msg, "UNIQUE constraint failed:"))
	if strings.HasPrefix(detail, "index '") {
		return strings.TrimSuffix(strings.TrimPrefix(detail, "index '"), "'")
	}
	if name, ok := uniqueColumns[detail]; ok {
		return name
	}
	return detail
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
