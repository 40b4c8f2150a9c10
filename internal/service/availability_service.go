package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agenda/internal/domain"
	"agenda/internal/metrics"
	"agenda/internal/models"
	"agenda/internal/schedule"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type AvailabilityRequest struct {
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	ServiceID      string `json:"service_id" validate:"required"`
	ProfessionalID string `json:"professional_id,omitempty"`
}

type Availability struct {
	Date        string   `json:"date"`
	Timezone    string   `json:"timezone"`
	SlotMinutes int      `json:"slot_minutes"`
	Slots       []string `json:"slots"`
	// Degraded is set when storage could not be read and the full grid is shown.
	Degraded bool `json:"degraded,omitempty"`
}

// AvailabilityService answers "which slots are free" for the public booking
// page. Storage read failures degrade to the full grid; the booking write
// path is the authority on conflicts.
type AvailabilityService struct {
	repo     domain.Repository
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewAvailabilityService(repo domain.Repository, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{repo: repo, validate: newValidator(), logger: logger}
}

func (s *AvailabilityService) Available(ctx context.Context, slug string, req AvailabilityRequest) (*Availability, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	company, err := s.repo.GetCompanyBySlug(ctx, slug)
	if err != nil {
		return nil, dataAccess("get company", err)
	}

	loc := company.Location()
	date, err := time.ParseInLocation(models.DateLayout, req.Date, loc)
	if err != nil {
		return nil, domain.NewValidationError("date", "must match the format 2006-01-02")
	}

	grid, err := schedule.GridFromWorkingHours(company.Hours(), date.Weekday(), company.SlotDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to build slot grid for %s: %w", company.Slug, err)
	}

	q := schedule.Query{
		Date:           date,
		Grid:           grid,
		ServiceID:      req.ServiceID,
		ProfessionalID: models.OptionalString(req.ProfessionalID),
	}
	result := &Availability{
		Date:        req.Date,
		Timezone:    loc.String(),
		SlotMinutes: int(grid.Duration() / time.Minute),
	}

	blocks, appointments, err := s.loadDay(ctx, company, q)
	if err != nil {
		s.logger.Error().Err(err).
			Str("company", company.Slug).
			Str("date", req.Date).
			Msg("availability read failed, returning full grid")
		metrics.IncAvailabilityFailOpen()
		result.Slots = grid.Times()
		result.Degraded = true
		return result, nil
	}

	result.Slots = schedule.Resolve(q, blocks, appointments)
	return result, nil
}

// loadDay reads the day's blocks and active appointments concurrently.
func (s *AvailabilityService) loadDay(ctx context.Context, company *models.Company, q schedule.Query) (
	[]*models.TimeBlock, []*models.Appointment, error,
) {
	day := schedule.Day(q.Date, company.Location())

	var (
		wg                sync.WaitGroup
		blocks            []*models.TimeBlock
		appointments      []*models.Appointment
		blockErr, apptErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		blocks, blockErr = s.repo.ListTimeBlocks(ctx, models.TimeBlockFilter{
			CompanyID:      company.ID,
			ProfessionalID: q.ProfessionalID,
			From:           day.Start,
			To:             day.End,
		})
	}()
	go func() {
		defer wg.Done()
		appointments, apptErr = s.repo.ListAppointments(ctx, models.AppointmentFilter{
			CompanyID: company.ID,
			From:      day.Start,
			To:        day.End,
			Statuses:  models.ActiveStatuses,
		})
	}()
	wg.Wait()

	if err := errors.Join(blockErr, apptErr); err != nil {
		return nil, nil, err
	}
	return blocks, appointments, nil
}
