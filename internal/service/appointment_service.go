package service

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

// AppointmentService is the staff view of appointments: listing and the
// confirm/cancel lifecycle. Cancelling frees the slot.
type AppointmentService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAppointmentService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *AppointmentService {
	return &AppointmentService{repo: repo, eventBus: eventBus, logger: logger}
}

func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, domain.NewValidationError("to", "must be after from")
	}
	for _, st := range filter.Statuses {
		if !models.IsValidStatus(st) {
			return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	list, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, dataAccess("list appointments", err)
	}
	if list == nil {
		list = []*models.Appointment{}
	}
	return list, nil
}

// UpdateStatus moves an appointment of companyID to status. Cancelled
// appointments are final.
func (s *AppointmentService) UpdateStatus(ctx context.Context, companyID, id, status string) (*models.Appointment, error) {
	if !models.IsValidStatus(status) || status == models.StatusScheduled {
		return nil, domain.NewValidationError("status", "must be one of: confirmed cancelled")
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, dataAccess("get appointment", err)
	}
	if appt.CompanyID != companyID {
		return nil, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	if appt.Status == status {
		return appt, nil
	}
	if appt.Status == models.StatusCancelled {
		return nil, domain.NewValidationError("status", "appointment is already cancelled")
	}

	if err := s.repo.UpdateAppointmentStatus(ctx, id, status); err != nil {
		return nil, dataAccess("update appointment status", err)
	}
	appt.Status = status
	appt.UpdatedAt = time.Now().UTC()

	eventType := events.EventAppointmentConfirmed
	if status == models.StatusCancelled {
		eventType = events.EventAppointmentCancelled
	}
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		s.logger.Warn().Err(err).Str("company_id", companyID).Msg("failed to load company for event")
	}
	publishAppointment(s.eventBus, s.logger, eventType, appt, company, nil, nil)

	s.logger.Info().Str("appointment_id", id).Str("status", status).Msg("appointment status updated")
	return appt, nil
}

func (s *AppointmentService) Confirm(ctx context.Context, companyID, id string) (*models.Appointment, error) {
	return s.UpdateStatus(ctx, companyID, id, models.StatusConfirmed)
}

func (s *AppointmentService) Cancel(ctx context.Context, companyID, id string) (*models.Appointment, error) {
	return s.UpdateStatus(ctx, companyID, id, models.StatusCancelled)
}
