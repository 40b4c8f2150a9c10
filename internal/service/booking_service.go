package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/metrics"
	"agenda/internal/models"
	"agenda/internal/ratelimit"
	"agenda/internal/schedule"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BookingRequest is the public booking form. Field order is the order in
// which validation errors are reported.
type BookingRequest struct {
	ClientName     string `json:"client_name" validate:"required,min=2,max=100"`
	ClientPhone    string `json:"client_phone" validate:"required,phone"`
	ClientEmail    string `json:"client_email,omitempty" validate:"omitempty,email,max=254"`
	ServiceID      string `json:"service_id" validate:"required,uuid"`
	ProfessionalID string `json:"professional_id,omitempty" validate:"omitempty,uuid"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string `json:"time" validate:"required,datetime=15:04"`
}

func (r *BookingRequest) normalize() {
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ClientPhone = strings.TrimSpace(r.ClientPhone)
	r.ClientEmail = strings.TrimSpace(r.ClientEmail)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.ProfessionalID = strings.TrimSpace(r.ProfessionalID)
}

// BookingService guards appointment creation against blocked and double
// booked slots. The storage unique indexes are the final arbiter.
type BookingService struct {
	repo     domain.Repository
	limiter  *ratelimit.Limiter
	eventBus domain.EventPublisher
	validate *validator.Validate
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(repo domain.Repository, limiter *ratelimit.Limiter, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	if limiter == nil {
		limiter = ratelimit.New(models.BookingRateLimitAttempts, models.BookingRateLimitWindow)
	}
	return &BookingService{
		repo:     repo,
		limiter:  limiter,
		eventBus: eventBus,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// RetryAfter is how long a rate limited session has to wait.
func (s *BookingService) RetryAfter(state *ratelimit.State) time.Duration {
	return s.limiter.RetryAfter(state)
}

// bookingTarget is a validated request resolved against the company.
type bookingTarget struct {
	company      *models.Company
	service      *models.Service
	professional *models.Professional
	slot         schedule.Slot
}

// CreateBooking validates req, checks blocks and existing appointments, and
// inserts a scheduled appointment. state is the caller's session limiter
// state; only a successful insert counts against it.
func (s *BookingService) CreateBooking(ctx context.Context, slug string, req BookingRequest, state *ratelimit.State) (*models.Appointment, error) {
	appt, err := s.createBooking(ctx, slug, req, state)
	metrics.IncBooking(bookingResult(err))
	return appt, err
}

func (s *BookingService) createBooking(ctx context.Context, slug string, req BookingRequest, state *ratelimit.State) (*models.Appointment, error) {
	if err := s.limiter.Allow(state); err != nil {
		return nil, domain.ErrRateLimitExceeded
	}

	req.normalize()
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	target, err := s.resolve(ctx, slug, req)
	if err != nil {
		return nil, err
	}

	company := target.company
	professionalID := models.OptionalString(req.ProfessionalID)
	log := s.logger.With().
		Str("company", company.Slug).
		Str("service_id", req.ServiceID).
		Str("professional_id", req.ProfessionalID).
		Time("slot", target.slot.Start).
		Logger()

	blocks, err := s.repo.ListTimeBlocks(ctx, models.TimeBlockFilter{
		CompanyID:      company.ID,
		ProfessionalID: professionalID,
		From:           target.slot.Start,
		To:             target.slot.End,
	})
	if err != nil {
		return nil, dataAccess("list time blocks", err)
	}
	if b := schedule.BlockedBy(target.slot.Interval, blocks, professionalID); b != nil {
		log.Info().Str("block_id", b.ID).Msg("booking rejected: slot blocked")
		return nil, domain.ErrSlotBlocked
	}

	key := models.SlotKey{
		CompanyID:      company.ID,
		ServiceID:      req.ServiceID,
		ProfessionalID: professionalID,
		ScheduledAt:    target.slot.Start,
	}
	existing, err := s.repo.FindActiveAppointment(ctx, key)
	if err != nil {
		return nil, dataAccess("find active appointment", err)
	}
	if existing != nil {
		log.Info().Str("appointment_id", existing.ID).Msg("booking rejected: slot taken")
		return nil, domain.ErrSlotTaken
	}

	appt := &models.Appointment{
		CompanyID:      company.ID,
		ProfessionalID: professionalID,
		ServiceID:      req.ServiceID,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientEmail:    req.ClientEmail,
		ScheduledAt:    target.slot.Start,
		Status:         models.StatusScheduled,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		var uv *domain.UniqueViolationError
		if errors.As(err, &uv) && models.IsSlotConstraint(uv.Constraint) {
			log.Info().Str("constraint", uv.Constraint).Msg("booking rejected: slot taken concurrently")
			return nil, domain.ErrSlotTaken
		}
		return nil, dataAccess("create appointment", err)
	}

	s.limiter.Record(state)
	log.Info().Str("appointment_id", appt.ID).Msg("appointment created")
	publishAppointment(s.eventBus, s.logger, events.EventAppointmentCreated, appt, company, target.service, target.professional)
	return appt, nil
}

// resolve loads the company, service and professional named by req and
// places the requested time on the company grid.
func (s *BookingService) resolve(ctx context.Context, slug string, req BookingRequest) (*bookingTarget, error) {
	company, err := s.repo.GetCompanyBySlug(ctx, slug)
	if err != nil {
		return nil, dataAccess("get company", err)
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.NewValidationError("service_id", "unknown service")
	case err != nil:
		return nil, dataAccess("get service", err)
	case svc.CompanyID != company.ID || !svc.IsActive:
		return nil, domain.NewValidationError("service_id", "unknown service")
	}

	var professional *models.Professional
	if req.ProfessionalID != "" {
		professional, err = s.repo.GetProfessional(ctx, req.ProfessionalID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.NewValidationError("professional_id", "unknown professional")
		case err != nil:
			return nil, dataAccess("get professional", err)
		case professional.CompanyID != company.ID || !professional.IsActive:
			return nil, domain.NewValidationError("professional_id", "unknown professional")
		}
	}

	loc := company.Location()
	date, err := time.ParseInLocation(models.DateLayout, req.Date, loc)
	if err != nil {
		return nil, domain.NewValidationError("date", "must match the format 2006-01-02")
	}
	grid, err := schedule.GridFromWorkingHours(company.Hours(), date.Weekday(), company.SlotDuration())
	if err != nil {
		return nil, dataAccess("build slot grid", err)
	}
	if !grid.Has(req.Time) {
		return nil, domain.NewValidationError("time", "is not a bookable slot for that day")
	}
	slot, err := schedule.SlotAt(date, req.Time, grid.Duration())
	if err != nil {
		return nil, domain.NewValidationError("time", err.Error())
	}
	if slot.Start.Before(s.now()) {
		return nil, domain.NewValidationError("date", "slot is in the past")
	}

	return &bookingTarget{company: company, service: svc, professional: professional, slot: slot}, nil
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultCreated
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return metrics.ResultRateLimited
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		return metrics.ResultInvalid
	case errors.Is(err, domain.ErrSlotBlocked):
		return metrics.ResultBlocked
	case errors.Is(err, domain.ErrSlotTaken):
		return metrics.ResultTaken
	default:
		return metrics.ResultError
	}
}

// publishAppointment emits an appointment event; failures are logged only.
func publishAppointment(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, appt *models.Appointment,
	company *models.Company, svc *models.Service, professional *models.Professional,
) {
	if bus == nil {
		return
	}
	payload := events.AppointmentEventPayload{
		AppointmentID:  appt.ID,
		CompanyID:      appt.CompanyID,
		ServiceID:      appt.ServiceID,
		ProfessionalID: models.StringValue(appt.ProfessionalID),
		ClientName:     appt.ClientName,
		ClientPhone:    appt.ClientPhone,
		ScheduledAt:    appt.ScheduledAt,
		Status:         appt.Status,
	}
	if company != nil {
		payload.CompanyName = company.Name
		payload.TelegramChatID = company.TelegramChatID
		payload.Timezone = company.Location().String()
	}
	if svc != nil {
		payload.ServiceName = svc.Name
	}
	if professional != nil {
		payload.ProfessionalName = professional.Name
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appt.ID).Msg("publish event error")
	}
}
