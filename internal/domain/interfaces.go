package domain

import (
	"context"
	"time"

	"agenda/internal/models"
	"agenda/internal/ratelimit"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CompanyRepository interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (*models.Company, error)
}

type CatalogRepository interface {
	CreateProfessional(ctx context.Context, p *models.Professional) error
	GetProfessional(ctx context.Context, id string) (*models.Professional, error)
	ListProfessionals(ctx context.Context, companyID string) ([]*models.Professional, error)
	CountProfessionals(ctx context.Context, companyID string) (int, error)
	CreateService(ctx context.Context, s *models.Service) error
	GetService(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, companyID string) ([]*models.Service, error)
}

type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error)
	FindActiveAppointment(ctx context.Context, slot models.SlotKey) (*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id, status string) error
	CountAppointments(ctx context.Context, companyID string, from, to time.Time) (int, error)
}

type TimeBlockRepository interface {
	CreateTimeBlock(ctx context.Context, b *models.TimeBlock) error
	GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error)
	UpdateTimeBlock(ctx context.Context, b *models.TimeBlock) error
	DeleteTimeBlock(ctx context.Context, id string) error
	ListTimeBlocks(ctx context.Context, filter models.TimeBlockFilter) ([]*models.TimeBlock, error)
}

type PlanRepository interface {
	CreatePlan(ctx context.Context, p *models.Plan) error
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
}

// Repository is the full storage surface, implemented by the sqlite and
// postgres stores.
type Repository interface {
	CompanyRepository
	CatalogRepository
	AppointmentRepository
	TimeBlockRepository
	PlanRepository
	Ping(ctx context.Context) error
	Close() error
}

// SessionRepository keeps booking limiter state per client session.
type SessionRepository interface {
	GetLimiterState(ctx context.Context, sessionID string) (*ratelimit.State, error)
	SetLimiterState(ctx context.Context, sessionID string, state *ratelimit.State) error
	ClearLimiterState(ctx context.Context, sessionID string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
