package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agenda/internal/config"
	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CompanyRequest struct {
	Name           string              `json:"name" validate:"required,min=2,max=120"`
	Slug           string              `json:"slug" validate:"required,min=2,max=63,slug"`
	Timezone       string              `json:"timezone,omitempty" validate:"omitempty,timezone"`
	SlotMinutes    int                 `json:"slot_minutes,omitempty" validate:"omitempty,gte=5,lte=480"`
	WorkingHours   models.WorkingHours `json:"working_hours,omitempty"`
	PlanID         string              `json:"plan_id,omitempty"`
	TelegramChatID int64               `json:"telegram_chat_id,omitempty"`
}

type ProfessionalRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,phone"`
}

type ServiceRequest struct {
	Name            string          `json:"name" validate:"required,min=2,max=100"`
	Description     string          `json:"description,omitempty" validate:"max=500"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,gte=5,lte=480"`
	Price           decimal.Decimal `json:"price"`
}

// PublicCompany is what the booking page shows for a slug.
type PublicCompany struct {
	Company       *models.Company        `json:"company"`
	Professionals []*models.Professional `json:"professionals"`
	Services      []*models.Service      `json:"services"`
}

// CompanyService owns tenant setup: companies, their professionals and
// services, and the public page data.
type CompanyService struct {
	repo     domain.Repository
	plans    *PlanService
	defaults config.BookingConfig
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewCompanyService(repo domain.Repository, plans *PlanService, defaults config.BookingConfig, logger *zerolog.Logger) *CompanyService {
	return &CompanyService{repo: repo, plans: plans, defaults: defaults, validate: newValidator(), logger: logger}
}

func (s *CompanyService) CreateCompany(ctx context.Context, req CompanyRequest) (*models.Company, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	c := &models.Company{
		Name:           req.Name,
		Slug:           req.Slug,
		Timezone:       req.Timezone,
		SlotMinutes:    req.SlotMinutes,
		WorkingHours:   req.WorkingHours,
		PlanID:         req.PlanID,
		TelegramChatID: req.TelegramChatID,
	}
	if c.Timezone == "" {
		c.Timezone = s.defaults.DefaultTimezone
	}
	if c.SlotMinutes == 0 {
		c.SlotMinutes = s.defaults.SlotMinutes
	}
	if len(c.WorkingHours) == 0 {
		c.WorkingHours = s.defaults.WorkingHours
	}
	if err := config.ValidateWorkingHours(c.WorkingHours); err != nil {
		return nil, domain.NewValidationError("working_hours", err.Error())
	}

	if c.PlanID != "" {
		if _, err := s.repo.GetPlan(ctx, c.PlanID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewValidationError("plan_id", "unknown plan")
			}
			return nil, dataAccess("get plan", err)
		}
	}

	if err := s.repo.CreateCompany(ctx, c); err != nil {
		var uv *domain.UniqueViolationError
		if errors.As(err, &uv) {
			return nil, domain.NewValidationError("slug", "is already taken")
		}
		return nil, dataAccess("create company", err)
	}
	s.logger.Info().Str("company_id", c.ID).Str("slug", c.Slug).Msg("company created")
	return c, nil
}

func (s *CompanyService) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	c, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return nil, dataAccess("get company", err)
	}
	return c, nil
}

// AddProfessional enforces the plan's professional quota when a plan is set.
func (s *CompanyService) AddProfessional(ctx context.Context, companyID string, req ProfessionalRequest) (*models.Professional, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	usage, err := s.plans.Usage(ctx, company)
	if err != nil {
		return nil, err
	}
	if usage.Plan != nil && !usage.CanAddProfessional() {
		return nil, fmt.Errorf("professional limit of %d reached: %w", usage.Plan.MaxProfessionals, domain.ErrFeatureNotAvailable)
	}

	p := &models.Professional{CompanyID: companyID, Name: req.Name, Email: req.Email, Phone: req.Phone, IsActive: true}
	if err := s.repo.CreateProfessional(ctx, p); err != nil {
		return nil, dataAccess("create professional", err)
	}
	return p, nil
}

// AddService enforces the max_services plan feature when it is set.
func (s *CompanyService) AddService(ctx context.Context, companyID string, req ServiceRequest) (*models.Service, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, domain.NewValidationError("price", "must not be negative")
	}
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.PlanFor(ctx, company)
	if err != nil {
		return nil, err
	}
	if limit, ok := plan.FeatureNumber(models.FeatureMaxServices); ok {
		existing, err := s.repo.ListServices(ctx, companyID)
		if err != nil {
			return nil, dataAccess("list services", err)
		}
		if float64(len(existing)) >= limit {
			return nil, fmt.Errorf("service limit of %v reached: %w", limit, domain.ErrFeatureNotAvailable)
		}
	}

	svc := &models.Service{
		CompanyID:       companyID,
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price.Round(2),
		IsActive:        true,
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, dataAccess("create service", err)
	}
	return svc, nil
}

// PublicPage returns the company and its active catalog.
func (s *CompanyService) PublicPage(ctx context.Context, slug string) (*PublicCompany, error) {
	company, err := s.repo.GetCompanyBySlug(ctx, slug)
	if err != nil {
		return nil, dataAccess("get company", err)
	}
	professionals, err := s.repo.ListProfessionals(ctx, company.ID)
	if err != nil {
		return nil, dataAccess("list professionals", err)
	}
	services, err := s.repo.ListServices(ctx, company.ID)
	if err != nil {
		return nil, dataAccess("list services", err)
	}

	page := &PublicCompany{
		Company:       company,
		Professionals: make([]*models.Professional, 0, len(professionals)),
		Services:      make([]*models.Service, 0, len(services)),
	}
	for _, p := range professionals {
		if p.IsActive {
			page.Professionals = append(page.Professionals, p)
		}
	}
	for _, svc := range services {
		if svc.IsActive {
			page.Services = append(page.Services, svc)
		}
	}
	return page, nil
}
