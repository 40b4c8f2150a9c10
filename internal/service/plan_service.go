package service

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

// PlanService reports plan usage per calendar-month billing cycle and gates
// plan features.
type PlanService struct {
	repo   domain.Repository
	logger *zerolog.Logger
	now    func() time.Time
}

func NewPlanService(repo domain.Repository, logger *zerolog.Logger) *PlanService {
	return &PlanService{repo: repo, logger: logger, now: time.Now}
}

// PlanFor returns the company's plan, nil when it has none.
func (s *PlanService) PlanFor(ctx context.Context, company *models.Company) (*models.Plan, error) {
	if company.PlanID == "" {
		return nil, nil
	}
	plan, err := s.repo.GetPlan(ctx, company.PlanID)
	if err != nil {
		return nil, dataAccess("get plan", err)
	}
	return plan, nil
}

// cycle is the calendar month containing now, in the company location.
func (s *PlanService) cycle(company *models.Company) (time.Time, time.Time) {
	now := s.now().In(company.Location())
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}

func (s *PlanService) Usage(ctx context.Context, company *models.Company) (*models.Usage, error) {
	plan, err := s.PlanFor(ctx, company)
	if err != nil {
		return nil, err
	}
	start, end := s.cycle(company)

	professionals, err := s.repo.CountProfessionals(ctx, company.ID)
	if err != nil {
		return nil, dataAccess("count professionals", err)
	}
	appointments, err := s.repo.CountAppointments(ctx, company.ID, start, end)
	if err != nil {
		return nil, dataAccess("count appointments", err)
	}

	return &models.Usage{
		Plan:                plan,
		Professionals:       professionals,
		MonthlyAppointments: appointments,
		CycleStart:          start,
		CycleEnd:            end,
	}, nil
}

// UsageReport is the staff dashboard view of Usage.
type UsageReport struct {
	*models.Usage
	OverAppointments  bool             `json:"over_appointments"`
	OverProfessionals bool             `json:"over_professionals"`
	Overages          []models.Overage `json:"overages"`
}

func (s *PlanService) Report(ctx context.Context, companyID string) (*UsageReport, error) {
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return nil, dataAccess("get company", err)
	}
	usage, err := s.Usage(ctx, company)
	if err != nil {
		return nil, err
	}
	overages := usage.Overages()
	if overages == nil {
		overages = []models.Overage{}
	}
	return &UsageReport{
		Usage:             usage,
		OverAppointments:  usage.IsOverLimit(models.UsageAppointments),
		OverProfessionals: usage.IsOverLimit(models.UsageProfessionals),
		Overages:          overages,
	}, nil
}

// RequireFeature fails with ErrFeatureNotAvailable when the company has a
// plan that does not enable key. Companies without a plan are not gated.
func (s *PlanService) RequireFeature(ctx context.Context, company *models.Company, key models.FeatureKey) error {
	plan, err := s.PlanFor(ctx, company)
	if err != nil {
		return err
	}
	if plan != nil && !plan.HasFeature(key) {
		return fmt.Errorf("%s on plan %s: %w", key, plan.Name, domain.ErrFeatureNotAvailable)
	}
	return nil
}
