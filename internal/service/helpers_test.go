package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// monday is a Monday in UTC; tests book on it while the clock reads fixedNow.
var (
	monday   = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func clock(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type acme struct {
	company      *models.Company
	professional *models.Professional
	service      *models.Service
}

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", nopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAcme(t *testing.T, repo domain.Repository) acme {
	t.Helper()
	ctx := context.Background()

	company := &models.Company{Name: "Acme", Slug: "acme", Timezone: "UTC", WorkingHours: models.DefaultWorkingHours()}
	require.NoError(t, repo.CreateCompany(ctx, company))

	professional := &models.Professional{CompanyID: company.ID, Name: "Ana", IsActive: true}
	require.NoError(t, repo.CreateProfessional(ctx, professional))

	svc := &models.Service{
		CompanyID:       company.ID,
		Name:            "Haircut",
		DurationMinutes: 30,
		Price:           decimal.RequireFromString("45.50"),
		IsActive:        true,
	}
	require.NoError(t, repo.CreateService(ctx, svc))

	return acme{company: company, professional: professional, service: svc}
}

func newBookingService(repo domain.Repository, bus domain.EventPublisher) *BookingService {
	s := NewBookingService(repo, nil, bus, nopLogger())
	s.now = func() time.Time { return fixedNow }
	s.limiter.Now = func() time.Time { return fixedNow }
	return s
}

func bookingFor(a acme, hhmm string) BookingRequest {
	return BookingRequest{
		ClientName:     "Maria Silva",
		ClientPhone:    "+55 11 99999-0000",
		ClientEmail:    "maria@example.com",
		ServiceID:      a.service.ID,
		ProfessionalID: a.professional.ID,
		Date:           "2024-06-03",
		Time:           hhmm,
	}
}

// recorder captures published events.
type recorder struct {
	events []string
}

func (r *recorder) PublishJSON(eventType string, _ interface{}) error {
	r.events = append(r.events, eventType)
	return nil
}

func newRecordingBus(t *testing.T) (*events.EventBus, *[]events.Event) {
	t.Helper()
	bus := events.NewEventBus(nopLogger())
	var got []events.Event
	for _, et := range []string{
		events.EventAppointmentCreated, events.EventAppointmentConfirmed, events.EventAppointmentCancelled,
		events.EventTimeBlockCreated, events.EventTimeBlockUpdated, events.EventTimeBlockDeleted,
	} {
		bus.Subscribe(et, func(e *events.Event) error {
			got = append(got, *e)
			return nil
		})
	}
	return bus, &got
}

// faultyRepo overrides selected reads of a real store.
type faultyRepo struct {
	domain.Repository
	listBlocksErr       error
	listAppointmentsErr error
	// staleFind makes the pre-insert conflict check always miss.
	staleFind bool
}

func (r *faultyRepo) ListTimeBlocks(ctx context.Context, f models.TimeBlockFilter) ([]*models.TimeBlock, error) {
	if r.listBlocksErr != nil {
		return nil, r.listBlocksErr
	}
	return r.Repository.ListTimeBlocks(ctx, f)
}

func (r *faultyRepo) ListAppointments(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error) {
	if r.listAppointmentsErr != nil {
		return nil, r.listAppointmentsErr
	}
	return r.Repository.ListAppointments(ctx, f)
}

func (r *faultyRepo) FindActiveAppointment(ctx context.Context, slot models.SlotKey) (*models.Appointment, error) {
	if r.staleFind {
		return nil, nil
	}
	return r.Repository.FindActiveAppointment(ctx, slot)
}

// mockRepo is a testify mock of the storage surface. Methods a test does not
// expect panic through mock.Called.
type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateCompany(ctx context.Context, c *models.Company) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockRepo) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Company), args.Error(1)
}

func (m *mockRepo) GetCompanyBySlug(ctx context.Context, slug string) (*models.Company, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Company), args.Error(1)
}

func (m *mockRepo) CreateProfessional(ctx context.Context, p *models.Professional) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockRepo) GetProfessional(ctx context.Context, id string) (*models.Professional, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Professional), args.Error(1)
}

func (m *mockRepo) ListProfessionals(ctx context.Context, companyID string) ([]*models.Professional, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Professional), args.Error(1)
}

func (m *mockRepo) CountProfessionals(ctx context.Context, companyID string) (int, error) {
	args := m.Called(ctx, companyID)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) CreateService(ctx context.Context, s *models.Service) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockRepo) GetService(ctx context.Context, id string) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *mockRepo) ListServices(ctx context.Context, companyID string) ([]*models.Service, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Service), args.Error(1)
}

func (m *mockRepo) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockRepo) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *mockRepo) ListAppointments(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}

func (m *mockRepo) FindActiveAppointment(ctx context.Context, slot models.SlotKey) (*models.Appointment, error) {
	args := m.Called(ctx, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *mockRepo) UpdateAppointmentStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockRepo) CountAppointments(ctx context.Context, companyID string, from, to time.Time) (int, error) {
	args := m.Called(ctx, companyID, from, to)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) CreateTimeBlock(ctx context.Context, b *models.TimeBlock) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockRepo) GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimeBlock), args.Error(1)
}

func (m *mockRepo) UpdateTimeBlock(ctx context.Context, b *models.TimeBlock) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockRepo) DeleteTimeBlock(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) ListTimeBlocks(ctx context.Context, f models.TimeBlockFilter) ([]*models.TimeBlock, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TimeBlock), args.Error(1)
}

func (m *mockRepo) CreatePlan(ctx context.Context, p *models.Plan) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockRepo) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

func (m *mockRepo) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRepo) Close() error {
	return m.Called().Error(0)
}
