package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"agenda/internal/config"
	"agenda/internal/database"
	"agenda/internal/events"
	"agenda/internal/models"
	"agenda/internal/ratelimit"
	"agenda/internal/repository"
	"agenda/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bookingDate is a Monday far enough ahead to never be in the past.
const bookingDate = "2030-06-03"

const (
	adminKey   = "admin-key"
	adminExtra = "admin-extra"
	staffKey   = "staff-key"
	staffExtra = "staff-extra"
)

type testEnv struct {
	db           *database.DB
	ts           *httptest.Server
	company      *models.Company
	professional *models.Professional
	service      *models.Service
}

func testAPIConfig(companyID string) config.APIConfig {
	return config.APIConfig{
		HTTP: config.APIHTTPConfig{Port: 0},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: adminKey, Extra: adminExtra, Name: "admin"},
				{
					Key:         staffKey,
					Extra:       staffExtra,
					Name:        "front-desk",
					Permissions: []string{permReadAppointments, permWriteAppointment, permReadBlocks},
					CompanyIDs:  []string{companyID},
				},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func newTestEnv(t *testing.T, mutate func(cfg *config.APIConfig)) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	company := &models.Company{Name: "Acme", Slug: "acme", Timezone: "UTC", WorkingHours: models.DefaultWorkingHours()}
	require.NoError(t, db.CreateCompany(ctx, company))
	professional := &models.Professional{CompanyID: company.ID, Name: "Ana", IsActive: true}
	require.NoError(t, db.CreateProfessional(ctx, professional))
	svc := &models.Service{CompanyID: company.ID, Name: "Haircut", DurationMinutes: 30, Price: decimal.NewFromInt(40), IsActive: true}
	require.NoError(t, db.CreateService(ctx, svc))

	bus := events.NewEventBus(&logger)
	plans := service.NewPlanService(db, &logger)
	services := Services{
		Companies: service.NewCompanyService(db, plans, config.BookingConfig{
			SlotMinutes: 30, DefaultTimezone: "UTC", WorkingHours: models.DefaultWorkingHours(),
		}, &logger),
		Plans:        plans,
		Availability: service.NewAvailabilityService(db, &logger),
		Bookings:     service.NewBookingService(db, ratelimit.New(3, 10*time.Minute), bus, &logger),
		Appointments: service.NewAppointmentService(db, bus, &logger),
		Blocks:       service.NewBlockService(db, bus, &logger),
		Export:       service.NewExportService(db, plans, &logger),
		Sessions:     repository.NewMemorySessionRepository(time.Hour),
		Health:       db,
	}

	cfg := testAPIConfig(company.ID)
	if mutate != nil {
		mutate(&cfg)
	}
	server := NewHTTPServer(cfg, "X-Session-ID", services, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{db: db, ts: ts, company: company, professional: professional, service: svc}
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, req request) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequest(req.method, e.ts.URL+req.path, body)
	require.NoError(t, err)
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func admin() map[string]string {
	return map[string]string{"x-api-key": adminKey, "x-api-extra": adminExtra}
}

func frontDesk() map[string]string {
	return map[string]string{"x-api-key": staffKey, "x-api-extra": staffExtra}
}

func (e *testEnv) booking(hhmm string) map[string]any {
	return map[string]any{
		"client_name":     "Maria Silva",
		"client_phone":    "+5511999990000",
		"service_id":      e.service.ID,
		"professional_id": e.professional.ID,
		"date":            bookingDate,
		"time":            hhmm,
	}
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, data := env.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	require.NoError(t, env.db.Close())
	resp, _ = env.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPublicAPI(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("company page", func(t *testing.T) {
		resp, data := env.do(t, request{method: http.MethodGet, path: "/api/v1/public/companies/acme"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var page service.PublicCompany
		require.NoError(t, json.Unmarshal(data, &page))
		assert.Equal(t, "Acme", page.Company.Name)
		assert.Len(t, page.Services, 1)

		resp, _ = env.do(t, request{method: http.MethodGet, path: "/api/v1/public/companies/nope"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("book then see the slot gone", func(t *testing.T) {
		resp, data := env.do(t, request{
			method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments",
			body: env.booking("09:00"), headers: map[string]string{"X-Session-ID": "first"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
		var appt models.Appointment
		require.NoError(t, json.Unmarshal(data, &appt))
		assert.Equal(t, models.StatusScheduled, appt.Status)

		path := fmt.Sprintf("/api/v1/public/companies/acme/availability?date=%s&service_id=%s&professional_id=%s",
			bookingDate, env.service.ID, env.professional.ID)
		resp, data = env.do(t, request{method: http.MethodGet, path: path})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var availability service.Availability
		require.NoError(t, json.Unmarshal(data, &availability))
		assert.NotContains(t, availability.Slots, "09:00")
		assert.Contains(t, availability.Slots, "09:30")
		assert.Len(t, availability.Slots, 11)
	})

	t.Run("taken slot", func(t *testing.T) {
		resp, data := env.do(t, request{
			method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments",
			body: env.booking("09:00"), headers: map[string]string{"X-Session-ID": "second"},
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "slot_taken", decodeError(t, data).Code)
	})

	t.Run("blocked slot", func(t *testing.T) {
		day, _ := time.Parse(models.DateLayout, bookingDate)
		require.NoError(t, env.db.CreateTimeBlock(context.Background(), &models.TimeBlock{
			CompanyID: env.company.ID, Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour),
		}))
		resp, data := env.do(t, request{
			method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments",
			body: env.booking("14:30"), headers: map[string]string{"X-Session-ID": "third"},
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "slot_blocked", decodeError(t, data).Code)
	})

	t.Run("validation names the field", func(t *testing.T) {
		body := env.booking("10:00")
		body["client_name"] = ""
		resp, data := env.do(t, request{method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments", body: body})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		errBody := decodeError(t, data)
		assert.Equal(t, "validation_failed", errBody.Code)
		assert.Equal(t, "client_name", errBody.Field)

		resp, data = env.do(t, request{method: http.MethodGet, path: "/api/v1/public/companies/acme/availability?date=" + bookingDate})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "service_id", decodeError(t, data).Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		body := env.booking("10:00")
		body["unexpected"] = true
		resp, _ := env.do(t, request{method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments", body: body})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("session rate limit", func(t *testing.T) {
		headers := map[string]string{"X-Session-ID": "busy"}
		for _, slot := range []string{"10:00", "10:30", "11:00"} {
			resp, data := env.do(t, request{method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments", body: env.booking(slot), headers: headers})
			require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
		}

		resp, data := env.do(t, request{method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments", body: env.booking("11:30"), headers: headers})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "rate_limited", decodeError(t, data).Code)
		assert.Equal(t, "600", resp.Header.Get("Retry-After"))

		resp, _ = env.do(t, request{method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments", body: env.booking("11:30"), headers: map[string]string{"X-Session-ID": "fresh"}})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestPublicRateLimitPerAddress(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) {
		cfg.PublicRateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, request{method: http.MethodGet, path: "/api/v1/public/companies/acme"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := env.do(t, request{method: http.MethodGet, path: "/api/v1/public/companies/acme"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = env.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConcurrentBookingsShareSessionBudget(t *testing.T) {
	env := newTestEnv(t, nil)
	slots := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}

	statuses := make([]int, len(slots))
	var wg sync.WaitGroup
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot string) {
			defer wg.Done()
			raw, err := json.Marshal(env.booking(slot))
			if err != nil {
				return
			}
			req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/v1/public/companies/acme/appointments", bytes.NewReader(raw))
			if err != nil {
				return
			}
			req.Header.Set("X-Session-ID", "burst")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, slot)
	}
	wg.Wait()

	counts := map[int]int{}
	for _, status := range statuses {
		counts[status]++
	}
	assert.Equal(t, map[int]int{http.StatusCreated: 3, http.StatusTooManyRequests: 3}, counts)
}

func TestStaffAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	path := "/api/v1/companies/" + env.company.ID + "/appointments"

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"no credentials", http.MethodGet, path, nil, http.StatusUnauthorized},
		{"unknown key", http.MethodGet, path, map[string]string{"x-api-key": "nope", "x-api-extra": staffExtra}, http.StatusUnauthorized},
		{"wrong extra", http.MethodGet, path, map[string]string{"x-api-key": staffKey, "x-api-extra": "nope"}, http.StatusUnauthorized},
		{"allowed", http.MethodGet, path, frontDesk(), http.StatusOK},
		{"missing permission", http.MethodGet, "/api/v1/companies/" + env.company.ID + "/usage", frontDesk(), http.StatusForbidden},
		{"other company", http.MethodGet, "/api/v1/companies/other/appointments", frontDesk(), http.StatusForbidden},
		{"admin sees any company", http.MethodGet, "/api/v1/companies/other", admin(), http.StatusNotFound},
		{"create company needs manage", http.MethodPost, "/api/v1/companies", frontDesk(), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, request{method: tt.method, path: tt.path, headers: tt.headers})
			assert.Equal(t, tt.want, resp.StatusCode, string(data))
		})
	}
}

func TestStaffKeyRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) {
		cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	})
	path := "/api/v1/companies/" + env.company.ID

	resp, _ := env.do(t, request{method: http.MethodGet, path: path, headers: admin()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, request{method: http.MethodGet, path: path, headers: admin()})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStaffAPI(t *testing.T) {
	env := newTestEnv(t, nil)
	base := "/api/v1/companies/" + env.company.ID

	resp, data := env.do(t, request{method: http.MethodPost, path: "/api/v1/public/companies/acme/appointments", body: env.booking("09:00")})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var appt models.Appointment
	require.NoError(t, json.Unmarshal(data, &appt))

	t.Run("create company", func(t *testing.T) {
		resp, data := env.do(t, request{method: http.MethodPost, path: "/api/v1/companies", headers: admin(),
			body: map[string]any{"name": "Studio", "slug": "studio"}})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		resp, data = env.do(t, request{method: http.MethodPost, path: "/api/v1/companies", headers: admin(),
			body: map[string]any{"name": "Again", "slug": "studio"}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "slug", decodeError(t, data).Field)
	})

	t.Run("catalog", func(t *testing.T) {
		resp, data := env.do(t, request{method: http.MethodPost, path: base + "/professionals", headers: admin(),
			body: map[string]any{"name": "Bob"}})
		assert.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		resp, data = env.do(t, request{method: http.MethodPost, path: base + "/services", headers: admin(),
			body: map[string]any{"name": "Shave", "duration_minutes": 15, "price": "20.00"}})
		assert.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	})

	t.Run("list and confirm appointments", func(t *testing.T) {
		resp, data := env.do(t, request{method: http.MethodGet, path: base + "/appointments?from=" + bookingDate + "&status=scheduled", headers: frontDesk()})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list struct {
			Appointments []models.Appointment `json:"appointments"`
		}
		require.NoError(t, json.Unmarshal(data, &list))
		require.Len(t, list.Appointments, 1)

		resp, data = env.do(t, request{method: http.MethodPatch, path: base + "/appointments/" + appt.ID, headers: frontDesk(),
			body: map[string]string{"status": "confirmed"}})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		var updated models.Appointment
		require.NoError(t, json.Unmarshal(data, &updated))
		assert.Equal(t, models.StatusConfirmed, updated.Status)

		resp, _ = env.do(t, request{method: http.MethodPatch, path: base + "/appointments/" + appt.ID, headers: frontDesk(),
			body: map[string]string{"status": "scheduled"}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		resp, _ = env.do(t, request{method: http.MethodGet, path: base + "/appointments?from=yesterday", headers: frontDesk()})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("blocks", func(t *testing.T) {
		day, _ := time.Parse(models.DateLayout, bookingDate)
		resp, data := env.do(t, request{method: http.MethodPost, path: base + "/blocks", headers: admin(),
			body: map[string]any{"start": day.Add(10 * time.Hour), "end": day.Add(11 * time.Hour), "reason": "meeting"}})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
		var block models.TimeBlock
		require.NoError(t, json.Unmarshal(data, &block))

		resp, _ = env.do(t, request{method: http.MethodPost, path: base + "/blocks", headers: frontDesk(),
			body: map[string]any{"start": day.Add(12 * time.Hour), "end": day.Add(13 * time.Hour)}})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, data = env.do(t, request{method: http.MethodGet, path: base + "/blocks?from=" + bookingDate + "&to=2030-06-04", headers: frontDesk()})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list struct {
			Blocks []models.TimeBlock `json:"blocks"`
		}
		require.NoError(t, json.Unmarshal(data, &list))
		assert.Len(t, list.Blocks, 1)

		resp, _ = env.do(t, request{method: http.MethodGet, path: base + "/blocks", headers: frontDesk()})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		resp, data = env.do(t, request{method: http.MethodPut, path: base + "/blocks/" + block.ID, headers: admin(),
			body: map[string]any{"start": day.Add(10 * time.Hour), "end": day.Add(12 * time.Hour)}})
		assert.Equal(t, http.StatusOK, resp.StatusCode, string(data))

		resp, _ = env.do(t, request{method: http.MethodDelete, path: base + "/blocks/" + block.ID, headers: admin()})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp, _ = env.do(t, request{method: http.MethodDelete, path: base + "/blocks/" + block.ID, headers: admin()})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("usage and export", func(t *testing.T) {
		resp, data := env.do(t, request{method: http.MethodGet, path: base + "/usage", headers: admin()})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		var report struct {
			Professionals int `json:"professionals"`
		}
		require.NoError(t, json.Unmarshal(data, &report))
		assert.Equal(t, 2, report.Professionals)

		resp, data = env.do(t, request{method: http.MethodGet, path: base + "/export?from=" + bookingDate + "&to=2030-06-04", headers: admin()})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "appointments_20300603_20300604.xlsx")
		assert.NotEmpty(t, data)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, _ := env.do(t, request{method: http.MethodGet, path: "/api/v2/anything"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
