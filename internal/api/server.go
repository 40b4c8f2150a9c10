package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agenda/internal/config"
	"agenda/internal/domain"
	"agenda/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the HTTP layer calls into.
type Services struct {
	Companies    *service.CompanyService
	Plans        *service.PlanService
	Availability *service.AvailabilityService
	Bookings     *service.BookingService
	Appointments *service.AppointmentService
	Blocks       *service.BlockService
	Export       *service.ExportService
	Sessions     domain.SessionRepository
	Health       Pinger
}

// HTTPServer exposes the public booking API and the authenticated staff API.
type HTTPServer struct {
	cfg           config.APIConfig
	sessionHeader string
	svc           Services
	auth          *HTTPAuth
	publicLimiter *keyedLimiter
	sessionLocks  *sessionLocks
	logger        *zerolog.Logger
	server        *http.Server
}

func NewHTTPServer(cfg config.APIConfig, sessionHeader string, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:           cfg,
		sessionHeader: sessionHeader,
		svc:           svc,
		auth:          NewHTTPAuth(cfg),
		publicLimiter: newKeyedLimiter(cfg.PublicRateLimit),
		sessionLocks:  newSessionLocks(),
		logger:        logger,
	}
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return srv
}

// Handler is the root router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1/public/companies/{slug}", func(r chi.Router) {
		r.Use(publicRateLimit(s.publicLimiter))
		r.Get("/", s.handlePublicPage)
		r.Get("/availability", s.handleAvailability)
		r.Post("/appointments", s.handleCreateBooking)
	})

	r.Route("/api/v1/companies", func(r chi.Router) {
		r.With(s.auth.Require(permManageCompanies)).Post("/", s.handleCreateCompany)

		r.Route("/{companyID}", func(r chi.Router) {
			r.With(s.auth.Require("")).Get("/", s.handleGetCompany)
			r.With(s.auth.Require(permManageCompanies)).Post("/professionals", s.handleAddProfessional)
			r.With(s.auth.Require(permManageCompanies)).Post("/services", s.handleAddService)

			r.With(s.auth.Require(permReadReports)).Get("/usage", s.handleUsage)
			r.With(s.auth.Require(permReadReports)).Get("/export", s.handleExport)

			r.With(s.auth.Require(permReadAppointments)).Get("/appointments", s.handleListAppointments)
			r.With(s.auth.Require(permWriteAppointment)).Patch("/appointments/{appointmentID}", s.handleUpdateAppointment)

			r.With(s.auth.Require(permReadBlocks)).Get("/blocks", s.handleListBlocks)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Require(permWriteBlocks))
				r.Post("/blocks", s.handleCreateBlock)
				r.Put("/blocks/{blockID}", s.handleUpdateBlock)
				r.Delete("/blocks/{blockID}", s.handleDeleteBlock)
			})
		})
	})

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunMaintenance drops idle per-client rate limiters until ctx is done.
func (s *HTTPServer) RunMaintenance(ctx context.Context) {
	runLimiterSweeps(ctx, s.logger, s.publicLimiter, s.auth.limiter)
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Health.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
