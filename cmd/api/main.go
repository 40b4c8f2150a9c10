package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // company timezones must resolve on minimal images

	"agenda/internal/api"
	"agenda/internal/config"
	"agenda/internal/database"
	"agenda/internal/database/postgres"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/logging"
	"agenda/internal/metrics"
	"agenda/internal/ratelimit"
	"agenda/internal/repository"
	"agenda/internal/service"
	"agenda/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	sessionSweepInterval = time.Minute
	telegramHTTPTimeout  = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, sqliteDB, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	sessions, redisClient := initSessions(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	plans := service.NewPlanService(repo, logging.Component(logger, "plans"))
	initNotifications(ctx, cfg, repo, plans, eventBus, logger)

	if sqliteDB != nil {
		backup := database.NewBackupService(sqliteDB, cfg.Backup, logging.Component(logger, "backup"))
		go backup.Start(ctx)
	}

	limiter := ratelimit.New(cfg.Booking.RateLimitAttempts, cfg.Booking.RateLimitWindow)
	httpServer := api.NewHTTPServer(cfg.API, cfg.Booking.SessionHeader, api.Services{
		Companies:    service.NewCompanyService(repo, plans, cfg.Booking, logging.Component(logger, "companies")),
		Plans:        plans,
		Availability: service.NewAvailabilityService(repo, logging.Component(logger, "availability")),
		Bookings:     service.NewBookingService(repo, limiter, eventBus, logging.Component(logger, "booking")),
		Appointments: service.NewAppointmentService(repo, eventBus, logging.Component(logger, "appointments")),
		Blocks:       service.NewBlockService(repo, eventBus, logging.Component(logger, "blocks")),
		Export:       service.NewExportService(repo, plans, logging.Component(logger, "export")),
		Sessions:     sessions,
		Health:       repo,
	}, logger)
	go httpServer.RunMaintenance(ctx)

	startMetrics(ctx, cfg, logger)

	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// initDatabase opens the configured store. The sqlite handle is returned
// separately because only it can be backed up by file copy.
func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Repository, *database.DB, error) {
	if cfg.Database.Driver == config.DriverSQLite {
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "sqlite"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, nil, err
		}
		return db, db, nil
	}

	policy := worker.RetryPolicy(cfg.Database.Connect)
	var pg *postgres.Store
	err := worker.Retry(ctx, policy, func(attempt int) error {
		var openErr error
		pg, openErr = postgres.Open(ctx, cfg.Database.Postgres.DSN(), logging.Component(logger, "postgres"))
		if openErr != nil {
			logger.Warn().Err(openErr).Int("attempt", attempt).Msg("postgres not ready")
		}
		return openErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, nil, nil
}

// initSessions keeps limiter state in redis when reachable, with an in-memory
// fallback that also serves when redis drops out later.
func initSessions(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.SessionRepository, *redis.Client) {
	memory := repository.NewMemorySessionRepository(cfg.Booking.SessionTTL)
	sweeper := &worker.Periodic{
		Name:     "session-sweep",
		Interval: sessionSweepInterval,
		Task: func(context.Context) error {
			if n := memory.Sweep(); n > 0 {
				logger.Debug().Int("expired", n).Msg("swept limiter sessions")
			}
			return nil
		},
		Logger: logger,
	}
	go sweeper.Run(ctx)

	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, limiter state kept in memory")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, starting on the memory fallback")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisSessionRepository(client, cfg.Booking.SessionTTL)
	return repository.NewFailoverSessionRepository(primary, memory, logging.Component(logger, "sessions")), client
}

func initNotifications(ctx context.Context, cfg *config.Config, repo domain.Repository, plans *service.PlanService, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled() {
		logger.Info().Msg("telegram bot token not set, notifications disabled")
		return
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: telegramHTTPTimeout})
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	bot.Debug = cfg.Telegram.Debug
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")

	notifier := service.NewNotificationService(bot, repo, plans, cfg.Telegram.DefaultChatID, logging.Component(logger, "telegram"))
	notifier.Subscribe(bus)
	go notifier.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}
