package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"agenda/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
	Connect  RetryConfig    `yaml:"connect"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN renders a lib/pq connection URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.DBName,
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP            APIHTTPConfig      `yaml:"http"`
	Auth            APIAuthConfig      `yaml:"auth"`
	RateLimit       APIRateLimitConfig `yaml:"rate_limit"`
	PublicRateLimit APIRateLimitConfig `yaml:"public_rate_limit"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
	// CompanyIDs limits the key to these companies; empty grants all of them.
	CompanyIDs []string `yaml:"company_ids"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	SlotMinutes       int                 `yaml:"slot_minutes"`
	DefaultTimezone   string              `yaml:"default_timezone"`
	WorkingHours      models.WorkingHours `yaml:"working_hours"`
	RateLimitAttempts int                 `yaml:"rate_limit_attempts"`
	RateLimitWindow   time.Duration       `yaml:"rate_limit_window"`
	SessionTTL        time.Duration       `yaml:"session_ttl"`
	SessionHeader     string              `yaml:"session_header"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	Debug         bool   `yaml:"debug"`
	DefaultChatID int64  `yaml:"default_chat_id"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.BotToken != "YOUR_BOT_TOKEN_HERE"
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Booking.SlotMinutes <= 0 {
		return fmt.Errorf("booking.slot_minutes must be positive, got %d", c.Booking.SlotMinutes)
	}
	if _, err := time.LoadLocation(c.Booking.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid booking.default_timezone: %w", err)
	}
	if err := ValidateWorkingHours(c.Booking.WorkingHours); err != nil {
		return err
	}

	return validateAPIKeys(c.API.Auth.APIKeys)
}

var weekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

func ValidateWorkingHours(wh models.WorkingHours) error {
	for day, shifts := range wh {
		if !weekdays[day] {
			return fmt.Errorf("working_hours: unknown weekday %q", day)
		}
		for _, s := range shifts {
			start, err := time.Parse(models.TimeLayout, s.Start)
			if err != nil {
				return fmt.Errorf("working_hours.%s: invalid start %q", day, s.Start)
			}
			end, err := time.Parse(models.TimeLayout, s.End)
			if err != nil {
				return fmt.Errorf("working_hours.%s: invalid end %q", day, s.End)
			}
			if !start.Before(end) {
				return fmt.Errorf("working_hours.%s: shift %s-%s ends before it starts", day, s.Start, s.End)
			}
		}
	}
	return nil
}

func validateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key '%s' has empty key", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "agenda"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.Database.Connect.MaxRetries == 0 {
		c.Database.Connect.MaxRetries = 5
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 5 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	// staff endpoints are always authenticated
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Booking defaults
	if c.Booking.SlotMinutes == 0 {
		c.Booking.SlotMinutes = models.DefaultSlotMinutes
	}
	if c.Booking.DefaultTimezone == "" {
		c.Booking.DefaultTimezone = "UTC"
	}
	if len(c.Booking.WorkingHours) == 0 {
		c.Booking.WorkingHours = models.DefaultWorkingHours()
	}
	if c.Booking.RateLimitAttempts == 0 {
		c.Booking.RateLimitAttempts = models.BookingRateLimitAttempts
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.BookingRateLimitWindow
	}
	if c.Booking.SessionTTL == 0 {
		c.Booking.SessionTTL = models.DefaultSessionTTL
	}
	if c.Booking.SessionHeader == "" {
		c.Booking.SessionHeader = "X-Session-ID"
	}
}
