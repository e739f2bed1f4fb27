package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ChronoGuard server.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Notify       NotifyConfig
	Risk         RiskConfig
	Subscription SubscriptionConfig
	Dashboard    DashboardConfig
}

type ServerConfig struct {
	Port             int
	Env              string
	RateLimitPerMin  int
	MigrationsDir    string
	ShutdownDeadline time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// NotifyConfig selects where reminder requests go.
type NotifyConfig struct {
	Provider string
	NATS     NATSConfig
}

type NATSConfig struct {
	URL     string
	Subject string
	Stream  string
}

type RiskConfig struct {
	BaselineProbability float64
	RefreshInterval     time.Duration
	RefreshHorizon      time.Duration
	RefreshBatchSize    int
}

type SubscriptionConfig struct {
	TrialDays int
}

type DashboardConfig struct {
	CacheTTL                time.Duration
	DefaultAppointmentValue float64
}

var validNotifyProviders = map[string]bool{
	"log":  true,
	"nats": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             envInt("CHRONOGUARD_PORT", 8080),
			Env:              envString("CHRONOGUARD_ENV", "development"),
			RateLimitPerMin:  envInt("RATE_LIMIT_PER_MIN", 60),
			MigrationsDir:    envString("MIGRATIONS_DIR", "migrations"),
			ShutdownDeadline: envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Notify: NotifyConfig{
			Provider: envString("NOTIFY_PROVIDER", "log"),
			NATS: NATSConfig{
				URL:     os.Getenv("NATS_URL"),
				Subject: envString("NATS_REMINDER_SUBJECT", "reminders.requested"),
				Stream:  envString("NATS_REMINDER_STREAM", "REMINDERS"),
			},
		},
		Risk: RiskConfig{
			BaselineProbability: envFloat("RISK_BASELINE_PROBABILITY", 0.15),
			RefreshInterval:     envDuration("RISK_REFRESH_INTERVAL", 30*time.Minute),
			RefreshHorizon:      envDuration("RISK_REFRESH_HORIZON", 48*time.Hour),
			RefreshBatchSize:    envInt("RISK_REFRESH_BATCH_SIZE", 500),
		},
		Subscription: SubscriptionConfig{
			TrialDays: envInt("TRIAL_DAYS", 14),
		},
		Dashboard: DashboardConfig{
			CacheTTL:                envDuration("DASHBOARD_CACHE_TTL", 5*time.Minute),
			DefaultAppointmentValue: envFloat("DEFAULT_APPOINTMENT_VALUE", 150),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validNotifyProviders[c.Notify.Provider] {
		return fmt.Errorf("NOTIFY_PROVIDER must be one of log, nats; got %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "nats" {
		if c.Notify.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when NOTIFY_PROVIDER is nats")
		}
		if !strings.HasPrefix(c.Notify.NATS.URL, "nats://") && !strings.HasPrefix(c.Notify.NATS.URL, "tls://") {
			return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.Notify.NATS.URL)
		}
	}

	if c.Risk.BaselineProbability < 0 || c.Risk.BaselineProbability > 1 {
		return fmt.Errorf("RISK_BASELINE_PROBABILITY must be between 0 and 1, got %v", c.Risk.BaselineProbability)
	}
	if c.Risk.RefreshInterval < 0 {
		return fmt.Errorf("RISK_REFRESH_INTERVAL must not be negative")
	}
	if c.Risk.RefreshBatchSize <= 0 {
		return fmt.Errorf("RISK_REFRESH_BATCH_SIZE must be positive")
	}

	if c.Subscription.TrialDays <= 0 {
		return fmt.Errorf("TRIAL_DAYS must be positive, got %d", c.Subscription.TrialDays)
	}

	if c.Dashboard.DefaultAppointmentValue < 0 {
		return fmt.Errorf("DEFAULT_APPOINTMENT_VALUE must not be negative")
	}

	if c.Server.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive, got %d", c.Server.RateLimitPerMin)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
