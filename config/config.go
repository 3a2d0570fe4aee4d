// Package config loads server configuration from .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP          HTTPConfig
	DB            DBConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Logging       LoggingConfig
	Notifications NotificationConfig

	// Location periods are computed in.
	Location *time.Location
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DBConfig struct {
	Driver string // sqlite3|pgx
	DSN    string
}

// RedisConfig: empty Addr selects the in-memory rate limiter.
type RedisConfig struct {
	Addr string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

type NotificationConfig struct {
	LicenseWindowDays   int
	LicenseCriticalDays int
}

const (
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultDBDriver        = "sqlite3"
	defaultDBDSN           = "fleet.db"
	defaultRateLimit       = 120
	defaultRateLimitWindow = time.Minute
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
	defaultTimezone        = "UTC"
	defaultLicenseWindow   = 30
	defaultLicenseCritical = 7
)

// Load reads .env files (missing ones are ignored), then environment
// variables, applying defaults. Variables already set take precedence over .env.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			AllowedOrigins: splitCSV(valueOrDefault("CORS_ORIGINS", "*")),
		},
		DB: DBConfig{
			Driver: valueOrDefault("DB_DRIVER", defaultDBDriver),
			DSN:    valueOrDefault("DB_DSN", defaultDBDSN),
		},
		Redis: RedisConfig{
			Addr: os.Getenv("REDIS_ADDR"),
		},
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format: valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
		},
	}

	var err error
	if cfg.HTTP.Port, err = parsePort("PORT", defaultPort); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.ReadTimeout, err = parseDuration("HTTP_READ_TIMEOUT", defaultReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.WriteTimeout, err = parseDuration("HTTP_WRITE_TIMEOUT", defaultWriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.Requests, err = parseInt("RATE_LIMIT_REQUESTS", defaultRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.Window, err = parseDuration("RATE_LIMIT_WINDOW", defaultRateLimitWindow); err != nil {
		return Config{}, err
	}
	if cfg.Notifications.LicenseWindowDays, err = parseInt("LICENSE_WINDOW_DAYS", defaultLicenseWindow); err != nil {
		return Config{}, err
	}
	if cfg.Notifications.LicenseCriticalDays, err = parseInt("LICENSE_CRITICAL_DAYS", defaultLicenseCritical); err != nil {
		return Config{}, err
	}

	if cfg.RateLimit.Requests < 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_REQUESTS %d: must be >= 0 (0 disables limiting)", cfg.RateLimit.Requests)
	}
	if cfg.RateLimit.Window <= 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_WINDOW %s: must be positive", cfg.RateLimit.Window)
	}
	if cfg.Notifications.LicenseWindowDays < 1 {
		return Config{}, fmt.Errorf("invalid LICENSE_WINDOW_DAYS %d: must be >= 1", cfg.Notifications.LicenseWindowDays)
	}
	if cfg.Notifications.LicenseCriticalDays < 1 || cfg.Notifications.LicenseCriticalDays > cfg.Notifications.LicenseWindowDays {
		return Config{}, fmt.Errorf("invalid LICENSE_CRITICAL_DAYS %d: must be between 1 and LICENSE_WINDOW_DAYS (%d)",
			cfg.Notifications.LicenseCriticalDays, cfg.Notifications.LicenseWindowDays)
	}

	tz := valueOrDefault("TZ_NAME", defaultTimezone)
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("invalid TZ_NAME %q: %w", tz, err)
	}

	switch cfg.DB.Driver {
	case "sqlite3", "pgx":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q: want sqlite3 or pgx", cfg.DB.Driver)
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	port, err := parseInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d is out of range", port)
	}
	return port, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
