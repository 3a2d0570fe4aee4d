package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "DB_DRIVER", "DB_DSN", "REDIS_ADDR", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	"TZ_NAME", "LOG_LEVEL", "LOG_FORMAT", "CORS_ORIGINS", "LICENSE_WINDOW_DAYS",
	"LICENSE_CRITICAL_DAYS", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "sqlite3", cfg.DB.Driver)
	assert.Equal(t, "fleet.db", cfg.DB.DSN)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 120, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30, cfg.Notifications.LicenseWindowDays)
	assert.Equal(t, 7, cfg.Notifications.LicenseCriticalDays)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_DSN", "postgres://localhost/fleet")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("TZ_NAME", "Africa/Lagos")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "pgx", cfg.DB.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "Africa/Lagos", cfg.Location.String())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: a .env file and one variable already set in the environment
	clearEnv(t)
	t.Setenv("LOG_FORMAT", "text")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nLOG_FORMAT=json\n"), 0o600))

	// WHEN: loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: the file fills unset keys, the environment wins otherwise
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"PORT":                "70000",
		"RATE_LIMIT_REQUESTS": "many",
		"HTTP_READ_TIMEOUT":   "soon",
		"TZ_NAME":             "Mars/Olympus",
		"DB_DRIVER":           "oracle",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestLoad_RejectsOutOfRangeLimits(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero window", map[string]string{"RATE_LIMIT_WINDOW": "0s"}},
		{"negative window", map[string]string{"RATE_LIMIT_WINDOW": "-1m"}},
		{"negative requests", map[string]string{"RATE_LIMIT_REQUESTS": "-5"}},
		{"zero license window", map[string]string{"LICENSE_WINDOW_DAYS": "0"}},
		{"zero critical days", map[string]string{"LICENSE_CRITICAL_DAYS": "0"}},
		{"critical beyond window", map[string]string{"LICENSE_WINDOW_DAYS": "5", "LICENSE_CRITICAL_DAYS": "7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ZeroRequestsDisablesLimiting(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.RateLimit.Requests)
}
