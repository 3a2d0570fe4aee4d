/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fleet remittance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Open the SQL store (sqlite3 or pgx)
  4. Pick the rate limiter (Redis when REDIS_ADDR is set, else in-memory)
  5. Create aggregator, handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database DSN (overrides DB_DSN)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Close Redis and database connections
  4. Exit

  A listener failure (e.g. port in use) takes the same path, so the
  connections are closed before the process exits non-zero.

EXAMPLES:
  ./server -db="./data/fleet.db"
  DB_DRIVER=pgx DB_DSN=postgres://localhost/fleet ./server
  REDIS_ADDR=localhost:6379 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/fleet-engine/api"
	"github.com/warp/fleet-engine/config"
	"github.com/warp/fleet-engine/logging"
	"github.com/warp/fleet-engine/notification"
	"github.com/warp/fleet-engine/ratelimit"
	"github.com/warp/fleet-engine/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Flags
	port := flag.Int("port", cfg.HTTP.Port, "HTTP server port")
	dsn := flag.String("db", cfg.DB.DSN, "Database DSN")
	flag.Parse()
	cfg.HTTP.Port = *port
	cfg.DB.DSN = *dsn

	log := logging.New(cfg.Logging)

	// Initialize store
	store, err := sqlstore.New(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Rate limiter
	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = ratelimit.NewRedisClient(ctx, cfg.Redis.Addr)
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using in-memory rate limiter")
		} else {
			limiter = ratelimit.NewRedis(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			defer rdb.Close()
		}
	}

	agg := notification.NewAggregator(store, notification.Config{
		LicenseWindowDays:   cfg.Notifications.LicenseWindowDays,
		LicenseCriticalDays: cfg.Notifications.LicenseCriticalDays,
		Location:            cfg.Location,
	}, log)

	handler := api.NewHandler(store, agg, limiter, cfg.Location, log)
	router := api.NewRouter(handler, cfg.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"port":         cfg.HTTP.Port,
		"db_driver":    cfg.DB.Driver,
		"rate_limiter": limiter.Backend(),
		"timezone":     cfg.Location.String(),
	}).Info("server starting")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return serve(server, quit, cfg.HTTP.ShutdownTimeout, log)
}

// serve runs server until quit fires or the listener fails, then shuts it
// down within timeout. Both paths return to the caller so deferred closes run.
func serve(server *http.Server, quit <-chan os.Signal, timeout time.Duration, log logrus.FieldLogger) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		log.WithError(err).Error("server failed")
		return fmt.Errorf("serve: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
