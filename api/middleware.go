package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/fleet-engine/ratelimit"
	"github.com/warp/fleet-engine/remittance"
)

// TenantHeader carries the tenant of every /api request.
const TenantHeader = "X-Tenant-ID"

type ctxKey int

const tenantKey ctxKey = iota

// TenantScope rejects requests without a tenant header and stores the tenant
// in the request context.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			writeError(w, http.StatusBadRequest, "Missing "+TenantHeader+" header", remittance.ErrTenantRequired)
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, remittance.TenantID(tenant))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFrom returns the tenant stored by TenantScope, or "".
func TenantFrom(ctx context.Context) remittance.TenantID {
	t, _ := ctx.Value(tenantKey).(remittance.TenantID)
	return t
}

// RequestLogger logs one line per request with method, path, status,
// duration, request id and tenant as fields.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"tenant_id":   r.Header.Get(TenantHeader),
			})
			switch {
			case ww.Status() >= 500:
				entry.Error("request failed")
			case ww.Status() >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
		})
	}
}

// RateLimit refuses requests once the tenant exceeds the limiter's budget.
// Limiter errors are logged and the request is let through.
func RateLimit(l ratelimit.Limiter, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := string(TenantFrom(r.Context()))
			ok, err := l.Allow(r.Context(), key)
			if err != nil {
				log.WithError(err).WithField("tenant_id", key).Warn("rate limiter unavailable")
				ok = true
			}
			if !ok {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
