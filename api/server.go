/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: logrus line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the dashboard
  Under /api only:
  5. TenantScope:   X-Tenant-ID header required
  6. RateLimit:     Per-tenant request budget (memory or Redis)

ROUTE GROUPS:
  /healthz               Store ping
  /api/notifications     Alert feed
  /api/drivers/*         Drivers, debt balance and ledger
  /api/vehicles/*        Vehicles, payment config and period target
  /api/assignments/*     Driver/vehicle assignments
  /api/remittances/*     Remittances, review and export
  /api/stats             Counters

SECURITY NOTE:
  No authentication middleware. The tenant header is trusted as given.
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", TenantHeader},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(TenantScope)
		if h.Limiter != nil {
			r.Use(RateLimit(h.Limiter, h.Log))
		}

		r.Get("/notifications", h.GetNotifications)
		r.Get("/stats", h.GetStats)

		// Driver routes
		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.Post("/", h.CreateDriver)
			r.Get("/{id}", h.GetDriver)
			r.Get("/{id}/balance", h.GetDriverBalance)
			r.Get("/{id}/ledger", h.GetDriverLedger)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
		})

		// Vehicle routes
		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", h.ListVehicles)
			r.Post("/", h.CreateVehicle)
			r.Get("/{id}", h.GetVehicle)
			r.Put("/{id}/payment", h.UpdateVehiclePayment)
			r.Get("/{id}/target", h.GetVehicleTarget)
		})

		// Assignment routes
		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", h.ListAssignments)
			r.Post("/", h.CreateAssignment)
			r.Post("/{id}/end", h.EndAssignment)
		})

		// Remittance routes
		r.Route("/remittances", func(r chi.Router) {
			r.Get("/", h.ListRemittances)
			r.Post("/", h.CreateRemittance)
			r.Get("/export", h.ExportRemittances)
			r.Get("/{id}", h.GetRemittance)
			r.Post("/{id}/approve", h.ApproveRemittance)
			r.Post("/{id}/reject", h.RejectRemittance)
		})
	})

	return r
}
