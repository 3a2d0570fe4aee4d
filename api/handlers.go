/*
handlers.go - HTTP API handlers for the fleet remittance engine

PURPOSE:
  Exposes drivers, vehicles, assignments, remittances and the alert feed
  via REST. Handles HTTP request/response and JSON serialization, and
  delegates to remittance/ and notification/ for domain logic.

ENDPOINTS:
  Notifications:
    GET    /api/notifications               Alert feed (?at=RFC3339)

  Drivers:
    GET    /api/drivers                     List drivers
    POST   /api/drivers                     Create driver
    GET    /api/drivers/{id}                Get driver
    GET    /api/drivers/{id}/balance        Debt balance
    GET    /api/drivers/{id}/ledger         Debt ledger with running balance
    POST   /api/drivers/{id}/adjustments    Manual debt adjustment

  Vehicles:
    GET    /api/vehicles                    List vehicles
    POST   /api/vehicles                    Create vehicle
    GET    /api/vehicles/{id}               Get vehicle
    PUT    /api/vehicles/{id}/payment       Change payment model/config
    GET    /api/vehicles/{id}/target        Period target (?driver_id=&date=)

  Assignments:
    GET    /api/assignments                 List (?all=true includes ended)
    POST   /api/assignments                 Create
    POST   /api/assignments/{id}/end        End

  Remittances:
    GET    /api/remittances                 List (?status=&driver_id=&vehicle_id=&from=&to=)
    POST   /api/remittances                 Record (PENDING)
    GET    /api/remittances/export          XLSX of the same listing
    GET    /api/remittances/{id}            Get
    POST   /api/remittances/{id}/approve    Review to APPROVED
    POST   /api/remittances/{id}/reject     Review to REJECTED

ARCHITECTURE:
  Handler struct holds all dependencies. Every handler obtains a
  tenant-scoped store from the X-Tenant-ID header (see TenantScope);
  no handler issues an unscoped query.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (invalid transition, primary assignment, idempotency)
  - 429: Rate limited
  - 500: Internal errors
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/fleet-engine/export"
	"github.com/warp/fleet-engine/notification"
	"github.com/warp/fleet-engine/ratelimit"
	"github.com/warp/fleet-engine/remittance"
	"github.com/warp/fleet-engine/store/sqlstore"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlstore.Store
	Aggregator *notification.Aggregator
	Reviewer   *remittance.Reviewer
	Limiter    ratelimit.Limiter
	Log        logrus.FieldLogger

	// Location dates without a zone are read in, and periods computed in.
	Location *time.Location
}

// NewHandler creates a handler over store. limiter may be nil.
func NewHandler(store *sqlstore.Store, agg *notification.Aggregator, limiter ratelimit.Limiter, loc *time.Location, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:      store,
		Aggregator: agg,
		Reviewer:   remittance.NewReviewer(log),
		Limiter:    limiter,
		Log:        log,
		Location:   loc,
	}
}

func (h *Handler) tenant(r *http.Request) *sqlstore.TenantStore {
	return h.Store.Tenant(TenantFrom(r.Context()))
}

func (h *Handler) now() time.Time {
	return h.Reviewer.Now().In(h.Location)
}

// Health pings the store.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// GetNotifications returns the tenant's alert feed.
// GET /api/notifications?at=RFC3339
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at (want RFC3339)", err)
			return
		}
		now = t
	}

	res, err := h.Aggregator.Compute(r.Context(), TenantFrom(r.Context()), now)
	if err != nil {
		h.handleError(w, "Failed to compute notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationsResponse(res))
}

// GetStats returns counters of the engine and the tenant's remittances.
// GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFrom(r.Context())
	stats, err := h.tenant(r).Stats(r.Context())
	if err != nil {
		h.handleError(w, "Failed to compute stats", err)
		return
	}
	backend := "none"
	if h.Limiter != nil {
		backend = h.Limiter.Backend()
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		UnknownFrequencies: h.Aggregator.UnknownFrequencyCountFor(tenant),
		RateLimiter:        backend,
		Pending:            stats.Pending,
		Approved:           stats.Approved,
		Rejected:           stats.Rejected,
		ApprovedTotal:      stats.ApprovedTotal,
	})
}

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

// ListDrivers returns all drivers.
// GET /api/drivers
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.tenant(r).ListDrivers(r.Context())
	if err != nil {
		h.handleError(w, "Failed to list drivers", err)
		return
	}
	dtos := make([]DriverDTO, 0, len(drivers))
	for _, d := range drivers {
		dtos = append(dtos, toDriverDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDriver returns one driver.
// GET /api/drivers/{id}
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	d, err := h.tenant(r).GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, "Failed to get driver", err)
		return
	}
	writeJSON(w, http.StatusOK, toDriverDTO(*d))
}

// CreateDriver creates a driver.
// POST /api/drivers
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "full_name is required", nil)
		return
	}

	d := remittance.Driver{
		ID:            h.Reviewer.NewID(),
		TenantID:      TenantFrom(r.Context()),
		FullName:      req.FullName,
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
		Active:        req.Active == nil || *req.Active,
		CreatedAt:     h.Reviewer.Now(),
	}
	if req.LicenseExpiry != "" {
		t, err := h.parseDate(req.LicenseExpiry)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid license_expiry", err)
			return
		}
		d.LicenseExpiry = &t
	}

	if err := h.tenant(r).SaveDriver(r.Context(), d); err != nil {
		h.handleError(w, "Failed to create driver", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDriverDTO(d))
}

// GetDriverBalance returns the driver's debt.
// GET /api/drivers/{id}/balance
func (h *Handler) GetDriverBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := h.tenant(r)
	if _, err := store.GetDriver(r.Context(), id); err != nil {
		h.handleError(w, "Failed to get driver", err)
		return
	}
	entries, err := store.LedgerEntries(r.Context(), id)
	if err != nil {
		h.handleError(w, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		DriverID: id,
		Debt:     remittance.DebtBalance(entries),
		Entries:  len(entries),
	})
}

// GetDriverLedger returns the driver's ledger with the running debt.
// GET /api/drivers/{id}/ledger
func (h *Handler) GetDriverLedger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := h.tenant(r)
	if _, err := store.GetDriver(r.Context(), id); err != nil {
		h.handleError(w, "Failed to get driver", err)
		return
	}
	entries, err := store.LedgerEntries(r.Context(), id)
	if err != nil {
		h.handleError(w, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTOs(entries))
}

// CreateAdjustment appends a manual ledger entry.
// POST /api/drivers/{id}/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.Delta.IsZero() {
		writeError(w, http.StatusBadRequest, "delta must be non-zero", nil)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}
	if req.ActorID == "" {
		req.ActorID = "admin"
	}

	store := h.tenant(r)
	if _, err := store.GetDriver(r.Context(), id); err != nil {
		h.handleError(w, "Failed to get driver", err)
		return
	}
	entry := h.Reviewer.NewAdjustment(store.TenantID(), id, req.Delta, req.Reason, req.ActorID)
	if err := store.AppendLedger(r.Context(), []remittance.LedgerEntry{entry}); err != nil {
		h.handleError(w, "Failed to record adjustment", err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"tenant_id": store.TenantID(),
		"driver_id": id,
		"delta":     req.Delta.String(),
		"actor":     req.ActorID,
	}).Info("debt adjusted")

	writeJSON(w, http.StatusCreated, toLedgerDTOs([]remittance.LedgerEntry{entry})[0])
}

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

// ListVehicles returns all vehicles.
// GET /api/vehicles
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.tenant(r).ListVehicles(r.Context())
	if err != nil {
		h.handleError(w, "Failed to list vehicles", err)
		return
	}
	dtos := make([]VehicleDTO, 0, len(vehicles))
	for _, v := range vehicles {
		dtos = append(dtos, toVehicleDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetVehicle returns one vehicle.
// GET /api/vehicles/{id}
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.tenant(r).GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, "Failed to get vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(*v))
}

// CreateVehicle creates a vehicle with its payment model.
// POST /api/vehicles
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if strings.TrimSpace(req.RegistrationNumber) == "" {
		writeError(w, http.StatusBadRequest, "registration_number is required", nil)
		return
	}
	model, cfg, err := decodePayment(req.PaymentModel, req.PaymentConfig)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment configuration", err)
		return
	}

	v := remittance.Vehicle{
		ID:                 h.Reviewer.NewID(),
		TenantID:           TenantFrom(r.Context()),
		RegistrationNumber: req.RegistrationNumber,
		PaymentModel:       model,
		PaymentConfig:      cfg,
		CreatedAt:          h.Reviewer.Now(),
	}
	if err := h.tenant(r).SaveVehicle(r.Context(), v); err != nil {
		h.handleError(w, "Failed to create vehicle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehicleDTO(v))
}

// UpdateVehiclePayment replaces the payment model and config of a vehicle.
// PUT /api/vehicles/{id}/payment
func (h *Handler) UpdateVehiclePayment(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	model, cfg, err := decodePayment(req.PaymentModel, req.PaymentConfig)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment configuration", err)
		return
	}

	store := h.tenant(r)
	v, err := store.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, "Failed to get vehicle", err)
		return
	}
	v.PaymentModel = model
	v.PaymentConfig = cfg
	if err := store.SaveVehicle(r.Context(), *v); err != nil {
		h.handleError(w, "Failed to update vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(*v))
}

// GetVehicleTarget returns the driver's period status on the vehicle.
// GET /api/vehicles/{id}/target?driver_id=&date=
func (h *Handler) GetVehicleTarget(w http.ResponseWriter, r *http.Request) {
	driverID := r.URL.Query().Get("driver_id")
	if driverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required", nil)
		return
	}
	ref := h.now()
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := h.parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		ref = t
	}

	store := h.tenant(r)
	v, err := store.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, "Failed to get vehicle", err)
		return
	}
	if _, err := store.GetDriver(r.Context(), driverID); err != nil {
		h.handleError(w, "Failed to get driver", err)
		return
	}

	status, err := h.periodStatus(r, store, driverID, *v, ref)
	if err != nil {
		h.handleError(w, "Failed to compute target", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodStatusDTO(driverID, v.ID, status))
}

// periodStatus evaluates the period of v containing ref. A vehicle without a
// recognised frequency is evaluated over the day of ref.
func (h *Handler) periodStatus(r *http.Request, store *sqlstore.TenantStore, driverID string, v remittance.Vehicle, ref time.Time) (remittance.PeriodStatus, error) {
	raw, _ := remittance.FrequencyOf(v.PaymentConfig)
	freq, ok := remittance.ParseFrequency(string(raw))
	if !ok {
		freq = remittance.FreqDaily
	}
	period := remittance.PeriodFor(freq, ref.In(h.Location))

	paid, err := store.SumApprovedRemittances(r.Context(), driverID, v.ID, period.Start, period.End)
	if err != nil {
		return remittance.PeriodStatus{}, err
	}
	return remittance.Evaluate(period, freq, v.PaymentModel, v.PaymentConfig, paid, h.now()), nil
}

func decodePayment(model string, raw json.RawMessage) (remittance.PaymentModel, remittance.PaymentConfig, error) {
	m, err := remittance.ParsePaymentModel(model)
	if err != nil {
		return "", nil, err
	}
	cfg, err := remittance.DecodePaymentConfig(m, raw)
	if err != nil {
		return "", nil, err
	}
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return "", nil, err
		}
	}
	return m, cfg, nil
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// ListAssignments returns active assignments, or all with ?all=true.
// GET /api/assignments
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	assignments, err := h.tenant(r).ListAssignments(r.Context(), activeOnly)
	if err != nil {
		h.handleError(w, "Failed to list assignments", err)
		return
	}
	dtos := make([]AssignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		dtos = append(dtos, toAssignmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAssignment binds a driver to a vehicle.
// POST /api/assignments
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.DriverID == "" || req.VehicleID == "" {
		writeError(w, http.StatusBadRequest, "driver_id and vehicle_id are required", nil)
		return
	}
	start := h.now()
	if req.StartDate != "" {
		t, err := h.parseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date", err)
			return
		}
		start = t
	}

	a := remittance.Assignment{
		ID:        h.Reviewer.NewID(),
		TenantID:  TenantFrom(r.Context()),
		DriverID:  req.DriverID,
		VehicleID: req.VehicleID,
		StartDate: start,
		Primary:   req.Primary,
		CreatedAt: h.Reviewer.Now(),
	}
	if err := h.tenant(r).CreateAssignment(r.Context(), a); err != nil {
		h.handleError(w, "Failed to create assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(a))
}

// EndAssignment ends an active assignment.
// POST /api/assignments/{id}/end
func (h *Handler) EndAssignment(w http.ResponseWriter, r *http.Request) {
	var req EndAssignmentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
	}
	end := h.now()
	if req.EndDate != "" {
		t, err := h.parseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date", err)
			return
		}
		end = t
	}

	id := chi.URLParam(r, "id")
	if err := h.tenant(r).EndAssignment(r.Context(), id, end); err != nil {
		h.handleError(w, "Failed to end assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "end_date": end})
}

// =============================================================================
// REMITTANCE HANDLERS
// =============================================================================

// ListRemittances returns remittances matching the query filters.
// GET /api/remittances
func (h *Handler) ListRemittances(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.listRemittances(w, r)
	if !ok {
		return
	}
	dtos := make([]RemittanceDTO, 0, len(rows))
	for _, rem := range rows {
		dtos = append(dtos, toRemittanceDTO(rem))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportRemittances returns the filtered listing as an XLSX workbook.
// GET /api/remittances/export
func (h *Handler) ExportRemittances(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.listRemittances(w, r)
	if !ok {
		return
	}
	filename := fmt.Sprintf("remittances-%s.xlsx", h.now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.Remittances(w, rows, h.Location); err != nil {
		h.Log.WithError(err).Error("remittance export failed")
	}
}

func (h *Handler) listRemittances(w http.ResponseWriter, r *http.Request) ([]remittance.Remittance, bool) {
	q := r.URL.Query()
	f := remittance.RemittanceFilter{
		DriverID:  q.Get("driver_id"),
		VehicleID: q.Get("vehicle_id"),
	}
	if s := q.Get("status"); s != "" {
		st, ok := remittance.ParseStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid status", nil)
			return nil, false
		}
		f.Status = st
	}
	if s := q.Get("from"); s != "" {
		t, err := h.parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from", err)
			return nil, false
		}
		f.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := h.parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to", err)
			return nil, false
		}
		if len(s) == len(dateLayout) {
			t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
		f.To = &t
	}

	rows, err := h.tenant(r).ListRemittances(r.Context(), f)
	if err != nil {
		h.handleError(w, "Failed to list remittances", err)
		return nil, false
	}
	return rows, true
}

// GetRemittance returns one remittance.
// GET /api/remittances/{id}
func (h *Handler) GetRemittance(w http.ResponseWriter, r *http.Request) {
	rem, err := h.tenant(r).GetRemittance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, "Failed to get remittance", err)
		return
	}
	writeJSON(w, http.StatusOK, toRemittanceDTO(*rem))
}

// CreateRemittance records a PENDING remittance.
// POST /api/remittances
func (h *Handler) CreateRemittance(w http.ResponseWriter, r *http.Request) {
	var req CreateRemittanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		t, err := h.parseDate(req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at", err)
			return
		}
		paidAt = t
	}

	store := h.tenant(r)
	rem, err := h.Reviewer.NewRemittance(store.TenantID(), req.DriverID, req.VehicleID, req.Amount, paidAt, req.Reference, req.Notes)
	if err != nil {
		h.handleError(w, "Invalid remittance", err)
		return
	}
	if _, err := store.GetDriver(r.Context(), rem.DriverID); err != nil {
		h.handleError(w, "Failed to get driver", err)
		return
	}
	if _, err := store.GetVehicle(r.Context(), rem.VehicleID); err != nil {
		h.handleError(w, "Failed to get vehicle", err)
		return
	}
	if err := store.SaveRemittance(r.Context(), rem); err != nil {
		h.handleError(w, "Failed to record remittance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRemittanceDTO(rem))
}

// ApproveRemittance reviews a remittance to APPROVED and reports the period
// status of its driver and vehicle afterwards.
// POST /api/remittances/{id}/approve
func (h *Handler) ApproveRemittance(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, remittance.StatusApproved)
}

// RejectRemittance reviews a remittance to REJECTED. Rejecting an approved
// remittance reverses its ledger payment.
// POST /api/remittances/{id}/reject
func (h *Handler) RejectRemittance(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, remittance.StatusRejected)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, to remittance.Status) {
	var req ReviewRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
	}
	if req.ReviewerID == "" {
		req.ReviewerID = "admin"
	}

	store := h.tenant(r)
	res, err := h.Reviewer.Review(r.Context(), store.ReviewStore(), chi.URLParam(r, "id"), to, req.ReviewerID, req.Note)
	if err != nil {
		h.handleError(w, "Failed to review remittance", err)
		return
	}

	resp := ReviewResponse{
		Remittance:     toRemittanceDTO(res.Remittance),
		PreviousStatus: string(res.Previous),
		Entries:        toLedgerDTOs(res.Entries),
	}
	if to == remittance.StatusApproved {
		if period, err := h.approvedPeriod(r, store, res.Remittance); err != nil {
			h.Log.WithError(err).WithField("remittance_id", res.Remittance.ID).Warn("period status unavailable after approval")
		} else {
			resp.Period = period
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// approvedPeriod reports whether the driver reached the target of the period
// the approved remittance was paid in.
func (h *Handler) approvedPeriod(r *http.Request, store *sqlstore.TenantStore, rem remittance.Remittance) (*PeriodStatusDTO, error) {
	v, err := store.GetVehicle(r.Context(), rem.VehicleID)
	if err != nil {
		return nil, err
	}
	status, err := h.periodStatus(r, store, rem.DriverID, *v, rem.PaidAt)
	if err != nil {
		return nil, err
	}
	dto := toPeriodStatusDTO(rem.DriverID, v.ID, status)
	return &dto, nil
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD (midnight in h.Location) or RFC3339.
func (h *Handler) parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, s, h.Location); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// handleError maps domain errors to HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, message string, err error) {
	switch {
	case remittance.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case remittance.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case remittance.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
