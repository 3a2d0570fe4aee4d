/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, keeping the domain
  types in remittance/ and notification/ free of transport concerns.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FORMATS:
  - Amounts are decimal strings ("500.00"), never floats.
  - Dates in requests are YYYY-MM-DD or RFC3339; instants in responses are RFC3339.
  - Payment configs are passed through as JSON objects with camelCase keys.
  - The notification feed keeps the {notifications, count, unreadCount} shape
    the dashboard reads.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/notification"
	"github.com/warp/fleet-engine/remittance"
)

// =============================================================================
// DRIVERS
// =============================================================================

type DriverDTO struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	Phone         string     `json:"phone,omitempty"`
	LicenseNumber string     `json:"license_number,omitempty"`
	LicenseExpiry *time.Time `json:"license_expiry,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CreateDriverRequest struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"license_number"`
	LicenseExpiry string `json:"license_expiry,omitempty"` // YYYY-MM-DD
	Active        *bool  `json:"active,omitempty"`
}

// BalanceDTO is a driver's outstanding debt. Positive means the driver owes.
type BalanceDTO struct {
	DriverID string          `json:"driver_id"`
	Debt     decimal.Decimal `json:"debt"`
	Entries  int             `json:"entries"`
}

type LedgerEntryDTO struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Delta        decimal.Decimal `json:"delta"`
	Balance      decimal.Decimal `json:"balance"`
	RemittanceID string          `json:"remittance_id,omitempty"`
	EffectiveAt  time.Time       `json:"effective_at"`
	Reason       string          `json:"reason,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
}

type AdjustmentRequest struct {
	Delta   decimal.Decimal `json:"delta"`
	Reason  string          `json:"reason"`
	ActorID string          `json:"actor_id"`
}

// =============================================================================
// VEHICLES
// =============================================================================

type VehicleDTO struct {
	ID                 string          `json:"id"`
	RegistrationNumber string          `json:"registration_number"`
	PaymentModel       string          `json:"payment_model"`
	PaymentConfig      json.RawMessage `json:"payment_config,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

type CreateVehicleRequest struct {
	RegistrationNumber string          `json:"registration_number"`
	PaymentModel       string          `json:"payment_model"`
	PaymentConfig      json.RawMessage `json:"payment_config,omitempty"`
}

type UpdatePaymentRequest struct {
	PaymentModel  string          `json:"payment_model"`
	PaymentConfig json.RawMessage `json:"payment_config,omitempty"`
}

// PeriodStatusDTO is the remittance target state of one driver+vehicle period.
// Target and Remaining are null when the vehicle has no target.
type PeriodStatusDTO struct {
	DriverID    string           `json:"driver_id"`
	VehicleID   string           `json:"vehicle_id"`
	Frequency   string           `json:"frequency"`
	PeriodStart time.Time        `json:"period_start"`
	PeriodEnd   time.Time        `json:"period_end"`
	Target      *decimal.Decimal `json:"target"`
	Paid        decimal.Decimal  `json:"paid"`
	Remaining   *decimal.Decimal `json:"remaining"`
	Reached     bool             `json:"reached"`
	Overdue     bool             `json:"overdue"`
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type AssignmentDTO struct {
	ID        string     `json:"id"`
	DriverID  string     `json:"driver_id"`
	VehicleID string     `json:"vehicle_id"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Primary   bool       `json:"primary"`
	Active    bool       `json:"active"`
}

type CreateAssignmentRequest struct {
	DriverID  string `json:"driver_id"`
	VehicleID string `json:"vehicle_id"`
	StartDate string `json:"start_date,omitempty"`
	Primary   bool   `json:"primary"`
}

type EndAssignmentRequest struct {
	EndDate string `json:"end_date,omitempty"`
}

// =============================================================================
// REMITTANCES
// =============================================================================

type RemittanceDTO struct {
	ID         string          `json:"id"`
	DriverID   string          `json:"driver_id"`
	VehicleID  string          `json:"vehicle_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paid_at"`
	Status     string          `json:"status"`
	Reference  string          `json:"reference,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	ReviewedBy string          `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time      `json:"reviewed_at,omitempty"`
	Revision   int             `json:"revision"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CreateRemittanceRequest struct {
	DriverID  string          `json:"driver_id"`
	VehicleID string          `json:"vehicle_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    string          `json:"paid_at,omitempty"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note"`
}

// ReviewResponse reports the review and, for approvals, where the driver
// stands against the period target afterwards.
type ReviewResponse struct {
	Remittance     RemittanceDTO    `json:"remittance"`
	PreviousStatus string           `json:"previous_status"`
	Entries        []LedgerEntryDTO `json:"entries"`
	Period         *PeriodStatusDTO `json:"period,omitempty"`
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type AlertDTO struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Link     string    `json:"link"`
	Severity string    `json:"severity"`
	Date     time.Time `json:"date"`
}

type FailureDTO struct {
	AssignmentID string `json:"assignmentId"`
	DriverID     string `json:"driverId"`
	VehicleID    string `json:"vehicleId"`
	Error        string `json:"error"`
}

type NotificationsResponse struct {
	Notifications []AlertDTO   `json:"notifications"`
	Count         int          `json:"count"`
	UnreadCount   int          `json:"unreadCount"`
	Failures      []FailureDTO `json:"failures,omitempty"`
}

// =============================================================================
// STATS / ERRORS
// =============================================================================

type StatsDTO struct {
	UnknownFrequencies int64           `json:"unknown_frequencies"`
	RateLimiter        string          `json:"rate_limiter"`
	Pending            int             `json:"pending"`
	Approved           int             `json:"approved"`
	Rejected           int             `json:"rejected"`
	ApprovedTotal      decimal.Decimal `json:"approved_total"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDriverDTO(d remittance.Driver) DriverDTO {
	return DriverDTO{
		ID:            d.ID,
		FullName:      d.FullName,
		Phone:         d.Phone,
		LicenseNumber: d.LicenseNumber,
		LicenseExpiry: d.LicenseExpiry,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
	}
}

func toVehicleDTO(v remittance.Vehicle) VehicleDTO {
	raw, _ := remittance.EncodePaymentConfig(v.PaymentConfig)
	return VehicleDTO{
		ID:                 v.ID,
		RegistrationNumber: v.RegistrationNumber,
		PaymentModel:       string(v.PaymentModel),
		PaymentConfig:      raw,
		CreatedAt:          v.CreatedAt,
	}
}

func toAssignmentDTO(a remittance.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:        a.ID,
		DriverID:  a.DriverID,
		VehicleID: a.VehicleID,
		StartDate: a.StartDate,
		EndDate:   a.EndDate,
		Primary:   a.Primary,
		Active:    a.IsActive(),
	}
}

func toRemittanceDTO(r remittance.Remittance) RemittanceDTO {
	return RemittanceDTO{
		ID:         r.ID,
		DriverID:   r.DriverID,
		VehicleID:  r.VehicleID,
		Amount:     r.Amount,
		PaidAt:     r.PaidAt,
		Status:     string(r.Status),
		Reference:  r.Reference,
		Notes:      r.Notes,
		ReviewedBy: r.ReviewedBy,
		ReviewedAt: r.ReviewedAt,
		Revision:   r.Revision,
		CreatedAt:  r.CreatedAt,
	}
}

// toLedgerDTOs attaches the running debt after each entry.
func toLedgerDTOs(entries []remittance.LedgerEntry) []LedgerEntryDTO {
	dtos := make([]LedgerEntryDTO, 0, len(entries))
	running := decimal.Zero
	for _, e := range entries {
		running = running.Add(e.Delta)
		dtos = append(dtos, LedgerEntryDTO{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Delta:        e.Delta,
			Balance:      running,
			RemittanceID: e.RemittanceID,
			EffectiveAt:  e.EffectiveAt,
			Reason:       e.Reason,
			CreatedBy:    e.CreatedBy,
		})
	}
	return dtos
}

func toPeriodStatusDTO(driverID, vehicleID string, s remittance.PeriodStatus) PeriodStatusDTO {
	return PeriodStatusDTO{
		DriverID:    driverID,
		VehicleID:   vehicleID,
		Frequency:   string(s.Frequency),
		PeriodStart: s.Period.Start,
		PeriodEnd:   s.Period.End,
		Target:      s.Target,
		Paid:        s.Paid,
		Remaining:   s.Remaining,
		Reached:     s.Reached,
		Overdue:     s.Overdue,
	}
}

func toNotificationsResponse(res notification.Result) NotificationsResponse {
	resp := NotificationsResponse{
		Notifications: make([]AlertDTO, 0, len(res.Notifications)),
		Count:         res.Count,
		UnreadCount:   res.UnreadCount,
	}
	for _, a := range res.Notifications {
		resp.Notifications = append(resp.Notifications, AlertDTO{
			ID:       a.ID,
			Type:     string(a.Type),
			Title:    a.Title,
			Message:  a.Message,
			Link:     a.Link,
			Severity: string(a.Severity),
			Date:     a.Date,
		})
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, FailureDTO{
			AssignmentID: f.AssignmentID,
			DriverID:     f.DriverID,
			VehicleID:    f.VehicleID,
			Error:        f.Err.Error(),
		})
	}
	return resp
}
