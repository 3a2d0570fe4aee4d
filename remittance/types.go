/*
Package remittance provides the remittance target and reconciliation engine.

PURPOSE:

	Drivers working under a DRIVER_REMITS or HYBRID payment model owe their
	vehicle owner a fixed amount per period (day, week or month). This package
	answers "how much does this driver still owe for the current period?" and
	records the approval lifecycle of the payments drivers make.

KEY CONCEPTS:
  - Period: inclusive [Start, End] window derived from a frequency (period.go)
  - PaymentModel / PaymentConfig: tagged variants per model (payment.go)
  - Target: fixed amount owed per period, nil when the model has none (target.go)
  - Remittance: a driver payment, PENDING until reviewed (this file)
  - Debt ledger: append-only driver debt adjustments (ledger.go)
  - Reviewer: approve/reject with compensating reversals (review.go)

DESIGN PRINCIPLES:
 1. Derived values (periods, targets, balances) are never stored
 2. Money uses decimal.Decimal
 3. Only APPROVED remittances count toward a period
 4. The debt ledger is append-only; corrections are reversals

USAGE:

	period := remittance.PeriodFor(remittance.FreqWeekly, now)
	target := remittance.ResolveTarget(vehicle.PaymentModel, vehicle.PaymentConfig)
	remaining := remittance.RemainingBalance(target, paidInPeriod)
*/
package remittance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string

// =============================================================================
// FLEET RECORDS
// =============================================================================

// Driver is a person who operates tenant vehicles.
type Driver struct {
	ID            string
	TenantID      TenantID
	FullName      string
	Phone         string
	LicenseNumber string
	LicenseExpiry *time.Time
	Active        bool
	CreatedAt     time.Time
}

// Vehicle carries the payment model that governs its drivers' remittances.
// PaymentConfig is nil when none is configured or the stored one is malformed.
type Vehicle struct {
	ID                 string
	TenantID           TenantID
	RegistrationNumber string
	PaymentModel       PaymentModel
	PaymentConfig      PaymentConfig
	CreatedAt          time.Time
}

// Assignment binds one driver to one vehicle. EndDate == nil means active.
type Assignment struct {
	ID        string
	TenantID  TenantID
	DriverID  string
	VehicleID string
	StartDate time.Time
	EndDate   *time.Time
	Primary   bool
	CreatedAt time.Time
}

// IsActive reports whether the assignment has not been ended.
func (a Assignment) IsActive() bool { return a.EndDate == nil }

// =============================================================================
// REMITTANCE - A driver's payment record
// =============================================================================

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus parses a status name in any case.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(upper(s)); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, true
	default:
		return "", false
	}
}

// Remittance is created PENDING and moved to APPROVED or REJECTED by a tenant
// operator. Revision increments on every review.
type Remittance struct {
	ID         string
	TenantID   TenantID
	DriverID   string
	VehicleID  string
	Amount     decimal.Decimal
	PaidAt     time.Time
	Status     Status
	Reference  string
	Notes      string
	ReviewedBy string
	ReviewedAt *time.Time
	Revision   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RemittanceFilter narrows remittance listings. Zero fields do not filter.
type RemittanceFilter struct {
	Status    Status
	DriverID  string
	VehicleID string
	From      *time.Time
	To        *time.Time
}
