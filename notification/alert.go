// Package notification computes the actionable alert feed of a tenant.
//
// Alerts are derived on every call from active assignments, approved
// remittances and driver license expiries. Nothing here is persisted.
package notification

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/remittance"
)

type AlertType string

const (
	AlertRemittanceDue   AlertType = "REMITTANCE_DUE"
	AlertLicenseExpiring AlertType = "LICENSE_EXPIRING"
)

type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) rank() int {
	if s == SeverityCritical {
		return 0
	}
	return 1
}

// Alert is one entry of the feed. Date is the instant the alert is about:
// the period end for remittances, the expiry for licenses.
type Alert struct {
	ID       string
	Type     AlertType
	Title    string
	Message  string
	Link     string
	Severity Severity
	Date     time.Time
}

// SortAlerts orders CRITICAL before WARNING, then by Date ascending, then by ID.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// SOURCE - Data the aggregator reads, scoped by tenant
// =============================================================================

type DriverRef struct {
	ID       string
	FullName string
}

type VehicleRef struct {
	ID                 string
	RegistrationNumber string
	PaymentModel       remittance.PaymentModel
	PaymentConfig      remittance.PaymentConfig
}

// ActiveAssignment is a driver/vehicle binding whose end date is unset.
type ActiveAssignment struct {
	AssignmentID string
	Driver       DriverRef
	Vehicle      VehicleRef
}

// LicenseHolder is an active driver with a license expiry date.
type LicenseHolder struct {
	ID            string
	FullName      string
	LicenseNumber string
	LicenseExpiry time.Time
}

// Source is implemented by the persistence layer.
type Source interface {
	ListActiveAssignments(ctx context.Context, tenantID remittance.TenantID) ([]ActiveAssignment, error)

	// SumApprovedRemittances sums APPROVED remittances of driver+vehicle paid in [start, end].
	SumApprovedRemittances(ctx context.Context, tenantID remittance.TenantID, driverID, vehicleID string, start, end time.Time) (decimal.Decimal, error)

	// ListDriversWithExpiringLicense returns active drivers whose license expires
	// between the start of now's day and withinDays days after it.
	ListDriversWithExpiringLicense(ctx context.Context, tenantID remittance.TenantID, withinDays int, now time.Time) ([]LicenseHolder, error)
}
