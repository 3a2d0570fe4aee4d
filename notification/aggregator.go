package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/fleet-engine/remittance"
)

const (
	DefaultLicenseWindowDays   = 30
	DefaultLicenseCriticalDays = 7
)

// Config tunes the aggregator. Zero or negative day counts fall back to the
// defaults; config.Load refuses them so only programmatic callers rely on it.
type Config struct {
	LicenseWindowDays   int
	LicenseCriticalDays int

	// Location periods are computed in. Nil keeps now's location.
	Location *time.Location
}

// Failure records an assignment that could not be evaluated.
type Failure struct {
	AssignmentID string
	DriverID     string
	VehicleID    string
	Err          error
}

func (f Failure) Error() string {
	return fmt.Sprintf("assignment %s (driver %s, vehicle %s): %v", f.AssignmentID, f.DriverID, f.VehicleID, f.Err)
}

// Result is the feed returned to the caller. Failures lists assignments that
// were skipped because their evaluation failed; the rest of the feed is complete.
type Result struct {
	Notifications []Alert
	Count         int
	UnreadCount   int
	Failures      []Failure
}

// Aggregator builds the alert feed. Safe for concurrent use.
type Aggregator struct {
	source Source
	cfg    Config
	log    logrus.FieldLogger

	unknownFrequencies atomic.Int64

	mu              sync.Mutex
	unknownByTenant map[remittance.TenantID]int64
}

func NewAggregator(source Source, cfg Config, log logrus.FieldLogger) *Aggregator {
	if cfg.LicenseWindowDays <= 0 {
		cfg.LicenseWindowDays = DefaultLicenseWindowDays
	}
	if cfg.LicenseCriticalDays <= 0 {
		cfg.LicenseCriticalDays = DefaultLicenseCriticalDays
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{
		source:          source,
		cfg:             cfg,
		log:             log,
		unknownByTenant: make(map[remittance.TenantID]int64),
	}
}

// UnknownFrequencyCount is how many assignments, across all tenants, have been
// skipped so far because their vehicle carried an unrecognised frequency.
func (a *Aggregator) UnknownFrequencyCount() int64 {
	return a.unknownFrequencies.Load()
}

// UnknownFrequencyCountFor is UnknownFrequencyCount restricted to tenant.
func (a *Aggregator) UnknownFrequencyCountFor(tenant remittance.TenantID) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unknownByTenant[tenant]
}

func (a *Aggregator) countUnknownFrequency(tenant remittance.TenantID) {
	a.unknownFrequencies.Add(1)
	a.mu.Lock()
	a.unknownByTenant[tenant]++
	a.mu.Unlock()
}

// Compute returns the sorted alert feed of tenant at now.
//
// Listing assignments or licenses failing, or ctx being cancelled, fails the
// whole call. An error while evaluating one assignment is recorded in
// Result.Failures and the remaining assignments are still evaluated.
func (a *Aggregator) Compute(ctx context.Context, tenant remittance.TenantID, now time.Time) (Result, error) {
	if tenant == "" {
		return Result{}, remittance.ErrTenantRequired
	}
	if a.cfg.Location != nil {
		now = now.In(a.cfg.Location)
	}
	log := a.log.WithField("tenant_id", tenant)

	assignments, err := a.source.ListActiveAssignments(ctx, tenant)
	if err != nil {
		return Result{}, fmt.Errorf("list active assignments: %w", err)
	}

	alerts := make([]Alert, 0, len(assignments))
	var failures []Failure
	seen := make(map[string]bool, len(assignments))

	for _, as := range assignments {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		// One alert per driver+vehicle, whatever the number of assignments.
		pair := as.Driver.ID + "\x00" + as.Vehicle.ID
		if seen[pair] {
			continue
		}
		seen[pair] = true

		alert, ok, err := a.remittanceAlert(ctx, tenant, as, now, log)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			f := Failure{AssignmentID: as.AssignmentID, DriverID: as.Driver.ID, VehicleID: as.Vehicle.ID, Err: err}
			log.WithError(err).WithFields(logrus.Fields{
				"assignment_id": as.AssignmentID,
				"driver_id":     as.Driver.ID,
				"vehicle_id":    as.Vehicle.ID,
			}).Error("assignment evaluation failed")
			failures = append(failures, f)
			continue
		}
		if ok {
			alerts = append(alerts, alert)
		}
	}

	holders, err := a.source.ListDriversWithExpiringLicense(ctx, tenant, a.cfg.LicenseWindowDays, now)
	if err != nil {
		return Result{}, fmt.Errorf("list expiring licenses: %w", err)
	}
	for _, h := range holders {
		if alert, ok := a.licenseAlert(h, now); ok {
			alerts = append(alerts, alert)
		}
	}

	SortAlerts(alerts)

	return Result{
		Notifications: alerts,
		Count:         len(alerts),
		UnreadCount:   len(alerts),
		Failures:      failures,
	}, nil
}

// =============================================================================
// REMITTANCE ALERTS
// =============================================================================

func (a *Aggregator) remittanceAlert(ctx context.Context, tenant remittance.TenantID, as ActiveAssignment, now time.Time, log logrus.FieldLogger) (Alert, bool, error) {
	v := as.Vehicle
	if v.PaymentModel != remittance.ModelDriverRemits && v.PaymentModel != remittance.ModelHybrid {
		return Alert{}, false, nil
	}
	// Missing or malformed config: no target.
	if v.PaymentConfig == nil {
		return Alert{}, false, nil
	}

	raw, _ := remittance.FrequencyOf(v.PaymentConfig)
	freq, ok := remittance.ParseFrequency(string(raw))
	if !ok {
		a.countUnknownFrequency(tenant)
		log.WithFields(logrus.Fields{
			"vehicle_id": v.ID,
			"frequency":  string(raw),
		}).Warn("vehicle has no recognised remittance frequency, skipped")
		return Alert{}, false, nil
	}

	period := remittance.PeriodFor(freq, now)
	target := remittance.ResolveTarget(v.PaymentModel, v.PaymentConfig)
	if target == nil || !target.IsPositive() {
		return Alert{}, false, nil
	}

	paid, err := a.source.SumApprovedRemittances(ctx, tenant, as.Driver.ID, v.ID, period.Start, period.End)
	if err != nil {
		return Alert{}, false, fmt.Errorf("sum approved remittances: %w", err)
	}

	status := remittance.Evaluate(period, freq, v.PaymentModel, v.PaymentConfig, paid, now)
	if status.Remaining == nil || !status.Remaining.IsPositive() {
		return Alert{}, false, nil
	}

	severity, title := SeverityWarning, "Remittance due"
	if status.Overdue {
		severity, title = SeverityCritical, "Remittance overdue"
	}
	amount := status.Remaining.StringFixed(2)

	link := url.Values{}
	link.Set("driverId", as.Driver.ID)
	link.Set("vehicleId", v.ID)
	link.Set("amount", amount)

	return Alert{
		ID:    "remittance-" + as.Driver.ID + "-" + v.ID,
		Type:  AlertRemittanceDue,
		Title: title,
		Message: fmt.Sprintf("%s still owes %s for vehicle %s (%s remittance)",
			as.Driver.FullName, amount, v.RegistrationNumber, strings.ToLower(string(freq))),
		Link:     "/dashboard/remittances/new?" + link.Encode(),
		Severity: severity,
		Date:     period.End,
	}, true, nil
}

// =============================================================================
// LICENSE ALERTS
// =============================================================================

func (a *Aggregator) licenseAlert(h LicenseHolder, now time.Time) (Alert, bool) {
	expiry := h.LicenseExpiry.In(now.Location())
	if expiry.Before(remittance.StartOfDay(now)) {
		return Alert{}, false
	}
	days := remittance.DaysBetween(now, expiry)
	if days > a.cfg.LicenseWindowDays {
		return Alert{}, false
	}

	expired := expiry.Before(now)
	severity := SeverityWarning
	if expired || days <= a.cfg.LicenseCriticalDays {
		severity = SeverityCritical
	}

	title := "License expiring"
	message := fmt.Sprintf("%s's license %s expires on %s (in %d days)",
		h.FullName, h.LicenseNumber, expiry.Format("2006-01-02"), days)
	if expired {
		title = "License expired"
		message = fmt.Sprintf("%s's license %s expired on %s",
			h.FullName, h.LicenseNumber, expiry.Format("2006-01-02"))
	}

	return Alert{
		ID:       "license-" + h.ID,
		Type:     AlertLicenseExpiring,
		Title:    title,
		Message:  message,
		Link:     "/dashboard/drivers/" + h.ID,
		Severity: severity,
		Date:     expiry,
	}, true
}
