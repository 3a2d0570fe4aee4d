// Package memory provides an in-memory store for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/notification"
	"github.com/warp/fleet-engine/remittance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds every tenant's records. Records are keyed by id and filtered
// by tenant on read, the way the SQL store binds tenant_id.
type Memory struct {
	mu          sync.RWMutex
	drivers     map[string]remittance.Driver
	vehicles    map[string]remittance.Vehicle
	assignments map[string]remittance.Assignment
	remittances map[string]remittance.Remittance
	ledger      []remittance.LedgerEntry
	idempotency map[string]bool

	// SumErr, when set, is consulted before every SumApprovedRemittances call.
	SumErr func(driverID, vehicleID string) error
}

func New() *Memory {
	return &Memory{
		drivers:     make(map[string]remittance.Driver),
		vehicles:    make(map[string]remittance.Vehicle),
		assignments: make(map[string]remittance.Assignment),
		remittances: make(map[string]remittance.Remittance),
		idempotency: make(map[string]bool),
	}
}

// =============================================================================
// FLEET RECORDS
// =============================================================================

func (m *Memory) PutDriver(d remittance.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

func (m *Memory) PutVehicle(v remittance.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
}

func (m *Memory) PutAssignment(a remittance.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
}

func (m *Memory) PutRemittance(r remittance.Remittance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remittances[r.ID] = r
}

// =============================================================================
// NOTIFICATION SOURCE
// =============================================================================

func (m *Memory) ListActiveAssignments(_ context.Context, tenantID remittance.TenantID) ([]notification.ActiveAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []remittance.Assignment
	for _, a := range m.assignments {
		if a.TenantID == tenantID && a.IsActive() {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].StartDate.Equal(active[j].StartDate) {
			return active[i].StartDate.Before(active[j].StartDate)
		}
		return active[i].ID < active[j].ID
	})

	out := make([]notification.ActiveAssignment, 0, len(active))
	for _, a := range active {
		d, ok := m.drivers[a.DriverID]
		if !ok || d.TenantID != tenantID {
			continue
		}
		v, ok := m.vehicles[a.VehicleID]
		if !ok || v.TenantID != tenantID {
			continue
		}
		out = append(out, notification.ActiveAssignment{
			AssignmentID: a.ID,
			Driver:       notification.DriverRef{ID: d.ID, FullName: d.FullName},
			Vehicle: notification.VehicleRef{
				ID:                 v.ID,
				RegistrationNumber: v.RegistrationNumber,
				PaymentModel:       v.PaymentModel,
				PaymentConfig:      v.PaymentConfig,
			},
		})
	}
	return out, nil
}

func (m *Memory) SumApprovedRemittances(_ context.Context, tenantID remittance.TenantID, driverID, vehicleID string, start, end time.Time) (decimal.Decimal, error) {
	if m.SumErr != nil {
		if err := m.SumErr(driverID, vehicleID); err != nil {
			return decimal.Zero, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, r := range m.remittances {
		if r.TenantID != tenantID || r.DriverID != driverID || r.VehicleID != vehicleID {
			continue
		}
		if r.Status != remittance.StatusApproved {
			continue
		}
		if r.PaidAt.Before(start) || r.PaidAt.After(end) {
			continue
		}
		total = total.Add(r.Amount)
	}
	return total, nil
}

func (m *Memory) ListDriversWithExpiringLicense(_ context.Context, tenantID remittance.TenantID, withinDays int, now time.Time) ([]notification.LicenseHolder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from := remittance.StartOfDay(now)
	to := from.AddDate(0, 0, withinDays+1)

	var out []notification.LicenseHolder
	for _, d := range m.drivers {
		if d.TenantID != tenantID || !d.Active || d.LicenseExpiry == nil {
			continue
		}
		exp := *d.LicenseExpiry
		if exp.Before(from) || !exp.Before(to) {
			continue
		}
		out = append(out, notification.LicenseHolder{
			ID:            d.ID,
			FullName:      d.FullName,
			LicenseNumber: d.LicenseNumber,
			LicenseExpiry: exp,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LicenseExpiry.Equal(out[j].LicenseExpiry) {
			return out[i].LicenseExpiry.Before(out[j].LicenseExpiry)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ notification.Source = (*Memory)(nil)

// =============================================================================
// TRANSACTIONAL TENANT VIEW
// =============================================================================

// ReviewStore returns a remittance.ReviewStore bound to tenant.
func (m *Memory) ReviewStore(tenant remittance.TenantID) remittance.ReviewStore {
	return &txMemory{parent: m, tenant: tenant}
}

// LedgerEntries returns a driver's entries within tenant, ordered by EffectiveAt.
func (m *Memory) LedgerEntries(tenant remittance.TenantID, driverID string) []remittance.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{parent: m, tenant: tenant}).entries(driverID)
}

// Remittance returns a copy of remittance id, or false.
func (m *Memory) Remittance(id string) (remittance.Remittance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.remittances[id]
	return r, ok
}

type txMemory struct {
	parent *Memory
	tenant remittance.TenantID
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *txMemory) WithTx(_ context.Context, fn func(remittance.ReviewTx) error) error {
	m := tm.parent
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m, tenant: tm.tenant}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	remittances map[string]remittance.Remittance
	ledger      []remittance.LedgerEntry
	idempotency map[string]bool
}

func (m *Memory) snapshot() memorySnapshot {
	rem := make(map[string]remittance.Remittance, len(m.remittances))
	for k, v := range m.remittances {
		rem[k] = v
	}
	idem := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idem[k] = v
	}
	return memorySnapshot{
		remittances: rem,
		ledger:      append([]remittance.LedgerEntry(nil), m.ledger...),
		idempotency: idem,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.remittances = s.remittances
	m.ledger = s.ledger
	m.idempotency = s.idempotency
}

// txView runs with the parent lock held.
type txView struct {
	parent *Memory
	tenant remittance.TenantID
}

func (tv *txView) GetRemittance(_ context.Context, id string) (*remittance.Remittance, error) {
	r, ok := tv.parent.remittances[id]
	if !ok || r.TenantID != tv.tenant {
		return nil, fmt.Errorf("remittance %s: %w", id, remittance.ErrNotFound)
	}
	return &r, nil
}

func (tv *txView) SaveRemittance(_ context.Context, r remittance.Remittance) error {
	r.TenantID = tv.tenant
	tv.parent.remittances[r.ID] = r
	return nil
}

func (tv *txView) AppendLedger(_ context.Context, entries []remittance.LedgerEntry) error {
	// Check all idempotency keys first (atomic check)
	for _, e := range entries {
		if tv.parent.idempotency[e.IdempotencyKey] {
			return fmt.Errorf("%w: %s", remittance.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
		}
	}
	for _, e := range entries {
		e.TenantID = tv.tenant
		tv.parent.ledger = append(tv.parent.ledger, e)
		tv.parent.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (tv *txView) LedgerEntries(_ context.Context, driverID string) ([]remittance.LedgerEntry, error) {
	return tv.entries(driverID), nil
}

func (tv *txView) entries(driverID string) []remittance.LedgerEntry {
	var out []remittance.LedgerEntry
	for _, e := range tv.parent.ledger {
		if e.TenantID == tv.tenant && e.DriverID == driverID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveAt.Before(out[j].EffectiveAt)
	})
	return out
}
