package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/notification"
	"github.com/warp/fleet-engine/remittance"
)

// =============================================================================
// REMITTANCES
// =============================================================================

// SaveRemittance inserts or updates a remittance.
func (t *TenantStore) SaveRemittance(ctx context.Context, r remittance.Remittance) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	_, err := t.exec(ctx, `
		INSERT INTO remittances (id, tenant_id, driver_id, vehicle_id, amount, paid_at, status,
			reference, notes, reviewed_by, reviewed_at, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			paid_at = excluded.paid_at,
			status = excluded.status,
			reference = excluded.reference,
			notes = excluded.notes,
			reviewed_by = excluded.reviewed_by,
			reviewed_at = excluded.reviewed_at,
			revision = excluded.revision,
			updated_at = excluded.updated_at
		WHERE remittances.tenant_id = excluded.tenant_id`,
		r.ID, string(t.tenant), r.DriverID, r.VehicleID, r.Amount.String(), formatTime(r.PaidAt),
		string(r.Status), r.Reference, r.Notes, r.ReviewedBy, formatNullTime(r.ReviewedAt),
		r.Revision, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save remittance %s: %w", r.ID, err)
	}
	return nil
}

const remittanceColumns = `id, tenant_id, driver_id, vehicle_id, amount, paid_at, status,
	reference, notes, reviewed_by, reviewed_at, revision, created_at, updated_at`

// GetRemittance returns remittance.ErrNotFound when the id is unknown in the tenant.
func (t *TenantStore) GetRemittance(ctx context.Context, id string) (*remittance.Remittance, error) {
	row := t.queryRow(ctx, `SELECT `+remittanceColumns+` FROM remittances WHERE tenant_id = ? AND id = ?`, string(t.tenant), id)
	r, err := scanRemittance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("remittance %s: %w", id, remittance.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRemittances returns the tenant's remittances matching f, newest first.
func (t *TenantStore) ListRemittances(ctx context.Context, f remittance.RemittanceFilter) ([]remittance.Remittance, error) {
	where := []string{"tenant_id = ?"}
	args := []any{string(t.tenant)}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.DriverID != "" {
		where = append(where, "driver_id = ?")
		args = append(args, f.DriverID)
	}
	if f.VehicleID != "" {
		where = append(where, "vehicle_id = ?")
		args = append(args, f.VehicleID)
	}
	if f.From != nil {
		where = append(where, "paid_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "paid_at <= ?")
		args = append(args, formatTime(*f.To))
	}

	rows, err := t.query(ctx, `SELECT `+remittanceColumns+` FROM remittances
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY paid_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list remittances: %w", err)
	}
	defer rows.Close()

	var out []remittance.Remittance
	for rows.Next() {
		r, err := scanRemittance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SumApprovedRemittances sums APPROVED remittances of driver+vehicle paid in
// [start, end]. Amounts are summed as decimals, not in SQL.
func (t *TenantStore) SumApprovedRemittances(ctx context.Context, driverID, vehicleID string, start, end time.Time) (decimal.Decimal, error) {
	rows, err := t.query(ctx, `
		SELECT amount FROM remittances
		WHERE tenant_id = ? AND driver_id = ? AND vehicle_id = ? AND status = ?
		  AND paid_at >= ? AND paid_at <= ?`,
		string(t.tenant), driverID, vehicleID, string(remittance.StatusApproved),
		formatTime(start), formatTime(end))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum approved remittances: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, err
		}
		amount, err := parseDecimal(s)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// RemittanceStats counts the tenant's remittances per status.
type RemittanceStats struct {
	Pending       int
	Approved      int
	Rejected      int
	ApprovedTotal decimal.Decimal
}

// Stats summarises the tenant's remittances.
func (t *TenantStore) Stats(ctx context.Context) (RemittanceStats, error) {
	stats := RemittanceStats{ApprovedTotal: decimal.Zero}

	rows, err := t.query(ctx, `SELECT status, amount FROM remittances WHERE tenant_id = ?`, string(t.tenant))
	if err != nil {
		return stats, fmt.Errorf("remittance stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, s string
		if err := rows.Scan(&status, &s); err != nil {
			return stats, err
		}
		switch remittance.Status(status) {
		case remittance.StatusPending:
			stats.Pending++
		case remittance.StatusRejected:
			stats.Rejected++
		case remittance.StatusApproved:
			stats.Approved++
			amount, err := parseDecimal(s)
			if err != nil {
				return stats, err
			}
			stats.ApprovedTotal = stats.ApprovedTotal.Add(amount)
		}
	}
	return stats, rows.Err()
}

func scanRemittance(sc scanner) (remittance.Remittance, error) {
	var r remittance.Remittance
	var tenant, amount, paidAt, status, createdAt, updatedAt string
	var reviewedAt sql.NullString
	err := sc.Scan(&r.ID, &tenant, &r.DriverID, &r.VehicleID, &amount, &paidAt, &status,
		&r.Reference, &r.Notes, &r.ReviewedBy, &reviewedAt, &r.Revision, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.TenantID = remittance.TenantID(tenant)
	r.Status = remittance.Status(status)

	if r.Amount, err = parseDecimal(amount); err != nil {
		return r, err
	}
	if r.PaidAt, err = parseTime(paidAt); err != nil {
		return r, err
	}
	if r.ReviewedAt, err = parseNullTime(reviewedAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	return r, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// AppendLedger writes entries atomically.
// Fails with remittance.ErrDuplicateIdempotencyKey if any key exists.
func (t *TenantStore) AppendLedger(ctx context.Context, entries []remittance.LedgerEntry) error {
	return t.WithTx(ctx, func(tx *TenantStore) error {
		for _, e := range entries {
			var n int
			if err := tx.queryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?`, e.IdempotencyKey).Scan(&n); err != nil {
				return fmt.Errorf("check idempotency key: %w", err)
			}
			if n > 0 {
				return fmt.Errorf("%w: %s", remittance.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
			}

			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			_, err := tx.exec(ctx, `
				INSERT INTO ledger_entries (id, tenant_id, driver_id, remittance_id, kind, delta,
					effective_at, reason, idempotency_key, created_by, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, string(tx.tenant), e.DriverID, e.RemittanceID, string(e.Kind), e.Delta.String(),
				formatTime(e.EffectiveAt), e.Reason, e.IdempotencyKey, e.CreatedBy, formatTime(createdAt))
			if err != nil {
				return fmt.Errorf("append ledger entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// LedgerEntries returns a driver's entries ordered by EffectiveAt.
func (t *TenantStore) LedgerEntries(ctx context.Context, driverID string) ([]remittance.LedgerEntry, error) {
	rows, err := t.query(ctx, `
		SELECT id, tenant_id, driver_id, remittance_id, kind, delta, effective_at, reason,
			idempotency_key, created_by, created_at
		FROM ledger_entries
		WHERE tenant_id = ? AND driver_id = ?
		ORDER BY effective_at, created_at, id`,
		string(t.tenant), driverID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []remittance.LedgerEntry
	for rows.Next() {
		var e remittance.LedgerEntry
		var tenant, kind, delta, effectiveAt, createdAt string
		if err := rows.Scan(&e.ID, &tenant, &e.DriverID, &e.RemittanceID, &kind, &delta,
			&effectiveAt, &e.Reason, &e.IdempotencyKey, &e.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		e.TenantID = remittance.TenantID(tenant)
		e.Kind = remittance.EntryKind(kind)
		if e.Delta, err = parseDecimal(delta); err != nil {
			return nil, err
		}
		if e.EffectiveAt, err = parseTime(effectiveAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// NOTIFICATION SOURCE
// =============================================================================

// Store implements notification.Source by delegating to the tenant view.

func (s *Store) ListActiveAssignments(ctx context.Context, tenantID remittance.TenantID) ([]notification.ActiveAssignment, error) {
	return s.Tenant(tenantID).ListActiveAssignments(ctx)
}

func (s *Store) SumApprovedRemittances(ctx context.Context, tenantID remittance.TenantID, driverID, vehicleID string, start, end time.Time) (decimal.Decimal, error) {
	return s.Tenant(tenantID).SumApprovedRemittances(ctx, driverID, vehicleID, start, end)
}

func (s *Store) ListDriversWithExpiringLicense(ctx context.Context, tenantID remittance.TenantID, withinDays int, now time.Time) ([]notification.LicenseHolder, error) {
	return s.Tenant(tenantID).ListDriversWithExpiringLicense(ctx, withinDays, now)
}

var _ notification.Source = (*Store)(nil)
var _ remittance.ReviewTx = (*TenantStore)(nil)
