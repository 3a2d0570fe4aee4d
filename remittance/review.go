package remittance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REVIEWER - Approve / reject lifecycle of a remittance
// =============================================================================

// Transitions:
//
//	PENDING  -> APPROVED   PAYMENT  -amount
//	PENDING  -> REJECTED   (no entry)
//	APPROVED -> REJECTED   REVERSAL +amount
//	REJECTED -> APPROVED   PAYMENT  -amount
//
// Reviewing into the current status, or into PENDING, is an invalid transition.
// Ledger entries and the status change commit in the same transaction.
type Reviewer struct {
	Now   func() time.Time
	NewID func() string
	Log   logrus.FieldLogger
}

// NewReviewer creates a reviewer using the wall clock and random UUIDs.
func NewReviewer(log logrus.FieldLogger) *Reviewer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reviewer{
		Now:   time.Now,
		NewID: uuid.NewString,
		Log:   log,
	}
}

// ReviewResult is the remittance after review and the entries it produced.
type ReviewResult struct {
	Remittance Remittance
	Previous   Status
	Entries    []LedgerEntry
}

// Review moves remittance id to status to.
func (rv *Reviewer) Review(ctx context.Context, s ReviewStore, id string, to Status, reviewer, note string) (ReviewResult, error) {
	var result ReviewResult

	err := s.WithTx(ctx, func(tx ReviewTx) error {
		r, err := tx.GetRemittance(ctx, id)
		if err != nil {
			return err
		}
		if (to != StatusApproved && to != StatusRejected) || r.Status == to {
			return &TransitionError{RemittanceID: id, From: r.Status, To: to}
		}

		now := rv.Now()
		revision := r.Revision + 1
		entries := rv.entriesFor(*r, to, revision, reviewer, note, now)

		if len(entries) > 0 {
			if err := tx.AppendLedger(ctx, entries); err != nil {
				return fmt.Errorf("append ledger for remittance %s: %w", id, err)
			}
		}

		result.Previous = r.Status
		r.Status = to
		r.ReviewedBy = reviewer
		r.ReviewedAt = &now
		r.Revision = revision
		r.UpdatedAt = now
		if err := tx.SaveRemittance(ctx, *r); err != nil {
			return fmt.Errorf("save remittance %s: %w", id, err)
		}

		result.Remittance = *r
		result.Entries = entries
		return nil
	})
	if err != nil {
		return ReviewResult{}, err
	}

	rv.Log.WithFields(logrus.Fields{
		"remittance_id": id,
		"driver_id":     result.Remittance.DriverID,
		"from":          result.Previous,
		"to":            to,
		"reviewer":      reviewer,
		"entries":       len(result.Entries),
	}).Info("remittance reviewed")

	return result, nil
}

func (rv *Reviewer) entriesFor(r Remittance, to Status, revision int, reviewer, note string, now time.Time) []LedgerEntry {
	var entries []LedgerEntry

	if r.Status == StatusApproved {
		entries = append(entries, rv.entry(r, EntryReversal, r.Amount, revision, reviewer, reasonFor("Reversed", note), now))
	}
	if to == StatusApproved {
		entries = append(entries, rv.entry(r, EntryPayment, r.Amount.Neg(), revision, reviewer, reasonFor("Approved", note), now))
	}
	return entries
}

func (rv *Reviewer) entry(r Remittance, kind EntryKind, delta decimal.Decimal, revision int, reviewer, reason string, now time.Time) LedgerEntry {
	return LedgerEntry{
		ID:             rv.NewID(),
		TenantID:       r.TenantID,
		DriverID:       r.DriverID,
		RemittanceID:   r.ID,
		Kind:           kind,
		Delta:          delta,
		EffectiveAt:    r.PaidAt,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("%s-%s-%d", r.ID, kind, revision),
		CreatedBy:      reviewer,
		CreatedAt:      now,
	}
}

func reasonFor(action, note string) string {
	if note == "" {
		return action
	}
	return action + ": " + note
}

// NewAdjustment builds a manual ledger entry. Positive delta increases the debt.
func (rv *Reviewer) NewAdjustment(tenant TenantID, driverID string, delta decimal.Decimal, reason, actor string) LedgerEntry {
	now := rv.Now()
	id := rv.NewID()
	return LedgerEntry{
		ID:             id,
		TenantID:       tenant,
		DriverID:       driverID,
		Kind:           EntryAdjustment,
		Delta:          delta,
		EffectiveAt:    now,
		Reason:         reason,
		IdempotencyKey: "adjustment-" + id,
		CreatedBy:      actor,
		CreatedAt:      now,
	}
}

// NewRemittance validates input and builds a PENDING remittance.
func (rv *Reviewer) NewRemittance(tenant TenantID, driverID, vehicleID string, amount decimal.Decimal, paidAt time.Time, reference, notes string) (Remittance, error) {
	if !amount.IsPositive() {
		return Remittance{}, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if driverID == "" || vehicleID == "" {
		return Remittance{}, fmt.Errorf("%w: driver and vehicle are required", ErrInvalidInput)
	}
	now := rv.Now()
	if paidAt.IsZero() {
		paidAt = now
	}
	return Remittance{
		ID:        rv.NewID(),
		TenantID:  tenant,
		DriverID:  driverID,
		VehicleID: vehicleID,
		Amount:    amount,
		PaidAt:    paidAt,
		Status:    StatusPending,
		Reference: reference,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
