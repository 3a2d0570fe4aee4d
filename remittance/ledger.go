package remittance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DEBT LEDGER - Append-only record of a driver's debt
// =============================================================================

// Every change to what a driver owes is an entry. Positive deltas increase
// the debt, negative deltas decrease it. Entries are never updated or deleted:
// a mistaken approval is undone by a REVERSAL entry with the opposite sign.
//
// EXAMPLE FLOW:
//  1. Operator charges a missed week:     ADJUSTMENT +700
//  2. Remittance of 500 approved:         PAYMENT    -500
//  3. Approval turns out wrong, rejected: REVERSAL   +500
//
//  Debt: [+700, -500, +500] = 700

type EntryKind string

const (
	EntryPayment    EntryKind = "PAYMENT"    // Approved remittance
	EntryReversal   EntryKind = "REVERSAL"   // Undo of a prior PAYMENT
	EntryAdjustment EntryKind = "ADJUSTMENT" // Manual operator correction
)

type LedgerEntry struct {
	ID             string
	TenantID       TenantID
	DriverID       string
	RemittanceID   string
	Kind           EntryKind
	Delta          decimal.Decimal
	EffectiveAt    time.Time
	Reason         string
	IdempotencyKey string
	CreatedBy      string
	CreatedAt      time.Time
}

// DebtBalance sums the deltas of entries.
func DebtBalance(entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Delta)
	}
	return total
}

// =============================================================================
// STORE INTERFACES - Implemented by store/sqlstore and store/memory
// =============================================================================

// All stores are tenant-scoped: the tenant is bound when the store is obtained,
// so none of these methods take a tenant argument.

// LedgerStore persists ledger entries.
type LedgerStore interface {
	// AppendLedger writes entries atomically.
	// Fails with ErrDuplicateIdempotencyKey if any key exists.
	AppendLedger(ctx context.Context, entries []LedgerEntry) error

	// LedgerEntries returns a driver's entries ordered by EffectiveAt.
	LedgerEntries(ctx context.Context, driverID string) ([]LedgerEntry, error)
}

// RemittanceStore persists remittances.
type RemittanceStore interface {
	// GetRemittance returns ErrNotFound when the id is unknown in the tenant.
	GetRemittance(ctx context.Context, id string) (*Remittance, error)
	SaveRemittance(ctx context.Context, r Remittance) error
}

// ReviewTx is the view of the store available inside a review transaction.
type ReviewTx interface {
	RemittanceStore
	LedgerStore
}

// ReviewStore runs fn in a transaction: rolled back if fn returns an error,
// committed otherwise.
type ReviewStore interface {
	WithTx(ctx context.Context, fn func(tx ReviewTx) error) error
}
