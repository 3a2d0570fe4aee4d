package remittance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TARGET - What a driver owes for one period
// =============================================================================

// ResolveTarget returns the fixed amount a driver must remit per period, or nil
// when the payment model has no fixed target.
//
//	OwnerPays:     always nil (settled as a percentage of revenue)
//	DriverRemits:  config amount when positive
//	Hybrid:        config base amount when positive
//
// A missing config, or one whose variant does not match model, yields nil.
func ResolveTarget(model PaymentModel, cfg PaymentConfig) *decimal.Decimal {
	if cfg == nil || cfg.Model() != model {
		return nil
	}

	var amount decimal.Decimal
	switch c := cfg.(type) {
	case OwnerPaysConfig:
		return nil
	case DriverRemitsConfig:
		amount = c.Amount
	case HybridConfig:
		amount = c.BaseAmount
	default:
		return nil
	}

	if !amount.IsPositive() {
		return nil
	}
	return &amount
}

// RemainingBalance returns max(0, target - paid), or nil when target is nil.
// Overpayment is never reported as negative; the debt ledger absorbs it.
func RemainingBalance(target *decimal.Decimal, paid decimal.Decimal) *decimal.Decimal {
	if target == nil {
		return nil
	}
	remaining := target.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &remaining
}

// TargetReached reports whether amount meets target. A nil target is never reached.
func TargetReached(amount decimal.Decimal, target *decimal.Decimal) bool {
	if target == nil {
		return false
	}
	return amount.GreaterThanOrEqual(*target)
}

// =============================================================================
// PERIOD STATUS - Target, payments and balance for one driver/vehicle period
// =============================================================================

// PeriodStatus bundles the result of evaluating one assignment for a period.
type PeriodStatus struct {
	Period    Period
	Frequency Frequency
	Target    *decimal.Decimal
	Paid      decimal.Decimal
	Remaining *decimal.Decimal
	Reached   bool
	Overdue   bool
}

// Evaluate computes the status of period for a vehicle config at now, given the
// approved amount already paid within period.
func Evaluate(period Period, freq Frequency, model PaymentModel, cfg PaymentConfig, paid decimal.Decimal, now time.Time) PeriodStatus {
	target := ResolveTarget(model, cfg)
	return PeriodStatus{
		Period:    period,
		Frequency: freq,
		Target:    target,
		Paid:      paid,
		Remaining: RemainingBalance(target, paid),
		Reached:   TargetReached(paid, target),
		Overdue:   IsOverdue(period, now),
	}
}
