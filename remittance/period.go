package remittance

import (
	"strings"
	"time"
)

// =============================================================================
// PERIOD - The window a remittance target is evaluated in
// =============================================================================

// Period is an inclusive time range [Start, End].
// It is never persisted: it is recomputed from a frequency and a reference time.
//
// Examples (reference Friday 2024-03-15):
//   - Daily:   2024-03-15 00:00:00.000 - 2024-03-15 23:59:59.999
//   - Weekly:  2024-03-11 00:00:00.000 - 2024-03-17 23:59:59.999 (Monday - Sunday)
//   - Monthly: 2024-03-01 00:00:00.000 - 2024-03-31 23:59:59.999
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within the period [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + "]"
}

// Frequency is how often a driver is expected to remit.
type Frequency string

const (
	FreqDaily   Frequency = "DAILY"
	FreqWeekly  Frequency = "WEEKLY"
	FreqMonthly Frequency = "MONTHLY"
)

// ParseFrequency parses a frequency case-insensitively.
// The boolean is false for anything other than DAILY, WEEKLY or MONTHLY.
func ParseFrequency(s string) (Frequency, bool) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return f, true
	default:
		return f, false
	}
}

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	_, ok := ParseFrequency(string(f))
	return ok
}

// =============================================================================
// PERIOD CALCULATOR
// =============================================================================

// endOfPeriod is the last representable instant before the next period starts.
const endOfPeriod = time.Millisecond

// PeriodFor returns the period of the given frequency that contains ref.
// Boundaries are computed in ref's location.
// Unknown frequencies get daily semantics.
func PeriodFor(freq Frequency, ref time.Time) Period {
	f, _ := ParseFrequency(string(freq))
	day := startOfDay(ref)

	switch f {
	case FreqWeekly:
		// ISO week: Monday is day 0, Sunday walks back 6 days
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 7).Add(-endOfPeriod)}

	case FreqMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return Period{Start: start, End: start.AddDate(0, 1, 0).Add(-endOfPeriod)}

	default:
		return Period{Start: day, End: day.AddDate(0, 0, 1).Add(-endOfPeriod)}
	}
}

// PeriodForString parses s and returns the enclosing period.
// The boolean is false when s was not a known frequency and the daily
// fallback was applied; callers are expected to surface that.
func PeriodForString(s string, ref time.Time) (Period, bool) {
	f, ok := ParseFrequency(s)
	return PeriodFor(f, ref), ok
}

// IsOverdue reports whether now is past the end of the period.
func IsOverdue(p Period, now time.Time) bool {
	return now.After(p.End)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time { return startOfDay(t) }

// DaysBetween counts calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	from := startOfDay(a)
	to := startOfDay(b.In(a.Location()))
	// Dates in UTC so DST shifts do not produce 23h or 25h days
	fu := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	tu := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(tu.Sub(fu).Hours() / 24)
}
