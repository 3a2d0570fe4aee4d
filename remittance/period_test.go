package remittance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodFor_Daily(t *testing.T) {
	// GIVEN: a daily frequency and a reference in the middle of 2024-03-15
	ref := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	// WHEN: computing the period
	p := PeriodFor(FreqDaily, ref)

	// THEN: it spans the whole day to the last millisecond
	assert.Equal(t, date(2024, 3, 15), p.Start)
	assert.Equal(t, time.Date(2024, 3, 15, 23, 59, 59, 999_000_000, time.UTC), p.End)
}

func TestPeriodFor_Weekly_Sunday(t *testing.T) {
	// GIVEN: Sunday 2024-03-17
	p := PeriodFor(FreqWeekly, date(2024, 3, 17))

	// THEN: the week started Monday 2024-03-11 and ends that Sunday
	assert.Equal(t, date(2024, 3, 11), p.Start)
	assert.Equal(t, time.Monday, p.Start.Weekday())
	assert.Equal(t, time.Date(2024, 3, 17, 23, 59, 59, 999_000_000, time.UTC), p.End)
}

func TestPeriodFor_Weekly_Monday(t *testing.T) {
	p := PeriodFor(FreqWeekly, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, date(2024, 3, 11), p.Start)
}

func TestPeriodFor_Monthly(t *testing.T) {
	tests := []struct {
		name      string
		ref       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"leap february", date(2024, 2, 10), date(2024, 2, 1), time.Date(2024, 2, 29, 23, 59, 59, 999_000_000, time.UTC)},
		{"december", date(2024, 12, 31), date(2024, 12, 1), time.Date(2024, 12, 31, 23, 59, 59, 999_000_000, time.UTC)},
		{"thirty days", date(2024, 4, 1), date(2024, 4, 1), time.Date(2024, 4, 30, 23, 59, 59, 999_000_000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PeriodFor(FreqMonthly, tt.ref)
			assert.Equal(t, tt.wantStart, p.Start)
			assert.Equal(t, tt.wantEnd, p.End)
		})
	}
}

func TestPeriodFor_ContainsReference_AllYear(t *testing.T) {
	// Every hour of a leap year, for every frequency, lies in its own period
	// and weekly periods always run Monday to Sunday.
	start := date(2024, 1, 1)
	for ref := start; ref.Year() == 2024; ref = ref.Add(7 * time.Hour) {
		for _, f := range []Frequency{FreqDaily, FreqWeekly, FreqMonthly} {
			p := PeriodFor(f, ref)
			if !p.Contains(ref) {
				t.Fatalf("%s period %s does not contain %s", f, p, ref)
			}
			if f == FreqWeekly {
				assert.Equal(t, time.Monday, p.Start.Weekday())
				assert.Equal(t, time.Sunday, p.End.Weekday())
			}
		}
	}
}

func TestPeriodFor_UsesReferenceLocation(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	// 23:30 UTC on Sunday is already Monday in Lagos
	ref := time.Date(2024, 3, 17, 23, 30, 0, 0, time.UTC).In(lagos)

	p := PeriodFor(FreqWeekly, ref)
	assert.Equal(t, time.Date(2024, 3, 18, 0, 0, 0, 0, lagos), p.Start)
}

func TestPeriodForString_UnknownFallsBackToDaily(t *testing.T) {
	ref := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	p, ok := PeriodForString("fortnightly", ref)
	assert.False(t, ok)
	assert.Equal(t, PeriodFor(FreqDaily, ref), p)

	p, ok = PeriodForString(" weekly ", ref)
	assert.True(t, ok)
	assert.Equal(t, date(2024, 3, 11), p.Start)
}

func TestParseFrequency(t *testing.T) {
	for in, want := range map[string]Frequency{"daily": FreqDaily, "Weekly": FreqWeekly, "MONTHLY": FreqMonthly} {
		got, ok := ParseFrequency(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseFrequency("")
	assert.False(t, ok)
}

func TestIsOverdue_Boundary(t *testing.T) {
	// GIVEN: today's daily period
	p := PeriodFor(FreqDaily, date(2024, 3, 15))

	// THEN: not overdue up to and including the last millisecond
	assert.False(t, IsOverdue(p, p.End))
	assert.True(t, IsOverdue(p, p.End.Add(time.Nanosecond)))
}

func TestDaysBetween(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(now, time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 7, DaysBetween(now, date(2024, 3, 22)))
	assert.Equal(t, -1, DaysBetween(now, date(2024, 3, 14)))
}
