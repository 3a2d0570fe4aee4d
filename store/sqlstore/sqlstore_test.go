package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fleet-engine/remittance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	ctx = context.Background()
	now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFleet(t *testing.T, ts *TenantStore) {
	t.Helper()
	require.NoError(t, ts.SaveDriver(ctx, remittance.Driver{ID: "drv-1", FullName: "Amina Yusuf", Active: true}))
	require.NoError(t, ts.SaveVehicle(ctx, remittance.Vehicle{
		ID: "veh-1", RegistrationNumber: "KDA 123A", PaymentModel: remittance.ModelDriverRemits,
		PaymentConfig: remittance.DriverRemitsConfig{Amount: decimal.NewFromInt(100), Frequency: remittance.FreqDaily},
	}))
	require.NoError(t, ts.CreateAssignment(ctx, remittance.Assignment{
		ID: "as-1", DriverID: "drv-1", VehicleID: "veh-1", StartDate: now.AddDate(0, -1, 0), Primary: true,
	}))
}

func saveRemittance(t *testing.T, ts *TenantStore, id, amount string, status remittance.Status, paidAt time.Time) {
	t.Helper()
	require.NoError(t, ts.SaveRemittance(ctx, remittance.Remittance{
		ID: id, DriverID: "drv-1", VehicleID: "veh-1",
		Amount: decimal.RequireFromString(amount), PaidAt: paidAt, Status: status,
	}))
}

// =============================================================================
// FLEET RECORDS
// =============================================================================

func TestDrivers_SaveGetList(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")
	expiry := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ts.SaveDriver(ctx, remittance.Driver{ID: "drv-2", FullName: "Brian", LicenseExpiry: &expiry, Active: true}))
	require.NoError(t, ts.SaveDriver(ctx, remittance.Driver{ID: "drv-1", FullName: "Amina", Active: true}))

	d, err := ts.GetDriver(ctx, "drv-2")
	require.NoError(t, err)
	assert.Equal(t, remittance.TenantID("acme"), d.TenantID)
	require.NotNil(t, d.LicenseExpiry)
	assert.True(t, expiry.Equal(*d.LicenseExpiry))

	list, err := ts.ListDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Amina", list[0].FullName)

	_, err = ts.GetDriver(ctx, "missing")
	assert.True(t, remittance.IsNotFound(err))
}

func TestVehicles_PaymentConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")

	require.NoError(t, ts.SaveVehicle(ctx, remittance.Vehicle{
		ID: "veh-1", RegistrationNumber: "KDA 123A", PaymentModel: remittance.ModelHybrid,
		PaymentConfig: remittance.HybridConfig{BaseAmount: decimal.RequireFromString("250.50"), CommissionPercentage: decimal.NewFromInt(10), Frequency: remittance.FreqWeekly},
	}))

	v, err := ts.GetVehicle(ctx, "veh-1")
	require.NoError(t, err)
	h, ok := v.PaymentConfig.(remittance.HybridConfig)
	require.True(t, ok)
	assert.Equal(t, "250.5", h.BaseAmount.String())
	assert.Equal(t, remittance.FreqWeekly, h.Frequency)
}

func TestVehicles_RejectsMismatchedConfig(t *testing.T) {
	s := newTestStore(t)
	err := s.Tenant("acme").SaveVehicle(ctx, remittance.Vehicle{
		ID: "veh-1", PaymentModel: remittance.ModelOwnerPays,
		PaymentConfig: remittance.DriverRemitsConfig{Amount: decimal.NewFromInt(100), Frequency: remittance.FreqDaily},
	})
	assert.True(t, errors.Is(err, remittance.ErrInvalidPaymentConfig))
}

func TestVehicles_MalformedStoredConfigReadsAsNil(t *testing.T) {
	// GIVEN: a vehicle row whose config JSON is garbage
	s := newTestStore(t)
	_, err := s.db.Exec(`INSERT INTO vehicles (id, tenant_id, registration_number, payment_model, payment_config, created_at)
		VALUES ('veh-x', 'acme', 'KXX', 'DRIVER_REMITS', '{"amount":', ?)`, formatTime(now))
	require.NoError(t, err)

	// WHEN: reading it back
	v, err := s.Tenant("acme").GetVehicle(ctx, "veh-x")

	// THEN: the read succeeds without a config
	require.NoError(t, err)
	assert.Nil(t, v.PaymentConfig)
	assert.Nil(t, remittance.ResolveTarget(v.PaymentModel, v.PaymentConfig))
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestAssignments_PrimaryConflictAndEnd(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)

	// A second active primary for the same driver is refused
	err := ts.CreateAssignment(ctx, remittance.Assignment{ID: "as-2", DriverID: "drv-1", VehicleID: "veh-1", StartDate: now, Primary: true})
	assert.True(t, errors.Is(err, remittance.ErrPrimaryAssignmentExists))

	// Unknown vehicle is a not-found
	err = ts.CreateAssignment(ctx, remittance.Assignment{ID: "as-3", DriverID: "drv-1", VehicleID: "nope", StartDate: now})
	assert.True(t, remittance.IsNotFound(err))

	// Ending frees the primary slot
	require.NoError(t, ts.EndAssignment(ctx, "as-1", now))
	assert.True(t, remittance.IsNotFound(ts.EndAssignment(ctx, "as-1", now)))
	require.NoError(t, ts.CreateAssignment(ctx, remittance.Assignment{ID: "as-2", DriverID: "drv-1", VehicleID: "veh-1", StartDate: now, Primary: true}))

	active, err := ts.ListAssignments(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "as-2", active[0].ID)

	all, err := ts.ListAssignments(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAssignments_DuplicateDriverVehicleRejected(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)

	// A non-primary second assignment of the same pair is still a conflict
	err := ts.CreateAssignment(ctx, remittance.Assignment{ID: "as-2", DriverID: "drv-1", VehicleID: "veh-1", StartDate: now})
	assert.True(t, errors.Is(err, remittance.ErrAssignmentExists))
	assert.True(t, remittance.IsConflict(err))

	// Once the first one ends the pair can be assigned again
	require.NoError(t, ts.EndAssignment(ctx, "as-1", now))
	require.NoError(t, ts.CreateAssignment(ctx, remittance.Assignment{ID: "as-2", DriverID: "drv-1", VehicleID: "veh-1", StartDate: now}))

	got, err := s.ListActiveAssignments(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListActiveAssignments_JoinsDriverAndVehicle(t *testing.T) {
	s := newTestStore(t)
	seedFleet(t, s.Tenant("acme"))

	got, err := s.ListActiveAssignments(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "as-1", got[0].AssignmentID)
	assert.Equal(t, "Amina Yusuf", got[0].Driver.FullName)
	assert.Equal(t, "KDA 123A", got[0].Vehicle.RegistrationNumber)
	assert.Equal(t, remittance.ModelDriverRemits, got[0].Vehicle.PaymentModel)
	require.NotNil(t, got[0].Vehicle.PaymentConfig)

	other, err := s.ListActiveAssignments(ctx, "globex")
	require.NoError(t, err)
	assert.Empty(t, other)
}

// =============================================================================
// REMITTANCES
// =============================================================================

func TestSumApprovedRemittances_PeriodBounds(t *testing.T) {
	// GIVEN: remittances around today's daily period
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)
	p := remittance.PeriodFor(remittance.FreqDaily, now)

	saveRemittance(t, ts, "r-start", "10", remittance.StatusApproved, p.Start)
	saveRemittance(t, ts, "r-end", "20", remittance.StatusApproved, p.End)
	saveRemittance(t, ts, "r-before", "400", remittance.StatusApproved, p.Start.Add(-time.Millisecond))
	saveRemittance(t, ts, "r-after", "800", remittance.StatusApproved, p.End.Add(time.Millisecond))
	saveRemittance(t, ts, "r-pending", "1000", remittance.StatusPending, now)
	saveRemittance(t, ts, "r-rejected", "2000", remittance.StatusRejected, now)

	// WHEN: summing the period
	sum, err := s.SumApprovedRemittances(ctx, "acme", "drv-1", "veh-1", p.Start, p.End)

	// THEN: only APPROVED remittances inside the inclusive bounds count
	require.NoError(t, err)
	assert.Equal(t, "30", sum.String())

	other, err := s.SumApprovedRemittances(ctx, "globex", "drv-1", "veh-1", p.Start, p.End)
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestListRemittances_Filters(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)

	saveRemittance(t, ts, "r-1", "10", remittance.StatusApproved, now.AddDate(0, 0, -2))
	saveRemittance(t, ts, "r-2", "20", remittance.StatusPending, now.AddDate(0, 0, -1))
	saveRemittance(t, ts, "r-3", "30", remittance.StatusPending, now)

	all, err := ts.ListRemittances(ctx, remittance.RemittanceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r-3", all[0].ID, "newest first")

	pending, err := ts.ListRemittances(ctx, remittance.RemittanceFilter{Status: remittance.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	from := now.AddDate(0, 0, -1)
	to := now.Add(-time.Hour)
	window, err := ts.ListRemittances(ctx, remittance.RemittanceFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "r-2", window[0].ID)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)

	saveRemittance(t, ts, "r-1", "10.50", remittance.StatusApproved, now)
	saveRemittance(t, ts, "r-2", "20.25", remittance.StatusApproved, now)
	saveRemittance(t, ts, "r-3", "5", remittance.StatusPending, now)
	saveRemittance(t, ts, "r-4", "5", remittance.StatusRejected, now)

	st, err := ts.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 2, st.Approved)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, "30.75", st.ApprovedTotal.String())
}

func TestRemittances_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)
	saveRemittance(t, ts, "r-1", "10", remittance.StatusPending, now)

	_, err := s.Tenant("globex").GetRemittance(ctx, "r-1")
	assert.True(t, remittance.IsNotFound(err))

	// An upsert from another tenant does not overwrite the row
	require.NoError(t, s.Tenant("globex").SaveRemittance(ctx, remittance.Remittance{
		ID: "r-1", DriverID: "x", VehicleID: "y", Amount: decimal.NewFromInt(999), PaidAt: now, Status: remittance.StatusApproved,
	}))
	r, err := ts.GetRemittance(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, remittance.StatusPending, r.Status)
	assert.Equal(t, "10", r.Amount.String())
}

// =============================================================================
// EXPIRING LICENSES
// =============================================================================

func TestListDriversWithExpiringLicense_Window(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")

	at := func(d time.Time) *time.Time { return &d }
	drivers := []remittance.Driver{
		{ID: "today", FullName: "A", LicenseExpiry: at(now.Add(-time.Hour)), Active: true},
		{ID: "d30", FullName: "B", LicenseExpiry: at(now.AddDate(0, 0, 30)), Active: true},
		{ID: "d31", FullName: "C", LicenseExpiry: at(now.AddDate(0, 0, 31)), Active: true},
		{ID: "yesterday", FullName: "D", LicenseExpiry: at(now.AddDate(0, 0, -1)), Active: true},
		{ID: "inactive", FullName: "E", LicenseExpiry: at(now.AddDate(0, 0, 2)), Active: false},
		{ID: "none", FullName: "F", Active: true},
	}
	for _, d := range drivers {
		require.NoError(t, ts.SaveDriver(ctx, d))
	}

	got, err := s.ListDriversWithExpiringLicense(ctx, "acme", 30, now)
	require.NoError(t, err)

	var ids []string
	for _, h := range got {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"today", "d30"}, ids)
}

// =============================================================================
// LEDGER / REVIEW
// =============================================================================

func TestAppendLedger_DuplicateKeyIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ts := s.Tenant("acme")

	e := func(id, key string) remittance.LedgerEntry {
		return remittance.LedgerEntry{ID: id, DriverID: "drv-1", Kind: remittance.EntryAdjustment,
			Delta: decimal.NewFromInt(100), EffectiveAt: now, IdempotencyKey: key}
	}
	require.NoError(t, ts.AppendLedger(ctx, []remittance.LedgerEntry{e("l-1", "k-1")}))

	// The batch fails on its second entry and writes nothing
	err := ts.AppendLedger(ctx, []remittance.LedgerEntry{e("l-2", "k-2"), e("l-3", "k-1")})
	assert.True(t, errors.Is(err, remittance.ErrDuplicateIdempotencyKey))

	entries, err := ts.LedgerEntries(ctx, "drv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "100", remittance.DebtBalance(entries).String())
}

func TestReview_CommitsAndRollsBack(t *testing.T) {
	// GIVEN: a pending remittance in the SQL store
	s := newTestStore(t)
	ts := s.Tenant("acme")
	seedFleet(t, ts)

	log, _ := test.NewNullLogger()
	rv := remittance.NewReviewer(log)
	rv.Now = func() time.Time { return now }
	r, err := rv.NewRemittance("acme", "drv-1", "veh-1", decimal.NewFromInt(500), now, "REF", "")
	require.NoError(t, err)
	require.NoError(t, ts.SaveRemittance(ctx, r))

	// WHEN: approving
	res, err := rv.Review(ctx, ts.ReviewStore(), r.ID, remittance.StatusApproved, "ops-1", "")
	require.NoError(t, err)

	// THEN: status and PAYMENT are both persisted
	assert.Equal(t, remittance.StatusApproved, res.Remittance.Status)
	stored, err := ts.GetRemittance(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, remittance.StatusApproved, stored.Status)
	assert.Equal(t, 1, stored.Revision)

	entries, err := ts.LedgerEntries(ctx, "drv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "-500", entries[0].Delta.String())

	// AND: a review whose ledger write collides leaves the row unchanged
	require.NoError(t, ts.AppendLedger(ctx, []remittance.LedgerEntry{{
		ID: "blocker", DriverID: "drv-1", Kind: remittance.EntryAdjustment, Delta: decimal.NewFromInt(1),
		EffectiveAt: now, IdempotencyKey: r.ID + "-REVERSAL-2",
	}}))
	_, err = rv.Review(ctx, ts.ReviewStore(), r.ID, remittance.StatusRejected, "ops-1", "")
	assert.True(t, errors.Is(err, remittance.ErrDuplicateIdempotencyKey))

	stored, err = ts.GetRemittance(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, remittance.StatusApproved, stored.Status)
	assert.Equal(t, 1, stored.Revision)
}

// =============================================================================
// DIALECTS
// =============================================================================

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = ?`

	assert.Equal(t, q, (&Store{dialect: DialectSQLite}).rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, (&Store{dialect: DialectPostgres}).rebind(q))
}

func TestNew_UnsupportedDialect(t *testing.T) {
	_, err := New("oracle", "")
	assert.Error(t, err)
}

func TestFormatTime_SortsLexically(t *testing.T) {
	a := formatTime(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	b := formatTime(time.Date(2024, 3, 15, 10, 0, 0, 1, time.UTC))
	c := formatTime(time.Date(2024, 3, 15, 11, 0, 0, 0, time.FixedZone("EAT", 3*3600)))

	assert.Less(t, a, b)
	assert.Less(t, c, a, "zoned times are normalised to UTC")
}
