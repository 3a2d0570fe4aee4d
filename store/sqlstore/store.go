/*
Package sqlstore provides the SQL-backed, tenant-scoped persistence layer.

PURPOSE:

	Stores drivers, vehicles, assignments, remittances and the driver debt
	ledger. Every query issued through a TenantStore binds tenant_id, so a
	handler holding a TenantStore cannot read or write another tenant's rows.

DIALECTS:

	sqlite3  github.com/mattn/go-sqlite3 (default, also used by tests with ":memory:")
	pgx      github.com/jackc/pgx/v5/stdlib (PostgreSQL)

	Queries are written with ? placeholders and rebound to $n for pgx.
	Timestamps are stored as fixed-width UTC text so range predicates compare
	correctly in both dialects; amounts are stored as decimal strings.

KEY TABLES:

	drivers, vehicles, assignments   fleet records
	remittances                      driver payments (PENDING/APPROVED/REJECTED)
	ledger_entries                   append-only driver debt ledger

USAGE:

	store, err := sqlstore.New("sqlite3", "./data/fleet.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	tenant := store.Tenant("acme")
	drivers, err := tenant.ListDrivers(ctx)
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/remittance"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "pgx"
)

// Store owns the connection pool. Use Tenant to obtain a scoped view.
type Store struct {
	db      *sql.DB
	dialect string
}

// New opens the database and migrates the schema.
// For sqlite3, use ":memory:" for an in-memory database.
func New(dialect, dsn string) (*Store, error) {
	switch dialect {
	case DialectSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// One connection: ":memory:" databases are per connection and
		// SQLite allows a single writer anyway.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the driver name the store was opened with.
func (s *Store) Dialect() string { return s.dialect }

// Tenant returns a view of the store bound to tenant.
func (s *Store) Tenant(tenant remittance.TenantID) *TenantStore {
	return &TenantStore{store: s, q: s.db, tenant: tenant}
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		license_number TEXT NOT NULL DEFAULT '',
		license_expiry TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drivers_tenant_license ON drivers(tenant_id, active, license_expiry)`,

	`CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		registration_number TEXT NOT NULL,
		payment_model TEXT NOT NULL,
		payment_config TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vehicles_tenant ON vehicles(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		is_primary INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_active ON assignments(tenant_id, end_date)`,

	`CREATE TABLE IF NOT EXISTS remittances (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		reviewed_by TEXT NOT NULL DEFAULT '',
		reviewed_at TEXT,
		revision INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	// Hot path: period sums per driver+vehicle
	`CREATE INDEX IF NOT EXISTS idx_remittances_period ON remittances(tenant_id, driver_id, vehicle_id, status, paid_at)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		remittance_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		delta TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_driver ON ledger_entries(tenant_id, driver_id, effective_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TENANT STORE
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TenantStore is a Store view where every statement is bound to one tenant.
// Obtained from Store.Tenant; inside WithTx, q is the transaction.
type TenantStore struct {
	store  *Store
	q      queryer
	tenant remittance.TenantID
	inTx   bool
}

// TenantID returns the tenant the view is bound to.
func (t *TenantStore) TenantID() remittance.TenantID { return t.tenant }

func (t *TenantStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.q.ExecContext(ctx, t.store.rebind(query), args...)
}

func (t *TenantStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.q.QueryContext(ctx, t.store.rebind(query), args...)
}

func (t *TenantStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.q.QueryRowContext(ctx, t.store.rebind(query), args...)
}

// WithTx runs fn with a TenantStore bound to a new transaction. Nested calls
// reuse the current transaction.
func (t *TenantStore) WithTx(ctx context.Context, fn func(tx *TenantStore) error) error {
	if t.inTx {
		return fn(t)
	}

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	scoped := &TenantStore{store: t.store, q: tx, tenant: t.tenant, inTx: true}

	if err := fn(scoped); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReviewStore adapts the tenant view to remittance.ReviewStore.
func (t *TenantStore) ReviewStore() remittance.ReviewStore {
	return reviewStore{t}
}

type reviewStore struct{ t *TenantStore }

func (r reviewStore) WithTx(ctx context.Context, fn func(tx remittance.ReviewTx) error) error {
	return r.t.WithTx(ctx, func(tx *TenantStore) error { return fn(tx) })
}

// =============================================================================
// HELPERS
// =============================================================================

// rebind turns ? placeholders into $1..$n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeLayout is fixed width so that text comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
