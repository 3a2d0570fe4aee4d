package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/fleet-engine/notification"
	"github.com/warp/fleet-engine/remittance"
)

// =============================================================================
// DRIVERS
// =============================================================================

// SaveDriver inserts or updates a driver.
func (t *TenantStore) SaveDriver(ctx context.Context, d remittance.Driver) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := t.exec(ctx, `
		INSERT INTO drivers (id, tenant_id, full_name, phone, license_number, license_expiry, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone,
			license_number = excluded.license_number,
			license_expiry = excluded.license_expiry,
			active = excluded.active
		WHERE drivers.tenant_id = excluded.tenant_id`,
		d.ID, string(t.tenant), d.FullName, d.Phone, d.LicenseNumber,
		formatNullTime(d.LicenseExpiry), boolToInt(d.Active), formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("save driver %s: %w", d.ID, err)
	}
	return nil
}

const driverColumns = `id, tenant_id, full_name, phone, license_number, license_expiry, active, created_at`

// GetDriver returns remittance.ErrNotFound when the driver is not in the tenant.
func (t *TenantStore) GetDriver(ctx context.Context, id string) (*remittance.Driver, error) {
	row := t.queryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE tenant_id = ? AND id = ?`, string(t.tenant), id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", id, remittance.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDrivers returns all drivers of the tenant ordered by name.
func (t *TenantStore) ListDrivers(ctx context.Context) ([]remittance.Driver, error) {
	rows, err := t.query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE tenant_id = ? ORDER BY full_name, id`, string(t.tenant))
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []remittance.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// ListDriversWithExpiringLicense returns active drivers whose license expires
// on or after the start of now's day and no later than withinDays days after it.
func (t *TenantStore) ListDriversWithExpiringLicense(ctx context.Context, withinDays int, now time.Time) ([]notification.LicenseHolder, error) {
	from := remittance.StartOfDay(now)
	to := from.AddDate(0, 0, withinDays+1)

	rows, err := t.query(ctx, `
		SELECT id, full_name, license_number, license_expiry
		FROM drivers
		WHERE tenant_id = ? AND active = 1
		  AND license_expiry IS NOT NULL
		  AND license_expiry >= ? AND license_expiry < ?
		ORDER BY license_expiry, id`,
		string(t.tenant), formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("list expiring licenses: %w", err)
	}
	defer rows.Close()

	var holders []notification.LicenseHolder
	for rows.Next() {
		var h notification.LicenseHolder
		var expiry string
		if err := rows.Scan(&h.ID, &h.FullName, &h.LicenseNumber, &expiry); err != nil {
			return nil, err
		}
		if h.LicenseExpiry, err = parseTime(expiry); err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDriver(sc scanner) (remittance.Driver, error) {
	var d remittance.Driver
	var tenant, createdAt string
	var expiry sql.NullString
	var active int
	if err := sc.Scan(&d.ID, &tenant, &d.FullName, &d.Phone, &d.LicenseNumber, &expiry, &active, &createdAt); err != nil {
		return d, err
	}
	d.TenantID = remittance.TenantID(tenant)
	d.Active = active == 1

	var err error
	if d.LicenseExpiry, err = parseNullTime(expiry); err != nil {
		return d, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return d, err
	}
	return d, nil
}

// =============================================================================
// VEHICLES
// =============================================================================

// SaveVehicle inserts or updates a vehicle. The payment config is validated
// against the declared model.
func (t *TenantStore) SaveVehicle(ctx context.Context, v remittance.Vehicle) error {
	if v.PaymentConfig != nil {
		if v.PaymentConfig.Model() != v.PaymentModel {
			return fmt.Errorf("%w: %s config on a %s vehicle", remittance.ErrInvalidPaymentConfig, v.PaymentConfig.Model(), v.PaymentModel)
		}
		if err := v.PaymentConfig.Validate(); err != nil {
			return err
		}
	}
	raw, err := remittance.EncodePaymentConfig(v.PaymentConfig)
	if err != nil {
		return fmt.Errorf("encode payment config: %w", err)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	_, err = t.exec(ctx, `
		INSERT INTO vehicles (id, tenant_id, registration_number, payment_model, payment_config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			registration_number = excluded.registration_number,
			payment_model = excluded.payment_model,
			payment_config = excluded.payment_config
		WHERE vehicles.tenant_id = excluded.tenant_id`,
		v.ID, string(t.tenant), v.RegistrationNumber, string(v.PaymentModel),
		sql.NullString{String: string(raw), Valid: raw != nil}, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("save vehicle %s: %w", v.ID, err)
	}
	return nil
}

const vehicleColumns = `id, tenant_id, registration_number, payment_model, payment_config, created_at`

// GetVehicle returns remittance.ErrNotFound when the vehicle is not in the tenant.
func (t *TenantStore) GetVehicle(ctx context.Context, id string) (*remittance.Vehicle, error) {
	row := t.queryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE tenant_id = ? AND id = ?`, string(t.tenant), id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vehicle %s: %w", id, remittance.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVehicles returns all vehicles of the tenant.
func (t *TenantStore) ListVehicles(ctx context.Context) ([]remittance.Vehicle, error) {
	rows, err := t.query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE tenant_id = ? ORDER BY registration_number, id`, string(t.tenant))
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []remittance.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// scanVehicle leaves PaymentConfig nil when the stored JSON does not decode:
// a malformed config means "no target", not a failed read.
func scanVehicle(sc scanner) (remittance.Vehicle, error) {
	var v remittance.Vehicle
	var tenant, model, createdAt string
	var raw sql.NullString
	if err := sc.Scan(&v.ID, &tenant, &v.RegistrationNumber, &model, &raw, &createdAt); err != nil {
		return v, err
	}
	v.TenantID = remittance.TenantID(tenant)
	v.PaymentModel = remittance.PaymentModel(model)
	if raw.Valid {
		if cfg, err := remittance.DecodePaymentConfig(v.PaymentModel, []byte(raw.String)); err == nil {
			v.PaymentConfig = cfg
		}
	}

	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return v, err
	}
	return v, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// CreateAssignment binds a driver to a vehicle. A driver may hold at most one
// active primary assignment.
func (t *TenantStore) CreateAssignment(ctx context.Context, a remittance.Assignment) error {
	return t.WithTx(ctx, func(tx *TenantStore) error {
		if _, err := tx.GetDriver(ctx, a.DriverID); err != nil {
			return err
		}
		if _, err := tx.GetVehicle(ctx, a.VehicleID); err != nil {
			return err
		}

		if a.Primary {
			var n int
			err := tx.queryRow(ctx, `
				SELECT COUNT(*) FROM assignments
				WHERE tenant_id = ? AND driver_id = ? AND is_primary = 1 AND end_date IS NULL`,
				string(tx.tenant), a.DriverID).Scan(&n)
			if err != nil {
				return fmt.Errorf("check primary assignment: %w", err)
			}
			if n > 0 {
				return fmt.Errorf("driver %s: %w", a.DriverID, remittance.ErrPrimaryAssignmentExists)
			}
		}

		var active int
		err := tx.queryRow(ctx, `
			SELECT COUNT(*) FROM assignments
			WHERE tenant_id = ? AND driver_id = ? AND vehicle_id = ? AND end_date IS NULL`,
			string(tx.tenant), a.DriverID, a.VehicleID).Scan(&active)
		if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("driver %s vehicle %s: %w", a.DriverID, a.VehicleID, remittance.ErrAssignmentExists)
		}

		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		_, err = tx.exec(ctx, `
			INSERT INTO assignments (id, tenant_id, driver_id, vehicle_id, start_date, end_date, is_primary, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, string(tx.tenant), a.DriverID, a.VehicleID, formatTime(a.StartDate),
			formatNullTime(a.EndDate), boolToInt(a.Primary), formatTime(a.CreatedAt))
		if err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		return nil
	})
}

// EndAssignment sets the end date of an active assignment.
func (t *TenantStore) EndAssignment(ctx context.Context, id string, at time.Time) error {
	res, err := t.exec(ctx, `
		UPDATE assignments SET end_date = ?
		WHERE tenant_id = ? AND id = ? AND end_date IS NULL`,
		formatTime(at), string(t.tenant), id)
	if err != nil {
		return fmt.Errorf("end assignment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("active assignment %s: %w", id, remittance.ErrNotFound)
	}
	return nil
}

// ListAssignments returns assignments of the tenant; activeOnly drops ended ones.
func (t *TenantStore) ListAssignments(ctx context.Context, activeOnly bool) ([]remittance.Assignment, error) {
	q := `SELECT id, tenant_id, driver_id, vehicle_id, start_date, end_date, is_primary, created_at
		FROM assignments WHERE tenant_id = ?`
	if activeOnly {
		q += ` AND end_date IS NULL`
	}
	q += ` ORDER BY start_date, id`

	rows, err := t.query(ctx, q, string(t.tenant))
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []remittance.Assignment
	for rows.Next() {
		var a remittance.Assignment
		var tenant, start, createdAt string
		var end sql.NullString
		var primary int
		if err := rows.Scan(&a.ID, &tenant, &a.DriverID, &a.VehicleID, &start, &end, &primary, &createdAt); err != nil {
			return nil, err
		}
		a.TenantID = remittance.TenantID(tenant)
		a.Primary = primary == 1
		if a.StartDate, err = parseTime(start); err != nil {
			return nil, err
		}
		if a.EndDate, err = parseNullTime(end); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListActiveAssignments joins active assignments with their driver and vehicle.
func (t *TenantStore) ListActiveAssignments(ctx context.Context) ([]notification.ActiveAssignment, error) {
	rows, err := t.query(ctx, `
		SELECT a.id, d.id, d.full_name, v.id, v.registration_number, v.payment_model, v.payment_config
		FROM assignments a
		JOIN drivers d ON d.id = a.driver_id AND d.tenant_id = a.tenant_id
		JOIN vehicles v ON v.id = a.vehicle_id AND v.tenant_id = a.tenant_id
		WHERE a.tenant_id = ? AND a.end_date IS NULL
		ORDER BY a.start_date, a.id`,
		string(t.tenant))
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	defer rows.Close()

	var out []notification.ActiveAssignment
	for rows.Next() {
		var as notification.ActiveAssignment
		var model string
		var raw sql.NullString
		if err := rows.Scan(&as.AssignmentID, &as.Driver.ID, &as.Driver.FullName,
			&as.Vehicle.ID, &as.Vehicle.RegistrationNumber, &model, &raw); err != nil {
			return nil, err
		}
		as.Vehicle.PaymentModel = remittance.PaymentModel(model)
		if raw.Valid {
			if cfg, err := remittance.DecodePaymentConfig(as.Vehicle.PaymentModel, []byte(raw.String)); err == nil {
				as.Vehicle.PaymentConfig = cfg
			}
		}
		out = append(out, as)
	}
	return out, rows.Err()
}
