package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device with its features and params.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a device with its features and params in one transaction.
	// Returns ErrDeviceExists on an ID, slug or external ID collision.
	Create(ctx context.Context, device *Device) error

	// Delete removes a device by ID. Features, params and history cascade.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// SetParam inserts or replaces a device param.
	SetParam(ctx context.Context, deviceID, name, value string) error

	// UpdateFeatureValue stores the last accepted value of a feature.
	// Returns ErrFeatureNotFound if no feature has that external ID.
	UpdateFeatureValue(ctx context.Context, featureExternalID string, value float64, changedAt time.Time) error

	// UpdateHealth updates the health status and last seen timestamp.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
//
// Parameters:
//   - db: Open, migrated SQLite connection
//
// Returns:
//   - *SQLiteRepository: Repository using db
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, slug, external_id, protocol,
	health_status, health_last_seen, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}

	if err := r.loadChildren(ctx, []*Device{d}); err != nil {
		return nil, err
	}
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if err := r.loadChildren(ctx, devices); err != nil {
		return nil, err
	}

	result := make([]Device, len(devices))
	for i, d := range devices {
		result[i] = *d
	}
	return result, nil
}

// loadChildren attaches features and params to the given devices.
func (r *SQLiteRepository) loadChildren(ctx context.Context, devices []*Device) error {
	if len(devices) == 0 {
		return nil
	}
	byID := make(map[string]*Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	frows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, name, external_id, category, type, last_value, last_value_changed
		FROM features ORDER BY device_id, type`)
	if err != nil {
		return fmt.Errorf("querying features: %w", err)
	}
	defer frows.Close()

	for frows.Next() {
		var f Feature
		var category, typ string
		var lastValue sql.NullFloat64
		var lastChanged sql.NullString
		if err := frows.Scan(&f.ID, &f.DeviceID, &f.Name, &f.ExternalID,
			&category, &typ, &lastValue, &lastChanged); err != nil {
			return fmt.Errorf("scanning feature: %w", err)
		}
		d, ok := byID[f.DeviceID]
		if !ok {
			continue
		}
		f.Category = FeatureCategory(category)
		f.Type = FeatureType(typ)
		if lastValue.Valid {
			v := lastValue.Float64
			f.LastValue = &v
		}
		f.LastValueChanged = parseNullableTime(lastChanged)
		d.Features = append(d.Features, f)
	}
	if err := frows.Err(); err != nil {
		return fmt.Errorf("iterating features: %w", err)
	}

	prows, err := r.db.QueryContext(ctx,
		"SELECT device_id, name, value FROM device_params ORDER BY device_id, name")
	if err != nil {
		return fmt.Errorf("querying params: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var deviceID string
		var p Param
		if err := prows.Scan(&deviceID, &p.Name, &p.Value); err != nil {
			return fmt.Errorf("scanning param: %w", err)
		}
		if d, ok := byID[deviceID]; ok {
			d.Params = append(d.Params, p)
		}
	}
	if err := prows.Err(); err != nil {
		return fmt.Errorf("iterating params: %w", err)
	}

	return nil
}

// Create inserts a new device with its features and params.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.Name,
		device.Slug,
		device.ExternalID,
		string(device.Protocol),
		string(device.HealthStatus),
		nullableTime(device.HealthLastSeen),
		device.CreatedAt.UTC().Format(time.RFC3339),
		device.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	for i := range device.Features {
		f := &device.Features[i]
		var lastValue sql.NullFloat64
		if f.LastValue != nil {
			lastValue = sql.NullFloat64{Float64: *f.LastValue, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO features (id, device_id, name, external_id, category, type, last_value, last_value_changed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, device.ID, f.Name, f.ExternalID, string(f.Category), string(f.Type),
			lastValue, nullableTime(f.LastValueChanged),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrDeviceExists
			}
			return fmt.Errorf("inserting feature %s: %w", f.ExternalID, err)
		}
	}

	for _, p := range device.Params {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO device_params (device_id, name, value) VALUES (?, ?, ?)",
			device.ID, p.Name, p.Value,
		); err != nil {
			return fmt.Errorf("inserting param %s: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device: %w", err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result, ErrDeviceNotFound)
}

// SetParam inserts or replaces a device param.
func (r *SQLiteRepository) SetParam(ctx context.Context, deviceID, name, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_params (device_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT (device_id, name) DO UPDATE SET value = excluded.value`,
		deviceID, name, value,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("setting param: %w", err)
	}
	return nil
}

// UpdateFeatureValue stores the last accepted value of a feature.
func (r *SQLiteRepository) UpdateFeatureValue(ctx context.Context, featureExternalID string, value float64, changedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE features SET last_value = ?, last_value_changed = ?
		WHERE external_id = ?`,
		value,
		changedAt.UTC().Format(time.RFC3339Nano),
		featureExternalID,
	)
	if err != nil {
		return fmt.Errorf("updating feature value: %w", err)
	}
	return requireRow(result, ErrFeatureNotFound)
}

// UpdateHealth updates the health status and last seen timestamp.
// A zero lastSeen keeps the stored timestamp.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	var seen sql.NullString
	if !lastSeen.IsZero() {
		seen = nullableTime(&lastSeen)
	}
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET health_status = ?, health_last_seen = COALESCE(?, health_last_seen), updated_at = ?
		WHERE id = ?`,
		string(status),
		seen,
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device health: %w", err)
	}
	return requireRow(result, ErrDeviceNotFound)
}

// requireRow returns notFound when the statement touched no rows.
func requireRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans the devices columns (without children) into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var protocol, healthStatus, createdAt, updatedAt string
	var healthLastSeen sql.NullString

	if err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Slug,
		&d.ExternalID,
		&protocol,
		&healthStatus,
		&healthLastSeen,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	d.Protocol = Protocol(protocol)
	d.HealthStatus = HealthStatus(healthStatus)
	d.HealthLastSeen = parseNullableTime(healthLastSeen)

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// parseNullableTime parses an optional RFC3339 column.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique or primary key violation.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
