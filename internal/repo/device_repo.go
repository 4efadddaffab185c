package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/areuok/server/internal/model"
	"github.com/google/uuid"
)

// DeviceRepo defines the interface for device repository operations
type DeviceRepo interface {
	Create(ctx context.Context, deviceName string, imei *string, mode model.DeviceMode) (model.Device, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Device, error)
	GetByIMEI(ctx context.Context, imei string) (model.Device, error)
	NameTaken(ctx context.Context, deviceName string, excludeID uuid.UUID) (bool, error)
	UpdateName(ctx context.Context, id uuid.UUID, deviceName string) (model.Device, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, limit int) ([]model.Device, error)
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

const deviceColumns = `device_id, device_name, imei, mode, created_at, last_seen_at, last_name_updated_at`

func scanDevice(row *sql.Row) (model.Device, error) {
	var device model.Device
	var idStr string
	var mode string

	err := row.Scan(
		&idStr,
		&device.DeviceName,
		&device.IMEI,
		&mode,
		&device.CreatedAt,
		&device.LastSeenAt,
		&device.LastNameUpdatedAt,
	)
	if err != nil {
		return model.Device{}, err
	}

	device.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to parse device ID: %w", err)
	}
	device.Mode = model.DeviceMode(mode)

	return device, nil
}

// Create registers a new device
func (r *deviceRepo) Create(ctx context.Context, deviceName string, imei *string, mode model.DeviceMode) (model.Device, error) {
	query := `
		INSERT INTO devices (device_name, imei, mode)
		VALUES ($1, $2, $3)
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceName, imei, string(mode)))
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to create device: %w", err)
	}

	return device, nil
}

// GetByID retrieves a device by ID
func (r *deviceRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE device_id = $1
	`
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Device{}, ErrNotFound
		}
		return model.Device{}, fmt.Errorf("failed to query device: %w", err)
	}
	return device, nil
}

// GetByIMEI retrieves a device by its IMEI
func (r *deviceRepo) GetByIMEI(ctx context.Context, imei string) (model.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE imei = $1
	`
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, imei))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Device{}, ErrNotFound
		}
		return model.Device{}, fmt.Errorf("failed to query device by imei: %w", err)
	}
	return device, nil
}

// NameTaken reports whether another device already uses the given name.
// Pass uuid.Nil as excludeID to consider all devices.
func (r *deviceRepo) NameTaken(ctx context.Context, deviceName string, excludeID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM devices
			WHERE device_name = $1 AND device_id != $2
		)
	`
	var taken bool
	if err := r.db.QueryRowContext(ctx, query, deviceName, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check device name: %w", err)
	}
	return taken, nil
}

// UpdateName sets a new device name and records when it changed
func (r *deviceRepo) UpdateName(ctx context.Context, id uuid.UUID, deviceName string) (model.Device, error) {
	query := `
		UPDATE devices
		SET device_name = $1,
		    last_name_updated_at = NOW()
		WHERE device_id = $2
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceName, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Device{}, ErrNotFound
		}
		return model.Device{}, fmt.Errorf("failed to update device name: %w", err)
	}
	return device, nil
}

// TouchLastSeen updates the device's last_seen_at to now
func (r *deviceRepo) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE devices
		SET last_seen_at = NOW()
		WHERE device_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to touch last_seen_at: %w", err)
	}
	return nil
}

// Search finds devices whose name contains the query, case-insensitively
func (r *deviceRepo) Search(ctx context.Context, query string, limit int) ([]model.Device, error) {
	stmt := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE device_name ILIKE $1
		ORDER BY device_name
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, stmt, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search devices: %w", err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		var device model.Device
		var idStr string
		var mode string
		if err := rows.Scan(
			&idStr,
			&device.DeviceName,
			&device.IMEI,
			&mode,
			&device.CreatedAt,
			&device.LastSeenAt,
			&device.LastNameUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		device.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse device ID: %w", err)
		}
		device.Mode = model.DeviceMode(mode)
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device rows: %w", err)
	}

	return devices, nil
}
