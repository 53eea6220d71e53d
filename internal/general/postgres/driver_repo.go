package postgres

import (
	"context"
	"fmt"

	"ridepool/internal/domain/driver"
	"ridepool/internal/domain/geo"
	"ridepool/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DriverRepo persists drivers using pgx and plain SQL.
type DriverRepo struct{}

// NewDriverRepo constructs a new DriverRepo.
func NewDriverRepo() ports.DriverRepository {
	return &DriverRepo{}
}

// Create inserts a new driver row.
func (repo *DriverRepo) Create(ctx context.Context, d *driver.Driver) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var lat, lng *float64
	if d.Location != nil {
		lat, lng = &d.Location.Latitude, &d.Location.Longitude
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO drivers (
			name, vehicle_type, license_plate, max_capacity,
			is_available, current_lat, current_lng, rating
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		d.Name,
		d.VehicleType,
		d.LicensePlate,
		d.MaxCapacity,
		d.IsAvailable,
		lat,
		lng,
		d.Rating,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}

	return nil
}

// GetByID fetches a driver by primary key (uuid).
func (repo *DriverRepo) GetByID(ctx context.Context, driverID string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, created_at, updated_at, name, vehicle_type, license_plate,
		       max_capacity, is_available, current_lat, current_lng, rating
		FROM drivers
		WHERE id = $1
	`, driverID)

	d, err := scanDriver(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	return d, nil
}

// FindAvailableWithCapacity returns available drivers whose vehicle can seat
// at least minCapacity riders.
func (repo *DriverRepo) FindAvailableWithCapacity(ctx context.Context, minCapacity int) ([]*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, created_at, updated_at, name, vehicle_type, license_plate,
		       max_capacity, is_available, current_lat, current_lng, rating
		FROM drivers
		WHERE is_available = true AND max_capacity >= $1
	`, minCapacity)
	if err != nil {
		return nil, fmt.Errorf("query available drivers: %w", err)
	}
	defer rows.Close()

	var drivers []*driver.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return drivers, nil
}

// ClaimAvailability flips is_available true -> false. A false result means
// the driver was already claimed or does not exist.
func (repo *DriverRepo) ClaimAvailability(ctx context.Context, driverID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET is_available = false,
		    updated_at = now()
		WHERE id = $1 AND is_available = true
	`, driverID)
	if err != nil {
		return false, fmt.Errorf("claim driver availability: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// UpdateLocation stores the driver's latest known position on the row.
func (repo *DriverRepo) UpdateLocation(ctx context.Context, driverID string, location geo.Point) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET current_lat = $1,
		    current_lng = $2,
		    updated_at = now()
		WHERE id = $3
	`, location.Latitude, location.Longitude, driverID)
	if err != nil {
		return fmt.Errorf("update driver location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// --- helpers ---

func scanDriver(row rowScanner) (*driver.Driver, error) {
	var d driver.Driver
	var lat, lng *float64

	err := row.Scan(
		&d.ID, &d.CreatedAt, &d.UpdatedAt, &d.Name, &d.VehicleType, &d.LicensePlate,
		&d.MaxCapacity, &d.IsAvailable, &lat, &lng, &d.Rating,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Location = &geo.Point{Latitude: *lat, Longitude: *lng}
	}

	return &d, nil
}
