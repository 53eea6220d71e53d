package driver

import (
	"errors"
	"strings"
	"time"

	"ridepool/internal/domain/geo"
)

// Driver is the domain entity corresponding to the `drivers` table.
// Location is nullable: a driver with no known location is never offered
// a pool.
type Driver struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Name         string
	VehicleType  string
	LicensePlate string
	MaxCapacity  int
	IsAvailable  bool
	Location     *geo.Point
	Rating       float64
}

var (
	ErrNameRequired       = errors.New("driver name is required")
	ErrVehicleRequired    = errors.New("vehicle type is required")
	ErrInvalidMaxCapacity = errors.New("max capacity must be at least 1")
)

// New constructs a driver with a default capacity of 4 and rating 5.0.
func New(name, vehicleType, licensePlate string, maxCapacity int) (*Driver, error) {
	if name = strings.TrimSpace(name); name == "" {
		return nil, ErrNameRequired
	}
	if vehicleType = strings.TrimSpace(vehicleType); vehicleType == "" {
		return nil, ErrVehicleRequired
	}
	if maxCapacity == 0 {
		maxCapacity = 4
	}
	if maxCapacity < 1 {
		return nil, ErrInvalidMaxCapacity
	}

	now := time.Now().UTC()
	return &Driver{
		CreatedAt:    now,
		UpdatedAt:    now,
		Name:         name,
		VehicleType:  vehicleType,
		LicensePlate: strings.TrimSpace(licensePlate),
		MaxCapacity:  maxCapacity,
		Rating:       5.0,
	}, nil
}

// HasLocation reports whether the driver's current position is known.
func (d *Driver) HasLocation() bool {
	return d.Location != nil
}
