package trip

import (
	"errors"
	"time"
)

// Trip is the domain entity corresponding to the `trips` table. A trip is
// one-to-one with a pool and references exactly one driver; it is created at
// the moment a driver is confirmed.
type Trip struct {
	ID        string
	CreatedAt time.Time

	PoolID   string
	DriverID string

	StartTime  *time.Time
	EndTime    *time.Time
	ActualFare *float64
}

var (
	ErrPoolRequired   = errors.New("pool id is required")
	ErrDriverRequired = errors.New("driver id is required")
)

// New constructs a trip binding a driver to a pool.
func New(poolID, driverID string) (*Trip, error) {
	if poolID == "" {
		return nil, ErrPoolRequired
	}
	if driverID == "" {
		return nil, ErrDriverRequired
	}

	return &Trip{
		CreatedAt: time.Now().UTC(),
		PoolID:    poolID,
		DriverID:  driverID,
	}, nil
}
