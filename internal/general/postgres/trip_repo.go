package postgres

import (
	"context"
	"fmt"

	"ridepool/internal/domain/trip"
	"ridepool/internal/ports"

	"github.com/jackc/pgx/v5"
)

// TripRepo persists trips using pgx and plain SQL.
type TripRepo struct{}

// NewTripRepo constructs a new TripRepo.
func NewTripRepo() ports.TripRepository {
	return &TripRepo{}
}

// Create inserts a new trip row. The unique index on pool_id makes a second
// trip for the same pool a hard failure rather than a silent duplicate.
func (repo *TripRepo) Create(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trips (pool_id, driver_id, start_time, end_time, actual_fare)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		t.PoolID,
		t.DriverID,
		t.StartTime,
		t.EndTime,
		t.ActualFare,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}

	return nil
}

// GetByPool fetches the trip bound to a pool.
func (repo *TripRepo) GetByPool(ctx context.Context, poolID string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var t trip.Trip
	err = tx.QueryRow(ctx, `
		SELECT id, created_at, pool_id, driver_id, start_time, end_time, actual_fare
		FROM trips
		WHERE pool_id = $1
	`, poolID).Scan(&t.ID, &t.CreatedAt, &t.PoolID, &t.DriverID, &t.StartTime, &t.EndTime, &t.ActualFare)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	return &t, nil
}
