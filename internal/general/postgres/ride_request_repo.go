package postgres

import (
	"context"
	"fmt"

	"ridepool/internal/domain/ride"
	"ridepool/internal/ports"

	"github.com/jackc/pgx/v5"
)

// RideRequestRepo persists ride requests using pgx and plain SQL.
type RideRequestRepo struct{}

// NewRideRequestRepo constructs a new RideRequestRepo.
func NewRideRequestRepo() ports.RideRequestRepository {
	return &RideRequestRepo{}
}

// Create inserts a new ride request row.
func (repo *RideRequestRepo) Create(ctx context.Context, request *ride.Request) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ride_requests (
			rider_id, pickup_lat, pickup_lng, pickup_address,
			destination_lat, destination_lng, destination_address,
			status, fare_estimate
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		request.RiderID,
		request.Pickup.Latitude,
		request.Pickup.Longitude,
		request.PickupAddress,
		request.Destination.Latitude,
		request.Destination.Longitude,
		request.DestinationAddress,
		request.Status.String(),
		request.FareEstimate,
	).Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride request: %w", err)
	}

	return nil
}

// GetByID fetches a ride request by primary key (uuid).
func (repo *RideRequestRepo) GetByID(ctx context.Context, id string) (*ride.Request, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out ride.Request
	var status string

	err = tx.QueryRow(ctx, `
		SELECT
			id, created_at, updated_at, rider_id,
			pickup_lat, pickup_lng, pickup_address,
			destination_lat, destination_lng, destination_address,
			status, fare_estimate
		FROM ride_requests
		WHERE id = $1
	`, id).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.RiderID,
		&out.Pickup.Latitude, &out.Pickup.Longitude, &out.PickupAddress,
		&out.Destination.Latitude, &out.Destination.Longitude, &out.DestinationAddress,
		&status, &out.FareEstimate,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	if out.Status, err = ride.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("ride request %s: %w", out.ID, err)
	}

	return &out, nil
}

// UpdateStatus sets the status of a single ride request.
func (repo *RideRequestRepo) UpdateStatus(ctx context.Context, id string, status ride.Status) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = $1,
		    updated_at = now()
		WHERE id = $2
	`, status.String(), id)
	if err != nil {
		return fmt.Errorf("update ride request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// UpdateStatusForPool advances every member request of a pool in one statement.
func (repo *RideRequestRepo) UpdateStatusForPool(ctx context.Context, poolID string, status ride.Status) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = $1,
		    updated_at = now()
		WHERE id IN (
			SELECT ride_request_id FROM pool_memberships WHERE pool_id = $2
		)
	`, status.String(), poolID)
	if err != nil {
		return fmt.Errorf("update member request statuses: %w", err)
	}

	return nil
}
