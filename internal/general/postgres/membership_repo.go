package postgres

import (
	"context"
	"fmt"

	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/ports"

	"github.com/jackc/pgx/v5"
)

// MembershipRepo persists pool memberships using pgx and plain SQL.
type MembershipRepo struct{}

// NewMembershipRepo constructs a new MembershipRepo.
func NewMembershipRepo() ports.MembershipRepository {
	return &MembershipRepo{}
}

// ReplaceForPool swaps the full membership set of a pool. Re-sequencing
// rewrites every member's visiting orders, so delete-and-insert keeps the
// set consistent in one transaction.
func (repo *MembershipRepo) ReplaceForPool(ctx context.Context, poolID string, members []*pool.Membership) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pool_memberships WHERE pool_id = $1`, poolID); err != nil {
		return fmt.Errorf("clear pool memberships: %w", err)
	}

	for _, m := range members {
		err := tx.QueryRow(ctx, `
			INSERT INTO pool_memberships (pool_id, ride_request_id, pickup_order, dropoff_order, joined_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`,
			poolID,
			m.RideRequestID,
			m.PickupOrder,
			m.DropoffOrder,
			m.JoinedAt,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert pool membership: %w", err)
		}
		m.PoolID = poolID
	}

	return nil
}

// ListForPool returns the memberships of a pool ordered by pickup_order.
func (repo *MembershipRepo) ListForPool(ctx context.Context, poolID string) ([]*pool.Membership, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, pool_id, ride_request_id, pickup_order, dropoff_order, joined_at
		FROM pool_memberships
		WHERE pool_id = $1
		ORDER BY pickup_order ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("query pool memberships: %w", err)
	}
	defer rows.Close()

	var members []*pool.Membership
	for rows.Next() {
		var m pool.Membership
		err := rows.Scan(&m.ID, &m.PoolID, &m.RideRequestID, &m.PickupOrder, &m.DropoffOrder, &m.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("scan pool membership: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return members, nil
}

// ListRequestsForPool returns the member ride requests ordered by pickup_order.
func (repo *MembershipRepo) ListRequestsForPool(ctx context.Context, poolID string) ([]*ride.Request, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT
			r.id, r.created_at, r.updated_at, r.rider_id,
			r.pickup_lat, r.pickup_lng, r.pickup_address,
			r.destination_lat, r.destination_lng, r.destination_address,
			r.status, r.fare_estimate
		FROM ride_requests r
		JOIN pool_memberships m ON m.ride_request_id = r.id
		WHERE m.pool_id = $1
		ORDER BY m.pickup_order ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("query member requests: %w", err)
	}
	defer rows.Close()

	var requests []*ride.Request
	for rows.Next() {
		var r ride.Request
		var status string
		err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.RiderID,
			&r.Pickup.Latitude, &r.Pickup.Longitude, &r.PickupAddress,
			&r.Destination.Latitude, &r.Destination.Longitude, &r.DestinationAddress,
			&status, &r.FareEstimate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan member request: %w", err)
		}
		r.Status = ride.Status(status)
		requests = append(requests, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return requests, nil
}

// GetForRequest returns the membership binding a ride request to its pool.
func (repo *MembershipRepo) GetForRequest(ctx context.Context, rideRequestID string) (*pool.Membership, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var m pool.Membership
	err = tx.QueryRow(ctx, `
		SELECT id, pool_id, ride_request_id, pickup_order, dropoff_order, joined_at
		FROM pool_memberships
		WHERE ride_request_id = $1
	`, rideRequestID).Scan(&m.ID, &m.PoolID, &m.RideRequestID, &m.PickupOrder, &m.DropoffOrder, &m.JoinedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	return &m, nil
}

// Delete removes a single membership by primary key.
func (repo *MembershipRepo) Delete(ctx context.Context, membershipID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM pool_memberships WHERE id = $1`, membershipID)
	if err != nil {
		return fmt.Errorf("delete pool membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}
