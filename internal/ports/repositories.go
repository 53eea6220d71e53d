package ports

import (
	"context"
	"time"

	"ridepool/internal/domain/driver"
	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/domain/trip"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideRequestRepository defines the methods for managing ride request data.
type RideRequestRepository interface {
	Create(ctx context.Context, request *ride.Request) error
	GetByID(ctx context.Context, id string) (*ride.Request, error)
	UpdateStatus(ctx context.Context, id string, status ride.Status) error
	// UpdateStatusForPool advances every member request of a pool in one
	// statement, keeping request status in lockstep with the pool status.
	UpdateStatusForPool(ctx context.Context, poolID string, status ride.Status) error
}

// PoolRepository defines the methods for managing pool data. All state
// transitions are expressed as guarded updates so concurrent callers can
// never both succeed.
type PoolRepository interface {
	Create(ctx context.Context, p *pool.Pool) error
	GetByID(ctx context.Context, id string) (*pool.Pool, error)
	// FindOpenSince returns pools with status=open created at or after the
	// cutoff, in the query's natural (creation) order.
	FindOpenSince(ctx context.Context, cutoff time.Time) ([]*pool.Pool, error)
	// ClaimSlot atomically increments member_count while the pool is open and
	// below capacity, returning the new count. It fails with ErrPoolFull or
	// ErrPoolNotOpen; callers must never check-then-insert.
	ClaimSlot(ctx context.Context, poolID string) (int, error)
	// ReleaseSlot decrements member_count after a member cancellation.
	ReleaseSlot(ctx context.Context, poolID string) error
	// MarkFilled transitions open -> filled, recording closed_at. Returns
	// false without error when the pool is no longer open.
	MarkFilled(ctx context.Context, poolID string, closedAt time.Time) (bool, error)
	// ClaimAssignment transitions filled -> driver_assigned. Exactly one
	// caller per pool observes true; all others get false.
	ClaimAssignment(ctx context.Context, poolID string) (bool, error)
	// MarkCancelled transitions any non-terminal status to cancelled.
	MarkCancelled(ctx context.Context, poolID string) (bool, error)
	AddEstimatedFare(ctx context.Context, poolID string, delta float64) error
	// ExpireOverdue transitions open pools past their own wait window to
	// expired and returns them. Re-running it against already-expired pools
	// is a no-op.
	ExpireOverdue(ctx context.Context, now time.Time) ([]*pool.Pool, error)
}

// MembershipRepository defines the methods for managing pool memberships.
// Memberships are replaced as a full set when a pool is re-sequenced.
type MembershipRepository interface {
	ReplaceForPool(ctx context.Context, poolID string, members []*pool.Membership) error
	ListForPool(ctx context.Context, poolID string) ([]*pool.Membership, error)
	// ListRequestsForPool returns the member ride requests ordered by
	// pickup_order.
	ListRequestsForPool(ctx context.Context, poolID string) ([]*ride.Request, error)
	GetForRequest(ctx context.Context, rideRequestID string) (*pool.Membership, error)
	Delete(ctx context.Context, membershipID string) error
}

// DriverRepository defines the methods for managing driver data.
type DriverRepository interface {
	Create(ctx context.Context, d *driver.Driver) error
	GetByID(ctx context.Context, driverID string) (*driver.Driver, error)
	// FindAvailableWithCapacity returns available drivers whose vehicle
	// capacity covers at least minCapacity riders.
	FindAvailableWithCapacity(ctx context.Context, minCapacity int) ([]*driver.Driver, error)
	// ClaimAvailability flips is_available true -> false; false result means
	// the driver was already taken or unknown.
	ClaimAvailability(ctx context.Context, driverID string) (bool, error)
	UpdateLocation(ctx context.Context, driverID string, location geo.Point) error
}

// TripRepository defines the methods for managing trip data.
type TripRepository interface {
	Create(ctx context.Context, t *trip.Trip) error
	GetByPool(ctx context.Context, poolID string) (*trip.Trip, error)
}
