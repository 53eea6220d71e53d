package pool

import (
	"errors"
	"time"
)

// Membership ties one ride request to one pool together with its visiting
// orders. Memberships are replaced as a whole set whenever the pool is
// re-sequenced; they are never partially updated.
type Membership struct {
	ID            string
	PoolID        string
	RideRequestID string
	PickupOrder   int
	DropoffOrder  int
	JoinedAt      time.Time
}

var (
	ErrPoolIDRequired    = errors.New("pool id is required")
	ErrRequestIDRequired = errors.New("ride request id is required")
	ErrInvalidOrder      = errors.New("pickup and dropoff orders are 1-based")
)

// NewMembership constructs a membership with 1-based visiting orders.
func NewMembership(poolID, rideRequestID string, pickupOrder, dropoffOrder int) (*Membership, error) {
	if poolID == "" {
		return nil, ErrPoolIDRequired
	}
	if rideRequestID == "" {
		return nil, ErrRequestIDRequired
	}
	if pickupOrder < 1 || dropoffOrder < 1 {
		return nil, ErrInvalidOrder
	}

	return &Membership{
		PoolID:        poolID,
		RideRequestID: rideRequestID,
		PickupOrder:   pickupOrder,
		DropoffOrder:  dropoffOrder,
		JoinedAt:      time.Now().UTC(),
	}, nil
}
