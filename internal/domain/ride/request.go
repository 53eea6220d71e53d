package ride

import (
	"errors"
	"strings"
	"time"

	"ridepool/internal/domain/geo"
)

// Request is the domain entity corresponding to the `ride_requests` table.
// Pickup and destination coordinates are immutable after creation.
type Request struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	RiderID string

	Pickup             geo.Point
	PickupAddress      string
	Destination        geo.Point
	DestinationAddress string

	Status       Status
	FareEstimate float64
}

var (
	ErrRiderRequired           = errors.New("rider id is required")
	ErrPickupAddressRequired   = errors.New("pickup address is required")
	ErrDestAddressRequired     = errors.New("destination address is required")
	ErrInvalidCoordinates      = errors.New("ride request has invalid coordinates")
	ErrNegativeFareEstimate    = errors.New("fare estimate cannot be negative")
	ErrInvalidStatusTransition = errors.New("invalid ride request status transition")
)

// NewRequest creates a new ride request in pending state. Coordinate
// validation happens here so a request without valid coordinates never
// reaches matching.
func NewRequest(riderID string, pickup geo.Point, pickupAddress string, destination geo.Point, destinationAddress string, fareEstimate float64) (*Request, error) {
	if riderID = strings.TrimSpace(riderID); riderID == "" {
		return nil, ErrRiderRequired
	}
	if pickupAddress = strings.TrimSpace(pickupAddress); pickupAddress == "" {
		return nil, ErrPickupAddressRequired
	}
	if destinationAddress = strings.TrimSpace(destinationAddress); destinationAddress == "" {
		return nil, ErrDestAddressRequired
	}
	if err := pickup.Validate(); err != nil {
		return nil, ErrInvalidCoordinates
	}
	if err := destination.Validate(); err != nil {
		return nil, ErrInvalidCoordinates
	}
	if fareEstimate < 0 {
		return nil, ErrNegativeFareEstimate
	}

	now := time.Now().UTC()
	return &Request{
		CreatedAt:          now,
		UpdatedAt:          now,
		RiderID:            riderID,
		Pickup:             pickup,
		PickupAddress:      pickupAddress,
		Destination:        destination,
		DestinationAddress: destinationAddress,
		Status:             StatusPending,
		FareEstimate:       fareEstimate,
	}, nil
}

// MarkMatched transitions pending -> matched.
func (request *Request) MarkMatched() error {
	if !request.Status.CanTransitionTo(StatusMatched) {
		return ErrInvalidStatusTransition
	}
	request.setStatus(StatusMatched)
	return nil
}

// Cancel transitions to cancelled (if not terminal).
func (request *Request) Cancel() error {
	if request.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	request.setStatus(StatusCancelled)
	return nil
}

// ----- internal helpers -----

func (request *Request) setStatus(status Status) {
	request.Status = status
	request.UpdatedAt = time.Now().UTC()
}
