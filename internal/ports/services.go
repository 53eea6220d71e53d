package ports

import (
	"context"
	"time"

	"ridepool/internal/domain/geo"
	"ridepool/internal/general/contracts"
)

// ----- Collaborator ports -----

// Broadcaster publishes tagged events by topic with at-least-once semantics.
// Pool events fan out to the given member riders; driver events go to a
// single driver topic.
type Broadcaster interface {
	PoolEvent(ctx context.Context, poolID string, riderIDs []string, event contracts.Event) error
	DriverEvent(ctx context.Context, driverID string, event contracts.Event) error
}

// TaskScheduler runs a function after a delay. Tasks are keyed so a pending
// task can be suppressed when its pool is assigned or cancelled; handlers
// must stay idempotent because execution is at-least-once.
type TaskScheduler interface {
	Schedule(key string, delay time.Duration, fn func(ctx context.Context))
	Cancel(key string)
}

// DriverLocationIndex tracks driver positions for dispatch candidate lookup.
type DriverLocationIndex interface {
	Upsert(ctx context.Context, driverID string, p geo.Point) error
	// Position returns nil without error when the driver has no known
	// position in the index.
	Position(ctx context.Context, driverID string) (*geo.Point, error)
	// Remove drops a driver from the index, taking an assigned driver out of
	// candidate lookups until the next location update.
	Remove(ctx context.Context, driverID string) error
}

// ----- DTOs for the Matching Service -----

// SubmitRequestInput is the validated input required to submit a ride request.
type SubmitRequestInput struct {
	RiderID              string
	PickupLatitude       float64
	PickupLongitude      float64
	PickupAddress        string
	DestinationLatitude  float64
	DestinationLongitude float64
	DestinationAddress   string
	FareEstimate         float64
}

// Submit outcomes.
const (
	OutcomeJoinedPool     = "joined_pool"
	OutcomeNewPoolCreated = "new_pool_created"
)

// SubmitRequestResult is returned by MatchingService.SubmitRequest.
type SubmitRequestResult struct {
	Outcome       string `json:"status"` // joined_pool | new_pool_created
	RideRequestID string `json:"ride_request_id"`
	PoolID        string `json:"pool_id"`
	CurrentRiders int    `json:"current_riders"`
	Message       string `json:"message"`
}

// CancelRequestResult is returned by MatchingService.CancelRequest.
type CancelRequestResult struct {
	RideRequestID string `json:"ride_request_id"`
	Status        string `json:"status"`
	PoolCancelled bool   `json:"pool_cancelled"`
}

// PoolMemberInfo describes one member in a pool status response.
type PoolMemberInfo struct {
	RiderID            string `json:"rider_id"`
	PickupAddress      string `json:"pickup_address"`
	DestinationAddress string `json:"destination_address"`
	PickupOrder        int    `json:"pickup_order"`
	DropoffOrder       int    `json:"dropoff_order"`
}

// PoolStatusResult is returned by MatchingService.PoolStatus.
type PoolStatusResult struct {
	PoolID               string           `json:"pool_id"`
	Status               string           `json:"status"`
	CurrentRiders        int              `json:"current_riders"`
	MaxRiders            int              `json:"max_riders"`
	TimeElapsedMinutes   float64          `json:"time_elapsed_minutes"`
	TimeRemainingMinutes float64          `json:"time_remaining_minutes"`
	IsFull               bool             `json:"is_full"`
	EstimatedFare        float64          `json:"estimated_fare"`
	Members              []PoolMemberInfo `json:"members"`
}

// ----- Matching Service Interface -----

// MatchingService exposes the rider-facing boundary of the pooling engine.
type MatchingService interface {
	SubmitRequest(ctx context.Context, in SubmitRequestInput) (SubmitRequestResult, error)
	CancelRequest(ctx context.Context, rideRequestID string) (CancelRequestResult, error)
	PoolStatus(ctx context.Context, poolID string) (PoolStatusResult, error)
}

// ----- DTOs for the Dispatch Service -----

// AcceptResult is returned to the winning driver.
type AcceptResult struct {
	PoolID   string `json:"pool_id"`
	TripID   string `json:"trip_id"`
	DriverID string `json:"driver_id"`
	Message  string `json:"message"`
}

// ----- Dispatch Service Interface -----

// DispatchService offers filled pools to drivers and resolves acceptance.
type DispatchService interface {
	Dispatch(ctx context.Context, poolID string) error
	Accept(ctx context.Context, driverID, poolID string) (AcceptResult, error)
	Decline(ctx context.Context, driverID, poolID string) error
	CheckTimeout(ctx context.Context, poolID string)
	UpdateDriverLocation(ctx context.Context, driverID string, latitude, longitude float64) error
}
