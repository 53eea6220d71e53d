package contracts

// Event is one of the closed set of notification variants broadcast on the
// pool and driver topics. Every variant carries its own typed payload and a
// discriminator tag so consumers never parse untyped dictionaries.
type Event interface {
	EventTag() string
}

// Tags for each event variant.
const (
	TagRiderJoined         = "rider_joined"
	TagPoolFilled          = "pool_filled"
	TagPoolOffer           = "pool_offer"
	TagDriverAssigned      = "driver_assigned"
	TagAssignmentConfirmed = "assignment_confirmed"
	TagNoDriverFound       = "no_driver_found"
	TagPoolExpired         = "pool_expired"
	TagPoolCancelled       = "pool_cancelled"
)

// RiderJoined is broadcast on the pool topic when a new rider joins.
type RiderJoined struct {
	Event         string `json:"event"` // always "rider_joined"
	PoolID        string `json:"pool_id"`
	RideRequestID string `json:"ride_request_id"`
	CurrentRiders int    `json:"current_riders"`
	MaxRiders     int    `json:"max_riders"`
	Envelope
}

func (e RiderJoined) EventTag() string { return TagRiderJoined }

// PoolFilled is broadcast on the pool topic when the pool reaches capacity.
type PoolFilled struct {
	Event         string  `json:"event"` // always "pool_filled"
	PoolID        string  `json:"pool_id"`
	RiderCount    int     `json:"rider_count"`
	EstimatedFare float64 `json:"estimated_fare"`
	Envelope
}

func (e PoolFilled) EventTag() string { return TagPoolFilled }

// PoolOffer is sent to each candidate driver's topic when a filled pool is
// dispatched.
type PoolOffer struct {
	Event          string         `json:"event"` // always "pool_offer"
	PoolID         string         `json:"pool_id"`
	PoolSize       int            `json:"pool_size"`
	EstimatedFare  float64        `json:"estimated_fare"`
	PickupSequence []SequenceStop `json:"pickup_sequence"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	Envelope
}

func (e PoolOffer) EventTag() string { return TagPoolOffer }

// DriverAssigned is broadcast on the pool topic once a driver confirms.
type DriverAssigned struct {
	Event        string  `json:"event"` // always "driver_assigned"
	PoolID       string  `json:"pool_id"`
	DriverID     string  `json:"driver_id"`
	DriverName   string  `json:"driver_name"`
	VehicleType  string  `json:"vehicle_type"`
	LicensePlate string  `json:"license_plate"`
	Rating       float64 `json:"rating"`
	Envelope
}

func (e DriverAssigned) EventTag() string { return TagDriverAssigned }

// AssignmentConfirmed is sent to the winning driver with the full route.
type AssignmentConfirmed struct {
	Event           string         `json:"event"` // always "assignment_confirmed"
	PoolID          string         `json:"pool_id"`
	PickupSequence  []SequenceStop `json:"pickup_sequence"`
	DropoffSequence []SequenceStop `json:"dropoff_sequence"`
	TotalRiders     int            `json:"total_riders"`
	Envelope
}

func (e AssignmentConfirmed) EventTag() string { return TagAssignmentConfirmed }

// NoDriverFound signals a dispatch attempt that found no eligible driver.
// The pool stays filled and dispatchable.
type NoDriverFound struct {
	Event   string `json:"event"` // always "no_driver_found"
	PoolID  string `json:"pool_id"`
	Attempt int    `json:"attempt"`
	Envelope
}

func (e NoDriverFound) EventTag() string { return TagNoDriverFound }

// PoolExpired is broadcast on the pool topic when the wait window lapses.
type PoolExpired struct {
	Event   string `json:"event"` // always "pool_expired"
	PoolID  string `json:"pool_id"`
	Message string `json:"message"`
	Envelope
}

func (e PoolExpired) EventTag() string { return TagPoolExpired }

// PoolCancelled is broadcast on the pool topic when the last member cancels.
type PoolCancelled struct {
	Event  string `json:"event"` // always "pool_cancelled"
	PoolID string `json:"pool_id"`
	Envelope
}

func (e PoolCancelled) EventTag() string { return TagPoolCancelled }
