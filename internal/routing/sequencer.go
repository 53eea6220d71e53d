// Package routing assigns pickup and dropoff visiting orders for the ride
// requests of a pool. The policy is deliberately simple: all pickups precede
// all dropoffs, and within each half the order follows input enumeration
// order. It is stable and not distance-optimized; a real route optimizer
// would sit behind the same interface.
package routing

import "ridepool/internal/domain/ride"

// StopKind marks a stop as a pickup or a dropoff.
type StopKind string

const (
	Pickup  StopKind = "pickup"
	Dropoff StopKind = "dropoff"
)

// Stop is a single visit in the planned sequence.
type Stop struct {
	Request *ride.Request
	Kind    StopKind
}

// Plan is the full visiting order for a set of ride requests plus per-request
// 1-based orders. PickupOrder and DropoffOrder each hold exactly one entry
// per distinct request id and form a contiguous 1..N permutation.
type Plan struct {
	Stops        []Stop
	PickupOrder  map[string]int
	DropoffOrder map[string]int
}

// Sequencer computes visiting plans for pools.
type Sequencer struct{}

// NewSequencer constructs a Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Sequence plans the visiting order for the given requests. Duplicate request
// ids in the input collapse to a single membership. A singleton input yields
// the trivial two-stop plan with both orders set to 1.
func (s *Sequencer) Sequence(requests []*ride.Request) Plan {
	distinct := dedupe(requests)

	plan := Plan{
		Stops:        make([]Stop, 0, 2*len(distinct)),
		PickupOrder:  make(map[string]int, len(distinct)),
		DropoffOrder: make(map[string]int, len(distinct)),
	}

	for i, request := range distinct {
		plan.Stops = append(plan.Stops, Stop{Request: request, Kind: Pickup})
		plan.PickupOrder[request.ID] = i + 1
	}
	for i, request := range distinct {
		plan.Stops = append(plan.Stops, Stop{Request: request, Kind: Dropoff})
		plan.DropoffOrder[request.ID] = i + 1
	}

	return plan
}

// dedupe keeps the first occurrence of each request id, preserving input order.
func dedupe(requests []*ride.Request) []*ride.Request {
	seen := make(map[string]bool, len(requests))
	out := make([]*ride.Request, 0, len(requests))
	for _, request := range requests {
		if request == nil || seen[request.ID] {
			continue
		}
		seen[request.ID] = true
		out = append(out, request)
	}
	return out
}
