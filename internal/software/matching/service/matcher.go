package service

import (
	"context"
	"fmt"
	"time"

	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
)

// candidate is an open pool together with its current member requests.
type candidate struct {
	pool    *pool.Pool
	members []*ride.Request
}

// findCandidates returns the open pools a request may join, oldest first,
// each checked against the proximity and detour limits. Must run inside a
// transaction; the result is a snapshot and the join claim re-validates
// capacity atomically.
func (s *matchingService) findCandidates(ctx context.Context, request *ride.Request, now time.Time) ([]candidate, error) {
	cutoff := now.Add(-s.cfg.MaxWaitTime())
	pools, err := s.poolRepo.FindOpenSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find open pools: %w", err)
	}

	var out []candidate
	for _, p := range pools {
		members, err := s.memberRepo.ListRequestsForPool(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list members of pool %s: %w", p.ID, err)
		}
		if s.isValidMatch(ctx, p, members, request, now) {
			out = append(out, candidate{pool: p, members: members})
		}
	}

	return out, nil
}

// isValidMatch applies the pooling constraints of one pool to one request.
func (s *matchingService) isValidMatch(ctx context.Context, p *pool.Pool, members []*ride.Request, request *ride.Request, now time.Time) bool {
	if len(members) == 0 {
		return false
	}
	if p.Full() {
		return false
	}
	if p.Expired(now) {
		return false
	}

	pickups := make([]geo.Point, 0, len(members))
	destinations := make([]geo.Point, 0, len(members))
	for _, m := range members {
		pickups = append(pickups, m.Pickup)
		destinations = append(destinations, m.Destination)
	}

	pickupCentroid, err := geo.Centroid(pickups)
	if err != nil {
		return false
	}
	pickupDist := geo.Distance(request.Pickup, pickupCentroid)
	if pickupDist > s.cfg.Pooling.PickupRadiusM {
		s.logger.Debug(ctx, "match_rejected_pickup", "Pickup too far from pool centroid", map[string]any{
			"pool_id":    p.ID,
			"distance_m": pickupDist,
			"radius_m":   s.cfg.Pooling.PickupRadiusM,
		})
		return false
	}

	destCentroid, err := geo.Centroid(destinations)
	if err != nil {
		return false
	}
	destDist := geo.Distance(request.Destination, destCentroid)
	if destDist > s.cfg.Pooling.DestinationRadiusM {
		s.logger.Debug(ctx, "match_rejected_destination", "Destination too far from pool centroid", map[string]any{
			"pool_id":    p.ID,
			"distance_m": destDist,
			"radius_m":   s.cfg.Pooling.DestinationRadiusM,
		})
		return false
	}

	// detour: how much the shared route grows when the request is added
	base := routeEstimate(members)
	withNew := routeEstimate(append(append([]*ride.Request{}, members...), request))
	if base > 0 {
		detour := (withNew - base) / base
		if detour > s.cfg.Pooling.MaxDetourPct {
			s.logger.Debug(ctx, "match_rejected_detour", "Detour above limit", map[string]any{
				"pool_id":    p.ID,
				"detour_pct": detour,
				"limit_pct":  s.cfg.Pooling.MaxDetourPct,
			})
			return false
		}
	}

	return true
}

// routeEstimate approximates the shared route length in meters: consecutive
// pickup-to-pickup legs in input order, then each request's own
// pickup-to-destination leg. When every request shares the same pickup and
// destination (within coordinate tolerance) the whole pool rides one leg.
func routeEstimate(requests []*ride.Request) float64 {
	if len(requests) == 0 {
		return 0
	}
	first := requests[0]
	if len(requests) == 1 {
		return geo.Distance(first.Pickup, first.Destination)
	}

	same := true
	for _, r := range requests[1:] {
		if !r.Pickup.SamePlace(first.Pickup) || !r.Destination.SamePlace(first.Destination) {
			same = false
			break
		}
	}
	if same {
		return geo.Distance(first.Pickup, first.Destination)
	}

	var total float64
	for i := 1; i < len(requests); i++ {
		total += geo.Distance(requests[i-1].Pickup, requests[i].Pickup)
	}
	for _, r := range requests {
		total += geo.Distance(r.Pickup, r.Destination)
	}
	return total
}
