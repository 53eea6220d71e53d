package service

import (
	"context"
	"fmt"
	"sort"

	"ridepool/internal/domain/driver"
	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/metrics"
	"ridepool/internal/ports"
)

// rankedDriver is a dispatch candidate with its distance to the pickup centroid.
type rankedDriver struct {
	driver   *driver.Driver
	distance float64
}

// Dispatch starts a fresh offer round for a filled pool. Pools in any other
// state make the call a logged no-op, which keeps stale deferred tasks safe.
func (s *dispatchService) Dispatch(ctx context.Context, poolID string) error {
	s.attempts.Store(poolID, 1)
	return s.offerRound(ctx, poolID, 1)
}

// offerRound selects candidate drivers for the pool and broadcasts the offer.
func (s *dispatchService) offerRound(ctx context.Context, poolID string, attempt int) error {
	ctx = s.logger.WithPoolID(ctx, poolID)
	metrics.DispatchAttempts.Inc()

	var (
		candidates []rankedDriver
		offer      contracts.PoolOffer
		riderIDs   []string
		skip       bool
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.poolRepo.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if p.Status != pool.StatusFilled {
			skip = true
			s.logger.Info(ctx, "dispatch_skipped", "Pool is not filled, dispatch is a no-op", map[string]any{
				"status": p.Status.String(),
			})
			return nil
		}

		memberships, err := s.memberRepo.ListForPool(ctx, poolID)
		if err != nil {
			return err
		}
		requests, err := s.memberRepo.ListRequestsForPool(ctx, poolID)
		if err != nil {
			return err
		}
		riderIDs = riderIDsOf(requests)

		centroid, err := pickupCentroid(requests)
		if err != nil {
			return fmt.Errorf("pickup centroid of pool %s: %w", poolID, err)
		}

		candidates, err = s.rankCandidates(ctx, centroid, p.MemberCount)
		if err != nil {
			return err
		}

		pickupSeq, _, err := buildSequences(memberships, requests)
		if err != nil {
			return err
		}
		offer = contracts.PoolOffer{
			Event:          contracts.TagPoolOffer,
			PoolID:         poolID,
			PoolSize:       p.MemberCount,
			EstimatedFare:  p.EstimatedFare,
			PickupSequence: pickupSeq,
			TimeoutSeconds: s.cfg.Pooling.OfferTimeoutSec,
		}
		return nil
	})
	if err != nil {
		return err
	}
	if skip {
		s.attempts.Delete(poolID)
		return nil
	}

	if len(candidates) == 0 {
		// no timer gets scheduled for this round, so the attempt counter
		// has no further reader
		s.attempts.Delete(poolID)

		// operational signal, not an error; the pool stays filled
		metrics.NoDriverFound.Inc()
		s.logger.Info(ctx, "no_driver_found", "No eligible driver for filled pool", map[string]any{
			"attempt": attempt,
		})
		event := contracts.NoDriverFound{
			Event:    contracts.TagNoDriverFound,
			PoolID:   poolID,
			Attempt:  attempt,
			Envelope: newEnvelope(),
		}
		if err := s.broadcaster.PoolEvent(ctx, poolID, riderIDs, event); err != nil {
			s.logger.Error(ctx, "broadcast_failed", "Failed to broadcast no_driver_found", err, nil)
		}
		return nil
	}

	for _, c := range candidates {
		offer.Envelope = newEnvelope()
		if err := s.broadcaster.DriverEvent(ctx, c.driver.ID, offer); err != nil {
			s.logger.Error(ctx, "broadcast_failed", "Failed to send pool offer to driver", err, map[string]any{
				"driver_id": c.driver.ID,
			})
			continue
		}
		metrics.OffersSent.Inc()
	}

	s.logger.Info(ctx, "pool_offered", "Pool offered to candidate drivers", map[string]any{
		"candidates": len(candidates),
		"attempt":    attempt,
	})

	s.scheduler.Schedule(ports.OfferTimerKey(poolID), s.cfg.OfferTimeout(), func(ctx context.Context) {
		s.CheckTimeout(ctx, poolID)
	})

	return nil
}

// rankCandidates returns available drivers with enough capacity within the
// assignment radius of the pickup centroid, nearest first. Positions come
// from the GEO index with the driver row as fallback; drivers with no known
// position are never offered a pool.
func (s *dispatchService) rankCandidates(ctx context.Context, centroid geo.Point, minCapacity int) ([]rankedDriver, error) {
	available, err := s.driverRepo.FindAvailableWithCapacity(ctx, minCapacity)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedDriver, 0, len(available))
	for _, d := range available {
		pos, err := s.locations.Position(ctx, d.ID)
		if err != nil {
			s.logger.Error(ctx, "geo_index_lookup_failed", "Falling back to driver row position", err, map[string]any{
				"driver_id": d.ID,
			})
			pos = nil
		}
		if pos == nil {
			pos = d.Location
		}
		if pos == nil {
			continue
		}

		dist := geo.Distance(centroid, *pos)
		if dist > s.cfg.Pooling.MaxAssignmentDistanceM {
			continue
		}
		ranked = append(ranked, rankedDriver{driver: d, distance: dist})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].distance < ranked[j].distance })
	return ranked, nil
}

// --- shared helpers ---

func pickupCentroid(requests []*ride.Request) (geo.Point, error) {
	pickups := make([]geo.Point, 0, len(requests))
	for _, r := range requests {
		pickups = append(pickups, r.Pickup)
	}
	return geo.Centroid(pickups)
}

func riderIDsOf(requests []*ride.Request) []string {
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.RiderID)
	}
	return ids
}

// buildSequences converts memberships plus their requests into the wire
// pickup and dropoff sequences, each sorted by its own order.
func buildSequences(memberships []*pool.Membership, requests []*ride.Request) (pickups, dropoffs []contracts.SequenceStop, err error) {
	byID := make(map[string]*ride.Request, len(requests))
	for _, r := range requests {
		byID[r.ID] = r
	}

	for _, m := range memberships {
		r, ok := byID[m.RideRequestID]
		if !ok {
			return nil, nil, fmt.Errorf("membership %s references unknown request %s", m.ID, m.RideRequestID)
		}
		pickups = append(pickups, contracts.SequenceStop{
			RiderID:   r.RiderID,
			Address:   r.PickupAddress,
			Latitude:  r.Pickup.Latitude,
			Longitude: r.Pickup.Longitude,
			Order:     m.PickupOrder,
		})
		dropoffs = append(dropoffs, contracts.SequenceStop{
			RiderID:   r.RiderID,
			Address:   r.DestinationAddress,
			Latitude:  r.Destination.Latitude,
			Longitude: r.Destination.Longitude,
			Order:     m.DropoffOrder,
		})
	}

	sort.Slice(pickups, func(i, j int) bool { return pickups[i].Order < pickups[j].Order })
	sort.Slice(dropoffs, func(i, j int) bool { return dropoffs[i].Order < dropoffs[j].Order })
	return pickups, dropoffs, nil
}
