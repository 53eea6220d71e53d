package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/metrics"
	"ridepool/internal/ports"
)

// joinOutcome carries the facts the post-commit side effects need.
type joinOutcome struct {
	poolID        string
	createdPool   bool
	filled        bool
	currentRiders int
	maxRiders     int
	estimatedFare float64
	riderIDs      []string // every member including the new one
}

// SubmitRequest validates and persists a ride request, then joins the first
// valid open pool or creates a new one. The capacity claim inside the
// transaction is the only serialization point; a lost claim falls through to
// the next candidate.
func (s *matchingService) SubmitRequest(ctx context.Context, in ports.SubmitRequestInput) (ports.SubmitRequestResult, error) {
	started := time.Now()

	pickup := geo.Point{Latitude: in.PickupLatitude, Longitude: in.PickupLongitude}
	destination := geo.Point{Latitude: in.DestinationLatitude, Longitude: in.DestinationLongitude}

	request, err := ride.NewRequest(in.RiderID, pickup, in.PickupAddress, destination, in.DestinationAddress, in.FareEstimate)
	if err != nil {
		return ports.SubmitRequestResult{}, err
	}

	var out joinOutcome
	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rideRepo.Create(ctx, request); err != nil {
			return err
		}

		now := time.Now().UTC()
		candidates, err := s.findCandidates(ctx, request, now)
		if err != nil {
			return err
		}

		// first valid candidate wins; lost claims fall through
		for _, c := range candidates {
			joined, err := s.joinPool(ctx, c, request, now, &out)
			if err != nil {
				return err
			}
			if joined {
				return nil
			}
		}

		return s.createPool(ctx, request, &out)
	})
	if err != nil {
		return ports.SubmitRequestResult{}, err
	}

	metrics.MatchLatency.Observe(time.Since(started).Seconds())
	s.afterJoin(ctx, request, out)

	result := ports.SubmitRequestResult{
		RideRequestID: request.ID,
		PoolID:        out.poolID,
		CurrentRiders: out.currentRiders,
	}
	if out.createdPool {
		result.Outcome = ports.OutcomeNewPoolCreated
		result.Message = "no matching pool found, new pool created"
	} else {
		result.Outcome = ports.OutcomeJoinedPool
		result.Message = fmt.Sprintf("joined pool with %d riders", out.currentRiders)
	}

	return result, nil
}

// joinPool claims a seat in the candidate pool, re-sequences the member set,
// and fills the pool when the new rider completes it. A lost capacity claim
// returns (false, nil) so the caller can try the next candidate.
func (s *matchingService) joinPool(ctx context.Context, c candidate, request *ride.Request, now time.Time, out *joinOutcome) (bool, error) {
	count, err := s.poolRepo.ClaimSlot(ctx, c.pool.ID)
	if errors.Is(err, ports.ErrPoolFull) || errors.Is(err, ports.ErrPoolNotOpen) || errors.Is(err, ports.ErrNotFound) {
		metrics.JoinsTotal.WithLabelValues("lost_race").Inc()
		s.logger.Debug(ctx, "join_claim_lost", "Pool slot claim lost, trying next candidate", map[string]any{
			"pool_id": c.pool.ID,
			"reason":  err.Error(),
		})
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// the candidate snapshot predates the claim; concurrent joins or
	// cancellations may have committed in between, so the replacement set
	// must come from a fresh read of the memberships
	current, err := s.memberRepo.ListRequestsForPool(ctx, c.pool.ID)
	if err != nil {
		return false, err
	}
	members := append(current, request)
	if err := s.replaceMemberships(ctx, c.pool.ID, members); err != nil {
		return false, err
	}

	if err := request.MarkMatched(); err != nil {
		return false, err
	}
	if err := s.rideRepo.UpdateStatus(ctx, request.ID, request.Status); err != nil {
		return false, err
	}
	if err := s.poolRepo.AddEstimatedFare(ctx, c.pool.ID, request.FareEstimate); err != nil {
		return false, err
	}

	out.poolID = c.pool.ID
	out.currentRiders = count
	out.maxRiders = c.pool.MaxRiders
	out.estimatedFare = c.pool.EstimatedFare + request.FareEstimate
	out.riderIDs = riderIDsOf(members)

	if count >= c.pool.MaxRiders {
		filled, err := s.poolRepo.MarkFilled(ctx, c.pool.ID, now)
		if err != nil {
			return false, err
		}
		out.filled = filled
	}

	return true, nil
}

// createPool opens a fresh pool seeded with the request as its only member.
func (s *matchingService) createPool(ctx context.Context, request *ride.Request, out *joinOutcome) error {
	p, err := pool.New(s.cfg.Pooling.MaxRiders, s.cfg.MaxWaitTime())
	if err != nil {
		return err
	}
	if err := s.poolRepo.Create(ctx, p); err != nil {
		return err
	}
	if _, err := s.poolRepo.ClaimSlot(ctx, p.ID); err != nil {
		return fmt.Errorf("claim seat in new pool: %w", err)
	}

	if err := s.replaceMemberships(ctx, p.ID, []*ride.Request{request}); err != nil {
		return err
	}
	if err := request.MarkMatched(); err != nil {
		return err
	}
	if err := s.rideRepo.UpdateStatus(ctx, request.ID, request.Status); err != nil {
		return err
	}
	if err := s.poolRepo.AddEstimatedFare(ctx, p.ID, request.FareEstimate); err != nil {
		return err
	}

	out.poolID = p.ID
	out.createdPool = true
	out.currentRiders = 1
	out.maxRiders = p.MaxRiders
	out.estimatedFare = request.FareEstimate
	out.riderIDs = []string{request.RiderID}

	return nil
}

// replaceMemberships re-sequences the full member set and swaps the stored
// memberships in one shot.
func (s *matchingService) replaceMemberships(ctx context.Context, poolID string, members []*ride.Request) error {
	plan := s.sequencer.Sequence(members)

	memberships := make([]*pool.Membership, 0, len(members))
	for _, m := range members {
		membership, err := pool.NewMembership(poolID, m.ID, plan.PickupOrder[m.ID], plan.DropoffOrder[m.ID])
		if err != nil {
			return err
		}
		memberships = append(memberships, membership)
	}

	return s.memberRepo.ReplaceForPool(ctx, poolID, memberships)
}

// afterJoin runs the post-commit side effects: metrics, events, and the
// deferred dispatch of a filled pool. Broadcast failures after a committed
// mutation are logged and tolerated.
func (s *matchingService) afterJoin(ctx context.Context, request *ride.Request, out joinOutcome) {
	ctx = s.logger.WithPoolID(ctx, out.poolID)

	if out.createdPool {
		metrics.PoolsCreated.Inc()
		metrics.JoinsTotal.WithLabelValues("new_pool").Inc()
		s.logger.Info(ctx, "pool_created", "New pool created for ride request", map[string]any{
			"ride_request_id": request.ID,
		})
	} else {
		metrics.JoinsTotal.WithLabelValues("joined").Inc()
		s.logger.Info(ctx, "pool_joined", "Ride request joined existing pool", map[string]any{
			"ride_request_id": request.ID,
			"current_riders":  out.currentRiders,
		})
	}

	joined := contracts.RiderJoined{
		Event:         contracts.TagRiderJoined,
		PoolID:        out.poolID,
		RideRequestID: request.ID,
		CurrentRiders: out.currentRiders,
		MaxRiders:     out.maxRiders,
		Envelope:      newEnvelope(),
	}
	if err := s.broadcaster.PoolEvent(ctx, out.poolID, out.riderIDs, joined); err != nil {
		s.logger.Error(ctx, "broadcast_failed", "Failed to broadcast rider_joined", err, nil)
	}

	if !out.filled {
		return
	}

	metrics.PoolsFilled.Inc()
	filled := contracts.PoolFilled{
		Event:         contracts.TagPoolFilled,
		PoolID:        out.poolID,
		RiderCount:    out.currentRiders,
		EstimatedFare: out.estimatedFare,
		Envelope:      newEnvelope(),
	}
	if err := s.broadcaster.PoolEvent(ctx, out.poolID, out.riderIDs, filled); err != nil {
		s.logger.Error(ctx, "broadcast_failed", "Failed to broadcast pool_filled", err, nil)
	}

	poolID := out.poolID
	s.scheduler.Schedule(ports.DispatchTaskKey(poolID), 0, func(ctx context.Context) {
		if err := s.dispatch.Dispatch(ctx, poolID); err != nil {
			s.logger.Error(ctx, "dispatch_failed", "Deferred dispatch of filled pool failed", err, map[string]any{
				"pool_id": poolID,
			})
		}
	})
}
