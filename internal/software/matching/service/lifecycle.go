package service

import (
	"context"
	"errors"
	"fmt"

	"ridepool/internal/domain/ride"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/metrics"
	"ridepool/internal/ports"
)

// CancelRequest cancels a ride request and removes it from its pool. The last
// member leaving cancels the pool itself and suppresses any pending dispatch
// work. Remaining members keep their visiting orders; gaps are tolerated.
func (s *matchingService) CancelRequest(ctx context.Context, rideRequestID string) (ports.CancelRequestResult, error) {
	var (
		poolID        string
		poolCancelled bool
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		request, err := s.rideRepo.GetByID(ctx, rideRequestID)
		if err != nil {
			return err
		}
		if err := request.Cancel(); err != nil {
			return err
		}
		if err := s.rideRepo.UpdateStatus(ctx, rideRequestID, request.Status); err != nil {
			return err
		}

		membership, err := s.memberRepo.GetForRequest(ctx, rideRequestID)
		if errors.Is(err, ports.ErrNotFound) {
			// request was never pooled; nothing more to unwind
			return nil
		}
		if err != nil {
			return err
		}
		poolID = membership.PoolID

		if err := s.memberRepo.Delete(ctx, membership.ID); err != nil {
			return err
		}
		if err := s.poolRepo.ReleaseSlot(ctx, poolID); err != nil {
			return err
		}
		if err := s.poolRepo.AddEstimatedFare(ctx, poolID, -request.FareEstimate); err != nil {
			return err
		}

		remaining, err := s.memberRepo.ListForPool(ctx, poolID)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			return nil
		}

		cancelled, err := s.poolRepo.MarkCancelled(ctx, poolID)
		if err != nil {
			return err
		}
		poolCancelled = cancelled
		return nil
	})
	if err != nil {
		return ports.CancelRequestResult{}, err
	}

	if poolID != "" {
		ctx = s.logger.WithPoolID(ctx, poolID)
	}
	s.logger.Info(ctx, "ride_request_cancelled", "Ride request cancelled", map[string]any{
		"ride_request_id": rideRequestID,
		"pool_cancelled":  poolCancelled,
	})

	if poolCancelled {
		metrics.PoolsCancelled.Inc()
		s.scheduler.Cancel(ports.DispatchTaskKey(poolID))
		s.scheduler.Cancel(ports.OfferTimerKey(poolID))

		event := contracts.PoolCancelled{
			Event:    contracts.TagPoolCancelled,
			PoolID:   poolID,
			Envelope: newEnvelope(),
		}
		if err := s.broadcaster.PoolEvent(ctx, poolID, nil, event); err != nil {
			s.logger.Error(ctx, "broadcast_failed", "Failed to broadcast pool_cancelled", err, nil)
		}
	}

	return ports.CancelRequestResult{
		RideRequestID: rideRequestID,
		Status:        ride.StatusCancelled.String(),
		PoolCancelled: poolCancelled,
	}, nil
}

// PoolStatus reports a pool's progress toward departure.
func (s *matchingService) PoolStatus(ctx context.Context, poolID string) (ports.PoolStatusResult, error) {
	var result ports.PoolStatusResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.poolRepo.GetByID(ctx, poolID)
		if err != nil {
			return err
		}

		memberships, err := s.memberRepo.ListForPool(ctx, poolID)
		if err != nil {
			return err
		}
		requests, err := s.memberRepo.ListRequestsForPool(ctx, poolID)
		if err != nil {
			return err
		}
		byID := make(map[string]*ride.Request, len(requests))
		for _, r := range requests {
			byID[r.ID] = r
		}

		members := make([]ports.PoolMemberInfo, 0, len(memberships))
		for _, m := range memberships {
			r, ok := byID[m.RideRequestID]
			if !ok {
				return fmt.Errorf("membership %s references unknown request %s", m.ID, m.RideRequestID)
			}
			members = append(members, ports.PoolMemberInfo{
				RiderID:            r.RiderID,
				PickupAddress:      r.PickupAddress,
				DestinationAddress: r.DestinationAddress,
				PickupOrder:        m.PickupOrder,
				DropoffOrder:       m.DropoffOrder,
			})
		}

		elapsed := p.Age(nowUTC())
		remaining := p.MaxWaitTime - elapsed
		if remaining < 0 {
			remaining = 0
		}

		result = ports.PoolStatusResult{
			PoolID:               p.ID,
			Status:               p.Status.String(),
			CurrentRiders:        p.MemberCount,
			MaxRiders:            p.MaxRiders,
			TimeElapsedMinutes:   elapsed.Minutes(),
			TimeRemainingMinutes: remaining.Minutes(),
			IsFull:               p.Full(),
			EstimatedFare:        p.EstimatedFare,
			Members:              members,
		}
		return nil
	})
	if err != nil {
		return ports.PoolStatusResult{}, err
	}

	return result, nil
}
