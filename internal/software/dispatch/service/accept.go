package service

import (
	"context"

	"ridepool/internal/domain/driver"
	"ridepool/internal/domain/ride"
	"ridepool/internal/domain/trip"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/metrics"
	"ridepool/internal/ports"
)

// Accept resolves a driver's acceptance of a pool offer. The filled ->
// driver_assigned compare-and-swap decides the race: exactly one driver wins,
// and the winner's transaction also creates the trip, takes the driver off
// the available set, and advances every member request.
func (s *dispatchService) Accept(ctx context.Context, driverID, poolID string) (ports.AcceptResult, error) {
	ctx = s.logger.WithPoolID(ctx, poolID)

	var (
		winner   *driver.Driver
		newTrip  *trip.Trip
		existing *trip.Trip
		riderIDs []string
		pickups  []contracts.SequenceStop
		dropoffs []contracts.SequenceStop
		poolSize int
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		claimed, err := s.poolRepo.ClaimAssignment(ctx, poolID)
		if err != nil {
			return err
		}
		if !claimed {
			// a retransmitted accept from the driver who already won is
			// answered with its own trip instead of a lost-race error
			if t, err := s.tripRepo.GetByPool(ctx, poolID); err == nil && t.DriverID == driverID {
				existing = t
				return nil
			}
			return ports.ErrAssignmentTaken
		}

		taken, err := s.driverRepo.ClaimAvailability(ctx, driverID)
		if err != nil {
			return err
		}
		if !taken {
			// rollback releases the pool claim; another driver can still win
			return ports.ErrDriverUnavailable
		}

		winner, err = s.driverRepo.GetByID(ctx, driverID)
		if err != nil {
			return err
		}

		newTrip, err = trip.New(poolID, driverID)
		if err != nil {
			return err
		}
		if err := s.tripRepo.Create(ctx, newTrip); err != nil {
			return err
		}

		if err := s.rideRepo.UpdateStatusForPool(ctx, poolID, ride.StatusDriverAssigned); err != nil {
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
		riderIDs = riderIDsOf(requests)
		poolSize = len(memberships)

		pickups, dropoffs, err = buildSequences(memberships, requests)
		return err
	})
	if err != nil {
		if err == ports.ErrAssignmentTaken {
			metrics.AcceptsLost.Inc()
			s.logger.Info(ctx, "accept_lost_race", "Driver accepted too late, pool already assigned", map[string]any{
				"driver_id": driverID,
			})
		}
		return ports.AcceptResult{}, err
	}

	if existing != nil {
		s.logger.Info(ctx, "accept_retry", "Winning driver retried accept, returning existing trip", map[string]any{
			"driver_id": driverID,
			"trip_id":   existing.ID,
		})
		return ports.AcceptResult{
			PoolID:   poolID,
			TripID:   existing.ID,
			DriverID: driverID,
			Message:  "assignment confirmed",
		}, nil
	}

	// the offer window is settled; a firing timer would be a no-op anyway
	s.scheduler.Cancel(ports.OfferTimerKey(poolID))
	s.attempts.Delete(poolID)
	metrics.TripsCreated.Inc()

	if err := s.locations.Remove(ctx, driverID); err != nil {
		// the availability flag already excludes the driver from candidates
		s.logger.Error(ctx, "geo_index_remove_failed", "Failed to remove assigned driver from location index", err, map[string]any{
			"driver_id": driverID,
		})
	}

	s.logger.Info(ctx, "driver_assigned", "Driver assigned to pool", map[string]any{
		"driver_id": driverID,
		"trip_id":   newTrip.ID,
	})

	assigned := contracts.DriverAssigned{
		Event:        contracts.TagDriverAssigned,
		PoolID:       poolID,
		DriverID:     winner.ID,
		DriverName:   winner.Name,
		VehicleType:  winner.VehicleType,
		LicensePlate: winner.LicensePlate,
		Rating:       winner.Rating,
		Envelope:     newEnvelope(),
	}
	if err := s.broadcaster.PoolEvent(ctx, poolID, riderIDs, assigned); err != nil {
		s.logger.Error(ctx, "broadcast_failed", "Failed to broadcast driver_assigned", err, nil)
	}

	confirmed := contracts.AssignmentConfirmed{
		Event:           contracts.TagAssignmentConfirmed,
		PoolID:          poolID,
		PickupSequence:  pickups,
		DropoffSequence: dropoffs,
		TotalRiders:     poolSize,
		Envelope:        newEnvelope(),
	}
	if err := s.broadcaster.DriverEvent(ctx, driverID, confirmed); err != nil {
		s.logger.Error(ctx, "broadcast_failed", "Failed to send assignment_confirmed", err, nil)
	}

	return ports.AcceptResult{
		PoolID:   poolID,
		TripID:   newTrip.ID,
		DriverID: driverID,
		Message:  "assignment confirmed",
	}, nil
}

// Decline records a driver's refusal. The pool state is untouched; other
// candidates keep their offers and the timeout round handles exhaustion.
func (s *dispatchService) Decline(ctx context.Context, driverID, poolID string) error {
	ctx = s.logger.WithPoolID(ctx, poolID)
	s.logger.Info(ctx, "offer_declined", "Driver declined pool offer", map[string]any{
		"driver_id": driverID,
	})
	return nil
}
