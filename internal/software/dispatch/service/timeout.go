package service

import (
	"context"

	"ridepool/internal/domain/pool"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/metrics"
)

// CheckTimeout fires when an offer window lapses without acceptance. Pools no
// longer filled make it a no-op, so late or duplicate timers are harmless.
// A still-filled pool is re-dispatched against a refreshed driver set until
// the attempt budget runs out, after which the pool stays filled for manual
// re-dispatch.
func (s *dispatchService) CheckTimeout(ctx context.Context, poolID string) {
	ctx = s.logger.WithPoolID(ctx, poolID)

	var filled bool
	var riderIDs []string
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.poolRepo.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if p.Status != pool.StatusFilled {
			return nil
		}
		filled = true

		requests, err := s.memberRepo.ListRequestsForPool(ctx, poolID)
		if err != nil {
			return err
		}
		riderIDs = riderIDsOf(requests)
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "timeout_check_failed", "Failed to inspect pool on offer timeout", err, nil)
		return
	}
	if !filled {
		s.attempts.Delete(poolID)
		s.logger.Debug(ctx, "timeout_noop", "Offer timeout fired for a settled pool", nil)
		return
	}

	attempt := 1
	if v, ok := s.attempts.Load(poolID); ok {
		attempt = v.(int)
	}

	if attempt >= s.cfg.Pooling.MaxDispatchAttempts {
		s.attempts.Delete(poolID)
		metrics.NoDriverFound.Inc()
		s.logger.Info(ctx, "dispatch_exhausted", "No driver accepted within the attempt budget", map[string]any{
			"attempts": attempt,
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
		return
	}

	next := attempt + 1
	s.attempts.Store(poolID, next)
	s.logger.Info(ctx, "dispatch_retry", "Offer window lapsed, re-dispatching pool", map[string]any{
		"attempt": next,
	})

	if err := s.offerRound(ctx, poolID, next); err != nil {
		s.logger.Error(ctx, "dispatch_retry_failed", "Re-dispatch after timeout failed", err, nil)
	}
}
