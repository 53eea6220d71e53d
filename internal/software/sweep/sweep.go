// Package sweep expires pools whose wait window lapsed before they filled.
package sweep

import (
	"context"
	"time"

	"ridepool/internal/domain/ride"
	"ridepool/internal/general/config"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/logger"
	"ridepool/internal/general/metrics"
	"ridepool/internal/ports"

	"github.com/google/uuid"
)

// Sweep periodically expires overdue open pools and cancels their member
// requests. The expiry UPDATE is status-guarded, so concurrent joins and
// repeated sweeps resolve on the same row guard and the loop stays idempotent.
type Sweep struct {
	logger      *logger.Logger
	cfg         *config.Config
	uow         ports.UnitOfWork
	poolRepo    ports.PoolRepository
	rideRepo    ports.RideRequestRepository
	memberRepo  ports.MembershipRepository
	broadcaster ports.Broadcaster
	scheduler   ports.TaskScheduler
}

// New constructs the expiry sweep.
func New(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	poolRepo ports.PoolRepository,
	rideRepo ports.RideRequestRepository,
	memberRepo ports.MembershipRepository,
	broadcaster ports.Broadcaster,
	scheduler ports.TaskScheduler,
) *Sweep {
	return &Sweep{
		logger:      logger,
		cfg:         cfg,
		uow:         uow,
		poolRepo:    poolRepo,
		rideRepo:    rideRepo,
		memberRepo:  memberRepo,
		broadcaster: broadcaster,
		scheduler:   scheduler,
	}
}

// Run ticks until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()

	s.logger.Info(ctx, "sweep_started", "Expiry sweep loop started", map[string]any{
		"interval_sec": s.cfg.Pooling.SweepIntervalSec,
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweep_stopped", "Expiry sweep loop stopped", nil)
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(ctx, "sweep_failed", "Expiry sweep pass failed", err, nil)
			}
		}
	}
}

// expiredPool is what one expiry needs for its post-commit notifications.
type expiredPool struct {
	id       string
	riderIDs []string
}

// SweepOnce expires every overdue open pool in one transaction and notifies
// their members. Each pool is judged against its own wait window.
func (s *Sweep) SweepOnce(ctx context.Context) error {
	now := time.Now().UTC()

	var expired []expiredPool
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		pools, err := s.poolRepo.ExpireOverdue(ctx, now)
		if err != nil {
			return err
		}

		for _, p := range pools {
			requests, err := s.memberRepo.ListRequestsForPool(ctx, p.ID)
			if err != nil {
				return err
			}
			riderIDs := make([]string, 0, len(requests))
			for _, r := range requests {
				riderIDs = append(riderIDs, r.RiderID)
			}

			if err := s.rideRepo.UpdateStatusForPool(ctx, p.ID, ride.StatusCancelled); err != nil {
				return err
			}

			expired = append(expired, expiredPool{id: p.ID, riderIDs: riderIDs})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range expired {
		metrics.PoolsExpired.Inc()
		s.scheduler.Cancel(ports.DispatchTaskKey(p.id))
		s.scheduler.Cancel(ports.OfferTimerKey(p.id))

		pctx := s.logger.WithPoolID(ctx, p.id)
		s.logger.Info(pctx, "pool_expired", "Pool expired before filling", map[string]any{
			"members": len(p.riderIDs),
		})

		event := contracts.PoolExpired{
			Event:   contracts.TagPoolExpired,
			PoolID:  p.id,
			Message: "pool wait window lapsed before the pool filled",
			Envelope: contracts.Envelope{
				CorrelationID: uuid.NewString(),
				Producer:      "pool-service",
				SentAt:        time.Now().UTC(),
			},
		}
		if err := s.broadcaster.PoolEvent(pctx, p.id, p.riderIDs, event); err != nil {
			s.logger.Error(pctx, "broadcast_failed", "Failed to broadcast pool_expired", err, nil)
		}
	}

	return nil
}
