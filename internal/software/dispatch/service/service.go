package service

import (
	"context"
	"sync"
	"time"

	"ridepool/internal/domain/geo"
	"ridepool/internal/general/config"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/logger"
	"ridepool/internal/ports"

	"github.com/google/uuid"
)

const producerName = "pool-service"

// dispatchService offers filled pools to nearby available drivers and
// resolves the acceptance race.
type dispatchService struct {
	logger      *logger.Logger
	cfg         *config.Config
	uow         ports.UnitOfWork
	poolRepo    ports.PoolRepository
	memberRepo  ports.MembershipRepository
	rideRepo    ports.RideRequestRepository
	driverRepo  ports.DriverRepository
	tripRepo    ports.TripRepository
	broadcaster ports.Broadcaster
	scheduler   ports.TaskScheduler
	locations   ports.DriverLocationIndex

	// dispatch attempts per pool id; reset on assignment or exhaustion
	attempts sync.Map
}

// NewDispatchService creates a new dispatch service with the provided dependencies.
func NewDispatchService(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	poolRepo ports.PoolRepository,
	memberRepo ports.MembershipRepository,
	rideRepo ports.RideRequestRepository,
	driverRepo ports.DriverRepository,
	tripRepo ports.TripRepository,
	broadcaster ports.Broadcaster,
	scheduler ports.TaskScheduler,
	locations ports.DriverLocationIndex,
) ports.DispatchService {
	return &dispatchService{
		logger:      logger,
		cfg:         cfg,
		uow:         uow,
		poolRepo:    poolRepo,
		memberRepo:  memberRepo,
		rideRepo:    rideRepo,
		driverRepo:  driverRepo,
		tripRepo:    tripRepo,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		locations:   locations,
	}
}

// UpdateDriverLocation stores a driver's position on the driver row and in
// the GEO index used by candidate lookup.
func (s *dispatchService) UpdateDriverLocation(ctx context.Context, driverID string, latitude, longitude float64) error {
	p := geo.Point{Latitude: latitude, Longitude: longitude}
	if err := p.Validate(); err != nil {
		return err
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		return s.driverRepo.UpdateLocation(ctx, driverID, p)
	})
	if err != nil {
		return err
	}

	if err := s.locations.Upsert(ctx, driverID, p); err != nil {
		// the row update is the durable copy; index lag is tolerable
		s.logger.Error(ctx, "geo_index_update_failed", "Failed to update driver location index", err, map[string]any{
			"driver_id": driverID,
		})
	}

	return nil
}

// newEnvelope stamps cross-cutting headers on an outbound event.
func newEnvelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}
