package service

import (
	"ridepool/internal/general/config"
	"ridepool/internal/general/logger"
	"ridepool/internal/ports"
	"ridepool/internal/routing"
)

// matchingService groups ride requests into pools and manages the pool
// lifecycle up to the moment dispatch takes over.
type matchingService struct {
	logger      *logger.Logger
	cfg         *config.Config
	uow         ports.UnitOfWork
	rideRepo    ports.RideRequestRepository
	poolRepo    ports.PoolRepository
	memberRepo  ports.MembershipRepository
	sequencer   *routing.Sequencer
	broadcaster ports.Broadcaster
	scheduler   ports.TaskScheduler
	dispatch    ports.DispatchService
}

// NewMatchingService creates a new matching service with the provided dependencies.
func NewMatchingService(
	logger *logger.Logger,
	cfg *config.Config,
	uow ports.UnitOfWork,
	rideRepo ports.RideRequestRepository,
	poolRepo ports.PoolRepository,
	memberRepo ports.MembershipRepository,
	sequencer *routing.Sequencer,
	broadcaster ports.Broadcaster,
	scheduler ports.TaskScheduler,
	dispatch ports.DispatchService,
) ports.MatchingService {
	return &matchingService{
		logger:      logger,
		cfg:         cfg,
		uow:         uow,
		rideRepo:    rideRepo,
		poolRepo:    poolRepo,
		memberRepo:  memberRepo,
		sequencer:   sequencer,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		dispatch:    dispatch,
	}
}
