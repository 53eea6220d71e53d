package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ridepool/internal/domain/driver"
	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/domain/trip"
	"ridepool/internal/general/config"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/logger"
	"ridepool/internal/ports"
)

// memState is the shared in-memory store behind the fake repositories. The
// fake unit of work holds the mutex for the whole transaction and restores a
// snapshot on error, so transactions are serialized and rollback works the
// way it does against the real database.
type memState struct {
	mu sync.Mutex

	tripSeq int

	pools       map[string]*pool.Pool
	requests    map[string]*ride.Request
	memberships map[string]*pool.Membership
	drivers     map[string]*driver.Driver
	trips       map[string]*trip.Trip
}

func newMemState() *memState {
	return &memState{
		pools:       make(map[string]*pool.Pool),
		requests:    make(map[string]*ride.Request),
		memberships: make(map[string]*pool.Membership),
		drivers:     make(map[string]*driver.Driver),
		trips:       make(map[string]*trip.Trip),
	}
}

type memSnap struct {
	pools       map[string]*pool.Pool
	requests    map[string]*ride.Request
	memberships map[string]*pool.Membership
	drivers     map[string]*driver.Driver
	trips       map[string]*trip.Trip
}

func (st *memState) snapshot() memSnap {
	s := memSnap{
		pools:       make(map[string]*pool.Pool, len(st.pools)),
		requests:    make(map[string]*ride.Request, len(st.requests)),
		memberships: make(map[string]*pool.Membership, len(st.memberships)),
		drivers:     make(map[string]*driver.Driver, len(st.drivers)),
		trips:       make(map[string]*trip.Trip, len(st.trips)),
	}
	for id, p := range st.pools {
		cp := *p
		s.pools[id] = &cp
	}
	for id, r := range st.requests {
		cp := *r
		s.requests[id] = &cp
	}
	for id, m := range st.memberships {
		cp := *m
		s.memberships[id] = &cp
	}
	for id, d := range st.drivers {
		cp := *d
		s.drivers[id] = &cp
	}
	for id, t := range st.trips {
		cp := *t
		s.trips[id] = &cp
	}
	return s
}

func (st *memState) restore(s memSnap) {
	st.pools = s.pools
	st.requests = s.requests
	st.memberships = s.memberships
	st.drivers = s.drivers
	st.trips = s.trips
}

// --- unit of work ---

type fakeUow struct{ st *memState }

func (u *fakeUow) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()

	snap := u.st.snapshot()
	if err := fn(ctx); err != nil {
		u.st.restore(snap)
		return err
	}
	return nil
}

// --- repositories ---

type fakePoolRepo struct{ st *memState }

func (r *fakePoolRepo) Create(ctx context.Context, p *pool.Pool) error { return nil }

func (r *fakePoolRepo) GetByID(ctx context.Context, id string) (*pool.Pool, error) {
	stored, ok := r.st.pools[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (r *fakePoolRepo) FindOpenSince(ctx context.Context, cutoff time.Time) ([]*pool.Pool, error) {
	return nil, nil
}

func (r *fakePoolRepo) ClaimSlot(ctx context.Context, poolID string) (int, error) {
	return 0, ports.ErrNotFound
}

func (r *fakePoolRepo) ReleaseSlot(ctx context.Context, poolID string) error { return nil }

func (r *fakePoolRepo) MarkFilled(ctx context.Context, poolID string, closedAt time.Time) (bool, error) {
	return false, nil
}

func (r *fakePoolRepo) ClaimAssignment(ctx context.Context, poolID string) (bool, error) {
	p, ok := r.st.pools[poolID]
	if !ok {
		return false, ports.ErrNotFound
	}
	if p.Status != pool.StatusFilled {
		return false, nil
	}
	p.Status = pool.StatusDriverAssigned
	return true, nil
}

func (r *fakePoolRepo) MarkCancelled(ctx context.Context, poolID string) (bool, error) {
	return false, nil
}

func (r *fakePoolRepo) AddEstimatedFare(ctx context.Context, poolID string, delta float64) error {
	return nil
}

func (r *fakePoolRepo) ExpireOverdue(ctx context.Context, now time.Time) ([]*pool.Pool, error) {
	return nil, nil
}

type fakeRideRepo struct{ st *memState }

func (r *fakeRideRepo) Create(ctx context.Context, request *ride.Request) error { return nil }

func (r *fakeRideRepo) GetByID(ctx context.Context, id string) (*ride.Request, error) {
	stored, ok := r.st.requests[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeRideRepo) UpdateStatus(ctx context.Context, id string, status ride.Status) error {
	stored, ok := r.st.requests[id]
	if !ok {
		return ports.ErrNotFound
	}
	stored.Status = status
	return nil
}

func (r *fakeRideRepo) UpdateStatusForPool(ctx context.Context, poolID string, status ride.Status) error {
	for _, m := range r.st.memberships {
		if m.PoolID != poolID {
			continue
		}
		if stored, ok := r.st.requests[m.RideRequestID]; ok {
			stored.Status = status
		}
	}
	return nil
}

type fakeMemberRepo struct{ st *memState }

func (r *fakeMemberRepo) ReplaceForPool(ctx context.Context, poolID string, members []*pool.Membership) error {
	return nil
}

func (r *fakeMemberRepo) ListForPool(ctx context.Context, poolID string) ([]*pool.Membership, error) {
	var out []*pool.Membership
	for _, m := range r.st.memberships {
		if m.PoolID == poolID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupOrder < out[j].PickupOrder })
	return out, nil
}

func (r *fakeMemberRepo) ListRequestsForPool(ctx context.Context, poolID string) ([]*ride.Request, error) {
	memberships, _ := r.ListForPool(ctx, poolID)
	out := make([]*ride.Request, 0, len(memberships))
	for _, m := range memberships {
		stored, ok := r.st.requests[m.RideRequestID]
		if !ok {
			return nil, ports.ErrNotFound
		}
		cp := *stored
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMemberRepo) GetForRequest(ctx context.Context, rideRequestID string) (*pool.Membership, error) {
	return nil, ports.ErrNotFound
}

func (r *fakeMemberRepo) Delete(ctx context.Context, membershipID string) error { return nil }

type fakeDriverRepo struct{ st *memState }

func (r *fakeDriverRepo) Create(ctx context.Context, d *driver.Driver) error {
	cp := *d
	r.st.drivers[d.ID] = &cp
	return nil
}

func (r *fakeDriverRepo) GetByID(ctx context.Context, driverID string) (*driver.Driver, error) {
	stored, ok := r.st.drivers[driverID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (r *fakeDriverRepo) FindAvailableWithCapacity(ctx context.Context, minCapacity int) ([]*driver.Driver, error) {
	var out []*driver.Driver
	for _, d := range r.st.drivers {
		if d.IsAvailable && d.MaxCapacity >= minCapacity {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDriverRepo) ClaimAvailability(ctx context.Context, driverID string) (bool, error) {
	d, ok := r.st.drivers[driverID]
	if !ok || !d.IsAvailable {
		return false, nil
	}
	d.IsAvailable = false
	return true, nil
}

func (r *fakeDriverRepo) UpdateLocation(ctx context.Context, driverID string, location geo.Point) error {
	d, ok := r.st.drivers[driverID]
	if !ok {
		return ports.ErrNotFound
	}
	d.Location = &location
	return nil
}

type fakeTripRepo struct{ st *memState }

func (r *fakeTripRepo) Create(ctx context.Context, t *trip.Trip) error {
	for _, existing := range r.st.trips {
		if existing.PoolID == t.PoolID {
			return fmt.Errorf("trip for pool %s already exists", t.PoolID)
		}
	}
	r.st.tripSeq++
	t.ID = fmt.Sprintf("trip-%04d", r.st.tripSeq)
	cp := *t
	r.st.trips[t.ID] = &cp
	return nil
}

func (r *fakeTripRepo) GetByPool(ctx context.Context, poolID string) (*trip.Trip, error) {
	for _, t := range r.st.trips {
		if t.PoolID == poolID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ports.ErrNotFound
}

// --- collaborators ---

type fakeBroadcaster struct {
	mu           sync.Mutex
	poolEvents   []contracts.Event
	driverEvents map[string][]contracts.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{driverEvents: make(map[string][]contracts.Event)}
}

func (b *fakeBroadcaster) PoolEvent(ctx context.Context, poolID string, riderIDs []string, event contracts.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poolEvents = append(b.poolEvents, event)
	return nil
}

func (b *fakeBroadcaster) DriverEvent(ctx context.Context, driverID string, event contracts.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driverEvents[driverID] = append(b.driverEvents[driverID], event)
	return nil
}

func (b *fakeBroadcaster) poolTags() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	tags := make([]string, 0, len(b.poolEvents))
	for _, e := range b.poolEvents {
		tags = append(tags, e.EventTag())
	}
	return tags
}

func (b *fakeBroadcaster) offersTo(driverID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.driverEvents[driverID] {
		if e.EventTag() == contracts.TagPoolOffer {
			n++
		}
	}
	return n
}

type fakeScheduler struct {
	mu        sync.Mutex
	tasks     map[string]func(ctx context.Context)
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: make(map[string]func(ctx context.Context))}
}

func (s *fakeScheduler) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[key] = fn
}

func (s *fakeScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, key)
	s.cancelled = append(s.cancelled, key)
}

func (s *fakeScheduler) pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

func (s *fakeScheduler) hasCancelled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.cancelled {
		if k == key {
			return true
		}
	}
	return false
}

// fakeLocations is an in-memory GEO index.
type fakeLocations struct {
	mu        sync.Mutex
	positions map[string]geo.Point
	upsertErr error
}

func newFakeLocations() *fakeLocations {
	return &fakeLocations{positions: make(map[string]geo.Point)}
}

func (l *fakeLocations) Upsert(ctx context.Context, driverID string, p geo.Point) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.upsertErr != nil {
		return l.upsertErr
	}
	l.positions[driverID] = p
	return nil
}

func (l *fakeLocations) Position(ctx context.Context, driverID string) (*geo.Point, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[driverID]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (l *fakeLocations) Remove(ctx context.Context, driverID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, driverID)
	return nil
}

// --- test wiring ---

type testEnv struct {
	st        *memState
	svc       *dispatchService
	broadcast *fakeBroadcaster
	scheduler *fakeScheduler
	locations *fakeLocations
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Pooling.MaxRiders = 4
	cfg.Pooling.MaxWaitTimeMin = 10
	cfg.Pooling.PickupRadiusM = 3000
	cfg.Pooling.DestinationRadiusM = 3000
	cfg.Pooling.MaxDetourPct = 0.15
	cfg.Pooling.MaxAssignmentDistanceM = 10000
	cfg.Pooling.OfferTimeoutSec = 60
	cfg.Pooling.MaxDispatchAttempts = 3
	cfg.Pooling.SweepIntervalSec = 60
	return cfg
}

func newTestEnv(cfg *config.Config) *testEnv {
	st := newMemState()
	broadcast := newFakeBroadcaster()
	scheduler := newFakeScheduler()
	locations := newFakeLocations()

	svc := NewDispatchService(
		logger.New("pool-service-test"),
		cfg,
		&fakeUow{st: st},
		&fakePoolRepo{st: st},
		&fakeMemberRepo{st: st},
		&fakeRideRepo{st: st},
		&fakeDriverRepo{st: st},
		&fakeTripRepo{st: st},
		broadcast,
		scheduler,
		locations,
	).(*dispatchService)

	return &testEnv{st: st, svc: svc, broadcast: broadcast, scheduler: scheduler, locations: locations}
}

// seedFilledPool inserts a filled two-member pool at the given pickup point.
func (env *testEnv) seedFilledPool(poolID string, pickup geo.Point) *pool.Pool {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()

	now := time.Now().UTC()
	destination := geo.Point{Latitude: pickup.Latitude + 0.05, Longitude: pickup.Longitude}

	p := &pool.Pool{
		ID:            poolID,
		CreatedAt:     now.Add(-5 * time.Minute),
		UpdatedAt:     now,
		Status:        pool.StatusFilled,
		MaxRiders:     2,
		MaxWaitTime:   10 * time.Minute,
		MemberCount:   2,
		ClosedAt:      &now,
		EstimatedFare: 25,
	}
	env.st.pools[poolID] = p

	for i := 1; i <= 2; i++ {
		reqID := fmt.Sprintf("%s-req-%d", poolID, i)
		env.st.requests[reqID] = &ride.Request{
			ID:                 reqID,
			RiderID:            fmt.Sprintf("rider-%d", i),
			Pickup:             pickup,
			PickupAddress:      fmt.Sprintf("%d Origin St", i),
			Destination:        destination,
			DestinationAddress: fmt.Sprintf("%d Target Ave", i),
			Status:             ride.StatusMatched,
			FareEstimate:       12.5,
		}
		memID := fmt.Sprintf("%s-mem-%d", poolID, i)
		env.st.memberships[memID] = &pool.Membership{
			ID:            memID,
			PoolID:        poolID,
			RideRequestID: reqID,
			PickupOrder:   i,
			DropoffOrder:  i,
			JoinedAt:      now,
		}
	}

	return p
}

// seedDriver inserts an available driver; a nil location leaves the row
// position unknown.
func (env *testEnv) seedDriver(id string, capacity int, location *geo.Point) *driver.Driver {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()

	d := &driver.Driver{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		Name:         "Driver " + id,
		VehicleType:  "sedan",
		LicensePlate: "PL-" + id,
		MaxCapacity:  capacity,
		IsAvailable:  true,
		Location:     location,
		Rating:       4.8,
	}
	env.st.drivers[id] = d
	return d
}

func (env *testEnv) storedPool(id string) *pool.Pool {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()
	if p, ok := env.st.pools[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (env *testEnv) storedDriver(id string) *driver.Driver {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()
	if d, ok := env.st.drivers[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (env *testEnv) tripForPool(poolID string) *trip.Trip {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()
	for _, t := range env.st.trips {
		if t.PoolID == poolID {
			cp := *t
			return &cp
		}
	}
	return nil
}
