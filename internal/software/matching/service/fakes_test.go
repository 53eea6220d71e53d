package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/general/config"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/logger"
	"ridepool/internal/ports"
	"ridepool/internal/routing"
)

// memState is the shared in-memory store behind the fake repositories. The
// fake unit of work holds the mutex for the whole transaction and restores a
// snapshot on error, so transactions are serialized and rollback works.
type memState struct {
	mu sync.Mutex

	poolSeq   int
	reqSeq    int
	memberSeq int

	pools       map[string]*pool.Pool
	requests    map[string]*ride.Request
	memberships map[string]*pool.Membership
}

func newMemState() *memState {
	return &memState{
		pools:       make(map[string]*pool.Pool),
		requests:    make(map[string]*ride.Request),
		memberships: make(map[string]*pool.Membership),
	}
}

type memSnap struct {
	pools       map[string]*pool.Pool
	requests    map[string]*ride.Request
	memberships map[string]*pool.Membership
}

func (st *memState) snapshot() memSnap {
	s := memSnap{
		pools:       make(map[string]*pool.Pool, len(st.pools)),
		requests:    make(map[string]*ride.Request, len(st.requests)),
		memberships: make(map[string]*pool.Membership, len(st.memberships)),
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
	return s
}

func (st *memState) restore(s memSnap) {
	st.pools = s.pools
	st.requests = s.requests
	st.memberships = s.memberships
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

// The fakes never lock: the fake unit of work already holds the store mutex
// for the duration of the transaction.

type fakeRideRepo struct{ st *memState }

func (r *fakeRideRepo) Create(ctx context.Context, request *ride.Request) error {
	r.st.reqSeq++
	request.ID = fmt.Sprintf("req-%04d", r.st.reqSeq)
	cp := *request
	r.st.requests[request.ID] = &cp
	return nil
}

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

type fakePoolRepo struct{ st *memState }

func (r *fakePoolRepo) Create(ctx context.Context, p *pool.Pool) error {
	r.st.poolSeq++
	p.ID = fmt.Sprintf("pool-%04d", r.st.poolSeq)
	cp := *p
	r.st.pools[p.ID] = &cp
	return nil
}

func (r *fakePoolRepo) GetByID(ctx context.Context, id string) (*pool.Pool, error) {
	stored, ok := r.st.pools[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (r *fakePoolRepo) FindOpenSince(ctx context.Context, cutoff time.Time) ([]*pool.Pool, error) {
	var out []*pool.Pool
	for _, p := range r.st.pools {
		if p.Status == pool.StatusOpen && !p.CreatedAt.Before(cutoff) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakePoolRepo) ClaimSlot(ctx context.Context, poolID string) (int, error) {
	p, ok := r.st.pools[poolID]
	if !ok {
		return 0, ports.ErrNotFound
	}
	if p.Status != pool.StatusOpen {
		return 0, ports.ErrPoolNotOpen
	}
	if p.MemberCount >= p.MaxRiders {
		return 0, ports.ErrPoolFull
	}
	p.MemberCount++
	return p.MemberCount, nil
}

func (r *fakePoolRepo) ReleaseSlot(ctx context.Context, poolID string) error {
	p, ok := r.st.pools[poolID]
	if !ok || p.MemberCount == 0 {
		return ports.ErrNotFound
	}
	p.MemberCount--
	return nil
}

func (r *fakePoolRepo) MarkFilled(ctx context.Context, poolID string, closedAt time.Time) (bool, error) {
	p, ok := r.st.pools[poolID]
	if !ok {
		return false, ports.ErrNotFound
	}
	if p.Status != pool.StatusOpen {
		return false, nil
	}
	p.Status = pool.StatusFilled
	p.ClosedAt = &closedAt
	return true, nil
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
	p, ok := r.st.pools[poolID]
	if !ok {
		return false, ports.ErrNotFound
	}
	if p.Status.Terminal() {
		return false, nil
	}
	p.Status = pool.StatusCancelled
	return true, nil
}

func (r *fakePoolRepo) AddEstimatedFare(ctx context.Context, poolID string, delta float64) error {
	p, ok := r.st.pools[poolID]
	if !ok {
		return ports.ErrNotFound
	}
	p.EstimatedFare += delta
	if p.EstimatedFare < 0 {
		p.EstimatedFare = 0
	}
	return nil
}

func (r *fakePoolRepo) ExpireOverdue(ctx context.Context, now time.Time) ([]*pool.Pool, error) {
	var out []*pool.Pool
	closed := now
	for _, p := range r.st.pools {
		if p.Status == pool.StatusOpen && p.CreatedAt.Add(p.MaxWaitTime).Before(now) {
			p.Status = pool.StatusExpired
			p.ClosedAt = &closed
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeMemberRepo struct{ st *memState }

func (r *fakeMemberRepo) ReplaceForPool(ctx context.Context, poolID string, members []*pool.Membership) error {
	for id, m := range r.st.memberships {
		if m.PoolID == poolID {
			delete(r.st.memberships, id)
		}
	}
	for _, m := range members {
		r.st.memberSeq++
		m.ID = fmt.Sprintf("mem-%04d", r.st.memberSeq)
		cp := *m
		r.st.memberships[m.ID] = &cp
	}
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
	for _, m := range r.st.memberships {
		if m.RideRequestID == rideRequestID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (r *fakeMemberRepo) Delete(ctx context.Context, membershipID string) error {
	if _, ok := r.st.memberships[membershipID]; !ok {
		return ports.ErrNotFound
	}
	delete(r.st.memberships, membershipID)
	return nil
}

// --- collaborators ---

type fakeBroadcaster struct {
	mu           sync.Mutex
	poolEvents   []contracts.Event
	driverEvents []contracts.Event
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
	b.driverEvents = append(b.driverEvents, event)
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

func (s *fakeScheduler) run(ctx context.Context, key string) bool {
	s.mu.Lock()
	fn, ok := s.tasks[key]
	delete(s.tasks, key)
	s.mu.Unlock()
	if !ok {
		return false
	}
	fn(ctx)
	return true
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

type fakeDispatch struct {
	mu         sync.Mutex
	dispatched []string
}

func (d *fakeDispatch) Dispatch(ctx context.Context, poolID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, poolID)
	return nil
}

func (d *fakeDispatch) Accept(ctx context.Context, driverID, poolID string) (ports.AcceptResult, error) {
	return ports.AcceptResult{}, nil
}

func (d *fakeDispatch) Decline(ctx context.Context, driverID, poolID string) error { return nil }

func (d *fakeDispatch) CheckTimeout(ctx context.Context, poolID string) {}

func (d *fakeDispatch) UpdateDriverLocation(ctx context.Context, driverID string, latitude, longitude float64) error {
	return nil
}

// --- test wiring ---

type testEnv struct {
	st        *memState
	svc       *matchingService
	broadcast *fakeBroadcaster
	scheduler *fakeScheduler
	dispatch  *fakeDispatch
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
	broadcast := &fakeBroadcaster{}
	scheduler := newFakeScheduler()
	dispatch := &fakeDispatch{}

	svc := NewMatchingService(
		logger.New("pool-service-test"),
		cfg,
		&fakeUow{st: st},
		&fakeRideRepo{st: st},
		&fakePoolRepo{st: st},
		&fakeMemberRepo{st: st},
		routing.NewSequencer(),
		broadcast,
		scheduler,
		dispatch,
	).(*matchingService)

	return &testEnv{st: st, svc: svc, broadcast: broadcast, scheduler: scheduler, dispatch: dispatch}
}

// seedPool inserts a pool with the given member requests directly into the
// store, bypassing the service.
func (env *testEnv) seedPool(maxRiders int, createdAt time.Time, requests ...*ride.Request) *pool.Pool {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()

	env.st.poolSeq++
	p := &pool.Pool{
		ID:          fmt.Sprintf("pool-%04d", env.st.poolSeq),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Status:      pool.StatusOpen,
		MaxRiders:   maxRiders,
		MaxWaitTime: 10 * time.Minute,
		MemberCount: len(requests),
	}
	env.st.pools[p.ID] = p

	for i, r := range requests {
		env.st.reqSeq++
		r.ID = fmt.Sprintf("req-%04d", env.st.reqSeq)
		r.Status = ride.StatusMatched
		cp := *r
		env.st.requests[r.ID] = &cp
		p.EstimatedFare += r.FareEstimate

		env.st.memberSeq++
		env.st.memberships[fmt.Sprintf("mem-%04d", env.st.memberSeq)] = &pool.Membership{
			ID:            fmt.Sprintf("mem-%04d", env.st.memberSeq),
			PoolID:        p.ID,
			RideRequestID: r.ID,
			PickupOrder:   i + 1,
			DropoffOrder:  i + 1,
			JoinedAt:      createdAt,
		}
	}

	return p
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

func (env *testEnv) storedRequest(id string) *ride.Request {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()
	if r, ok := env.st.requests[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (env *testEnv) membershipCount(poolID string) int {
	env.st.mu.Lock()
	defer env.st.mu.Unlock()
	n := 0
	for _, m := range env.st.memberships {
		if m.PoolID == poolID {
			n++
		}
	}
	return n
}
