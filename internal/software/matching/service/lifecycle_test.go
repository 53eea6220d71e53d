package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
	"ridepool/internal/general/contracts"
	"ridepool/internal/ports"
)

func TestCancelRequestRemovesMember(t *testing.T) {
	env := newTestEnv(testConfig())
	ctx := context.Background()

	first := mustRequest(t, "rider-1", testPickup, testDestination)
	second := mustRequest(t, "rider-2", testPickup, testDestination)
	p := env.seedPool(4, time.Now().UTC().Add(-time.Minute), first, second)
	fareBefore := env.storedPool(p.ID).EstimatedFare

	res, err := env.svc.CancelRequest(ctx, first.ID)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if res.PoolCancelled {
		t.Fatal("pool must survive while members remain")
	}
	if res.Status != ride.StatusCancelled.String() {
		t.Fatalf("status = %q, want cancelled", res.Status)
	}

	stored := env.storedPool(p.ID)
	if stored.Status != pool.StatusOpen || stored.MemberCount != 1 {
		t.Fatalf("pool = %s/%d members, want open/1", stored.Status, stored.MemberCount)
	}
	if want := fareBefore - first.FareEstimate; math.Abs(stored.EstimatedFare-want) > 1e-9 {
		t.Fatalf("pool fare = %v, want %v", stored.EstimatedFare, want)
	}
	if got := env.membershipCount(p.ID); got != 1 {
		t.Fatalf("memberships = %d, want 1", got)
	}
	if r := env.storedRequest(first.ID); r.Status != ride.StatusCancelled {
		t.Fatalf("request status = %s, want cancelled", r.Status)
	}
	// the remaining member keeps its visiting orders untouched
	if r := env.storedRequest(second.ID); r.Status != ride.StatusMatched {
		t.Fatalf("other member status = %s, want matched", r.Status)
	}
}

func TestCancelLastMemberCancelsPool(t *testing.T) {
	env := newTestEnv(testConfig())
	ctx := context.Background()

	only := mustRequest(t, "rider-1", testPickup, testDestination)
	p := env.seedPool(4, time.Now().UTC().Add(-time.Minute), only)

	res, err := env.svc.CancelRequest(ctx, only.ID)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if !res.PoolCancelled {
		t.Fatal("last member leaving must cancel the pool")
	}

	stored := env.storedPool(p.ID)
	if stored.Status != pool.StatusCancelled {
		t.Fatalf("pool status = %s, want cancelled", stored.Status)
	}

	// pending dispatch work for the dead pool is suppressed
	if !env.scheduler.hasCancelled(ports.DispatchTaskKey(p.ID)) {
		t.Fatal("dispatch task not cancelled")
	}
	if !env.scheduler.hasCancelled(ports.OfferTimerKey(p.ID)) {
		t.Fatal("offer timer not cancelled")
	}

	tags := env.broadcast.poolTags()
	if len(tags) != 1 || tags[0] != contracts.TagPoolCancelled {
		t.Fatalf("broadcast tags = %v, want [pool_cancelled]", tags)
	}
}

func TestCancelRequestTerminalStatus(t *testing.T) {
	env := newTestEnv(testConfig())
	ctx := context.Background()

	only := mustRequest(t, "rider-1", testPickup, testDestination)
	env.seedPool(4, time.Now().UTC().Add(-time.Minute), only)

	if _, err := env.svc.CancelRequest(ctx, only.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	_, err := env.svc.CancelRequest(ctx, only.ID)
	if !errors.Is(err, ride.ErrInvalidStatusTransition) {
		t.Fatalf("second cancel err = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestCancelRequestNotFound(t *testing.T) {
	env := newTestEnv(testConfig())

	_, err := env.svc.CancelRequest(context.Background(), "req-missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancelRequestWithoutPool(t *testing.T) {
	env := newTestEnv(testConfig())
	ctx := context.Background()

	// a pending request that was never pooled
	r := mustRequest(t, "rider-1", testPickup, testDestination)
	env.st.mu.Lock()
	r.ID = "req-solo"
	env.st.requests[r.ID] = r
	env.st.mu.Unlock()

	res, err := env.svc.CancelRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if res.PoolCancelled {
		t.Fatal("unpooled request cannot cancel a pool")
	}
	if stored := env.storedRequest(r.ID); stored.Status != ride.StatusCancelled {
		t.Fatalf("request status = %s, want cancelled", stored.Status)
	}
}

func TestPoolStatus(t *testing.T) {
	env := newTestEnv(testConfig())
	ctx := context.Background()

	first := mustRequest(t, "rider-1", testPickup, testDestination)
	second := mustRequest(t, "rider-2", testPickup, testDestination)
	p := env.seedPool(4, time.Now().UTC().Add(-2*time.Minute), first, second)

	res, err := env.svc.PoolStatus(ctx, p.ID)
	if err != nil {
		t.Fatalf("PoolStatus: %v", err)
	}

	if res.PoolID != p.ID || res.Status != pool.StatusOpen.String() {
		t.Fatalf("pool = %s/%s, want %s/open", res.PoolID, res.Status, p.ID)
	}
	if res.CurrentRiders != 2 || res.MaxRiders != 4 || res.IsFull {
		t.Fatalf("occupancy = %d/%d full=%v, want 2/4 false", res.CurrentRiders, res.MaxRiders, res.IsFull)
	}
	if res.TimeElapsedMinutes < 1.9 || res.TimeElapsedMinutes > 3 {
		t.Fatalf("elapsed = %v min, want about 2", res.TimeElapsedMinutes)
	}
	if res.TimeRemainingMinutes <= 0 || res.TimeRemainingMinutes > 8.1 {
		t.Fatalf("remaining = %v min, want about 8", res.TimeRemainingMinutes)
	}
	if len(res.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(res.Members))
	}
	if res.Members[0].PickupOrder != 1 || res.Members[1].PickupOrder != 2 {
		t.Fatalf("pickup orders = %d,%d, want 1,2", res.Members[0].PickupOrder, res.Members[1].PickupOrder)
	}
}

func TestPoolStatusNotFound(t *testing.T) {
	env := newTestEnv(testConfig())

	_, err := env.svc.PoolStatus(context.Background(), "pool-missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
