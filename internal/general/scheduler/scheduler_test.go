package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ridepool/internal/general/logger"
)

func newTestScheduler() *Scheduler {
	return New(context.Background(), logger.New("scheduler-test"))
}

func TestScheduleFires(t *testing.T) {
	s := newTestScheduler()

	done := make(chan struct{})
	s.Schedule("pool-1", 10*time.Millisecond, func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task did not fire")
	}
}

func TestCancelSuppresses(t *testing.T) {
	s := newTestScheduler()

	var fired atomic.Bool
	s.Schedule("pool-1", 50*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})
	s.Cancel("pool-1")

	time.Sleep(150 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled task still fired")
	}
}

func TestCancelUnknownKeyIsNoop(t *testing.T) {
	s := newTestScheduler()
	s.Cancel("never-scheduled")
}

func TestScheduleReplacesPending(t *testing.T) {
	s := newTestScheduler()

	var firstFired, secondFired atomic.Bool
	s.Schedule("pool-1", 50*time.Millisecond, func(ctx context.Context) {
		firstFired.Store(true)
	})
	s.Schedule("pool-1", 10*time.Millisecond, func(ctx context.Context) {
		secondFired.Store(true)
	})

	time.Sleep(200 * time.Millisecond)
	if firstFired.Load() {
		t.Error("replaced task still fired")
	}
	if !secondFired.Load() {
		t.Error("replacement task never fired")
	}
}

func TestConcurrentScheduleAndCancel(t *testing.T) {
	s := newTestScheduler()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		key := "pool-1"
		go func() {
			defer wg.Done()
			s.Schedule(key, time.Millisecond, func(ctx context.Context) {})
		}()
		go func() {
			defer wg.Done()
			s.Cancel(key)
		}()
	}
	wg.Wait()

	// whatever survived the races must still drain cleanly
	s.Wait()
}
