package scheduler

import (
	"context"
	"sync"
	"time"

	"ridepool/internal/general/logger"
	"ridepool/internal/ports"
)

// Scheduler runs keyed one-shot timers in-process. Scheduling a key that is
// already pending replaces the previous timer; Cancel suppresses a pending
// timer before it fires. Tasks already running cannot be cancelled, so
// handlers must stay idempotent.
type Scheduler struct {
	logger *logger.Logger
	ctx    context.Context // base context for task execution

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// New constructs a Scheduler whose tasks run under ctx.
func New(ctx context.Context, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		ctx:    context.WithoutCancel(ctx),
		timers: make(map[string]*time.Timer),
	}
}

var _ ports.TaskScheduler = (*Scheduler)(nil)

// Schedule runs fn after delay unless the key is cancelled first.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// replace any pending timer for the same key
	if prev, ok := s.timers[key]; ok {
		if prev.Stop() {
			s.wg.Done()
		}
	}

	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		// drop our own entry, but never one that replaced us
		s.mu.Lock()
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error(s.ctx, "scheduled_task_panic", "Scheduled task panicked", nil, map[string]any{
					"key":   key,
					"panic": p,
				})
			}
		}()

		fn(s.ctx)
	})
	s.timers[key] = t
}

// Cancel suppresses a pending task. Cancelling an unknown or already-fired
// key is a no-op.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		if t.Stop() {
			// timer never fired, so its goroutine never runs
			s.wg.Done()
		}
		delete(s.timers, key)
	}
}

// Wait blocks until every fired task has finished. Used on shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
