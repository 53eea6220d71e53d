package pool

import (
	"errors"
	"time"
)

// Defaults applied to newly created pools.
const (
	DefaultMaxRiders   = 4
	DefaultMaxWaitTime = 10 * time.Minute
)

// Pool is the domain entity corresponding to the `pools` table.
// MemberCount is maintained on the row itself so capacity can be claimed
// with a single atomic update.
type Pool struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Status        Status
	MaxRiders     int
	MaxWaitTime   time.Duration
	MemberCount   int
	ClosedAt      *time.Time
	EstimatedFare float64
}

var (
	ErrInvalidMaxRiders        = errors.New("max riders must be at least 1")
	ErrInvalidMaxWaitTime      = errors.New("max wait time must be positive")
	ErrInvalidStatusTransition = errors.New("invalid pool status transition")
)

// New creates an empty open pool. A zero maxRiders or maxWaitTime selects
// the default.
func New(maxRiders int, maxWaitTime time.Duration) (*Pool, error) {
	if maxRiders == 0 {
		maxRiders = DefaultMaxRiders
	}
	if maxWaitTime == 0 {
		maxWaitTime = DefaultMaxWaitTime
	}
	if maxRiders < 1 {
		return nil, ErrInvalidMaxRiders
	}
	if maxWaitTime < 0 {
		return nil, ErrInvalidMaxWaitTime
	}

	now := time.Now().UTC()
	return &Pool{
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      StatusOpen,
		MaxRiders:   maxRiders,
		MaxWaitTime: maxWaitTime,
	}, nil
}

// Age returns how long the pool has been waiting since creation.
func (p *Pool) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Expired reports whether the pool exceeded its wait window.
func (p *Pool) Expired(now time.Time) bool {
	return p.Age(now) > p.MaxWaitTime
}

// Full reports whether the pool reached its rider capacity.
func (p *Pool) Full() bool {
	return p.MemberCount >= p.MaxRiders
}
