package postgres

import (
	"context"
	"fmt"
	"time"

	"ridepool/internal/domain/pool"
	"ridepool/internal/ports"

	"github.com/jackc/pgx/v5"
)

// PoolRepo persists pools using pgx and plain SQL. Every state transition is
// a guarded UPDATE whose WHERE clause encodes the precondition, so two
// concurrent callers can never both succeed.
type PoolRepo struct{}

// NewPoolRepo constructs a new PoolRepo.
func NewPoolRepo() ports.PoolRepository {
	return &PoolRepo{}
}

const poolColumns = `
	id, created_at, updated_at, status, max_riders,
	max_wait_time_sec, member_count, closed_at, estimated_fare`

// Create inserts a new open pool row.
func (repo *PoolRepo) Create(ctx context.Context, p *pool.Pool) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO pools (status, max_riders, max_wait_time_sec, member_count, estimated_fare)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`,
		p.Status.String(),
		p.MaxRiders,
		int(p.MaxWaitTime/time.Second),
		p.MemberCount,
		p.EstimatedFare,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}

	return nil
}

// GetByID fetches a pool by primary key (uuid).
func (repo *PoolRepo) GetByID(ctx context.Context, id string) (*pool.Pool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT`+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	return p, nil
}

// FindOpenSince returns open pools created at or after the cutoff, oldest first.
func (repo *PoolRepo) FindOpenSince(ctx context.Context, cutoff time.Time) ([]*pool.Pool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT`+poolColumns+`
		FROM pools
		WHERE status = 'open' AND created_at >= $1
		ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query open pools: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// ClaimSlot atomically takes one seat in an open pool and returns the new
// member count. The single guarded UPDATE is the serialization point for
// concurrent joins.
func (repo *PoolRepo) ClaimSlot(ctx context.Context, poolID string) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRow(ctx, `
		UPDATE pools
		SET member_count = member_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'open'
		  AND member_count < max_riders
		RETURNING member_count
	`, poolID).Scan(&count)
	if err == nil {
		return count, nil
	}
	if err != pgx.ErrNoRows {
		return 0, fmt.Errorf("claim pool slot: %w", err)
	}

	// the guarded update matched nothing; distinguish why for the caller
	var status string
	var memberCount, maxRiders int
	err = tx.QueryRow(ctx, `
		SELECT status, member_count, max_riders FROM pools WHERE id = $1
	`, poolID).Scan(&status, &memberCount, &maxRiders)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ports.ErrNotFound
		}
		return 0, err
	}
	if status != pool.StatusOpen.String() {
		return 0, ports.ErrPoolNotOpen
	}
	return 0, ports.ErrPoolFull
}

// ReleaseSlot gives a seat back after a member cancellation.
func (repo *PoolRepo) ReleaseSlot(ctx context.Context, poolID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET member_count = member_count - 1,
		    updated_at = now()
		WHERE id = $1 AND member_count > 0
	`, poolID)
	if err != nil {
		return fmt.Errorf("release pool slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// MarkFilled transitions open -> filled and stamps closed_at. A false result
// means the pool was no longer open (already filled, expired, or cancelled).
func (repo *PoolRepo) MarkFilled(ctx context.Context, poolID string, closedAt time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET status = 'filled',
		    closed_at = $1,
		    updated_at = now()
		WHERE id = $2 AND status = 'open'
	`, closedAt, poolID)
	if err != nil {
		return false, fmt.Errorf("mark pool filled: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ClaimAssignment transitions filled -> driver_assigned. Exactly one caller
// per pool observes true.
func (repo *PoolRepo) ClaimAssignment(ctx context.Context, poolID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET status = 'driver_assigned',
		    updated_at = now()
		WHERE id = $1 AND status = 'filled'
	`, poolID)
	if err != nil {
		return false, fmt.Errorf("claim pool assignment: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkCancelled transitions any non-terminal status to cancelled. A false
// result means the pool was already terminal.
func (repo *PoolRepo) MarkCancelled(ctx context.Context, poolID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'expired', 'cancelled')
	`, poolID)
	if err != nil {
		return false, fmt.Errorf("mark pool cancelled: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// AddEstimatedFare accumulates a member's fare share onto the pool total.
// A negative delta subtracts (member cancellation).
func (repo *PoolRepo) AddEstimatedFare(ctx context.Context, poolID string, delta float64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET estimated_fare = GREATEST(estimated_fare + $1, 0),
		    updated_at = now()
		WHERE id = $2
	`, delta, poolID)
	if err != nil {
		return fmt.Errorf("add pool estimated fare: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// ExpireOverdue transitions open pools past their own wait window to expired
// and returns them. Each pool is judged against its stored max_wait_time_sec,
// not a global cutoff. Pools already expired are not matched, so re-runs are
// no-ops.
func (repo *PoolRepo) ExpireOverdue(ctx context.Context, now time.Time) ([]*pool.Pool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE pools
		SET status = 'expired',
		    closed_at = now(),
		    updated_at = now()
		WHERE status = 'open'
		  AND created_at + make_interval(secs => max_wait_time_sec) < $1
		RETURNING`+poolColumns,
		now)
	if err != nil {
		return nil, fmt.Errorf("expire open pools: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// --- helpers ---

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (*pool.Pool, error) {
	var p pool.Pool
	var status string
	var maxWaitSec int

	err := row.Scan(
		&p.ID, &p.CreatedAt, &p.UpdatedAt, &status, &p.MaxRiders,
		&maxWaitSec, &p.MemberCount, &p.ClosedAt, &p.EstimatedFare,
	)
	if err != nil {
		return nil, err
	}
	if p.Status, err = pool.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("pool %s: %w", p.ID, err)
	}
	p.MaxWaitTime = time.Duration(maxWaitSec) * time.Second

	return &p, nil
}

func collectPools(rows pgx.Rows) ([]*pool.Pool, error) {
	var pools []*pool.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return pools, nil
}
