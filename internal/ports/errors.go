package ports

import "errors"

// Shared outcome errors crossing the service/repository boundary. Wrong-state
// and lost-race conditions are explicit rejections the caller can match on,
// never panics.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrPoolNotOpen       = errors.New("pool is not open")
	ErrPoolFull          = errors.New("pool is at capacity")
	ErrAssignmentTaken   = errors.New("pool assignment already taken")
	ErrDriverUnavailable = errors.New("driver is not available")
)
