package pool

import (
	"errors"
	"strings"
)

// Status is a pool status as stored in the `pools` table.
type Status string

const (
	StatusOpen           Status = "open"
	StatusFilled         Status = "filled"
	StatusDriverAssigned Status = "driver_assigned"
	StatusActive         Status = "active"
	StatusCompleted      Status = "completed"
	StatusExpired        Status = "expired"
	StatusCancelled      Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid pool status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed pool status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusOpen, StatusFilled, StatusDriverAssigned, StatusActive, StatusCompleted, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
// Transitions are strictly forward except cancellation, which is reachable
// from any non-terminal state.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusOpen:
		return next == StatusFilled || next == StatusExpired || next == StatusCancelled

	case StatusFilled:
		return next == StatusDriverAssigned || next == StatusCancelled

	case StatusDriverAssigned:
		return next == StatusActive || next == StatusCancelled

	case StatusActive:
		return next == StatusCompleted || next == StatusCancelled

	case StatusCompleted, StatusExpired, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusExpired || status == StatusCancelled
}
