package ride

import (
	"errors"
	"strings"
)

// Status is a ride request status as stored in the `ride_requests` table.
type Status string

const (
	StatusPending        Status = "pending"
	StatusMatched        Status = "matched"
	StatusDriverAssigned Status = "driver_assigned"
	StatusPickedUp       Status = "picked_up"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid ride request status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed request status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusMatched, StatusDriverAssigned, StatusPickedUp, StatusCompleted, StatusCancelled:
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
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusMatched || next == StatusCancelled

	case StatusMatched:
		return next == StatusDriverAssigned || next == StatusCancelled

	case StatusDriverAssigned:
		return next == StatusPickedUp || next == StatusCancelled

	case StatusPickedUp:
		return next == StatusCompleted || next == StatusCancelled

	case StatusCompleted, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}
