// Package repository defines error types that are reused across the
// persistence and service layers. These sentinel values allow higher
// layers such as handlers to distinguish between failure scenarios:
// ErrNotFound maps to 404, ErrConflict to 409 (overlapping window or a
// transition rejected by the state machine), ErrForbidden to 403.
package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a booking or resource cannot be located
// by id or check-in code. Handlers should translate this into an HTTP
// 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation cannot proceed because of
// conflicting state, such as an overlapping booking on the same
// resource or a lifecycle transition from an invalid status. Handlers
// should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own without an elevated role. Handlers should
// translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ValidationError is returned when the policy gateway rejects a
// prospective booking. It carries the individual violations so clients
// can present them.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking violates policy: %s", strings.Join(e.Violations, ", "))
}
