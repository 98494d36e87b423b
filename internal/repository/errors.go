// Package repository contains data access logic separated from HTTP
// handlers and services.  This file defines sentinel error values reused
// across repositories and the service layer, so higher layers can
// distinguish failure scenarios with errors.Is.  Handlers translate them
// into HTTP statuses: not-found → 404, ErrConflict → 409,
// ErrInvalidState → 422, ErrValidation → 400.
package repository

import "errors"

// Not-found sentinels, one per entity.
var (
	ErrActivityNotFound    = errors.New("activity not found")
	ErrUnitNotFound        = errors.New("unit not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrQueueEntryNotFound  = errors.New("queue entry not found")
)

// ErrConflict is returned for slot contention and double-booking: the
// lock was held by another request, or the conflict query found an
// overlapping in-flight reservation or non-terminal session.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned when an operation is attempted from a
// state that forbids it, e.g. resuming a session that is not paused or
// extending one that is.
var ErrInvalidState = errors.New("invalid state")

// ErrValidation is returned for malformed input: duration below the
// activity minimum, an inverted time window, an empty roster.
var ErrValidation = errors.New("validation failed")

// ErrEmailExists is returned by the user repository on duplicate
// registration.
var ErrEmailExists = errors.New("email already exists")
