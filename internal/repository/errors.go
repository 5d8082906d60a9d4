// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the reconciliation engine to distinguish between failure
// scenarios with errors.Is. For example, ErrVersionConflict signals that
// an optimistic update lost the race and the caller must re-read and
// retry, while ErrInvalidTransition means the requested state change is
// not an edge of the booking lifecycle graph.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrBookingNotFound is returned when no booking matches the given
// identifier or gateway order id. Handlers translate this into 404;
// the webhook path treats an unknown order as a no-op.
var ErrBookingNotFound = errors.New("booking not found")

// ErrInvalidTransition is returned when a requested state change does
// not follow the booking lifecycle graph, or when an order is attached
// to a booking that already has a live one. The booking is left
// unchanged. Handlers translate this into HTTP 409.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrVersionConflict is returned when an optimistic update finds that
// the stored version no longer matches the version the caller read.
// The caller must re-read the booking and retry the transition.
var ErrVersionConflict = errors.New("version conflict")

// ErrEventSeen is returned by the processed-event set when the gateway
// event id has already been recorded. The reconciliation engine treats
// this as a successful replay and applies nothing.
var ErrEventSeen = errors.New("gateway event already processed")
