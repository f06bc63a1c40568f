package order

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderIsNotConstructed is returned when an Order was not created
	// through NewOrder or RestoreOrder.
	ErrOrderIsNotConstructed = errors.New("Order must be created via NewOrder constructor")

	// ErrStaleEvent marks an event whose sequence key is not greater than the
	// stored one. It is a silent no-op, not a failure.
	ErrStaleEvent = errors.New("stale event")

	// ErrInvalidTransition marks an event that names an edge missing from the
	// lifecycle graph.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrFailureReasonIsRequired is returned when failing an order without a reason.
	ErrFailureReasonIsRequired = errors.New("failure reason is required")
)

// StaleEventError carries the sequence numbers of a discarded event.
type StaleEventError struct {
	Sequence int64
	Stored   int64
}

func (e *StaleEventError) Error() string {
	return fmt.Sprintf("%s: sequence %d is not greater than stored %d", ErrStaleEvent, e.Sequence, e.Stored)
}

func (e *StaleEventError) Unwrap() error {
	return ErrStaleEvent
}

// InvalidTransitionError names the rejected edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func NewInvalidTransitionError(from, to Status) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
