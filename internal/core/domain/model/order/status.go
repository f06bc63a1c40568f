package order

import (
	"fmt"
	"slices"

	"orderdispatch/internal/pkg/errs"
)

// Status represents the lifecycle state of an order.
//
//	placed ──> confirmed ──> ready_for_pickup ──> assigned ──> in_transit ──> delivered
//	  │            │               │    │            │             │
//	  └────────────┴───────────────┘    │            └──────┬──────┘
//	            cancelled               └──────────────> failed
type Status int

const (
	// Unknown is the zero value and never a valid stored status.
	Unknown Status = iota
	Placed
	Confirmed
	ReadyForPickup
	Assigned
	InTransit
	Delivered
	Cancelled
	Failed
)

var statusNames = map[Status]string{
	Unknown:        "unknown",
	Placed:         "placed",
	Confirmed:      "confirmed",
	ReadyForPickup: "ready_for_pickup",
	Assigned:       "assigned",
	InTransit:      "in_transit",
	Delivered:      "delivered",
	Cancelled:      "cancelled",
	Failed:         "failed",
}

// transitions lists, for every non-terminal status, the statuses it may move to.
var transitions = map[Status][]Status{
	Placed:         {Confirmed, Cancelled},
	Confirmed:      {ReadyForPickup, Cancelled},
	ReadyForPickup: {Assigned, Cancelled, Failed},
	Assigned:       {InTransit, Failed},
	InTransit:      {Delivered, Failed},
}

// ParseStatus converts the wire/persistence name back into a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if s != Unknown && n == name {
			return s, nil
		}
	}
	return Unknown, errs.NewValueIsInvalidErrorWithCause("status", fmt.Errorf("%q is not a valid status", name))
}

// Validate checks that s is one of the defined lifecycle statuses.
func (s Status) Validate() error {
	if s <= Unknown || s > Failed {
		return errs.NewValueIsInvalidErrorWithCause("status", fmt.Errorf("%d is not a valid status", s))
	}
	return nil
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[Unknown]
}

// IsTerminal reports whether no further transition is accepted.
func (s Status) IsTerminal() bool {
	return s == Delivered || s == Cancelled || s == Failed
}

// CanTransitionTo reports whether next is an edge of the lifecycle graph.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// TransitionTo returns next if the edge exists, or an InvalidTransitionError.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return s, NewInvalidTransitionError(s, next)
	}
	return next, nil
}

// HasAgent reports whether an order in this status must reference an agent.
func (s Status) HasAgent() bool {
	return s == Assigned || s == InTransit || s == Delivered
}
