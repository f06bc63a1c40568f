package agent

import (
	"fmt"

	"orderdispatch/internal/pkg/errs"
)

// Availability tells whether an agent can be offered orders.
type Availability int

const (
	UnknownAvailability Availability = iota
	Available
	Assigned
	Offline
)

var availabilityNames = map[Availability]string{
	UnknownAvailability: "unknown",
	Available:           "available",
	Assigned:            "assigned",
	Offline:             "offline",
}

func ParseAvailability(name string) (Availability, error) {
	for a, n := range availabilityNames {
		if a != UnknownAvailability && n == name {
			return a, nil
		}
	}
	return UnknownAvailability, errs.NewValueIsInvalidErrorWithCause(
		"availability", fmt.Errorf("%q is not a valid availability", name))
}

func (a Availability) Validate() error {
	if a <= UnknownAvailability || a > Offline {
		return errs.NewValueIsInvalidErrorWithCause("availability", fmt.Errorf("%d is not a valid availability", a))
	}
	return nil
}

func (a Availability) String() string {
	if name, ok := availabilityNames[a]; ok {
		return name
	}
	return availabilityNames[UnknownAvailability]
}
