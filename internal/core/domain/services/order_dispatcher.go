package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"
)

// ErrNoAgentAvailable is returned when the candidate set for an order is empty.
var ErrNoAgentAvailable = errors.New("no agent available")

// Candidate is one agent offered to an order, with its distance to the pickup.
type Candidate struct {
	Agent      *agent.Agent
	DistanceKm float64
}

// OrderDispatcher selects which agents may be offered an order, nearest first.
//
// Business rules:
//   - only available agents with a location reported within LocationTTL qualify
//   - agents further than MaxDistanceKm from the pickup location are excluded
//   - ties on distance are broken by agent id so every instance agrees on order
//
// The dispatcher only ranks; committing an assignment is the caller's job, since
// it must be done with conditional writes against concurrent matchers.
type OrderDispatcher struct {
	maxDistanceKm float64
	locationTTL   time.Duration
}

func NewOrderDispatcher(maxDistanceKm float64, locationTTL time.Duration) (OrderDispatcher, error) {
	if maxDistanceKm <= 0 {
		return OrderDispatcher{}, errs.NewValueIsInvalidErrorWithCause(
			"max distance", fmt.Errorf("%v is not greater than 0", maxDistanceKm))
	}
	if locationTTL <= 0 {
		return OrderDispatcher{}, errs.NewValueIsInvalidErrorWithCause(
			"location ttl", fmt.Errorf("%v is not greater than 0", locationTTL))
	}
	return OrderDispatcher{maxDistanceKm: maxDistanceKm, locationTTL: locationTTL}, nil
}

func (d OrderDispatcher) LocationTTL() time.Duration { return d.locationTTL }

// Candidates returns the ordered candidate set for o, or ErrNoAgentAvailable.
func (d OrderDispatcher) Candidates(o *order.Order, agents []*agent.Agent, now time.Time) ([]Candidate, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Status() != order.ReadyForPickup {
		return nil, order.NewInvalidTransitionError(o.Status(), order.Assigned)
	}

	candidates := make([]Candidate, 0, len(agents))
	for _, a := range agents {
		if a.Validate() != nil || !a.IsMatchable(now, d.locationTTL) {
			continue
		}
		loc, _ := a.Location()
		distance, err := o.Pickup().DistanceKm(loc)
		if err != nil {
			return nil, err
		}
		if distance > d.maxDistanceKm {
			continue
		}
		candidates = append(candidates, Candidate{Agent: a, DistanceKm: distance})
	}

	if len(candidates) == 0 {
		return nil, ErrNoAgentAvailable
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].Agent.ID().Less(candidates[j].Agent.ID())
	})
	return candidates, nil
}
