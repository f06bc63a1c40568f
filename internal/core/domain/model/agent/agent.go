package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

// Domain errors for agent operations.
var (
	// ErrAgentIsNotConstructed is returned when using an Agent that was not
	// built by NewAgent or RestoreAgent.
	ErrAgentIsNotConstructed = errors.New("Agent must be created via NewAgent constructor")
	// ErrNameIsRequired is returned when registering an agent without a name.
	ErrNameIsRequired = errs.NewValueIsRequiredError("name")
	// ErrAgentNotAvailable is returned when offering an order to an agent that
	// is assigned or offline.
	ErrAgentNotAvailable = errors.New("agent is not available")
	// ErrAgentNotServingOrder is returned when releasing an order the agent
	// does not hold.
	ErrAgentNotServingOrder = errors.New("agent is not serving the order")
	// ErrAvailabilityChangeNotAllowed is returned when an assigned agent tries
	// to change its availability directly.
	ErrAvailabilityChangeNotAllowed = errors.New("availability change is not allowed while assigned")
	// ErrStaleUpdate marks an agent report whose sequence key is not greater
	// than the stored one.
	ErrStaleUpdate = errors.New("stale agent update")
)

// Agent is the aggregate root for a delivery agent.
//
// Invariants:
//   - a new agent is offline
//   - availability is Assigned if and only if activeOrderID is set
//   - sequence only grows; it orders externally reported agent events
//   - locationUpdatedAt is zero exactly when no location was ever reported
//
// Assignment and release are driven by the dispatch matcher and the order state
// machine, not by external reports, so they do not consume a sequence key.
type Agent struct {
	id                kernel.ID
	name              string
	availability      Availability
	location          kernel.Location
	locationUpdatedAt time.Time
	activeOrderID     *kernel.ID
	sequence          int64
	registeredAt      time.Time
	version           int64
	guard             guard.ConstructorGuard
}

// Snapshot is the flat persistence form of an Agent.
type Snapshot struct {
	ID                kernel.ID
	Name              string
	Availability      Availability
	Location          *kernel.Location
	LocationUpdatedAt time.Time
	ActiveOrderID     *kernel.ID
	Sequence          int64
	RegisteredAt      time.Time
	Version           int64
}

// NewAgent registers an agent. The agent starts offline, optionally with an
// initial location; it becomes matchable once it has a fresh location and goes
// online.
func NewAgent(
	id kernel.ID,
	name string,
	location *kernel.Location,
	sequence int64,
	registeredAt time.Time,
) (*Agent, error) {
	a := &Agent{
		availability: Offline,
		registeredAt: registeredAt.UTC(),
		guard:        guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		a.setID(id),
		a.setName(name),
		a.setSequence(sequence),
	); err != nil {
		return nil, err
	}

	if location != nil {
		if err := location.Validate(); err != nil {
			return nil, err
		}
		a.location = *location
		a.locationUpdatedAt = a.registeredAt
	}

	return a, nil
}

// RestoreAgent rebuilds an Agent from storage and re-checks the pairing rule
// between availability and active order.
func RestoreAgent(s Snapshot) (*Agent, error) {
	a := &Agent{
		registeredAt:      s.RegisteredAt.UTC(),
		locationUpdatedAt: s.LocationUpdatedAt.UTC(),
		version:           s.Version,
		guard:             guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		a.setID(s.ID),
		a.setName(s.Name),
		a.setAvailability(s.Availability),
		a.setSequence(s.Sequence),
	); err != nil {
		return nil, err
	}

	if s.Location != nil {
		if err := s.Location.Validate(); err != nil {
			return nil, err
		}
		a.location = *s.Location
	} else {
		a.locationUpdatedAt = time.Time{}
	}

	if s.ActiveOrderID != nil {
		id := *s.ActiveOrderID
		a.activeOrderID = &id
	}
	if (a.availability == Assigned) != (a.activeOrderID != nil) {
		return nil, errs.NewValueIsInvalidErrorWithCause(
			"active order id",
			fmt.Errorf("%s agent must have an active order only when assigned", a.availability),
		)
	}

	return a, nil
}

func (a *Agent) Validate() error {
	if a == nil {
		return ErrAgentIsNotConstructed
	}
	return a.guard.Validate(ErrAgentIsNotConstructed)
}

func (a *Agent) IsEqual(other *Agent) bool {
	return other != nil && a.id.IsEqual(other.id)
}

func (a *Agent) ID() kernel.ID                { return a.id }
func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Availability() Availability   { return a.availability }
func (a *Agent) Sequence() int64              { return a.sequence }
func (a *Agent) RegisteredAt() time.Time      { return a.registeredAt }
func (a *Agent) LocationUpdatedAt() time.Time { return a.locationUpdatedAt }
func (a *Agent) Version() int64               { return a.version }

// Location returns the last reported position and whether one exists.
func (a *Agent) Location() (kernel.Location, bool) {
	return a.location, !a.locationUpdatedAt.IsZero()
}

// ActiveOrderID returns a copy of the order being served, or nil.
func (a *Agent) ActiveOrderID() *kernel.ID {
	if a.activeOrderID == nil {
		return nil
	}
	id := *a.activeOrderID
	return &id
}

// SetVersion is called by repositories after a successful write.
func (a *Agent) SetVersion(version int64) {
	a.version = version
}

func (a *Agent) Snapshot() Snapshot {
	s := Snapshot{
		ID:                a.id,
		Name:              a.name,
		Availability:      a.availability,
		LocationUpdatedAt: a.locationUpdatedAt,
		ActiveOrderID:     a.ActiveOrderID(),
		Sequence:          a.sequence,
		RegisteredAt:      a.registeredAt,
		Version:           a.version,
	}
	if loc, ok := a.Location(); ok {
		s.Location = &loc
	}
	return s
}

// IsFresh reports whether the agent has a location reported within ttl of now.
func (a *Agent) IsFresh(now time.Time, ttl time.Duration) bool {
	if a.locationUpdatedAt.IsZero() {
		return false
	}
	return now.Sub(a.locationUpdatedAt) <= ttl
}

// IsMatchable reports whether the matcher may offer an order to this agent.
func (a *Agent) IsMatchable(now time.Time, ttl time.Duration) bool {
	return a.availability == Available && a.IsFresh(now, ttl)
}

// UpdateLocation records a position report.
func (a *Agent) UpdateLocation(location kernel.Location, sequence int64, at time.Time) error {
	if err := a.checkReport(sequence); err != nil {
		return err
	}
	if err := location.Validate(); err != nil {
		return err
	}

	a.location = location
	a.locationUpdatedAt = at.UTC()
	a.sequence = sequence
	return nil
}

// GoOnline makes an offline agent available. It is a no-op for an agent that
// is already available.
func (a *Agent) GoOnline(sequence int64) error {
	return a.changeAvailability(Available, sequence)
}

// GoOffline takes an available agent out of matching.
func (a *Agent) GoOffline(sequence int64) error {
	return a.changeAvailability(Offline, sequence)
}

// AssignOrder binds an available agent to orderID.
func (a *Agent) AssignOrder(orderID kernel.ID) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := orderID.Validate(); err != nil {
		return err
	}
	if a.availability != Available {
		return fmt.Errorf("%w: agent %s is %s", ErrAgentNotAvailable, a.id, a.availability)
	}

	a.availability = Assigned
	a.activeOrderID = &orderID
	return nil
}

// Release frees the agent from orderID once the order is delivered or failed.
func (a *Agent) Release(orderID kernel.ID) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.activeOrderID == nil || !a.activeOrderID.IsEqual(orderID) {
		return fmt.Errorf("%w: agent %s, order %s", ErrAgentNotServingOrder, a.id, orderID)
	}

	a.availability = Available
	a.activeOrderID = nil
	return nil
}

// MarkOffline is used by the liveness check for agents that stopped reporting.
// Assigned agents are left untouched.
func (a *Agent) MarkOffline() bool {
	if a.availability != Available {
		return false
	}
	a.availability = Offline
	return true
}

func (a *Agent) changeAvailability(next Availability, sequence int64) error {
	if err := a.checkReport(sequence); err != nil {
		return err
	}
	if a.availability == Assigned {
		return ErrAvailabilityChangeNotAllowed
	}

	a.availability = next
	a.sequence = sequence
	return nil
}

func (a *Agent) checkReport(sequence int64) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if sequence <= a.sequence {
		return fmt.Errorf("%w: sequence %d is not greater than stored %d", ErrStaleUpdate, sequence, a.sequence)
	}
	return nil
}

func (a *Agent) setID(id kernel.ID) error {
	if err := id.Validate(); err != nil {
		return errs.NewValueIsRequiredErrorWithCause("agent id", err)
	}
	a.id = id
	return nil
}

func (a *Agent) setName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameIsRequired
	}
	a.name = name
	return nil
}

func (a *Agent) setAvailability(availability Availability) error {
	if err := availability.Validate(); err != nil {
		return err
	}
	a.availability = availability
	return nil
}

func (a *Agent) setSequence(sequence int64) error {
	if sequence <= 0 {
		return errs.NewValueIsInvalidErrorWithCause("sequence", fmt.Errorf("%d is not greater than 0", sequence))
	}
	a.sequence = sequence
	return nil
}
