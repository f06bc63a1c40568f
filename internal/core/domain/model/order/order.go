package order

import (
	"errors"
	"fmt"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"
)

// FailureReason explains why an order ended in Failed.
type FailureReason string

const (
	NoFailure              FailureReason = ""
	ReasonNoAgentAvailable FailureReason = "NoAgentAvailable"
	ReasonAgentUnreachable FailureReason = "AgentUnreachable"
)

// Order is the aggregate root for one delivery order.
//
// Order follows these invariants:
//   - identity, customer, merchant and pickup location never change
//   - status only moves along the edges of the lifecycle graph
//   - sequence strictly increases with every applied transition
//   - agentID is set exactly when the status requires an agent, and kept on
//     a failed order that had one
//
// Version is the optimistic-concurrency token maintained by repositories; the
// aggregate never changes it on its own.
type Order struct {
	id         kernel.ID
	customerID kernel.ID
	merchantID kernel.ID
	pickup     kernel.Location
	agentID    *kernel.ID

	status           Status
	sequence         int64
	createdAt        time.Time
	lastTransitionAt time.Time

	// dispatchAttempts and nextDispatchAt carry the bounded retry schedule so
	// it survives restarts.
	dispatchAttempts int
	nextDispatchAt   *time.Time
	failureReason    FailureReason

	version       int64
	changes       []StatusChanged
	isConstructed bool
}

// Snapshot is the flat persistence form of an Order.
type Snapshot struct {
	ID               kernel.ID
	CustomerID       kernel.ID
	MerchantID       kernel.ID
	Pickup           kernel.Location
	AgentID          *kernel.ID
	Status           Status
	Sequence         int64
	CreatedAt        time.Time
	LastTransitionAt time.Time
	DispatchAttempts int
	NextDispatchAt   *time.Time
	FailureReason    FailureReason
	Version          int64
}

// NewOrder places a new order. The placement itself is the first committed
// transition and is recorded as a change from Unknown to Placed.
func NewOrder(
	id, customerID, merchantID kernel.ID,
	pickup kernel.Location,
	sequence int64,
	placedAt time.Time,
) (*Order, error) {
	o := &Order{
		status:        Placed,
		isConstructed: true,
	}

	if err := errors.Join(
		o.setIDs(id, customerID, merchantID),
		o.setPickup(pickup),
		o.setSequence(sequence),
	); err != nil {
		return nil, err
	}

	o.createdAt = placedAt.UTC()
	o.lastTransitionAt = o.createdAt
	o.record(Unknown, placedAt)
	return o, nil
}

// RestoreOrder rebuilds an Order from storage and re-checks its invariants.
func RestoreOrder(s Snapshot) (*Order, error) {
	o := &Order{
		agentID:          s.AgentID,
		createdAt:        s.CreatedAt.UTC(),
		lastTransitionAt: s.LastTransitionAt.UTC(),
		nextDispatchAt:   s.NextDispatchAt,
		failureReason:    s.FailureReason,
		version:          s.Version,
		isConstructed:    true,
	}

	if err := errors.Join(
		o.setIDs(s.ID, s.CustomerID, s.MerchantID),
		o.setPickup(s.Pickup),
		o.setSequence(s.Sequence),
		o.setStatus(s.Status),
		o.setDispatchAttempts(s.DispatchAttempts),
	); err != nil {
		return nil, err
	}

	if err := o.checkAgentInvariant(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Order) Validate() error {
	if o == nil || !o.isConstructed {
		return ErrOrderIsNotConstructed
	}
	return nil
}

func (o *Order) IsEqual(other *Order) bool {
	return other != nil && o.id.IsEqual(other.id)
}

func (o *Order) ID() kernel.ID                { return o.id }
func (o *Order) CustomerID() kernel.ID        { return o.customerID }
func (o *Order) MerchantID() kernel.ID        { return o.merchantID }
func (o *Order) Pickup() kernel.Location      { return o.pickup }
func (o *Order) Status() Status               { return o.status }
func (o *Order) Sequence() int64              { return o.sequence }
func (o *Order) CreatedAt() time.Time         { return o.createdAt }
func (o *Order) LastTransitionAt() time.Time  { return o.lastTransitionAt }
func (o *Order) DispatchAttempts() int        { return o.dispatchAttempts }
func (o *Order) FailureReason() FailureReason { return o.failureReason }
func (o *Order) Version() int64               { return o.version }

// AgentID returns a copy of the assigned agent, or nil.
func (o *Order) AgentID() *kernel.ID {
	if o.agentID == nil {
		return nil
	}
	id := *o.agentID
	return &id
}

// NextDispatchAt returns when the next dispatch attempt becomes eligible, or nil
// if the first attempt has not been made yet.
func (o *Order) NextDispatchAt() *time.Time {
	if o.nextDispatchAt == nil {
		return nil
	}
	at := *o.nextDispatchAt
	return &at
}

// SetVersion is called by repositories after a successful write.
func (o *Order) SetVersion(version int64) {
	o.version = version
}

func (o *Order) Snapshot() Snapshot {
	return Snapshot{
		ID:               o.id,
		CustomerID:       o.customerID,
		MerchantID:       o.merchantID,
		Pickup:           o.pickup,
		AgentID:          o.AgentID(),
		Status:           o.status,
		Sequence:         o.sequence,
		CreatedAt:        o.createdAt,
		LastTransitionAt: o.lastTransitionAt,
		DispatchAttempts: o.dispatchAttempts,
		NextDispatchAt:   o.NextDispatchAt(),
		FailureReason:    o.failureReason,
		Version:          o.version,
	}
}

// Confirm records the payment confirmation.
func (o *Order) Confirm(sequence int64, at time.Time) error {
	return o.transition(Confirmed, sequence, at, nil)
}

// MarkReady records the merchant's confirmation that the food can be picked up.
func (o *Order) MarkReady(sequence int64, at time.Time) error {
	return o.transition(ReadyForPickup, sequence, at, nil)
}

// AssignAgent binds the order to the agent selected by the matcher.
func (o *Order) AssignAgent(agentID kernel.ID, sequence int64, at time.Time) error {
	if err := agentID.Validate(); err != nil {
		return err
	}
	return o.transition(Assigned, sequence, at, func() {
		o.agentID = &agentID
		o.nextDispatchAt = nil
	})
}

// PickUp records that the agent collected the order.
func (o *Order) PickUp(sequence int64, at time.Time) error {
	return o.transition(InTransit, sequence, at, nil)
}

// Deliver records a completed delivery.
func (o *Order) Deliver(sequence int64, at time.Time) error {
	return o.transition(Delivered, sequence, at, nil)
}

// Cancel records a cancellation.
func (o *Order) Cancel(sequence int64, at time.Time) error {
	return o.transition(Cancelled, sequence, at, nil)
}

// Fail moves the order to the Failed terminal status. Failing straight from
// ReadyForPickup is reserved for an exhausted dispatch budget.
func (o *Order) Fail(reason FailureReason, sequence int64, at time.Time) error {
	if reason == NoFailure {
		return ErrFailureReasonIsRequired
	}
	if o.status == ReadyForPickup && reason != ReasonNoAgentAvailable {
		return NewInvalidTransitionError(o.status, Failed)
	}
	return o.transition(Failed, sequence, at, func() {
		o.failureReason = reason
		o.nextDispatchAt = nil
	})
}

// RecordDispatchMiss counts an attempt that found no agent and schedules the
// next one. It is not a status transition and emits no change.
func (o *Order) RecordDispatchMiss(nextAttemptAt time.Time) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.status != ReadyForPickup {
		return errs.NewValueIsInvalidErrorWithCause(
			"status",
			fmt.Errorf("%s is not a valid status to record a dispatch attempt", o.status),
		)
	}
	o.dispatchAttempts++
	at := nextAttemptAt.UTC()
	o.nextDispatchAt = &at
	return nil
}

// IsDispatchDue reports whether a retry may run at now.
func (o *Order) IsDispatchDue(now time.Time) bool {
	return o.status == ReadyForPickup && (o.nextDispatchAt == nil || !now.Before(*o.nextDispatchAt))
}

// PullChanges returns the transitions applied since the last call and clears them.
func (o *Order) PullChanges() []StatusChanged {
	changes := o.changes
	o.changes = nil
	return changes
}

func (o *Order) transition(next Status, sequence int64, at time.Time, apply func()) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if sequence <= o.sequence {
		return &StaleEventError{Sequence: sequence, Stored: o.sequence}
	}

	newStatus, err := o.status.TransitionTo(next)
	if err != nil {
		return err
	}

	old := o.status
	o.status = newStatus
	o.sequence = sequence
	o.lastTransitionAt = at.UTC()
	if apply != nil {
		apply()
	}

	o.record(old, at)
	return nil
}

func (o *Order) record(old Status, at time.Time) {
	o.changes = append(o.changes, StatusChanged{
		OrderID:    o.id,
		CustomerID: o.customerID,
		MerchantID: o.merchantID,
		OldStatus:  old,
		NewStatus:  o.status,
		Sequence:   o.sequence,
		AgentID:    o.AgentID(),
		Reason:     o.failureReason,
		OccurredAt: at.UTC(),
	})
}

func (o *Order) setIDs(id, customerID, merchantID kernel.ID) error {
	var joined error
	if err := id.Validate(); err != nil {
		joined = errors.Join(joined, errs.NewValueIsRequiredErrorWithCause("order id", err))
	}
	if err := customerID.Validate(); err != nil {
		joined = errors.Join(joined, errs.NewValueIsRequiredErrorWithCause("customer id", err))
	}
	if err := merchantID.Validate(); err != nil {
		joined = errors.Join(joined, errs.NewValueIsRequiredErrorWithCause("merchant id", err))
	}
	if joined != nil {
		return joined
	}

	o.id, o.customerID, o.merchantID = id, customerID, merchantID
	return nil
}

func (o *Order) setPickup(pickup kernel.Location) error {
	if err := pickup.Validate(); err != nil {
		return err
	}
	o.pickup = pickup
	return nil
}

func (o *Order) setSequence(sequence int64) error {
	if sequence <= 0 {
		return errs.NewValueIsInvalidErrorWithCause("sequence", fmt.Errorf("%d is not greater than 0", sequence))
	}
	o.sequence = sequence
	return nil
}

func (o *Order) setStatus(status Status) error {
	if err := status.Validate(); err != nil {
		return err
	}
	o.status = status
	return nil
}

func (o *Order) setDispatchAttempts(attempts int) error {
	if attempts < 0 {
		return errs.NewValueIsInvalidErrorWithCause("dispatch attempts", fmt.Errorf("%d is negative", attempts))
	}
	o.dispatchAttempts = attempts
	return nil
}

func (o *Order) checkAgentInvariant() error {
	if o.status.HasAgent() && o.agentID == nil {
		return errs.NewValueIsInvalidErrorWithCause(
			"agent id",
			fmt.Errorf("%s is not a valid status to have no agent", o.status),
		)
	}
	if o.agentID != nil && !o.status.HasAgent() && o.status != Failed {
		return errs.NewValueIsInvalidErrorWithCause(
			"agent id",
			fmt.Errorf("%s is not a valid status to have an agent", o.status),
		)
	}
	return nil
}
