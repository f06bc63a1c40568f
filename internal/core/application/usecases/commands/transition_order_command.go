package commands

import (
	"errors"
	"fmt"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

var ErrTransitionOrderCommandIsNotConstructed = errors.New(
	"TransitionOrderCommand must be created via NewTransitionOrderCommand constructor",
)

// TransitionOrderCommand asks the state machine to move an order to target.
// Assignment is not accepted here: only the dispatch matcher assigns agents.
type TransitionOrderCommand struct { //nolint:recvcheck //using for validation
	orderID    kernel.ID
	target     order.Status
	reason     order.FailureReason
	sequence   int64
	occurredAt time.Time

	guard guard.ConstructorGuard
}

func NewTransitionOrderCommand(
	orderID kernel.ID,
	target order.Status,
	reason order.FailureReason,
	sequence int64,
	occurredAt time.Time,
) (TransitionOrderCommand, error) {
	cmd := TransitionOrderCommand{
		orderID:    orderID,
		target:     target,
		reason:     reason,
		sequence:   sequence,
		occurredAt: occurredAt,
		guard:      guard.NewConstructorGuard(),
	}

	var targetErr error
	switch target {
	case order.Confirmed, order.ReadyForPickup, order.InTransit, order.Delivered, order.Cancelled:
	case order.Failed:
		if reason == order.NoFailure {
			targetErr = order.ErrFailureReasonIsRequired
		}
	default:
		targetErr = errs.NewValueIsInvalidErrorWithCause(
			"target status", fmt.Errorf("%s cannot be requested by an event", target))
	}

	if err := errors.Join(orderID.Validate(), validateSequence(sequence), targetErr); err != nil {
		return TransitionOrderCommand{}, err
	}

	return cmd, nil
}

func (c TransitionOrderCommand) Validate() error {
	return c.guard.Validate(ErrTransitionOrderCommandIsNotConstructed)
}

func (c TransitionOrderCommand) OrderID() kernel.ID          { return c.orderID }
func (c TransitionOrderCommand) Target() order.Status        { return c.target }
func (c TransitionOrderCommand) Reason() order.FailureReason { return c.reason }
func (c TransitionOrderCommand) Sequence() int64             { return c.sequence }
func (c TransitionOrderCommand) OccurredAt() time.Time       { return c.occurredAt }
