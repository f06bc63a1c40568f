package commands

import (
	"errors"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/guard"
)

var ErrDispatchOrderCommandIsNotConstructed = errors.New(
	"DispatchOrderCommand must be created via NewDispatchOrderCommand constructor",
)

// DispatchOrderCommand asks the matcher to find an agent for one order.
// IgnoreSchedule skips the retry backoff; it is set when a new agent became
// available and waiting orders should be offered to it at once.
type DispatchOrderCommand struct { //nolint:recvcheck //using for validation
	orderID        kernel.ID
	ignoreSchedule bool

	guard guard.ConstructorGuard
}

func NewDispatchOrderCommand(orderID kernel.ID, ignoreSchedule bool) (DispatchOrderCommand, error) {
	if err := orderID.Validate(); err != nil {
		return DispatchOrderCommand{}, err
	}

	return DispatchOrderCommand{
		orderID:        orderID,
		ignoreSchedule: ignoreSchedule,
		guard:          guard.NewConstructorGuard(),
	}, nil
}

func (c DispatchOrderCommand) Validate() error {
	return c.guard.Validate(ErrDispatchOrderCommandIsNotConstructed)
}

func (c DispatchOrderCommand) OrderID() kernel.ID     { return c.orderID }
func (c DispatchOrderCommand) IgnoreSchedule() bool { return c.ignoreSchedule }
