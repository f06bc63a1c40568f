package commands

import (
	"errors"
	"fmt"

	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

var ErrDispatchPendingCommandIsNotConstructed = errors.New(
	"DispatchPendingCommand must be created via NewDispatchPendingCommand constructor",
)

// DispatchPendingCommand re-offers waiting orders. With ignoreSchedule unset
// only orders whose retry backoff elapsed are picked; with it set every
// ready-for-pickup order is, oldest first.
type DispatchPendingCommand struct { //nolint:recvcheck //using for validation
	limit          int
	ignoreSchedule bool

	guard guard.ConstructorGuard
}

func NewDispatchPendingCommand(limit int, ignoreSchedule bool) (DispatchPendingCommand, error) {
	if limit <= 0 {
		return DispatchPendingCommand{}, errs.NewValueIsInvalidErrorWithCause(
			"limit", fmt.Errorf("%d is not greater than 0", limit))
	}

	return DispatchPendingCommand{
		limit:          limit,
		ignoreSchedule: ignoreSchedule,
		guard:          guard.NewConstructorGuard(),
	}, nil
}

func (c DispatchPendingCommand) Validate() error {
	return c.guard.Validate(ErrDispatchPendingCommandIsNotConstructed)
}

func (c DispatchPendingCommand) Limit() int           { return c.limit }
func (c DispatchPendingCommand) IgnoreSchedule() bool { return c.ignoreSchedule }
