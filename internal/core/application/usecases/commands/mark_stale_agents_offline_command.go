package commands

import (
	"errors"
	"fmt"
	"time"

	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

var ErrMarkStaleAgentsOfflineCommandIsNotConstructed = errors.New(
	"MarkStaleAgentsOfflineCommand must be created via NewMarkStaleAgentsOfflineCommand constructor",
)

// MarkStaleAgentsOfflineCommand takes available agents that stopped reporting
// their location for longer than ttl out of matching.
type MarkStaleAgentsOfflineCommand struct { //nolint:recvcheck //using for validation
	ttl   time.Duration
	limit int

	guard guard.ConstructorGuard
}

func NewMarkStaleAgentsOfflineCommand(ttl time.Duration, limit int) (MarkStaleAgentsOfflineCommand, error) {
	var ttlErr, limitErr error
	if ttl <= 0 {
		ttlErr = errs.NewValueIsInvalidErrorWithCause("ttl", fmt.Errorf("%v is not greater than 0", ttl))
	}
	if limit <= 0 {
		limitErr = errs.NewValueIsInvalidErrorWithCause("limit", fmt.Errorf("%d is not greater than 0", limit))
	}
	if err := errors.Join(ttlErr, limitErr); err != nil {
		return MarkStaleAgentsOfflineCommand{}, err
	}

	return MarkStaleAgentsOfflineCommand{ttl: ttl, limit: limit, guard: guard.NewConstructorGuard()}, nil
}

func (c MarkStaleAgentsOfflineCommand) Validate() error {
	return c.guard.Validate(ErrMarkStaleAgentsOfflineCommandIsNotConstructed)
}

func (c MarkStaleAgentsOfflineCommand) TTL() time.Duration { return c.ttl }
func (c MarkStaleAgentsOfflineCommand) Limit() int         { return c.limit }
