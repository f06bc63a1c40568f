package commands

import (
	"errors"
	"fmt"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/guard"
)

var ErrUpdateAgentStatusCommandIsNotConstructed = errors.New(
	"UpdateAgentStatusCommand must be created via NewUpdateAgentStatusCommand constructor",
)

// UpdateAgentStatusCommand is an agent going online or offline. Assigned is
// reached only through dispatch and is rejected here.
type UpdateAgentStatusCommand struct { //nolint:recvcheck //using for validation
	agentID      kernel.ID
	availability agent.Availability
	sequence     int64

	guard guard.ConstructorGuard
}

func NewUpdateAgentStatusCommand(
	agentID kernel.ID,
	availability agent.Availability,
	sequence int64,
) (UpdateAgentStatusCommand, error) {
	var availabilityErr error
	if availability != agent.Available && availability != agent.Offline {
		availabilityErr = errs.NewValueIsInvalidErrorWithCause(
			"availability", fmt.Errorf("%s cannot be reported by an agent", availability))
	}

	if err := errors.Join(agentID.Validate(), availabilityErr, validateSequence(sequence)); err != nil {
		return UpdateAgentStatusCommand{}, err
	}

	return UpdateAgentStatusCommand{
		agentID:      agentID,
		availability: availability,
		sequence:     sequence,
		guard:        guard.NewConstructorGuard(),
	}, nil
}

func (c UpdateAgentStatusCommand) Validate() error {
	return c.guard.Validate(ErrUpdateAgentStatusCommandIsNotConstructed)
}

func (c UpdateAgentStatusCommand) AgentID() kernel.ID               { return c.agentID }
func (c UpdateAgentStatusCommand) Availability() agent.Availability { return c.availability }
func (c UpdateAgentStatusCommand) Sequence() int64                  { return c.sequence }
