package commands

import (
	"errors"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/guard"
)

var ErrUpdateAgentLocationCommandIsNotConstructed = errors.New(
	"UpdateAgentLocationCommand must be created via NewUpdateAgentLocationCommand constructor",
)

// UpdateAgentLocationCommand records a position report from an agent.
type UpdateAgentLocationCommand struct { //nolint:recvcheck //using for validation
	agentID    kernel.ID
	location   kernel.Location
	sequence   int64
	occurredAt time.Time

	guard guard.ConstructorGuard
}

func NewUpdateAgentLocationCommand(
	agentID kernel.ID,
	location kernel.Location,
	sequence int64,
	occurredAt time.Time,
) (UpdateAgentLocationCommand, error) {
	if err := errors.Join(agentID.Validate(), location.Validate(), validateSequence(sequence)); err != nil {
		return UpdateAgentLocationCommand{}, err
	}

	return UpdateAgentLocationCommand{
		agentID:    agentID,
		location:   location,
		sequence:   sequence,
		occurredAt: occurredAt,
		guard:      guard.NewConstructorGuard(),
	}, nil
}

func (c UpdateAgentLocationCommand) Validate() error {
	return c.guard.Validate(ErrUpdateAgentLocationCommandIsNotConstructed)
}

func (c UpdateAgentLocationCommand) AgentID() kernel.ID        { return c.agentID }
func (c UpdateAgentLocationCommand) Location() kernel.Location { return c.location }
func (c UpdateAgentLocationCommand) Sequence() int64           { return c.sequence }
func (c UpdateAgentLocationCommand) OccurredAt() time.Time     { return c.occurredAt }
