package commands

import (
	"errors"
	"strings"
	"time"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/guard"
)

var ErrRegisterAgentCommandIsNotConstructed = errors.New(
	"RegisterAgentCommand must be created via NewRegisterAgentCommand constructor",
)

// RegisterAgentCommand adds a delivery agent. Location is optional.
type RegisterAgentCommand struct { //nolint:recvcheck //using for validation
	agentID    kernel.ID
	name       string
	location   *kernel.Location
	sequence   int64
	occurredAt time.Time

	guard guard.ConstructorGuard
}

func NewRegisterAgentCommand(
	agentID kernel.ID,
	name string,
	location *kernel.Location,
	sequence int64,
	occurredAt time.Time,
) (RegisterAgentCommand, error) {
	var nameErr, locationErr error
	if strings.TrimSpace(name) == "" {
		nameErr = agent.ErrNameIsRequired
	}
	if location != nil {
		locationErr = location.Validate()
	}

	if err := errors.Join(agentID.Validate(), nameErr, locationErr, validateSequence(sequence)); err != nil {
		return RegisterAgentCommand{}, err
	}

	return RegisterAgentCommand{
		agentID:    agentID,
		name:       name,
		location:   location,
		sequence:   sequence,
		occurredAt: occurredAt,
		guard:      guard.NewConstructorGuard(),
	}, nil
}

func (c RegisterAgentCommand) Validate() error {
	return c.guard.Validate(ErrRegisterAgentCommandIsNotConstructed)
}

func (c RegisterAgentCommand) AgentID() kernel.ID          { return c.agentID }
func (c RegisterAgentCommand) Name() string                { return c.name }
func (c RegisterAgentCommand) Location() *kernel.Location  { return c.location }
func (c RegisterAgentCommand) Sequence() int64             { return c.sequence }
func (c RegisterAgentCommand) OccurredAt() time.Time       { return c.occurredAt }
