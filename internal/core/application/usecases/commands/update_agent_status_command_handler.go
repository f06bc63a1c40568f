package commands

import (
	"context"

	"orderdispatch/internal/core/domain/model/agent"
)

// UpdateAgentStatusCommandHandler moves an agent between available and offline.
type UpdateAgentStatusCommandHandler struct {
	uowFactory AgentUoWFactory
}

func NewUpdateAgentStatusCommandHandler(uowFactory AgentUoWFactory) UpdateAgentStatusCommandHandler {
	return UpdateAgentStatusCommandHandler{uowFactory: uowFactory}
}

// Handle reports whether the agent went from offline to available, in which
// case waiting orders should be offered again.
func (h *UpdateAgentStatusCommandHandler) Handle(ctx context.Context, cmd UpdateAgentStatusCommand) (bool, error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	becameAvailable := false
	err := retryOnConflict(func() error {
		return updateAgent(ctx, h.uowFactory, cmd.AgentID(), func(a *agent.Agent) error {
			before := a.Availability()
			var err error
			if cmd.Availability() == agent.Available {
				err = a.GoOnline(cmd.Sequence())
			} else {
				err = a.GoOffline(cmd.Sequence())
			}
			becameAvailable = err == nil && before != agent.Available && a.Availability() == agent.Available
			return err
		})
	})
	if err != nil {
		return false, err
	}

	return becameAvailable, nil
}
