package commands

import (
	"context"
	"errors"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/pkg/errs"
)

// UpdateAgentLocationCommandHandler applies position reports. A report loses to
// a concurrent assignment only on the version check, and is then re-applied.
type UpdateAgentLocationCommandHandler struct {
	uowFactory AgentUoWFactory
}

func NewUpdateAgentLocationCommandHandler(uowFactory AgentUoWFactory) UpdateAgentLocationCommandHandler {
	return UpdateAgentLocationCommandHandler{uowFactory: uowFactory}
}

func (h *UpdateAgentLocationCommandHandler) Handle(ctx context.Context, cmd UpdateAgentLocationCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	return retryOnConflict(func() error {
		return updateAgent(ctx, h.uowFactory, cmd.AgentID(), func(a *agent.Agent) error {
			return a.UpdateLocation(cmd.Location(), cmd.Sequence(), cmd.OccurredAt())
		})
	})
}

func retryOnConflict(fn func() error) error {
	var err error
	for range maxConflictRetries {
		if err = fn(); !errors.Is(err, errs.ErrVersionConflict) {
			return err
		}
	}
	return err
}
