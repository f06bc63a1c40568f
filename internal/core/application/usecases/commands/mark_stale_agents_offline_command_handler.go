package commands

import (
	"context"
	"errors"

	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"
)

// MarkStaleAgentsOfflineCommandHandler is the agent liveness check. Agents that
// lost a race with a concurrent write are skipped until the next run.
type MarkStaleAgentsOfflineCommandHandler struct {
	uowFactory AgentUoWFactory
	clock      ports.Clock
}

func NewMarkStaleAgentsOfflineCommandHandler(
	uowFactory AgentUoWFactory,
	clock ports.Clock,
) MarkStaleAgentsOfflineCommandHandler {
	return MarkStaleAgentsOfflineCommandHandler{uowFactory: uowFactory, clock: clock}
}

// Handle returns how many agents were taken offline.
func (h *MarkStaleAgentsOfflineCommandHandler) Handle(
	ctx context.Context,
	cmd MarkStaleAgentsOfflineCommand,
) (int, error) {
	if err := cmd.Validate(); err != nil {
		return 0, err
	}

	uow := h.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	agentRepo := uow.AgentRepository()
	stale, err := agentRepo.GetStaleAvailable(ctx, h.clock.Now().Add(-cmd.TTL()), cmd.Limit())
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, a := range stale {
		if !a.MarkOffline() {
			continue
		}
		if err = agentRepo.Update(ctx, a); err != nil {
			if errors.Is(err, errs.ErrVersionConflict) {
				continue
			}
			return 0, err
		}
		marked++
	}

	if err = uow.Commit(ctx); err != nil {
		return 0, err
	}

	return marked, nil
}
