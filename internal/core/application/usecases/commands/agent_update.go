package commands

import (
	"context"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
)

// updateAgent loads one agent, applies mutate and writes it back conditionally.
func updateAgent(
	ctx context.Context,
	uowFactory AgentUoWFactory,
	agentID kernel.ID,
	mutate func(a *agent.Agent) error,
) error {
	uow := uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	agentRepo := uow.AgentRepository()
	a, err := agentRepo.Get(ctx, agentID)
	if err != nil {
		return err
	}

	if err = mutate(a); err != nil {
		return err
	}

	if err = agentRepo.Update(ctx, a); err != nil {
		return err
	}

	return uow.Commit(ctx)
}
