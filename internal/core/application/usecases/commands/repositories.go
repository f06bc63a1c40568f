// Package commands contains the operations that change order and agent state.
// Every handler follows the same shape: validate the command, run one unit of
// work, commit, then publish what the commit made durable.
package commands

import (
	"context"

	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
)

// maxConflictRetries bounds how often a handler re-reads and re-applies after
// losing a conditional write to a concurrent writer.
const maxConflictRetries = 3

type (
	// TxManager handles database transaction lifecycle.
	TxManager interface {
		Begin(ctx context.Context) error
		Commit(ctx context.Context) error
		Rollback(ctx context.Context) error
	}

	// OrderRepoFactory provides access to order repository within a transaction.
	OrderRepoFactory interface {
		OrderRepository() ports.OrderRepository
	}

	// AgentRepoFactory provides access to agent repository within a transaction.
	AgentRepoFactory interface {
		AgentRepository() ports.AgentRepository
	}

	// ChangeTracker exposes the status changes a commit made durable.
	ChangeTracker interface {
		CommittedChanges() []order.StatusChanged
	}

	// AgentUoW manages transactions for agent-only operations.
	AgentUoW interface {
		TxManager
		AgentRepoFactory
	}

	// AgentUoWFactory creates new agent unit of work instances.
	AgentUoWFactory interface {
		Create() AgentUoW
	}

	// UoW manages transactions across order and agent aggregates.
	//
	// Example:
	//   uow := factory.Create()
	//   err := uow.Begin(ctx)
	//   defer uow.Rollback(ctx)
	//
	//   orderRepo := uow.OrderRepository()
	//   agentRepo := uow.AgentRepository()
	//   // ... perform operations
	//
	//   err = uow.Commit(ctx)
	//   publish(uow.CommittedChanges())
	UoW interface {
		TxManager
		OrderRepoFactory
		AgentRepoFactory
		ChangeTracker
	}

	// UoWFactory creates new unit of work instances for cross-aggregate operations.
	UoWFactory interface {
		Create() UoW
	}
)
