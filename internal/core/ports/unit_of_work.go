package ports

import (
	"context"

	"orderdispatch/internal/core/domain/model/order"
)

// UnitOfWorkFactory creates a fresh UnitOfWork for each command.
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// UnitOfWork is one business transaction across order and agent repositories.
type UnitOfWork interface {
	Begin(ctx context.Context) error

	// Commit makes every write permanent. On success the status changes of
	// all orders written in this unit become available from CommittedChanges.
	Commit(ctx context.Context) error

	// Rollback discards the transaction and any pending status changes.
	// Calling it after Commit is a no-op that returns an error.
	Rollback(ctx context.Context) error

	OrderRepository() OrderRepository
	AgentRepository() AgentRepository

	// CommittedChanges returns the status changes made durable by the last
	// successful Commit, in the order they were applied.
	CommittedChanges() []order.StatusChanged
}
