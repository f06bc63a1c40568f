// Package memory is an in-process implementation of the persistence ports.
//
// Reads see committed state plus the writes of the reading unit of work.
// Writes are buffered in the unit of work and applied at Commit under the
// store lock, after re-checking every version they were based on. A unit of
// work that lost a race therefore fails as a whole with a version conflict,
// exactly like the conditional writes of the SQL adapter.
package memory

import (
	"sync"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
)

// Store holds committed order and agent state.
type Store struct {
	mu     sync.RWMutex
	orders map[string]order.Snapshot
	agents map[string]agent.Snapshot
}

func NewStore() *Store {
	return &Store{
		orders: make(map[string]order.Snapshot),
		agents: make(map[string]agent.Snapshot),
	}
}

// UnitOfWorkFactory creates units of work over one Store.
type UnitOfWorkFactory struct {
	store *Store
}

func NewUnitOfWorkFactory(store *Store) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{store: store}
}

func (f *UnitOfWorkFactory) Create() ports.UnitOfWork {
	return f.CreateUnitOfWork()
}

// CreateUnitOfWork returns the concrete type for callers that need it.
func (f *UnitOfWorkFactory) CreateUnitOfWork() *UnitOfWork {
	return newUnitOfWork(f.store)
}

// Orders returns a read-only view of committed orders.
func (s *Store) Orders() ports.OrderRepository {
	return newUnitOfWork(s).OrderRepository()
}

// Agents returns a read-only view of committed agents.
func (s *Store) Agents() ports.AgentRepository {
	return newUnitOfWork(s).AgentRepository()
}
