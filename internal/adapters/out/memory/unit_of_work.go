package memory

import (
	"context"
	"errors"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"
)

var ErrNoTransaction = errors.New("no active transaction")

type pendingOrder struct {
	snapshot order.Snapshot
	// base is the committed version the first write was checked against;
	// zero for inserts.
	base int64
}

type pendingAgent struct {
	snapshot agent.Snapshot
	base     int64
}

// UnitOfWork buffers writes until Commit.
type UnitOfWork struct {
	store     *Store
	active    bool
	orders    map[string]pendingOrder
	agents    map[string]pendingAgent
	tracked   []*order.Order
	committed []order.StatusChanged
}

func newUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{
		store:  store,
		orders: make(map[string]pendingOrder),
		agents: make(map[string]pendingAgent),
	}
}

func (u *UnitOfWork) Begin(_ context.Context) error {
	if u.active {
		return nil
	}
	u.reset()
	u.committed = nil
	u.active = true
	return nil
}

func (u *UnitOfWork) Commit(_ context.Context) error {
	if !u.active {
		return ErrNoTransaction
	}
	u.active = false

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	for id, p := range u.orders {
		current, ok := u.store.orders[id]
		if (p.base == 0 && ok) || (p.base != 0 && (!ok || current.Version != p.base)) {
			u.reset()
			return errs.NewVersionConflictError("order", id, p.base)
		}
	}
	for id, p := range u.agents {
		current, ok := u.store.agents[id]
		if (p.base == 0 && ok) || (p.base != 0 && (!ok || current.Version != p.base)) {
			u.reset()
			return errs.NewVersionConflictError("agent", id, p.base)
		}
	}

	for id, p := range u.orders {
		u.store.orders[id] = p.snapshot
	}
	for id, p := range u.agents {
		u.store.agents[id] = p.snapshot
	}

	seen := make(map[*order.Order]struct{}, len(u.tracked))
	for _, o := range u.tracked {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		u.committed = append(u.committed, o.PullChanges()...)
	}

	u.reset()
	return nil
}

func (u *UnitOfWork) Rollback(_ context.Context) error {
	if !u.active {
		return ErrNoTransaction
	}
	u.active = false
	u.reset()
	return nil
}

func (u *UnitOfWork) CommittedChanges() []order.StatusChanged {
	return u.committed
}

func (u *UnitOfWork) OrderRepository() ports.OrderRepository {
	return &orderRepository{uow: u}
}

func (u *UnitOfWork) AgentRepository() ports.AgentRepository {
	return &agentRepository{uow: u}
}

func (u *UnitOfWork) reset() {
	clear(u.orders)
	clear(u.agents)
	u.tracked = nil
}

func (u *UnitOfWork) orderVersion(id string) (int64, bool) {
	if p, ok := u.orders[id]; ok {
		return p.snapshot.Version, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	s, ok := u.store.orders[id]
	return s.Version, ok
}

func (u *UnitOfWork) agentVersion(id string) (int64, bool) {
	if p, ok := u.agents[id]; ok {
		return p.snapshot.Version, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	s, ok := u.store.agents[id]
	return s.Version, ok
}

// orderSnapshots merges committed orders with this unit's pending writes.
func (u *UnitOfWork) orderSnapshots() []order.Snapshot {
	u.store.mu.RLock()
	merged := make(map[string]order.Snapshot, len(u.store.orders)+len(u.orders))
	for id, s := range u.store.orders {
		merged[id] = s
	}
	u.store.mu.RUnlock()

	for id, p := range u.orders {
		merged[id] = p.snapshot
	}

	out := make([]order.Snapshot, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	return out
}

func (u *UnitOfWork) agentSnapshots() []agent.Snapshot {
	u.store.mu.RLock()
	merged := make(map[string]agent.Snapshot, len(u.store.agents)+len(u.agents))
	for id, s := range u.store.agents {
		merged[id] = s
	}
	u.store.mu.RUnlock()

	for id, p := range u.agents {
		merged[id] = p.snapshot
	}

	out := make([]agent.Snapshot, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	return out
}
