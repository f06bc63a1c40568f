package memory

import (
	"context"
	"sort"
	"time"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"
)

type agentRepository struct {
	uow *UnitOfWork
}

func (r *agentRepository) Add(_ context.Context, aggregate *agent.Agent) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	id := aggregate.ID().String()
	if _, exists := r.uow.agentVersion(id); exists {
		return errs.NewObjectAlreadyExistsError("agent", id)
	}

	aggregate.SetVersion(1)
	r.uow.agents[id] = pendingAgent{snapshot: aggregate.Snapshot()}
	return nil
}

func (r *agentRepository) Update(_ context.Context, aggregate *agent.Agent) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	id := aggregate.ID().String()
	current, exists := r.uow.agentVersion(id)
	if !exists {
		return errs.NewObjectNotFoundError("agent", id)
	}
	expected := aggregate.Version()
	if current != expected {
		return errs.NewVersionConflictError("agent", id, expected)
	}

	base := expected
	if p, ok := r.uow.agents[id]; ok {
		base = p.base
	}

	aggregate.SetVersion(expected + 1)
	r.uow.agents[id] = pendingAgent{snapshot: aggregate.Snapshot(), base: base}
	return nil
}

func (r *agentRepository) Get(_ context.Context, id kernel.ID) (*agent.Agent, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	if p, ok := r.uow.agents[id.String()]; ok {
		return agent.RestoreAgent(p.snapshot)
	}

	r.uow.store.mu.RLock()
	s, ok := r.uow.store.agents[id.String()]
	r.uow.store.mu.RUnlock()
	if !ok {
		return nil, errs.NewObjectNotFoundError("agent", id.String())
	}
	return agent.RestoreAgent(s)
}

func (r *agentRepository) GetAllAvailable(_ context.Context) ([]*agent.Agent, error) {
	return r.filter(0, func(s agent.Snapshot) bool {
		return s.Availability == agent.Available
	})
}

func (r *agentRepository) GetStaleAvailable(_ context.Context, reportedBefore time.Time, limit int) ([]*agent.Agent, error) {
	return r.filter(limit, func(s agent.Snapshot) bool {
		return s.Availability == agent.Available &&
			(s.Location == nil || s.LocationUpdatedAt.Before(reportedBefore))
	})
}

func (r *agentRepository) filter(limit int, keep func(agent.Snapshot) bool) ([]*agent.Agent, error) {
	var matched []agent.Snapshot
	for _, s := range r.uow.agentSnapshots() {
		if keep(s) {
			matched = append(matched, s)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID.Less(matched[j].ID) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	agents := make([]*agent.Agent, 0, len(matched))
	for _, s := range matched {
		a, err := agent.RestoreAgent(s)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}
