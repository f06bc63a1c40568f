package memory

import (
	"context"
	"sort"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"
)

type orderRepository struct {
	uow *UnitOfWork
}

func (r *orderRepository) Add(_ context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	id := aggregate.ID().String()
	if _, exists := r.uow.orderVersion(id); exists {
		return errs.NewObjectAlreadyExistsError("order", id)
	}

	aggregate.SetVersion(1)
	r.uow.orders[id] = pendingOrder{snapshot: aggregate.Snapshot()}
	r.uow.tracked = append(r.uow.tracked, aggregate)
	return nil
}

func (r *orderRepository) Update(_ context.Context, aggregate *order.Order) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	id := aggregate.ID().String()
	current, exists := r.uow.orderVersion(id)
	if !exists {
		return errs.NewObjectNotFoundError("order", id)
	}
	expected := aggregate.Version()
	if current != expected {
		return errs.NewVersionConflictError("order", id, expected)
	}

	base := expected
	if p, ok := r.uow.orders[id]; ok {
		base = p.base
	}

	aggregate.SetVersion(expected + 1)
	r.uow.orders[id] = pendingOrder{snapshot: aggregate.Snapshot(), base: base}
	r.uow.tracked = append(r.uow.tracked, aggregate)
	return nil
}

func (r *orderRepository) Get(_ context.Context, id kernel.ID) (*order.Order, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	if p, ok := r.uow.orders[id.String()]; ok {
		return order.RestoreOrder(p.snapshot)
	}

	r.uow.store.mu.RLock()
	s, ok := r.uow.store.orders[id.String()]
	r.uow.store.mu.RUnlock()
	if !ok {
		return nil, errs.NewObjectNotFoundError("order", id.String())
	}
	return order.RestoreOrder(s)
}

func (r *orderRepository) GetDueForDispatch(_ context.Context, now time.Time, limit int) ([]*order.Order, error) {
	return r.ready(limit, func(s order.Snapshot) bool {
		return s.NextDispatchAt == nil || !now.Before(*s.NextDispatchAt)
	})
}

func (r *orderRepository) GetAwaitingDispatch(_ context.Context, limit int) ([]*order.Order, error) {
	return r.ready(limit, func(order.Snapshot) bool { return true })
}

func (r *orderRepository) ready(limit int, keep func(order.Snapshot) bool) ([]*order.Order, error) {
	var matched []order.Snapshot
	for _, s := range r.uow.orderSnapshots() {
		if s.Status == order.ReadyForPickup && keep(s) {
			matched = append(matched, s)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastTransitionAt.Equal(matched[j].LastTransitionAt) {
			return matched[i].LastTransitionAt.Before(matched[j].LastTransitionAt)
		}
		return matched[i].ID.Less(matched[j].ID)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	orders := make([]*order.Order, 0, len(matched))
	for _, s := range matched {
		o, err := order.RestoreOrder(s)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
