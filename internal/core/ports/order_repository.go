// Package ports defines the contracts between the application core and its
// adapters: persistence, admission control, sequencing, dedup and outcome
// publishing.
package ports

import (
	"context"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
)

// OrderRepository defines the persistence contract for order aggregates.
//
// Writes are conditional: Update succeeds only if the stored version still
// equals aggregate.Version(), and bumps it on success. A lost race is reported
// as *errs.VersionConflictError so callers can re-read and re-apply.
type OrderRepository interface {
	// Add persists a new order. A duplicate id is reported as errs.ErrObjectAlreadyExists.
	Add(ctx context.Context, aggregate *order.Order) error

	// Update persists a changed order with a compare-and-set on its version.
	Update(ctx context.Context, aggregate *order.Order) error

	// Get returns the order or errs.ErrObjectNotFound.
	Get(ctx context.Context, id kernel.ID) (*order.Order, error)

	// GetDueForDispatch returns ready_for_pickup orders whose next dispatch time
	// is unset or not after now, oldest transition first.
	GetDueForDispatch(ctx context.Context, now time.Time, limit int) ([]*order.Order, error)

	// GetAwaitingDispatch returns every ready_for_pickup order regardless of its
	// retry schedule, oldest transition first.
	GetAwaitingDispatch(ctx context.Context, limit int) ([]*order.Order, error)
}
