package ports

import (
	"context"

	"orderdispatch/internal/core/domain/model/order"
)

// OutcomePublisher delivers one notification per committed status change.
// Delivery is at least once; consumers dedupe on StatusChanged.IdempotencyKey.
type OutcomePublisher interface {
	Publish(ctx context.Context, change order.StatusChanged) error
}
