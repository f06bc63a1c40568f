package commands

import (
	"context"
	"log/slog"

	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/metrics"
)

// publishCommitted hands committed changes to the publisher. The transitions
// are already durable, so a publish failure is logged and never undoes them.
func publishCommitted(
	ctx context.Context,
	publisher ports.OutcomePublisher,
	logger *slog.Logger,
	changes []order.StatusChanged,
) {
	for _, change := range changes {
		metrics.TransitionsTotal.WithLabelValues(change.NewStatus.String()).Inc()
		if err := publisher.Publish(ctx, change); err != nil {
			logger.ErrorContext(ctx, "status change not published",
				"order_id", change.OrderID.String(),
				"status", change.NewStatus.String(),
				"sequence", change.Sequence,
				"error", err,
			)
		}
	}
}

// nextSequence allocates a key for a transition the service itself decides,
// keeping it above floor even if the authority lost its state.
func nextSequence(ctx context.Context, sequences ports.SequenceAuthority, o *order.Order) (int64, error) {
	seq, err := sequences.Next(ctx, o.ID())
	if err != nil {
		return 0, err
	}
	if seq > o.Sequence() {
		return seq, nil
	}
	if _, err = sequences.Observe(ctx, o.ID(), o.Sequence()); err != nil {
		return 0, err
	}
	return sequences.Next(ctx, o.ID())
}
