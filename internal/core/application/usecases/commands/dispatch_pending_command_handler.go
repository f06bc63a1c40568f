package commands

import (
	"context"
	"log/slog"

	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
)

// OrderDispatcher is the single-order matcher used by DispatchPendingCommandHandler.
type OrderDispatcher interface {
	Handle(ctx context.Context, cmd DispatchOrderCommand) (DispatchOutcome, error)
}

// DispatchSummary counts the outcomes of one pending-orders sweep.
type DispatchSummary map[DispatchOutcome]int

// DispatchPendingCommandHandler runs the matcher over waiting orders. The
// periodic retry job and the agent-available trigger both use it.
type DispatchPendingCommandHandler struct {
	uowFactory UoWFactory
	dispatcher OrderDispatcher
	clock      ports.Clock
	logger     *slog.Logger
}

func NewDispatchPendingCommandHandler(
	uowFactory UoWFactory,
	dispatcher OrderDispatcher,
	clock ports.Clock,
	logger *slog.Logger,
) DispatchPendingCommandHandler {
	return DispatchPendingCommandHandler{
		uowFactory: uowFactory,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger.With("component", "dispatch_pending"),
	}
}

func (h *DispatchPendingCommandHandler) Handle(ctx context.Context, cmd DispatchPendingCommand) (DispatchSummary, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	orders, err := h.load(ctx, cmd)
	if err != nil {
		return nil, err
	}

	summary := DispatchSummary{}
	for _, o := range orders {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		dispatchCmd, cmdErr := NewDispatchOrderCommand(o.ID(), cmd.IgnoreSchedule())
		if cmdErr != nil {
			return summary, cmdErr
		}

		outcome, dispatchErr := h.dispatcher.Handle(ctx, dispatchCmd)
		if dispatchErr != nil {
			h.logger.ErrorContext(ctx, "dispatch attempt failed",
				"order_id", o.ID().String(), "error", dispatchErr)
			continue
		}
		summary[outcome]++
	}

	return summary, nil
}

func (h *DispatchPendingCommandHandler) load(ctx context.Context, cmd DispatchPendingCommand) ([]*order.Order, error) {
	uow := h.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	if cmd.IgnoreSchedule() {
		return uow.OrderRepository().GetAwaitingDispatch(ctx, cmd.Limit())
	}
	return uow.OrderRepository().GetDueForDispatch(ctx, h.clock.Now(), cmd.Limit())
}
