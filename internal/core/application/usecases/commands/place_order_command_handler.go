package commands

import (
	"context"
	"log/slog"

	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
)

// PlaceOrderCommandHandler stores a new order in the placed status and
// publishes the placement.
type PlaceOrderCommandHandler struct {
	uowFactory UoWFactory
	publisher  ports.OutcomePublisher
	logger     *slog.Logger
}

func NewPlaceOrderCommandHandler(
	uowFactory UoWFactory,
	publisher ports.OutcomePublisher,
	logger *slog.Logger,
) PlaceOrderCommandHandler {
	return PlaceOrderCommandHandler{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     logger.With("component", "place_order"),
	}
}

// Handle returns errs.ErrObjectAlreadyExists when the order id is taken; the
// stored order is left untouched.
func (h *PlaceOrderCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	o, err := order.NewOrder(
		cmd.OrderID(),
		cmd.CustomerID(),
		cmd.MerchantID(),
		cmd.Pickup(),
		cmd.Sequence(),
		cmd.OccurredAt(),
	)
	if err != nil {
		return err
	}

	uow := h.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	if err = uow.OrderRepository().Add(ctx, o); err != nil {
		return err
	}

	if err = uow.Commit(ctx); err != nil {
		return err
	}

	publishCommitted(ctx, h.publisher, h.logger, uow.CommittedChanges())
	return nil
}
