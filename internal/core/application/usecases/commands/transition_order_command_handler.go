package commands

import (
	"context"
	"errors"
	"log/slog"

	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"
)

// TransitionOrderCommandHandler is the order state machine.
//
// An event is applied only if it names a valid edge from the current status
// and carries a sequence key above the stored one. Otherwise Handle returns
// order.ErrStaleEvent or order.ErrInvalidTransition and nothing is written.
// Delivered and failed orders release their agent in the same transaction.
type TransitionOrderCommandHandler struct {
	uowFactory UoWFactory
	publisher  ports.OutcomePublisher
	logger     *slog.Logger
}

func NewTransitionOrderCommandHandler(
	uowFactory UoWFactory,
	publisher ports.OutcomePublisher,
	logger *slog.Logger,
) TransitionOrderCommandHandler {
	return TransitionOrderCommandHandler{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     logger.With("component", "order_state_machine"),
	}
}

// Handle applies cmd and returns the committed change. A lost conditional
// write is retried against a fresh read at most maxConflictRetries times.
func (h *TransitionOrderCommandHandler) Handle(
	ctx context.Context,
	cmd TransitionOrderCommand,
) (order.StatusChanged, error) {
	if err := cmd.Validate(); err != nil {
		return order.StatusChanged{}, err
	}

	var err error
	for range maxConflictRetries {
		var changes []order.StatusChanged
		changes, err = h.apply(ctx, cmd)
		if errors.Is(err, errs.ErrVersionConflict) {
			h.logger.DebugContext(ctx, "transition lost a concurrent write, retrying",
				"order_id", cmd.OrderID().String(), "error", err)
			continue
		}
		if err != nil {
			return order.StatusChanged{}, err
		}

		publishCommitted(ctx, h.publisher, h.logger, changes)
		if len(changes) == 0 {
			return order.StatusChanged{}, nil
		}
		return changes[len(changes)-1], nil
	}

	return order.StatusChanged{}, err
}

func (h *TransitionOrderCommandHandler) apply(
	ctx context.Context,
	cmd TransitionOrderCommand,
) ([]order.StatusChanged, error) {
	uow := h.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	o, err := uow.OrderRepository().Get(ctx, cmd.OrderID())
	if err != nil {
		return nil, err
	}

	if err = applyTarget(o, cmd); err != nil {
		return nil, err
	}

	if agentID := o.AgentID(); agentID != nil && (o.Status() == order.Delivered || o.Status() == order.Failed) {
		agentRepo := uow.AgentRepository()
		a, getErr := agentRepo.Get(ctx, *agentID)
		if getErr != nil {
			return nil, getErr
		}
		if err = a.Release(o.ID()); err != nil {
			return nil, err
		}
		if err = agentRepo.Update(ctx, a); err != nil {
			return nil, err
		}
	}

	if err = uow.OrderRepository().Update(ctx, o); err != nil {
		return nil, err
	}

	if err = uow.Commit(ctx); err != nil {
		return nil, err
	}

	return uow.CommittedChanges(), nil
}

func applyTarget(o *order.Order, cmd TransitionOrderCommand) error {
	seq, at := cmd.Sequence(), cmd.OccurredAt()

	switch cmd.Target() {
	case order.Confirmed:
		return o.Confirm(seq, at)
	case order.ReadyForPickup:
		return o.MarkReady(seq, at)
	case order.InTransit:
		return o.PickUp(seq, at)
	case order.Delivered:
		return o.Deliver(seq, at)
	case order.Cancelled:
		return o.Cancel(seq, at)
	case order.Failed:
		return o.Fail(cmd.Reason(), seq, at)
	default:
		return order.NewInvalidTransitionError(o.Status(), cmd.Target())
	}
}
