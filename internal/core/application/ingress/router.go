package ingress

import (
	"context"
	"errors"
	"log/slog"

	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/event"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/metrics"
)

type (
	OrderPlacer interface {
		Handle(ctx context.Context, cmd commands.PlaceOrderCommand) error
	}
	OrderTransitioner interface {
		Handle(ctx context.Context, cmd commands.TransitionOrderCommand) (order.StatusChanged, error)
	}
	OrderMatcher interface {
		Handle(ctx context.Context, cmd commands.DispatchOrderCommand) (commands.DispatchOutcome, error)
	}
	PendingDispatcher interface {
		Handle(ctx context.Context, cmd commands.DispatchPendingCommand) (commands.DispatchSummary, error)
	}
	AgentRegistrar interface {
		Handle(ctx context.Context, cmd commands.RegisterAgentCommand) error
	}
	AgentLocator interface {
		Handle(ctx context.Context, cmd commands.UpdateAgentLocationCommand) error
	}
	AgentStatusUpdater interface {
		Handle(ctx context.Context, cmd commands.UpdateAgentStatusCommand) (bool, error)
	}
)

// Handlers are the command handlers the router dispatches to.
type Handlers struct {
	PlaceOrder          OrderPlacer
	Transition          OrderTransitioner
	Dispatch            OrderMatcher
	DispatchPending     PendingDispatcher
	RegisterAgent       AgentRegistrar
	UpdateAgentLocation AgentLocator
	UpdateAgentStatus   AgentStatusUpdater
}

func (h Handlers) validate() error {
	if h.PlaceOrder == nil || h.Transition == nil || h.Dispatch == nil || h.DispatchPending == nil ||
		h.RegisterAgent == nil || h.UpdateAgentLocation == nil || h.UpdateAgentStatus == nil {
		return errs.NewValueIsRequiredError("handlers")
	}
	return nil
}

// transitionTargets maps order events other than placement to their target status.
var transitionTargets = map[event.Type]order.Status{
	event.OrderPaymentConfirmed:  order.Confirmed,
	event.OrderReady:             order.ReadyForPickup,
	event.OrderCancelled:         order.Cancelled,
	event.OrderPickedUp:          order.InTransit,
	event.OrderDeliveryCompleted: order.Delivered,
	event.OrderDeliveryFailed:    order.Failed,
}

// Router applies one envelope and runs the follow-up dispatch it causes.
// It never returns an error: every outcome is logged and counted.
type Router struct {
	handlers     Handlers
	pendingBatch int
	logger       *slog.Logger
}

// NewRouter builds a router. pendingBatch bounds how many waiting orders are
// re-dispatched when an agent becomes available.
func NewRouter(handlers Handlers, pendingBatch int, logger *slog.Logger) (*Router, error) {
	if err := handlers.validate(); err != nil {
		return nil, err
	}
	if pendingBatch <= 0 {
		return nil, errs.NewValueIsOutOfRangeError("pendingBatch", pendingBatch, 1, "max int")
	}

	return &Router{
		handlers:     handlers,
		pendingBatch: pendingBatch,
		logger:       logger.With("component", "event_router"),
	}, nil
}

// Route is a ProcessFunc.
func (r *Router) Route(ctx context.Context, env event.Envelope) {
	var err error
	switch {
	case env.Type == event.OrderPlaced:
		err = r.placeOrder(ctx, env)
	case env.Type.IsOrderEvent():
		err = r.transition(ctx, env)
	case env.Type == event.AgentRegistered:
		err = r.registerAgent(ctx, env)
	case env.Type == event.AgentLocationUpdated:
		err = r.updateAgentLocation(ctx, env)
	case env.Type == event.AgentStatusUpdated:
		err = r.updateAgentStatus(ctx, env)
	default:
		err = errs.NewValueIsInvalidError("event type")
	}

	r.report(ctx, env, err)
}

func (r *Router) placeOrder(ctx context.Context, env event.Envelope) error {
	if env.Payload.Pickup == nil {
		return errs.NewValueIsRequiredError("pickup")
	}
	cmd, err := commands.NewPlaceOrderCommand(
		env.Subject,
		env.Payload.CustomerID,
		env.Payload.MerchantID,
		*env.Payload.Pickup,
		env.Sequence,
		env.ReceivedAt,
	)
	if err != nil {
		return err
	}
	return r.handlers.PlaceOrder.Handle(ctx, cmd)
}

func (r *Router) transition(ctx context.Context, env event.Envelope) error {
	target, ok := transitionTargets[env.Type]
	if !ok {
		return errs.NewValueIsInvalidError("event type")
	}

	reason := order.NoFailure
	if target == order.Failed {
		reason = order.ReasonAgentUnreachable
	}

	cmd, err := commands.NewTransitionOrderCommand(env.Subject, target, reason, env.Sequence, env.ReceivedAt)
	if err != nil {
		return err
	}

	change, err := r.handlers.Transition.Handle(ctx, cmd)
	if err != nil {
		return err
	}

	switch {
	case change.NewStatus == order.ReadyForPickup:
		r.dispatchOrder(ctx, env)
	case change.AgentID != nil && change.NewStatus.IsTerminal():
		// The released agent is available again.
		r.dispatchPending(ctx)
	}
	return nil
}

func (r *Router) registerAgent(ctx context.Context, env event.Envelope) error {
	cmd, err := commands.NewRegisterAgentCommand(
		env.Subject, env.Payload.AgentName, env.Payload.Location, env.Sequence, env.ReceivedAt,
	)
	if err != nil {
		return err
	}
	return r.handlers.RegisterAgent.Handle(ctx, cmd)
}

func (r *Router) updateAgentLocation(ctx context.Context, env event.Envelope) error {
	if env.Payload.Location == nil {
		return errs.NewValueIsRequiredError("location")
	}
	cmd, err := commands.NewUpdateAgentLocationCommand(
		env.Subject, *env.Payload.Location, env.Sequence, env.ReceivedAt,
	)
	if err != nil {
		return err
	}
	return r.handlers.UpdateAgentLocation.Handle(ctx, cmd)
}

func (r *Router) updateAgentStatus(ctx context.Context, env event.Envelope) error {
	availability, err := agent.ParseAvailability(env.Payload.Availability)
	if err != nil {
		return err
	}
	cmd, err := commands.NewUpdateAgentStatusCommand(env.Subject, availability, env.Sequence)
	if err != nil {
		return err
	}

	becameAvailable, err := r.handlers.UpdateAgentStatus.Handle(ctx, cmd)
	if err != nil {
		return err
	}
	if becameAvailable {
		r.dispatchPending(ctx)
	}
	return nil
}

func (r *Router) dispatchOrder(ctx context.Context, env event.Envelope) {
	cmd, err := commands.NewDispatchOrderCommand(env.Subject, false)
	if err != nil {
		r.logger.ErrorContext(ctx, "cannot build dispatch command", "order_id", env.Subject.String(), "error", err)
		return
	}

	outcome, err := r.handlers.Dispatch.Handle(ctx, cmd)
	if err != nil {
		r.logger.ErrorContext(ctx, "dispatch failed", "order_id", env.Subject.String(), "error", err)
		return
	}
	r.logger.DebugContext(ctx, "dispatch attempted", "order_id", env.Subject.String(), "outcome", outcome.String())
}

// dispatchPending re-runs the matcher over waiting orders, oldest first,
// ignoring their backoff schedule.
func (r *Router) dispatchPending(ctx context.Context) {
	cmd, err := commands.NewDispatchPendingCommand(r.pendingBatch, true)
	if err != nil {
		r.logger.ErrorContext(ctx, "cannot build dispatch pending command", "error", err)
		return
	}

	summary, err := r.handlers.DispatchPending.Handle(ctx, cmd)
	if err != nil {
		r.logger.ErrorContext(ctx, "re-dispatch after agent release failed", "error", err)
		return
	}
	if n := summary[commands.DispatchAssigned]; n > 0 {
		r.logger.InfoContext(ctx, "waiting orders assigned", "count", n)
	}
}

// report logs the outcome of one envelope at the level its kind deserves.
func (r *Router) report(ctx context.Context, env event.Envelope, err error) {
	attrs := []any{
		"event_id", env.ID.String(),
		"type", string(env.Type),
		"subject", env.Subject.String(),
		"sequence", env.Sequence,
	}

	switch {
	case err == nil:
		metrics.EventsAppliedTotal.WithLabelValues(string(env.Type)).Inc()
		r.logger.DebugContext(ctx, "event applied", attrs...)
	case errors.Is(err, order.ErrStaleEvent), errors.Is(err, agent.ErrStaleUpdate):
		metrics.EventsDroppedTotal.WithLabelValues("stale").Inc()
		r.logger.DebugContext(ctx, "stale event discarded", append(attrs, "error", err)...)
	case errors.Is(err, order.ErrInvalidTransition):
		metrics.EventsDroppedTotal.WithLabelValues("invalid_transition").Inc()
		r.logger.WarnContext(ctx, "invalid transition discarded", append(attrs, "error", err)...)
	case errors.Is(err, errs.ErrObjectNotFound):
		metrics.EventsDroppedTotal.WithLabelValues("not_found").Inc()
		r.logger.WarnContext(ctx, "event for unknown subject dropped", append(attrs, "error", err)...)
	case errors.Is(err, errs.ErrObjectAlreadyExists):
		metrics.EventsDroppedTotal.WithLabelValues("already_exists").Inc()
		r.logger.WarnContext(ctx, "subject already exists", append(attrs, "error", err)...)
	default:
		metrics.EventsDroppedTotal.WithLabelValues("failed").Inc()
		r.logger.ErrorContext(ctx, "event processing failed", append(attrs, "error", err)...)
	}
}
