package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/domain/services"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/metrics"
)

// DispatchOutcome describes what one dispatch attempt did.
type DispatchOutcome int

const (
	// DispatchAbandoned means the order was no longer ready for pickup.
	DispatchAbandoned DispatchOutcome = iota
	// DispatchNotDue means the order is waiting for its retry backoff. An
	// attempt that ignored the schedule and found no agent also reports it.
	DispatchNotDue
	// DispatchThrottled means admission control rejected the attempt; no
	// attempt was recorded.
	DispatchThrottled
	DispatchAssigned
	// DispatchRescheduled means no agent was found and a retry was scheduled.
	DispatchRescheduled
	// DispatchFailed means the attempt budget ran out and the order failed.
	DispatchFailed
)

var dispatchOutcomeNames = map[DispatchOutcome]string{
	DispatchAbandoned:   "abandoned",
	DispatchNotDue:      "not_due",
	DispatchThrottled:   "throttled",
	DispatchAssigned:    "assigned",
	DispatchRescheduled: "rescheduled",
	DispatchFailed:      "failed",
}

func (o DispatchOutcome) String() string {
	return dispatchOutcomeNames[o]
}

// errAgentConflict marks a candidate that was taken by a concurrent matcher
// between the read and the conditional write.
var errAgentConflict = errors.New("agent conflict")

// DispatchOrderCommandHandler is the dispatch matcher.
//
// Candidates are tried nearest first. Each assignment writes the agent and the
// order conditionally in one transaction; a lost agent write moves on to the
// next candidate, and a lost order write re-reads the order, abandoning the
// attempt if it is no longer ready for pickup.
type DispatchOrderCommandHandler struct {
	uowFactory UoWFactory
	dispatcher services.OrderDispatcher
	policy     services.DispatchPolicy
	admission  ports.AdmissionController
	sequences  ports.SequenceAuthority
	publisher  ports.OutcomePublisher
	clock      ports.Clock
	logger     *slog.Logger
}

func NewDispatchOrderCommandHandler(
	uowFactory UoWFactory,
	dispatcher services.OrderDispatcher,
	policy services.DispatchPolicy,
	admission ports.AdmissionController,
	sequences ports.SequenceAuthority,
	publisher ports.OutcomePublisher,
	clock ports.Clock,
	logger *slog.Logger,
) DispatchOrderCommandHandler {
	return DispatchOrderCommandHandler{
		uowFactory: uowFactory,
		dispatcher: dispatcher,
		policy:     policy,
		admission:  admission,
		sequences:  sequences,
		publisher:  publisher,
		clock:      clock,
		logger:     logger.With("component", "dispatch_matcher"),
	}
}

func (h *DispatchOrderCommandHandler) Handle(ctx context.Context, cmd DispatchOrderCommand) (DispatchOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return DispatchAbandoned, err
	}

	admitted := false
	var err error
	for range maxConflictRetries {
		var (
			outcome DispatchOutcome
			changes []order.StatusChanged
		)
		outcome, changes, err = h.attempt(ctx, cmd, &admitted)
		if errors.Is(err, errs.ErrVersionConflict) {
			h.logger.DebugContext(ctx, "order changed during dispatch, re-reading",
				"order_id", cmd.OrderID().String())
			continue
		}
		if err != nil {
			return outcome, err
		}

		metrics.DispatchOutcomesTotal.WithLabelValues(outcome.String()).Inc()
		publishCommitted(ctx, h.publisher, h.logger, changes)
		return outcome, nil
	}

	return DispatchAbandoned, err
}

func (h *DispatchOrderCommandHandler) attempt(
	ctx context.Context,
	cmd DispatchOrderCommand,
	admitted *bool,
) (DispatchOutcome, []order.StatusChanged, error) {
	uow := h.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return DispatchAbandoned, nil, err
	}

	defer func() {
		_ = uow.Rollback(ctx)
	}()

	orderRepo := uow.OrderRepository()
	o, err := orderRepo.Get(ctx, cmd.OrderID())
	if err != nil {
		return DispatchAbandoned, nil, err
	}

	if o.Status() != order.ReadyForPickup {
		return DispatchAbandoned, nil, nil
	}

	now := h.clock.Now()
	if !cmd.IgnoreSchedule() && !o.IsDispatchDue(now) {
		return DispatchNotDue, nil, nil
	}

	if !*admitted {
		if err = h.admission.Admit(ctx, ports.AdmissionDispatch, o.MerchantID().String()); err != nil {
			if errors.Is(err, ports.ErrAdmissionRejected) {
				return DispatchThrottled, nil, nil
			}
			return DispatchAbandoned, nil, err
		}
		*admitted = true
	}

	agents, err := uow.AgentRepository().GetAllAvailable(ctx)
	if err != nil {
		return DispatchAbandoned, nil, err
	}

	candidates, err := h.dispatcher.Candidates(o, agents, now)
	if err != nil && !errors.Is(err, services.ErrNoAgentAvailable) {
		return DispatchAbandoned, nil, err
	}

	for _, candidate := range candidates {
		assignErr := h.assign(ctx, uow, o, candidate.Agent, now)
		if errors.Is(assignErr, errAgentConflict) {
			h.logger.DebugContext(ctx, "candidate taken by a concurrent matcher",
				"order_id", o.ID().String(), "agent_id", candidate.Agent.ID().String())
			continue
		}
		if errors.Is(assignErr, ports.ErrOrderHeld) {
			// The transaction is unusable after this error; the order belongs
			// to another agent anyway.
			h.logger.InfoContext(ctx, "order assigned by a concurrent matcher",
				"order_id", o.ID().String())
			return DispatchAbandoned, nil, nil
		}
		if assignErr != nil {
			return DispatchAbandoned, nil, assignErr
		}

		if err = uow.Commit(ctx); err != nil {
			return DispatchAbandoned, nil, err
		}
		h.logger.InfoContext(ctx, "order assigned",
			"order_id", o.ID().String(),
			"agent_id", candidate.Agent.ID().String(),
			"distance_km", candidate.DistanceKm,
		)
		return DispatchAssigned, uow.CommittedChanges(), nil
	}

	// Out-of-schedule attempts may assign but never spend the attempt budget.
	if !o.IsDispatchDue(now) {
		return DispatchNotDue, nil, nil
	}

	outcome, err := h.recordMiss(ctx, orderRepo, o, now)
	if err != nil {
		return DispatchAbandoned, nil, err
	}
	if err = uow.Commit(ctx); err != nil {
		return DispatchAbandoned, nil, err
	}
	return outcome, uow.CommittedChanges(), nil
}

// assign writes the agent first so that a lost agent race never touches the
// order row.
func (h *DispatchOrderCommandHandler) assign(
	ctx context.Context,
	uow UoW,
	o *order.Order,
	a *agent.Agent,
	now time.Time,
) error {
	if err := a.AssignOrder(o.ID()); err != nil {
		return errors.Join(errAgentConflict, err)
	}
	if err := uow.AgentRepository().Update(ctx, a); err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			return errors.Join(errAgentConflict, err)
		}
		return err
	}

	seq, err := nextSequence(ctx, h.sequences, o)
	if err != nil {
		return err
	}
	if err = o.AssignAgent(a.ID(), seq, now); err != nil {
		return err
	}
	return uow.OrderRepository().Update(ctx, o)
}

func (h *DispatchOrderCommandHandler) recordMiss(
	ctx context.Context,
	orderRepo ports.OrderRepository,
	o *order.Order,
	now time.Time,
) (DispatchOutcome, error) {
	outcome := DispatchRescheduled
	if h.policy.Exhausted(o.DispatchAttempts()) {
		seq, err := nextSequence(ctx, h.sequences, o)
		if err != nil {
			return DispatchAbandoned, err
		}
		if err = o.Fail(order.ReasonNoAgentAvailable, seq, now); err != nil {
			return DispatchAbandoned, err
		}
		outcome = DispatchFailed
		h.logger.WarnContext(ctx, "order failed, no agent available",
			"order_id", o.ID().String(), "attempts", o.DispatchAttempts()+1)
	} else {
		next := now.Add(h.policy.Backoff(o.DispatchAttempts() + 1))
		if err := o.RecordDispatchMiss(next); err != nil {
			return DispatchAbandoned, err
		}
	}

	if err := orderRepo.Update(ctx, o); err != nil {
		return DispatchAbandoned, err
	}
	return outcome, nil
}
