package commands_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatch(t *testing.T, h commands.DispatchOrderCommandHandler, id string) commands.DispatchOutcome {
	t.Helper()

	cmd, err := commands.NewDispatchOrderCommand(kernel.MustParseID(id), false)
	require.NoError(t, err)
	outcome, err := h.Handle(t.Context(), cmd)
	require.NoError(t, err)
	return outcome
}

func TestDispatchOrder_AssignsNearestAgent(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.5200, 13.4050)
	f.addAvailableAgent(t, "A2", 52.5470, 13.4050) // ~3 km
	f.addAvailableAgent(t, "A1", 52.5290, 13.4050) // ~1 km

	outcome := dispatch(t, f.dispatchHandler(), "O1")

	assert.Equal(t, commands.DispatchAssigned, outcome)

	o := f.order(t, "O1")
	assert.Equal(t, order.Assigned, o.Status())
	require.NotNil(t, o.AgentID())
	assert.Equal(t, "A1", o.AgentID().String())
	assert.Equal(t, int64(4), o.Sequence())

	a1 := f.agent(t, "A1")
	assert.Equal(t, agent.Assigned, a1.Availability())
	assert.Equal(t, "O1", a1.ActiveOrderID().String())
	assert.Equal(t, agent.Available, f.agent(t, "A2").Availability())

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, order.ReadyForPickup, published[0].OldStatus)
	assert.Equal(t, order.Assigned, published[0].NewStatus)
	assert.Equal(t, "A1", published[0].AgentID.String())
}

func TestDispatchOrder_FailsAfterThreeEmptyCycles(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O2", 52.52, 13.405)
	h := f.dispatchHandler()

	assert.Equal(t, commands.DispatchRescheduled, dispatch(t, h, "O2"))
	o := f.order(t, "O2")
	assert.Equal(t, 1, o.DispatchAttempts())
	assert.Equal(t, t0.Add(5*time.Second), *o.NextDispatchAt())

	assert.Equal(t, commands.DispatchNotDue, dispatch(t, h, "O2"), "backoff must be honoured")

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, commands.DispatchRescheduled, dispatch(t, h, "O2"))
	o = f.order(t, "O2")
	assert.Equal(t, 2, o.DispatchAttempts())
	assert.Equal(t, f.clock.Now().Add(10*time.Second), *o.NextDispatchAt())
	assert.Empty(t, f.publisher.Published(), "dispatch misses are not status changes")

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, commands.DispatchFailed, dispatch(t, h, "O2"))

	o = f.order(t, "O2")
	assert.Equal(t, order.Failed, o.Status())
	assert.Equal(t, order.ReasonNoAgentAvailable, o.FailureReason())

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, order.Failed, published[0].NewStatus)
	assert.Equal(t, order.ReasonNoAgentAvailable, published[0].Reason)

	assert.Equal(t, commands.DispatchAbandoned, dispatch(t, h, "O2"))
	assert.Len(t, f.publisher.Published(), 1)
}

func TestDispatchOrder_AbandonsCancelledOrder(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)

	cancel, err := commands.NewTransitionOrderCommand(kernel.MustParseID("O1"), order.Cancelled, order.NoFailure, 4, t0)
	require.NoError(t, err)
	th := f.transitionHandler()
	_, err = th.Handle(t.Context(), cancel)
	require.NoError(t, err)

	assert.Equal(t, commands.DispatchAbandoned, dispatch(t, f.dispatchHandler(), "O1"))
	assert.Equal(t, agent.Available, f.agent(t, "A1").Availability())
	assert.Equal(t, order.Cancelled, f.order(t, "O1").Status())
}

func TestDispatchOrder_AdmissionRejected(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)
	f.admission.rejected = true

	assert.Equal(t, commands.DispatchThrottled, dispatch(t, f.dispatchHandler(), "O1"))

	o := f.order(t, "O1")
	assert.Zero(t, o.DispatchAttempts(), "a throttled attempt is not counted")
	assert.Nil(t, o.NextDispatchAt())
}

func TestDispatchOrder_IgnoresStaleAgentLocation(t *testing.T) {
	f := newFixture(t)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	f.clock.Advance(6 * time.Minute)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)

	assert.Equal(t, commands.DispatchRescheduled, dispatch(t, f.dispatchHandler(), "O1"))
	assert.Equal(t, agent.Available, f.agent(t, "A1").Availability())
}

// conflictingUoWFactory makes the first conditional write of one agent lose,
// as if a concurrent matcher had taken it. err replaces the default version
// conflict when set.
type conflictingUoWFactory struct {
	inner    memoryUoWFactory
	agentID  string
	err      error
	mu       sync.Mutex
	conflict bool
}

func (f *conflictingUoWFactory) Create() commands.UoW {
	return &conflictingUoW{UoW: f.inner.Create(), factory: f}
}

type conflictingUoW struct {
	commands.UoW
	factory *conflictingUoWFactory
}

func (u *conflictingUoW) AgentRepository() ports.AgentRepository {
	return &conflictingAgentRepo{AgentRepository: u.UoW.AgentRepository(), factory: u.factory}
}

type conflictingAgentRepo struct {
	ports.AgentRepository
	factory *conflictingUoWFactory
}

func (r *conflictingAgentRepo) Update(ctx context.Context, a *agent.Agent) error {
	r.factory.mu.Lock()
	defer r.factory.mu.Unlock()
	if !r.factory.conflict && a.ID().String() == r.factory.agentID {
		r.factory.conflict = true
		if r.factory.err != nil {
			return r.factory.err
		}
		return errs.NewVersionConflictError("agent", a.ID(), a.Version())
	}
	return r.AgentRepository.Update(ctx, a)
}

func TestDispatchOrder_MovesToNextCandidateOnAgentConflict(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.5200, 13.4050)
	f.addAvailableAgent(t, "A1", 52.5290, 13.4050)
	f.addAvailableAgent(t, "A2", 52.5470, 13.4050)

	uows := &conflictingUoWFactory{inner: f.uows, agentID: "A1"}
	h := commands.NewDispatchOrderCommandHandler(
		uows, f.dispatcher, f.policy, f.admission, f.sequences, f.publisher, f.clock, discardLogger(),
	)

	assert.Equal(t, commands.DispatchAssigned, dispatch(t, h, "O1"))
	assert.Equal(t, "A2", f.order(t, "O1").AgentID().String())
	assert.Equal(t, agent.Available, f.agent(t, "A1").Availability())
	assert.Equal(t, agent.Assigned, f.agent(t, "A2").Availability())
}

func TestDispatchOrder_AbandonsOrderHeldByAnotherAgent(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.5200, 13.4050)
	f.addAvailableAgent(t, "A1", 52.5290, 13.4050)
	f.addAvailableAgent(t, "A2", 52.5470, 13.4050)

	uows := &conflictingUoWFactory{
		inner:   f.uows,
		agentID: "A1",
		err:     fmt.Errorf("%w: agent A1", ports.ErrOrderHeld),
	}
	h := commands.NewDispatchOrderCommandHandler(
		uows, f.dispatcher, f.policy, f.admission, f.sequences, f.publisher, f.clock, discardLogger(),
	)

	assert.Equal(t, commands.DispatchAbandoned, dispatch(t, h, "O1"), "no error reaches the caller")
	o := f.order(t, "O1")
	assert.Equal(t, order.ReadyForPickup, o.Status())
	assert.Equal(t, 0, o.DispatchAttempts(), "no miss is recorded")
	assert.Equal(t, agent.Available, f.agent(t, "A2").Availability(), "later candidates are not tried")
	assert.Empty(t, f.publisher.Published())
}

func TestDispatchOrder_ConcurrentMatchersAssignAgentOnce(t *testing.T) {
	f := newFixture(t)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	const orders = 8
	for i := range orders {
		f.placeReadyOrder(t, fmt.Sprintf("O%d", i), 52.52, 13.405)
	}

	h := f.dispatchHandler()
	var wg sync.WaitGroup
	outcomes := make([]commands.DispatchOutcome, orders)
	for i := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd, err := commands.NewDispatchOrderCommand(kernel.MustParseID(fmt.Sprintf("O%d", i)), false)
			if err != nil {
				return
			}
			outcomes[i], _ = h.Handle(context.Background(), cmd)
		}()
	}
	wg.Wait()

	assigned := 0
	var assignedOrder string
	for i := range orders {
		o := f.order(t, fmt.Sprintf("O%d", i))
		if o.Status() == order.Assigned {
			assigned++
			assignedOrder = o.ID().String()
			assert.Equal(t, "A1", o.AgentID().String())
		}
	}
	assert.Equal(t, 1, assigned)

	a1 := f.agent(t, "A1")
	assert.Equal(t, agent.Assigned, a1.Availability())
	assert.Equal(t, assignedOrder, a1.ActiveOrderID().String())

	assignments := 0
	for _, c := range f.publisher.Published() {
		if c.NewStatus == order.Assigned {
			assignments++
		}
	}
	assert.Equal(t, 1, assignments)
}

func TestDispatchOrder_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	h := f.dispatchHandler()
	cmd, err := commands.NewDispatchOrderCommand(kernel.MustParseID("missing"), false)
	require.NoError(t, err)

	_, err = h.Handle(t.Context(), cmd)

	assert.ErrorIs(t, err, errs.ErrObjectNotFound)
}

func TestDispatchOrder_NotConstructed(t *testing.T) {
	h := newFixture(t).dispatchHandler()

	_, err := h.Handle(t.Context(), commands.DispatchOrderCommand{})

	assert.ErrorIs(t, err, commands.ErrDispatchOrderCommandIsNotConstructed)
}
