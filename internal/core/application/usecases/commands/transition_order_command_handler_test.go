package commands_test

import (
	"testing"

	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transition(
	t *testing.T,
	h commands.TransitionOrderCommandHandler,
	id string,
	target order.Status,
	seq int64,
) (order.StatusChanged, error) {
	t.Helper()

	reason := order.NoFailure
	if target == order.Failed {
		reason = order.ReasonAgentUnreachable
	}
	cmd, err := commands.NewTransitionOrderCommand(kernel.MustParseID(id), target, reason, seq, t0)
	require.NoError(t, err)
	return h.Handle(t.Context(), cmd)
}

func TestTransitionOrder_DeliveryPath(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	require.Equal(t, commands.DispatchAssigned, dispatch(t, f.dispatchHandler(), "O1"))
	h := f.transitionHandler()

	change, err := transition(t, h, "O1", order.InTransit, 5)
	require.NoError(t, err)
	assert.Equal(t, order.Assigned, change.OldStatus)
	assert.Equal(t, order.InTransit, change.NewStatus)
	assert.Equal(t, agent.Assigned, f.agent(t, "A1").Availability())

	change, err = transition(t, h, "O1", order.Delivered, 6)
	require.NoError(t, err)
	assert.Equal(t, order.Delivered, change.NewStatus)
	assert.Equal(t, "O1:6", change.IdempotencyKey())

	a1 := f.agent(t, "A1")
	assert.Equal(t, agent.Available, a1.Availability(), "delivery releases the agent")
	assert.Nil(t, a1.ActiveOrderID())

	statuses := make([]order.Status, 0)
	for _, c := range f.publisher.Published() {
		statuses = append(statuses, c.NewStatus)
	}
	assert.Equal(t, []order.Status{order.Assigned, order.InTransit, order.Delivered}, statuses)
}

func TestTransitionOrder_FailureReleasesAgent(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	require.Equal(t, commands.DispatchAssigned, dispatch(t, f.dispatchHandler(), "O1"))

	change, err := transition(t, f.transitionHandler(), "O1", order.Failed, 5)

	require.NoError(t, err)
	assert.Equal(t, order.ReasonAgentUnreachable, change.Reason)
	assert.Equal(t, order.Failed, f.order(t, "O1").Status())
	assert.Equal(t, agent.Available, f.agent(t, "A1").Availability())
}

func TestTransitionOrder_StaleCancelIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O3", 52.52, 13.405)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	require.Equal(t, commands.DispatchAssigned, dispatch(t, f.dispatchHandler(), "O3"))
	before := len(f.publisher.Published())

	// The cancel was emitted before the assignment (sequence 4) but arrives after it.
	_, err := transition(t, f.transitionHandler(), "O3", order.Cancelled, 3)

	require.ErrorIs(t, err, order.ErrStaleEvent)
	o := f.order(t, "O3")
	assert.Equal(t, order.Assigned, o.Status())
	assert.Equal(t, int64(4), o.Sequence())
	assert.Len(t, f.publisher.Published(), before)
}

func TestTransitionOrder_DuplicateEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)
	h := f.transitionHandler()

	_, err := transition(t, h, "O1", order.Cancelled, 4)
	require.NoError(t, err)
	snapshot := f.order(t, "O1").Snapshot()

	_, err = transition(t, h, "O1", order.Cancelled, 4)

	require.ErrorIs(t, err, order.ErrStaleEvent)
	assert.Equal(t, snapshot, f.order(t, "O1").Snapshot())
	assert.Len(t, f.publisher.Published(), 1)
}

func TestTransitionOrder_InvalidTransition(t *testing.T) {
	f := newFixture(t)
	f.placeReadyOrder(t, "O1", 52.52, 13.405)

	_, err := transition(t, f.transitionHandler(), "O1", order.Delivered, 4)

	require.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Equal(t, order.ReadyForPickup, f.order(t, "O1").Status())
	assert.Equal(t, int64(3), f.order(t, "O1").Sequence())
	assert.Empty(t, f.publisher.Published())
}

func TestTransitionOrder_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := transition(t, f.transitionHandler(), "missing", order.Confirmed, 2)

	assert.ErrorIs(t, err, errs.ErrObjectNotFound)
}

func TestNewTransitionOrderCommand(t *testing.T) {
	id := kernel.MustParseID("O1")

	t.Run("should refuse assignment requests", func(t *testing.T) {
		_, err := commands.NewTransitionOrderCommand(id, order.Assigned, order.NoFailure, 2, t0)
		assert.ErrorIs(t, err, errs.ErrValueIsInvalid)
	})

	t.Run("should require a failure reason", func(t *testing.T) {
		_, err := commands.NewTransitionOrderCommand(id, order.Failed, order.NoFailure, 2, t0)
		assert.ErrorIs(t, err, order.ErrFailureReasonIsRequired)
	})

	t.Run("should require a positive sequence", func(t *testing.T) {
		_, err := commands.NewTransitionOrderCommand(id, order.Confirmed, order.NoFailure, 0, t0)
		assert.ErrorIs(t, err, errs.ErrValueIsInvalid)
	})

	t.Run("should reject a zero command", func(t *testing.T) {
		assert.ErrorIs(t, commands.TransitionOrderCommand{}.Validate(), commands.ErrTransitionOrderCommandIsNotConstructed)
	})
}
