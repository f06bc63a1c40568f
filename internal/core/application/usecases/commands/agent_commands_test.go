package commands_test

import (
	"testing"
	"time"

	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAgentCommandHandler(t *testing.T) {
	f := newFixture(t)
	h := commands.NewRegisterAgentCommandHandler(f.agentUoWs)
	loc, err := kernel.NewLocation(52.52, 13.405)
	require.NoError(t, err)

	cmd, err := commands.NewRegisterAgentCommand(kernel.MustParseID("A1"), "Alice", &loc, 1, t0)
	require.NoError(t, err)
	require.NoError(t, h.Handle(t.Context(), cmd))

	a := f.agent(t, "A1")
	assert.Equal(t, agent.Offline, a.Availability())
	assert.Equal(t, "Alice", a.Name())

	err = h.Handle(t.Context(), cmd)
	assert.ErrorIs(t, err, errs.ErrObjectAlreadyExists)
}

func TestUpdateAgentLocationCommandHandler(t *testing.T) {
	f := newFixture(t)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	h := commands.NewUpdateAgentLocationCommandHandler(f.agentUoWs)
	paris, err := kernel.NewLocation(48.8566, 2.3522)
	require.NoError(t, err)

	t.Run("should apply a newer report", func(t *testing.T) {
		cmd, err := commands.NewUpdateAgentLocationCommand(kernel.MustParseID("A1"), paris, 5, t0.Add(time.Minute))
		require.NoError(t, err)

		require.NoError(t, h.Handle(t.Context(), cmd))

		loc, ok := f.agent(t, "A1").Location()
		require.True(t, ok)
		assert.InDelta(t, 48.8566, loc.Latitude(), 1e-9)
	})

	t.Run("should drop a reordered report", func(t *testing.T) {
		berlin, err := kernel.NewLocation(52.52, 13.405)
		require.NoError(t, err)
		cmd, err := commands.NewUpdateAgentLocationCommand(kernel.MustParseID("A1"), berlin, 4, t0.Add(2*time.Minute))
		require.NoError(t, err)

		err = h.Handle(t.Context(), cmd)

		assert.ErrorIs(t, err, agent.ErrStaleUpdate)
		loc, _ := f.agent(t, "A1").Location()
		assert.InDelta(t, 48.8566, loc.Latitude(), 1e-9)
	})

	t.Run("should report an unknown agent", func(t *testing.T) {
		cmd, err := commands.NewUpdateAgentLocationCommand(kernel.MustParseID("ghost"), paris, 1, t0)
		require.NoError(t, err)

		assert.ErrorIs(t, h.Handle(t.Context(), cmd), errs.ErrObjectNotFound)
	})
}

func TestUpdateAgentStatusCommandHandler(t *testing.T) {
	f := newFixture(t)
	f.addAvailableAgent(t, "A1", 52.52, 13.405)
	h := commands.NewUpdateAgentStatusCommandHandler(f.agentUoWs)

	offline, err := commands.NewUpdateAgentStatusCommand(kernel.MustParseID("A1"), agent.Offline, 3)
	require.NoError(t, err)
	became, err := h.Handle(t.Context(), offline)
	require.NoError(t, err)
	assert.False(t, became)
	assert.Equal(t, agent.Offline, f.agent(t, "A1").Availability())

	online, err := commands.NewUpdateAgentStatusCommand(kernel.MustParseID("A1"), agent.Available, 4)
	require.NoError(t, err)
	became, err = h.Handle(t.Context(), online)
	require.NoError(t, err)
	assert.True(t, became)

	again, err := commands.NewUpdateAgentStatusCommand(kernel.MustParseID("A1"), agent.Available, 5)
	require.NoError(t, err)
	became, err = h.Handle(t.Context(), again)
	require.NoError(t, err)
	assert.False(t, became, "already available")

	_, err = commands.NewUpdateAgentStatusCommand(kernel.MustParseID("A1"), agent.Assigned, 6)
	assert.ErrorIs(t, err, errs.ErrValueIsInvalid)
}

func TestMarkStaleAgentsOfflineCommandHandler(t *testing.T) {
	f := newFixture(t)
	f.addAvailableAgent(t, "old", 52.52, 13.405)
	f.clock.Advance(10 * time.Minute)
	f.addAvailableAgent(t, "new", 52.52, 13.405)
	h := commands.NewMarkStaleAgentsOfflineCommandHandler(f.agentUoWs, f.clock)

	cmd, err := commands.NewMarkStaleAgentsOfflineCommand(5*time.Minute, 100)
	require.NoError(t, err)
	marked, err := h.Handle(t.Context(), cmd)

	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, agent.Offline, f.agent(t, "old").Availability())
	assert.Equal(t, agent.Available, f.agent(t, "new").Availability())
}
