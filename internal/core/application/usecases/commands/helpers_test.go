package commands_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"orderdispatch/internal/adapters/out/memory"
	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/domain/model/agent"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/domain/services"
	"orderdispatch/internal/core/ports"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryUoWFactory struct {
	factory *memory.UnitOfWorkFactory
}

func (f memoryUoWFactory) Create() commands.UoW {
	return f.factory.CreateUnitOfWork()
}

type memoryAgentUoWFactory struct {
	factory *memory.UnitOfWorkFactory
}

func (f memoryAgentUoWFactory) Create() commands.AgentUoW {
	return f.factory.CreateUnitOfWork()
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []order.StatusChanged
}

func (p *recordingPublisher) Publish(_ context.Context, change order.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func (p *recordingPublisher) Published() []order.StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]order.StatusChanged(nil), p.changes...)
}

type sequences struct {
	mu        sync.Mutex
	last      map[string]int64
	allocated map[string]bool
}

func (s *sequences) Next(_ context.Context, subject kernel.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocate(subject), nil
}

func (s *sequences) Observe(_ context.Context, subject kernel.ID, sequence int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocated[fmt.Sprintf("%s:%d", subject, sequence)] {
		return s.allocate(subject), nil
	}
	s.last[subject.String()] = max(s.last[subject.String()], sequence)
	return sequence, nil
}

func (s *sequences) allocate(subject kernel.ID) int64 {
	s.last[subject.String()]++
	seq := s.last[subject.String()]
	s.allocated[fmt.Sprintf("%s:%d", subject, seq)] = true
	return seq
}

func newSequences() *sequences {
	return &sequences{last: make(map[string]int64), allocated: make(map[string]bool)}
}

type admission struct {
	mu       sync.Mutex
	rejected bool
	calls    int
}

func (a *admission) Admit(_ context.Context, _ ports.AdmissionSite, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.rejected {
		return ports.ErrAdmissionRejected
	}
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires the handlers over one in-memory store.
type fixture struct {
	store      *memory.Store
	uows       memoryUoWFactory
	agentUoWs  memoryAgentUoWFactory
	publisher  *recordingPublisher
	sequences  *sequences
	admission  *admission
	clock      *clock
	dispatcher services.OrderDispatcher
	policy     services.DispatchPolicy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	factory := memory.NewUnitOfWorkFactory(store)

	dispatcher, err := services.NewOrderDispatcher(10, 5*time.Minute)
	require.NoError(t, err)
	policy, err := services.NewDispatchPolicy(3, 5*time.Second, 2*time.Minute)
	require.NoError(t, err)

	return &fixture{
		store:      store,
		uows:       memoryUoWFactory{factory: factory},
		agentUoWs:  memoryAgentUoWFactory{factory: factory},
		publisher:  &recordingPublisher{},
		sequences:  newSequences(),
		admission:  &admission{},
		clock:      &clock{now: t0},
		dispatcher: dispatcher,
		policy:     policy,
	}
}

func (f *fixture) transitionHandler() commands.TransitionOrderCommandHandler {
	return commands.NewTransitionOrderCommandHandler(f.uows, f.publisher, discardLogger())
}

func (f *fixture) dispatchHandler() commands.DispatchOrderCommandHandler {
	return commands.NewDispatchOrderCommandHandler(
		f.uows, f.dispatcher, f.policy, f.admission, f.sequences, f.publisher, f.clock, discardLogger(),
	)
}

// placeReadyOrder stores an order that reached ready_for_pickup at sequence 3.
func (f *fixture) placeReadyOrder(t *testing.T, id string, lat, lon float64) {
	t.Helper()
	ctx := t.Context()

	pickup, err := kernel.NewLocation(lat, lon)
	require.NoError(t, err)
	o, err := order.NewOrder(kernel.MustParseID(id), kernel.NewID(), kernel.MustParseID("M1"), pickup, 1, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, o.Confirm(2, f.clock.Now()))
	require.NoError(t, o.MarkReady(3, f.clock.Now()))

	uow := f.uows.Create()
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.OrderRepository().Add(ctx, o))
	require.NoError(t, uow.Commit(ctx))
	_, err = f.sequences.Observe(ctx, o.ID(), 3)
	require.NoError(t, err)
}

func (f *fixture) addAvailableAgent(t *testing.T, id string, lat, lon float64) {
	t.Helper()
	ctx := t.Context()

	loc, err := kernel.NewLocation(lat, lon)
	require.NoError(t, err)
	a, err := agent.NewAgent(kernel.MustParseID(id), id, &loc, 1, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, a.GoOnline(2))

	uow := f.uows.Create()
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.AgentRepository().Add(ctx, a))
	require.NoError(t, uow.Commit(ctx))
}

func (f *fixture) order(t *testing.T, id string) *order.Order {
	t.Helper()
	o, err := f.store.Orders().Get(t.Context(), kernel.MustParseID(id))
	require.NoError(t, err)
	return o
}

func (f *fixture) agent(t *testing.T, id string) *agent.Agent {
	t.Helper()
	a, err := f.store.Agents().Get(t.Context(), kernel.MustParseID(id))
	require.NoError(t, err)
	return a
}
