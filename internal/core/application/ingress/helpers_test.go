package ingress_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"orderdispatch/internal/adapters/out/memory"
	"orderdispatch/internal/core/application/ingress"
	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/domain/model/event"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/core/domain/services"
	"orderdispatch/internal/core/ports"

	"github.com/stretchr/testify/require"
)

var errQueueFull = errors.New("queue full")

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

type uowFactory struct{ f *memory.UnitOfWorkFactory }

func (u uowFactory) Create() commands.UoW { return u.f.CreateUnitOfWork() }

type agentUoWFactory struct{ f *memory.UnitOfWorkFactory }

func (u agentUoWFactory) Create() commands.AgentUoW { return u.f.CreateUnitOfWork() }

type dedupWindow struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (d *dedupWindow) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[key]
	return ok, nil
}

func (d *dedupWindow) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; ok {
		return false, nil
	}
	d.keys[key] = struct{}{}
	return true, nil
}

func (d *dedupWindow) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

type sequenceAuthority struct {
	mu        sync.Mutex
	last      map[string]int64
	allocated map[string]bool
}

func (s *sequenceAuthority) Next(_ context.Context, subject kernel.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocate(subject), nil
}

func (s *sequenceAuthority) Observe(_ context.Context, subject kernel.ID, sequence int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocated[fmt.Sprintf("%s:%d", subject, sequence)] {
		return s.allocate(subject), nil
	}
	s.last[subject.String()] = max(s.last[subject.String()], sequence)
	return sequence, nil
}

func (s *sequenceAuthority) allocate(subject kernel.ID) int64 {
	s.last[subject.String()]++
	seq := s.last[subject.String()]
	s.allocated[fmt.Sprintf("%s:%d", subject, seq)] = true
	return seq
}

type admission struct {
	mu     sync.Mutex
	tokens map[string]int
}

// Admit allows every tenant without a configured budget.
func (a *admission) Admit(_ context.Context, _ ports.AdmissionSite, tenant string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	left, limited := a.tokens[tenant]
	if !limited {
		return nil
	}
	if left == 0 {
		return ports.ErrAdmissionRejected
	}
	a.tokens[tenant] = left - 1
	return nil
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

func (p *recordingPublisher) statuses(orderID string) []order.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []order.Status
	for _, c := range p.changes {
		if c.OrderID.String() == orderID {
			out = append(out, c.NewStatus)
		}
	}
	return out
}

// syncQueue routes envelopes on the caller's goroutine. It refuses the next
// failures envelopes first.
type syncQueue struct {
	mu       sync.Mutex
	route    ingress.ProcessFunc
	failures int
}

func (q *syncQueue) Enqueue(ctx context.Context, env event.Envelope) error {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return errQueueFull
	}
	q.mu.Unlock()

	q.route(ctx, env)
	return nil
}

type fixture struct {
	store     *memory.Store
	queue     *syncQueue
	ingress   *ingress.Ingress
	publisher *recordingPublisher
	admission *admission
	dedup     *dedupWindow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	factory := memory.NewUnitOfWorkFactory(store)
	uows := uowFactory{f: factory}
	agentUoWs := agentUoWFactory{f: factory}
	publisher := &recordingPublisher{}
	sequences := &sequenceAuthority{last: make(map[string]int64), allocated: make(map[string]bool)}
	adm := &admission{tokens: make(map[string]int)}
	dedup := &dedupWindow{keys: make(map[string]struct{})}
	clock := ports.ClockFunc(func() time.Time { return t0 })
	logger := discardLogger()

	dispatcher, err := services.NewOrderDispatcher(10, 5*time.Minute)
	require.NoError(t, err)
	policy, err := services.NewDispatchPolicy(3, 5*time.Second, 2*time.Minute)
	require.NoError(t, err)

	place := commands.NewPlaceOrderCommandHandler(uows, publisher, logger)
	transition := commands.NewTransitionOrderCommandHandler(uows, publisher, logger)
	dispatch := commands.NewDispatchOrderCommandHandler(
		uows, dispatcher, policy, adm, sequences, publisher, clock, logger,
	)
	pending := commands.NewDispatchPendingCommandHandler(uows, &dispatch, clock, logger)
	register := commands.NewRegisterAgentCommandHandler(agentUoWs)
	locate := commands.NewUpdateAgentLocationCommandHandler(agentUoWs)
	status := commands.NewUpdateAgentStatusCommandHandler(agentUoWs)

	router, err := ingress.NewRouter(ingress.Handlers{
		PlaceOrder:          &place,
		Transition:          &transition,
		Dispatch:            &dispatch,
		DispatchPending:     &pending,
		RegisterAgent:       &register,
		UpdateAgentLocation: &locate,
		UpdateAgentStatus:   &status,
	}, 50, logger)
	require.NoError(t, err)

	queue := &syncQueue{route: router.Route}
	in, err := ingress.NewIngress(dedup, adm, sequences, queue, clock, logger)
	require.NoError(t, err)

	return &fixture{
		store:     store,
		queue:     queue,
		ingress:   in,
		publisher: publisher,
		admission: adm,
		dedup:     dedup,
	}
}

func (f *fixture) submit(t *testing.T, raw ingress.RawEvent) ingress.Receipt {
	t.Helper()
	receipt, err := f.ingress.Submit(t.Context(), raw)
	require.NoError(t, err)
	return receipt
}

func (f *fixture) order(t *testing.T, id string) *order.Order {
	t.Helper()
	o, err := f.store.Orders().Get(t.Context(), kernel.MustParseID(id))
	require.NoError(t, err)
	return o
}

func placed(orderID string, seq int64, lat, lon float64) ingress.RawEvent {
	return ingress.RawEvent{
		Type:       string(event.OrderPlaced),
		SubjectID:  orderID,
		Sequence:   ptr(seq),
		CustomerID: "C1",
		MerchantID: "M1",
		Pickup:     &ingress.LocationPayload{Latitude: ptr(lat), Longitude: ptr(lon)},
	}
}

func orderEvent(typ event.Type, orderID string, seq int64) ingress.RawEvent {
	return ingress.RawEvent{Type: string(typ), SubjectID: orderID, Sequence: ptr(seq)}
}

func agentEvents(agentID string, lat, lon float64) []ingress.RawEvent {
	return []ingress.RawEvent{
		{
			Type:      string(event.AgentRegistered),
			SubjectID: agentID,
			Sequence:  ptr(int64(1)),
			AgentName: "agent " + agentID,
			Location:  &ingress.LocationPayload{Latitude: ptr(lat), Longitude: ptr(lon)},
		},
		{
			Type:         string(event.AgentStatusUpdated),
			SubjectID:    agentID,
			Sequence:     ptr(int64(2)),
			Availability: "available",
		},
	}
}
