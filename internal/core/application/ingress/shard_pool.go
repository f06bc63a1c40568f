package ingress

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"orderdispatch/internal/core/domain/model/event"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/metrics"
)

var ErrPoolStopped = errors.New("shard pool is stopped")

// ProcessFunc handles one envelope on its shard goroutine.
type ProcessFunc func(ctx context.Context, env event.Envelope)

// ShardPool serializes events per subject: every subject hashes to one shard
// and each shard is drained by a single goroutine. Events for different
// subjects run in parallel.
type ShardPool struct {
	shards  []chan event.Envelope
	process ProcessFunc
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewShardPool(shards, queueSize int, process ProcessFunc, logger *slog.Logger) (*ShardPool, error) {
	if shards <= 0 {
		return nil, errs.NewValueIsOutOfRangeError("shards", shards, 1, "max int")
	}
	if queueSize < 0 {
		return nil, errs.NewValueIsOutOfRangeError("queueSize", queueSize, 0, "max int")
	}
	if process == nil {
		return nil, errs.NewValueIsRequiredError("process")
	}

	p := &ShardPool{
		shards:  make([]chan event.Envelope, shards),
		process: process,
		logger:  logger.With("component", "shard_pool"),
	}
	for i := range p.shards {
		p.shards[i] = make(chan event.Envelope, queueSize)
	}
	return p, nil
}

// Start launches one goroutine per shard. ctx is passed to every ProcessFunc
// call; cancel it only after Stop has drained the queues.
func (p *ShardPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i, queue := range p.shards {
		p.wg.Add(1)
		go p.run(ctx, i, queue)
	}
	p.logger.Info("shard pool started", "shards", len(p.shards))
}

// Enqueue routes env to its shard. It blocks while the shard queue is full.
func (p *ShardPool) Enqueue(ctx context.Context, env event.Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.shards[p.shardOf(env)] <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new events, lets the shards finish what is queued and waits.
func (p *ShardPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, queue := range p.shards {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("shard pool stopped")
}

func (p *ShardPool) shardOf(env event.Envelope) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(env.Subject.String()))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *ShardPool) run(ctx context.Context, shard int, queue <-chan event.Envelope) {
	defer p.wg.Done()

	for env := range queue {
		started := time.Now()
		p.safeProcess(ctx, shard, env)
		metrics.EventProcessingDuration.Observe(time.Since(started).Seconds())
	}
}

// safeProcess keeps one bad event from killing its shard.
func (p *ShardPool) safeProcess(ctx context.Context, shard int, env event.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "event handler panicked",
				"shard", shard,
				"event_id", env.ID.String(),
				"type", string(env.Type),
				"panic", r,
			)
		}
	}()
	p.process(ctx, env)
}
