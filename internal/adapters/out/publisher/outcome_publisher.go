// Package publisher turns committed order status changes into broker messages.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderdispatch/internal/adapters/out/broker"
	"orderdispatch/internal/core/domain/model/order"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// DefaultTopic is the topic downstream consumers subscribe to.
const DefaultTopic = "order-events"

// Message is the JSON body of one notification.
type Message struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	MerchantID string    `json:"merchant_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Sequence   int64     `json:"sequence"`
	AgentID    *string   `json:"agent_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Config struct {
	Topic string
	// MaxRetries bounds the retries after the first failed attempt.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Topic:           DefaultTopic,
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// OutcomePublisher implements ports.OutcomePublisher on top of a MessageBroker.
type OutcomePublisher struct {
	broker  broker.MessageBroker
	config  Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewOutcomePublisher(b broker.MessageBroker, config Config, logger *slog.Logger) (*OutcomePublisher, error) {
	if b == nil {
		return nil, errs.NewValueIsRequiredError("broker")
	}
	if config.Topic == "" {
		return nil, errs.NewValueIsRequiredError("topic")
	}
	if config.BreakerFailures == 0 {
		return nil, errs.NewValueIsOutOfRangeError("breakerFailures", config.BreakerFailures, 1, "max uint32")
	}

	logger = logger.With("component", "outcome_publisher")

	settings := gobreaker.Settings{
		Name:    "outcome-publisher",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &OutcomePublisher{
		broker:  b,
		config:  config,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}, nil
}

// Publish delivers change at least once. It retries with exponential backoff
// and gives up early while the breaker is open. The returned error only means
// the notification was not delivered; the transition itself stays committed.
func (p *OutcomePublisher) Publish(ctx context.Context, change order.StatusChanged) error {
	started := time.Now()
	defer func() {
		metrics.PublishDuration.Observe(time.Since(started).Seconds())
	}()

	body, err := json.Marshal(toMessage(change))
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	headers := map[string]string{
		broker.HeaderIdempotencyKey: change.IdempotencyKey(),
		"Event-Type":                "order.status_changed",
	}

	attempt := 0
	operation := func() error {
		attempt++
		_, err := p.breaker.Execute(func() (any, error) {
			return nil, p.broker.Publish(ctx, p.config.Topic, body, headers)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if err != nil {
			p.logger.DebugContext(ctx, "publish attempt failed",
				"idempotency_key", change.IdempotencyKey(),
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.config.MaxRetries), ctx))
	if err != nil {
		metrics.PublishFailuresTotal.Inc()
		return fmt.Errorf("publish %s after %d attempts: %w", change.IdempotencyKey(), attempt, err)
	}
	return nil
}

func (p *OutcomePublisher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.InitialInterval
	b.MaxInterval = p.config.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func toMessage(change order.StatusChanged) Message {
	var agentID *string
	if change.AgentID != nil {
		s := change.AgentID.String()
		agentID = &s
	}

	return Message{
		EventID:    uuid.NewString(),
		OrderID:    change.OrderID.String(),
		CustomerID: change.CustomerID.String(),
		MerchantID: change.MerchantID.String(),
		OldStatus:  change.OldStatus.String(),
		NewStatus:  change.NewStatus.String(),
		Sequence:   change.Sequence,
		AgentID:    agentID,
		Reason:     string(change.Reason),
		OccurredAt: change.OccurredAt,
	}
}
