package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

var ErrBrokerClosed = errors.New("broker is closed")

// RabbitMQBrokerCreator builds the RabbitMQ broker. Tests swap it out.
type RabbitMQBrokerCreator func(ctx context.Context, settings Settings, logger *slog.Logger) (MessageBroker, error)

var NewRabbitMqBroker RabbitMQBrokerCreator = func(
	_ context.Context,
	settings Settings,
	logger *slog.Logger,
) (MessageBroker, error) {
	conn, err := amqp.Dial(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		settings.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", settings.Exchange, err)
	}

	b := &rabbitMqBroker{
		connection: conn,
		channel:    ch,
		exchange:   settings.Exchange,
		logger:     logger.With("component", "rabbitmq_broker"),
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	go b.watch(notifyClose)

	return b, nil
}

// rabbitMqBroker publishes to a topic exchange; the topic is the routing key.
// A channel is not safe for concurrent publishing, hence the mutex.
type rabbitMqBroker struct {
	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	closed     bool
	logger     *slog.Logger
}

func (r *rabbitMqBroker) Publish(_ context.Context, topic string, data []byte, headers map[string]string) error {
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrBrokerClosed
	}

	return r.channel.Publish(r.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    headers[HeaderIdempotencyKey],
		Headers:      table,
		Body:         data,
	})
}

func (r *rabbitMqBroker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.channel.Close()
	return r.connection.Close()
}

// watch marks the broker closed when the server drops the connection, so
// publishes fail fast and the publisher's breaker opens.
func (r *rabbitMqBroker) watch(notifyClose <-chan *amqp.Error) {
	for err := range notifyClose {
		r.logger.Error("RabbitMQ connection closed", "error", err)
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}
}
