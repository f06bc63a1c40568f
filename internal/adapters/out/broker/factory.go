package broker

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

const (
	TypeRabbitMQ = "rabbitmq"
	TypeRedis    = "redis"

	// HeaderIdempotencyKey carries "<order id>:<sequence>" on every message.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Settings selects and configures a broker.
type Settings struct {
	Type     string
	URL      string
	Exchange string
	// Redis is required for the redis broker.
	Redis goredis.UniversalClient
}

func NewBroker(ctx context.Context, settings Settings, logger *slog.Logger) (MessageBroker, error) {
	switch settings.Type {
	case TypeRabbitMQ:
		return NewRabbitMqBroker(ctx, settings, logger)
	case TypeRedis:
		if settings.Redis == nil {
			return nil, fmt.Errorf("redis broker requires a redis client")
		}
		return NewRedisBroker(settings.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", settings.Type)
	}
}
