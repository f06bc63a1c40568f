package broker

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisMessage is what the Redis broker puts on a channel. Pub/sub has no
// message headers, so they travel in the body.
type RedisMessage struct {
	Headers map[string]string `json:"headers"`
	Payload json.RawMessage   `json:"payload"`
}

type redisBroker struct {
	client goredis.UniversalClient
}

// NewRedisBroker publishes through an existing client. Close leaves the client
// open because it is shared with other adapters.
func NewRedisBroker(client goredis.UniversalClient) MessageBroker {
	return &redisBroker{client: client}
}

func (b *redisBroker) Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error {
	body, err := json.Marshal(RedisMessage{Headers: headers, Payload: data})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.client.Publish(ctx, topic, body).Err()
}

func (b *redisBroker) Close() error {
	return nil
}
