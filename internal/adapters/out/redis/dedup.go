package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupWindow implements ports.DedupWindow with one expiring key per claim.
type DedupWindow struct {
	client goredis.Cmdable
	window time.Duration
}

func NewDedupWindow(client goredis.Cmdable, window time.Duration) *DedupWindow {
	return &DedupWindow{client: client, window: window}
}

func (d *DedupWindow) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}
	return n > 0, nil
}

func (d *DedupWindow) Claim(ctx context.Context, key string) (bool, error) {
	first, err := d.client.SetNX(ctx, dedupKey(key), 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim %s: %w", key, err)
	}
	return first, nil
}

func (d *DedupWindow) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, dedupKey(key)).Err(); err != nil {
		return fmt.Errorf("dedup release %s: %w", key, err)
	}
	return nil
}

func dedupKey(key string) string {
	return "dedup:" + key
}
