package redis

import (
	"context"
	"fmt"

	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/pkg/errs"

	goredis "github.com/redis/go-redis/v9"
)

// nextScript increments the counter in KEYS[1] and remembers the result in
// the set KEYS[2] of keys this service allocated.
var nextScript = goredis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('SADD', KEYS[2], tostring(seq))
return seq
`)

// observeScript raises KEYS[1] to ARGV[1] if it is lower and returns ARGV[1].
// A key found in the allocated set KEYS[2] is replaced by a new allocation.
var observeScript = goredis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	local seq = redis.call('INCR', KEYS[1])
	redis.call('SADD', KEYS[2], tostring(seq))
	return seq
end
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local seen = tonumber(ARGV[1])
if seen > current then
	redis.call('SET', KEYS[1], ARGV[1])
end
return seen
`)

// SequenceAuthority implements ports.SequenceAuthority with one counter and
// one set of allocated keys per subject.
type SequenceAuthority struct {
	client goredis.Cmdable
}

func NewSequenceAuthority(client goredis.Cmdable) *SequenceAuthority {
	return &SequenceAuthority{client: client}
}

func (s *SequenceAuthority) Next(ctx context.Context, subject kernel.ID) (int64, error) {
	seq, err := nextScript.Run(ctx, s.client, sequenceKeys(subject)).Int64()
	if err != nil {
		return 0, fmt.Errorf("allocate sequence for %s: %w", subject, err)
	}
	return seq, nil
}

func (s *SequenceAuthority) Observe(ctx context.Context, subject kernel.ID, sequence int64) (int64, error) {
	if sequence <= 0 {
		return 0, errs.NewValueIsOutOfRangeError("sequence", sequence, 1, "max int64")
	}
	seq, err := observeScript.Run(ctx, s.client, sequenceKeys(subject), sequence).Int64()
	if err != nil {
		return 0, fmt.Errorf("observe sequence %d for %s: %w", sequence, subject, err)
	}
	return seq, nil
}

// sequenceKeys returns the counter and the set of allocated keys. Neither expires.
func sequenceKeys(subject kernel.ID) []string {
	base := "seq:" + subject.String()
	return []string{base, base + ":allocated"}
}
