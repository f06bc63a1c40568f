package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/metrics"

	goredis "github.com/redis/go-redis/v9"
)

// takeBothScript refills the tenant bucket (KEYS[1]) and the global bucket
// (KEYS[2]) from their stored timestamps and takes one token from each only
// when both hold at least one. A rejection writes nothing.
//
// ARGV: now_ms, tenant_capacity, tenant_rate_per_ms, global_capacity,
// global_rate_per_ms, ttl_ms.
var takeBothScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[6])

local function refill(key, capacity, rate)
	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1])
	local ts = tonumber(state[2])
	if tokens == nil or ts == nil then
		return capacity
	end
	local elapsed = now - ts
	if elapsed < 0 then
		elapsed = 0
	end
	return math.min(capacity, tokens + elapsed * rate)
end

local tenant = refill(KEYS[1], tonumber(ARGV[2]), tonumber(ARGV[3]))
local global = refill(KEYS[2], tonumber(ARGV[4]), tonumber(ARGV[5]))

if tenant < 1 or global < 1 then
	return 0
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tenant - 1), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('HSET', KEYS[2], 'tokens', tostring(global - 1), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[2], ttl)
return 1
`)

// Bucket sizes one token bucket: Capacity tokens, refilled continuously at
// Refill tokens per Interval.
type Bucket struct {
	Capacity int64
	Refill   int64
	Interval time.Duration
}

func (b Bucket) Validate() error {
	if b.Capacity <= 0 {
		return errs.NewValueIsOutOfRangeError("capacity", b.Capacity, 1, "max int64")
	}
	if b.Refill <= 0 {
		return errs.NewValueIsOutOfRangeError("refill", b.Refill, 1, "max int64")
	}
	if b.Interval <= 0 {
		return errs.NewValueIsRequiredError("interval")
	}
	// Refill is computed per millisecond.
	if b.Interval < time.Millisecond {
		return errs.NewValueIsOutOfRangeError("interval", b.Interval, time.Millisecond, "max duration")
	}
	return nil
}

func (b Bucket) ratePerMs() float64 {
	return float64(b.Refill) / float64(b.Interval.Milliseconds())
}

// idle is how long a drained bucket needs to fill up again. Keys expire after
// that because an expired bucket reads as full.
func (b Bucket) idle() time.Duration {
	return time.Duration(float64(b.Interval) * float64(b.Capacity) / float64(b.Refill))
}

// AdmissionConfig sizes the per-tenant and the global bucket. The same sizes
// apply to every call site; each site has its own buckets.
type AdmissionConfig struct {
	Tenant Bucket
	Global Bucket
}

// TokenBucketAdmission implements ports.AdmissionController.
type TokenBucketAdmission struct {
	client goredis.Scripter
	config AdmissionConfig
	clock  ports.Clock
}

func NewTokenBucketAdmission(
	client goredis.Scripter,
	config AdmissionConfig,
	clock ports.Clock,
) (*TokenBucketAdmission, error) {
	if client == nil {
		return nil, errs.NewValueIsRequiredError("client")
	}
	if clock == nil {
		return nil, errs.NewValueIsRequiredError("clock")
	}
	if err := errors.Join(config.Tenant.Validate(), config.Global.Validate()); err != nil {
		return nil, err
	}

	return &TokenBucketAdmission{
		client: client,
		config: config,
		clock:  clock,
	}, nil
}

func (a *TokenBucketAdmission) Admit(ctx context.Context, site ports.AdmissionSite, tenant string) error {
	if tenant == "" {
		return errs.NewValueIsRequiredError("tenant")
	}

	ttl := max(a.config.Tenant.idle(), a.config.Global.idle()) + time.Second
	keys := []string{
		fmt.Sprintf("admission:%s:tenant:%s", site, tenant),
		fmt.Sprintf("admission:%s:global", site),
	}
	args := []any{
		a.clock.Now().UnixMilli(),
		a.config.Tenant.Capacity,
		strconv.FormatFloat(a.config.Tenant.ratePerMs(), 'f', -1, 64),
		a.config.Global.Capacity,
		strconv.FormatFloat(a.config.Global.ratePerMs(), 'f', -1, 64),
		ttl.Milliseconds(),
	}

	taken, err := takeBothScript.Run(ctx, a.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("admission check for %s/%s: %w", site, tenant, err)
	}

	if taken != 1 {
		metrics.AdmissionDecisionsTotal.WithLabelValues(string(site), "rejected").Inc()
		return fmt.Errorf("%w: %s bucket for %s is empty", ports.ErrAdmissionRejected, site, tenant)
	}

	metrics.AdmissionDecisionsTotal.WithLabelValues(string(site), "admitted").Inc()
	return nil
}
