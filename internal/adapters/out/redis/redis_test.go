package redis_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	redisadapter "orderdispatch/internal/adapters/out/redis"
	"orderdispatch/internal/core/domain/model/kernel"
	"orderdispatch/internal/core/ports"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func newAdmission(t *testing.T, client *goredis.Client, tenant, global int64) (*redisadapter.TokenBucketAdmission, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	admission, err := redisadapter.NewTokenBucketAdmission(client, redisadapter.AdmissionConfig{
		Tenant: redisadapter.Bucket{Capacity: tenant, Refill: tenant, Interval: time.Minute},
		Global: redisadapter.Bucket{Capacity: global, Refill: global, Interval: time.Minute},
	}, clock)
	require.NoError(t, err)
	return admission, clock
}

func TestTokenBucketAdmission_CapacityThenReject(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	admission, _ := newAdmission(t, client, 5, 100)

	for i := range 5 {
		require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"), "request %d", i+1)
	}

	err := admission.Admit(ctx, ports.AdmissionIngest, "M1")
	require.ErrorIs(t, err, ports.ErrAdmissionRejected)

	assert.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M2"), "tenants have separate buckets")
	assert.NoError(t, admission.Admit(ctx, ports.AdmissionDispatch, "M1"), "sites have separate buckets")
}

func TestTokenBucketAdmission_Refill(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	admission, clock := newAdmission(t, client, 2, 100)

	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))
	require.ErrorIs(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"), ports.ErrAdmissionRejected)

	// Two tokens per minute: one token every thirty seconds.
	clock.Advance(29 * time.Second)
	require.ErrorIs(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"), ports.ErrAdmissionRejected)

	clock.Advance(2 * time.Second)
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))

	clock.Advance(time.Hour)
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))
	require.ErrorIs(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"), ports.ErrAdmissionRejected,
		"refill is capped at capacity")
}

func TestTokenBucketAdmission_GlobalBucketLimitsAllTenants(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	admission, _ := newAdmission(t, client, 10, 3)

	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M2"))
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M3"))

	err := admission.Admit(ctx, ports.AdmissionIngest, "M4")
	require.ErrorIs(t, err, ports.ErrAdmissionRejected)
}

func TestTokenBucketAdmission_RejectionTakesNothing(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	admission, _ := newAdmission(t, client, 1, 2)

	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"))
	// M1's tenant bucket is empty, so the global token must survive.
	require.ErrorIs(t, admission.Admit(ctx, ports.AdmissionIngest, "M1"), ports.ErrAdmissionRejected)
	require.NoError(t, admission.Admit(ctx, ports.AdmissionIngest, "M2"))
}

func TestTokenBucketAdmission_Concurrent(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	admission, _ := newAdmission(t, client, 20, 1000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := admission.Admit(ctx, ports.AdmissionIngest, "M1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ports.ErrAdmissionRejected):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, admitted)
	assert.Equal(t, 30, rejected)
}

func TestTokenBucketAdmission_RedisDown(t *testing.T) {
	server, client := newClient(t)
	admission, _ := newAdmission(t, client, 1, 1)
	server.Close()

	err := admission.Admit(t.Context(), ports.AdmissionIngest, "M1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrAdmissionRejected)
}

func TestNewTokenBucketAdmission_InvalidConfig(t *testing.T) {
	_, client := newClient(t)
	clock := &fakeClock{}

	_, err := redisadapter.NewTokenBucketAdmission(client, redisadapter.AdmissionConfig{
		Tenant: redisadapter.Bucket{Capacity: 0, Refill: 1, Interval: time.Second},
		Global: redisadapter.Bucket{Capacity: 1, Refill: 1, Interval: time.Second},
	}, clock)
	require.Error(t, err)

	_, err = redisadapter.NewTokenBucketAdmission(nil, redisadapter.AdmissionConfig{}, clock)
	require.Error(t, err)
}

func TestBucket_Validate(t *testing.T) {
	valid := redisadapter.Bucket{Capacity: 5, Refill: 1, Interval: time.Millisecond}
	require.NoError(t, valid.Validate())

	tests := map[string]redisadapter.Bucket{
		"no capacity":       {Capacity: 0, Refill: 1, Interval: time.Second},
		"no refill":         {Capacity: 1, Refill: 0, Interval: time.Second},
		"no interval":       {Capacity: 1, Refill: 1},
		"sub-millisecond":   {Capacity: 1, Refill: 1, Interval: 500 * time.Microsecond},
		"negative interval": {Capacity: 1, Refill: 1, Interval: -time.Second},
	}
	for name, bucket := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, bucket.Validate())
		})
	}
}

func TestSequenceAuthority(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	authority := redisadapter.NewSequenceAuthority(client)
	subject := kernel.MustParseID("O1")

	first, err := authority.Next(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	observed, err := authority.Observe(ctx, subject, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), observed)
	next, err := authority.Next(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(11), next, "allocations stay above observed keys")

	observed, err = authority.Observe(ctx, subject, 3)
	require.NoError(t, err, "lower keys never move the counter back")
	assert.Equal(t, int64(3), observed, "stale keys pass through unchanged")
	next, err = authority.Next(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(12), next)

	other, err := authority.Next(ctx, kernel.MustParseID("O2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	_, err = authority.Observe(ctx, subject, 0)
	require.Error(t, err)
}

func TestSequenceAuthority_RebasesKeysItAllocated(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	authority := redisadapter.NewSequenceAuthority(client)
	subject := kernel.MustParseID("O1")

	for _, seq := range []int64{1, 2, 3} {
		observed, err := authority.Observe(ctx, subject, seq)
		require.NoError(t, err)
		require.Equal(t, seq, observed)
	}

	assigned, err := authority.Next(ctx, subject)
	require.NoError(t, err)
	require.Equal(t, int64(4), assigned)

	// The producer counts on from its own last key and reuses 4.
	pickedUp, err := authority.Observe(ctx, subject, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pickedUp)

	delivered, err := authority.Observe(ctx, subject, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), delivered, "re-based keys count as allocated")

	ahead, err := authority.Observe(ctx, subject, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), ahead)
	next, err := authority.Next(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(10), next)
}

func TestDedupWindow(t *testing.T) {
	ctx := t.Context()
	server, client := newClient(t)
	window := redisadapter.NewDedupWindow(client, time.Minute)

	seen, err := window.Seen(ctx, "O1:1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := window.Claim(ctx, "O1:1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = window.Claim(ctx, "O1:1")
	require.NoError(t, err)
	assert.False(t, first, "second claim of the same key loses")

	seen, err = window.Seen(ctx, "O1:1")
	require.NoError(t, err)
	assert.True(t, seen)

	server.FastForward(time.Minute + time.Second)
	seen, err = window.Seen(ctx, "O1:1")
	require.NoError(t, err)
	assert.False(t, seen, "claims expire with the window")
}

func TestDedupWindow_Release(t *testing.T) {
	ctx := t.Context()
	_, client := newClient(t)
	window := redisadapter.NewDedupWindow(client, time.Minute)

	first, err := window.Claim(ctx, "O1:4")
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, window.Release(ctx, "O1:4"))
	seen, err := window.Seen(ctx, "O1:4")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err = window.Claim(ctx, "O1:4")
	require.NoError(t, err)
	assert.True(t, first, "a released key can be claimed again")

	require.NoError(t, window.Release(ctx, "O1:unknown"), "releasing an unknown key is a no-op")
}
