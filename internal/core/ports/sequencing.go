package ports

import (
	"context"
	"time"

	"orderdispatch/internal/core/domain/model/kernel"
)

// SequenceAuthority hands out per-subject sequence keys that never go backwards.
type SequenceAuthority interface {
	// Next allocates a key greater than every key allocated or observed for subject.
	Next(ctx context.Context, subject kernel.ID) (int64, error)

	// Observe records a producer-supplied key so later allocations stay above
	// it and returns the key the event must carry. That is the supplied key,
	// unless Next already handed it out for subject; such an event is moved to
	// a freshly allocated key instead of colliding with the service's own.
	Observe(ctx context.Context, subject kernel.ID, sequence int64) (int64, error)
}

// DedupWindow remembers recently processed (subject, sequence) keys.
type DedupWindow interface {
	// Seen reports whether key was claimed within the window.
	Seen(ctx context.Context, key string) (bool, error)
	// Claim marks key as processed and reports whether this call was first.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets a claim whose event never made it into processing.
	Release(ctx context.Context, key string) error
}

// Clock abstracts time for schedules and freshness checks.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
