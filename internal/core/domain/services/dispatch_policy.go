package services

import (
	"fmt"
	"time"

	"orderdispatch/internal/pkg/errs"
)

// DispatchPolicy bounds how often an order without candidates is retried.
// Attempt n (1-based) waits base * 2^(n-1), capped at max.
type DispatchPolicy struct {
	maxAttempts int
	base        time.Duration
	max         time.Duration
}

func NewDispatchPolicy(maxAttempts int, base, maxBackoff time.Duration) (DispatchPolicy, error) {
	if maxAttempts < 1 {
		return DispatchPolicy{}, errs.NewValueIsOutOfRangeError("max dispatch attempts", maxAttempts, 1, "unbounded")
	}
	if base <= 0 || maxBackoff < base {
		return DispatchPolicy{}, errs.NewValueIsInvalidErrorWithCause(
			"dispatch backoff", fmt.Errorf("base %v must be positive and not above max %v", base, maxBackoff))
	}
	return DispatchPolicy{maxAttempts: maxAttempts, base: base, max: maxBackoff}, nil
}

func (p DispatchPolicy) MaxAttempts() int { return p.maxAttempts }

// Exhausted reports whether an order that already used attempts misses may not
// be retried after one more miss.
func (p DispatchPolicy) Exhausted(attempts int) bool {
	return attempts+1 >= p.maxAttempts
}

// Backoff returns the delay after the given attempt number.
func (p DispatchPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return min(d, p.max)
}
