package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrLimitExceeded is returned together with a non-allowed Result.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter counts attempts for key inside a sliding window.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window frees a slot, never
// less than one.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil {
		return 1
	}
	wait := r.ResetAt.Sub(now)
	if wait <= time.Second {
		return 1
	}
	return int(math.Ceil(wait.Seconds()))
}
