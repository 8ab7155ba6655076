package errors

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	MaxRetries        = 3
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
)

// Backoff controls how WithRetry spaces out attempts.
type Backoff struct {
	Retries    int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of each delay that is randomised, 0..1.
	Jitter float64
}

// DefaultBackoff is used by WithRetry.
var DefaultBackoff = Backoff{
	Retries:    MaxRetries,
	Initial:    InitialBackoff,
	Max:        MaxBackoff,
	Multiplier: BackoffMultiplier,
	Jitter:     0.2,
}

// WithRetry calls fn until it succeeds, returns a non-retryable error or the
// attempts run out. Only idempotent operations may be wrapped.
func WithRetry(ctx context.Context, fn func() error) error {
	return DefaultBackoff.Do(ctx, fn)
}

func (b Backoff) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(); err == nil || !IsRetryable(err) || attempt >= b.Retries {
			return err
		}

		timer := time.NewTimer(b.delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if b.Max > 0 && d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	if b.Jitter > 0 {
		spread := d * b.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}
	return false
}
