package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultFallbackRatio = 0.5
	// primaryCooldown is how long checks stay in memory after Redis fails.
	primaryCooldown = 5 * time.Second
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: "ratelimit",
		Name:      "checks_total",
		Help:      "Rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	degradedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shop",
		Subsystem: "ratelimit",
		Name:      "degraded",
		Help:      "1 while rate limits are enforced in memory instead of Redis.",
	})
)

// AdaptiveLimiter checks limits in Redis and switches to the in-memory limiter
// while Redis is failing. In memory every limit is scaled by the fallback
// ratio, since each replica counts only its own traffic.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	ratio    float64
	now      func() time.Time
	log      *slog.Logger

	mu         sync.Mutex
	degraded   bool
	retryAfter time.Time
}

// NewAdaptiveLimiter builds the limiter. A ratio outside (0, 1] means
// DefaultFallbackRatio.
func NewAdaptiveLimiter(primary, fallback Limiter, ratio float64, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultFallbackRatio
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		ratio:    ratio,
		now:      time.Now,
		log:      log,
	}
}

func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if a.primaryUsable() {
		result, err := a.primary.Check(ctx, key, limit, window)
		if err == nil || (result != nil && !result.Allowed) {
			a.recovered(ctx)
			return a.count("redis", result, err)
		}
		a.failed(ctx, err)
	}

	result, err := a.fallback.Check(ctx, key, a.fallbackLimit(limit), window)
	return a.count("memory", result, err)
}

// Degraded reports whether checks currently run in memory.
func (a *AdaptiveLimiter) Degraded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded
}

func (a *AdaptiveLimiter) fallbackLimit(limit int) int {
	return max(int(math.Floor(float64(limit)*a.ratio)), 1)
}

func (a *AdaptiveLimiter) primaryUsable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.degraded || !a.now().Before(a.retryAfter)
}

func (a *AdaptiveLimiter) failed(ctx context.Context, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.retryAfter = a.now().Add(primaryCooldown)
	if a.degraded {
		return
	}
	a.degraded = true
	degradedGauge.Set(1)
	a.log.WarnContext(ctx, "redis rate limiter unavailable, enforcing limits in memory",
		slog.Float64("ratio", a.ratio),
		slog.Any("error", err),
	)
}

func (a *AdaptiveLimiter) recovered(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.degraded {
		return
	}
	a.degraded = false
	degradedGauge.Set(0)
	a.log.InfoContext(ctx, "redis rate limiter recovered")
}

func (a *AdaptiveLimiter) count(backend string, result *Result, err error) (*Result, error) {
	switch {
	case result != nil && result.Allowed:
		checksTotal.WithLabelValues(backend, "allowed").Inc()
	case result != nil:
		checksTotal.WithLabelValues(backend, "rejected").Inc()
		return result, ErrLimitExceeded
	default:
		checksTotal.WithLabelValues(backend, "error").Inc()
	}
	return result, err
}
