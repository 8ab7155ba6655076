package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-shop/internal/bot/handlers"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user and per-selection rate limits for incoming events.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
		now:     time.Now,
	}
}

// Handle returns a middleware that rejects events over the limit with a
// rate-limit error. /start is never limited. Limiter failures let the event through.
func (m *RateLimitMiddleware) Handle(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(ctx context.Context, ev event.UserEvent) error {
		if m.limiter == nil || m.rules == nil || !m.rules.Enabled() || ev.IsStart() {
			return next(ctx, ev)
		}

		if m.rules.IsWhitelisted(ev.Actor) {
			return next(ctx, ev)
		}

		if limit, window, err := m.rules.GetPerUserLimit(); err == nil {
			if err := m.check(ctx, ev, ratelimit.UserKey(ev.Actor), limit, window); err != nil {
				return err
			}
		} else if !errors.Is(err, ratelimit.ErrNoRule) {
			m.log.ErrorContext(ctx, "failed to load per-user rate limit", slog.Any("error", err))
		}

		if ev.Kind == event.KindSelection {
			verb := ev.Selection.Verb
			if limit, window, err := m.rules.GetSelectionLimit(verb); err == nil {
				if err := m.check(ctx, ev, ratelimit.SelectionKey(ev.Actor, verb), limit, window); err != nil {
					return err
				}
			} else if !errors.Is(err, ratelimit.ErrNoRule) {
				m.log.ErrorContext(ctx, "failed to load selection rate limit", slog.String("verb", verb), slog.Any("error", err))
			}
		}

		return next(ctx, ev)
	}
}

func (m *RateLimitMiddleware) check(ctx context.Context, ev event.UserEvent, key string, limit int, window time.Duration) error {
	result, err := m.limiter.Check(ctx, key, limit, window)
	if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
		m.log.WarnContext(ctx, "rate limiter error", slog.String("actor", ev.Actor.String()), slog.Any("error", err))
		return nil
	}

	if result != nil && result.Allowed {
		return nil
	}

	m.log.WarnContext(ctx, "rate limit exceeded", slog.String("actor", ev.Actor.String()), slog.String("key", key))
	return apperrors.NewRateLimitError(result.RetryAfter(m.now()))
}
