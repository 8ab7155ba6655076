package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Proton-105/himera-shop/internal/bot/handlers"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/idempotency"
)

// Idempotency ensures handlers execute at most once per Telegram delivery.
// When the store is unavailable events are handled without deduplication.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(ctx context.Context, ev event.UserEvent) error {
			key := idempotencyKey(ev)
			if key == "" {
				return next(ctx, ev)
			}

			ran := false
			var handlerErr error

			result, err := manager.Execute(ctx, key, ttl, func(execCtx context.Context) (interface{}, error) {
				ran = true
				handlerErr = next(execCtx, ev)
				return ev.Kind.String(), handlerErr
			})

			switch {
			case ran:
				return handlerErr
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.DebugContext(ctx, "duplicate event in flight", slog.String("actor", ev.Actor.String()))
				return nil
			case err != nil:
				log.WarnContext(ctx, "idempotency store unavailable", slog.String("key", key), slog.Any("error", err))
				return next(ctx, ev)
			case result != nil && result.FromCache:
				log.DebugContext(ctx, "duplicate event skipped", slog.String("actor", ev.Actor.String()))
			}

			return nil
		}
	}
}

func idempotencyKey(ev event.UserEvent) string {
	if ev.Ref != "" {
		return idempotency.GenerateKey("cb", ev.Ref)
	}

	if ev.MessageID != 0 {
		return idempotency.GenerateKey("msg", ev.Actor.String(), strconv.Itoa(ev.MessageID))
	}

	return ""
}
