package bot

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Proton-105/himera-shop/internal/bot/handlers"
	"github.com/Proton-105/himera-shop/internal/domain"
	errors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/session"
)

// Notifier sends a plain message to an actor.
type Notifier interface {
	Notify(ctx context.Context, actor domain.UserID, text string) error
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler, notifier Notifier) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(ctx context.Context, ev event.UserEvent) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.ErrorContext(ctx, "panic recovered in handler",
						slog.Any("panic", r),
						slog.String("actor", ev.Actor.String()),
						slog.String("stack", string(debug.Stack())),
					)

					userMsg := errors.UserMessage(nil)
					if errHandler != nil {
						appErr := errors.NewStateError(fmt.Sprintf("panic recovered: %v", r))
						appErr.Severity = errors.SeverityCritical
						if msg, _ := errHandler.Handle(ctx, appErr); msg != "" {
							userMsg = msg
						}
					}

					if notifier != nil {
						if sendErr := notifier.Notify(ctx, ev.Actor, userMsg); sendErr != nil {
							log.ErrorContext(ctx, "failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(ctx, ev)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for
// handler failures. User-input errors already carry a corrective prompt, so
// they are only logged.
func ErrorHandlingMiddleware(errHandler *errors.Handler, notifier Notifier, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(ctx context.Context, ev event.UserEvent) error {
			err := next(ctx, ev)
			if err == nil {
				return nil
			}

			userMsg := errors.UserMessage(err)
			if errHandler != nil {
				if msg, _ := errHandler.Handle(ctx, err); msg != "" {
					userMsg = msg
				}
			}

			if errors.IsUserInput(err) || notifier == nil {
				return nil
			}

			if sendErr := notifier.Notify(ctx, ev.Actor, userMsg); sendErr != nil {
				log.WarnContext(ctx, "failed to notify user about error",
					slog.String("actor", ev.Actor.String()),
					slog.Any("error", sendErr),
				)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming events.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(ctx context.Context, ev event.UserEvent) error {
			start := time.Now()
			attrs := []any{
				slog.String("actor", ev.Actor.String()),
				slog.String("kind", ev.Kind.String()),
				slog.String("token", ev.Token),
			}

			log.DebugContext(ctx, "handling event", attrs...)
			err := next(ctx, ev)
			log.InfoContext(ctx, "handled event", append(attrs,
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)...)

			return err
		}
	}
}

// SerializeMiddleware holds the actor's lock for the whole downstream chain,
// so at most one event per actor reaches the engine at a time. A positive
// timeout bounds the downstream chain and must stay below the lock TTL.
func SerializeMiddleware(locker session.Locker, timeout time.Duration, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}
		if locker == nil {
			return next
		}

		return func(ctx context.Context, ev event.UserEvent) error {
			unlock, err := locker.Lock(ctx, ev.Actor)
			if err != nil {
				if stdErrors.Is(err, session.ErrLocked) {
					log.WarnContext(ctx, "actor is busy", slog.String("actor", ev.Actor.String()))
					return errors.NewRateLimitError(1)
				}
				return errors.NewStoreError(err)
			}
			defer unlock()

			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			err = next(ctx, ev)
			if stdErrors.Is(err, context.DeadlineExceeded) {
				log.WarnContext(ctx, "event handling timed out",
					slog.String("actor", ev.Actor.String()),
					slog.Duration("timeout", timeout),
				)
			}
			return err
		}
	}
}
