package middleware

import (
	"context"
	"time"

	"github.com/Proton-105/himera-shop/internal/bot/handlers"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/pkg/metrics"
)

// Metrics measures execution time and status for every event, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(ctx context.Context, ev event.UserEvent) error {
		start := time.Now()
		err := next(ctx, ev)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordEvent(ev.Kind.String(), status, time.Since(start))

		return err
	}
}
