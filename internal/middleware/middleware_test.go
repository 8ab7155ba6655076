package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/idempotency"
	"github.com/Proton-105/himera-shop/internal/ratelimit"
	"github.com/Proton-105/himera-shop/pkg/config"
	"github.com/Proton-105/himera-shop/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupManager(t *testing.T) (*miniredis.Miniredis, idempotency.Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())
}

func selectionEvent(token string) event.UserEvent {
	return event.UserEvent{
		Actor:     42,
		Token:     token,
		Kind:      event.KindSelection,
		Selection: event.ParseSelection(token),
		Ref:       "cb-1",
		MessageID: 10,
	}
}

func TestIdempotency_SkipsRedelivery(t *testing.T) {
	_, manager := setupManager(t)

	calls := 0
	h := Idempotency(manager, time.Hour, testLogger())(func(context.Context, event.UserEvent) error {
		calls++
		return nil
	})

	ev := selectionEvent("/cart")
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 1, calls)

	ev.Ref = "cb-2"
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_PropagatesHandlerError(t *testing.T) {
	_, manager := setupManager(t)
	boom := errors.New("boom")

	calls := 0
	h := Idempotency(manager, time.Hour, testLogger())(func(context.Context, event.UserEvent) error {
		calls++
		return boom
	})

	ev := event.UserEvent{Actor: 1, Token: "hi", Kind: event.KindText, MessageID: 5}
	assert.ErrorIs(t, h(context.Background(), ev), boom)
	assert.ErrorIs(t, h(context.Background(), ev), boom)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_FailsOpenWithoutStore(t *testing.T) {
	mr, manager := setupManager(t)
	mr.Close()

	calls := 0
	h := Idempotency(manager, time.Hour, testLogger())(func(context.Context, event.UserEvent) error {
		calls++
		return nil
	})

	require.NoError(t, h(context.Background(), selectionEvent("/cart")))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	_, manager := setupManager(t)

	calls := 0
	h := Idempotency(manager, time.Hour, testLogger())(func(context.Context, event.UserEvent) error {
		calls++
		return nil
	})

	ev := event.UserEvent{Actor: 1, Token: "/start", Kind: event.KindCommand}
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 2, calls)
}

func newRateLimit(cfg config.RateLimitConfig) *RateLimitMiddleware {
	return NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(testLogger()), ratelimit.NewRules(cfg), testLogger())
}

func TestRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true,
		PerUser: config.RateLimitRule{Limit: 3, Window: "1m"},
		Selections: map[string]config.RateLimitRule{
			"buy": {Limit: 1, Window: "1m"},
		},
		Whitelist: []int64{7},
	}
	ok := func(context.Context, event.UserEvent) error { return nil }

	t.Run("selection limit", func(t *testing.T) {
		h := newRateLimit(cfg).Handle(ok)
		ctx := context.Background()

		require.NoError(t, h(ctx, selectionEvent("/buy p1 1")))

		err := h(ctx, selectionEvent("/buy p1 3"))
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.CodeRateLimit, appErr.Code)

		require.NoError(t, h(ctx, selectionEvent("/cart")))
	})

	t.Run("per user limit", func(t *testing.T) {
		h := newRateLimit(cfg).Handle(ok)
		ctx := context.Background()
		ev := event.UserEvent{Actor: 9, Token: "hi", Kind: event.KindText}

		for i := 0; i < 3; i++ {
			require.NoError(t, h(ctx, ev))
		}
		assert.Error(t, h(ctx, ev))
	})

	t.Run("start is never limited", func(t *testing.T) {
		h := newRateLimit(cfg).Handle(ok)
		ctx := context.Background()
		ev := event.UserEvent{Actor: 9, Token: event.CommandStart, Kind: event.KindCommand}

		for i := 0; i < 10; i++ {
			require.NoError(t, h(ctx, ev))
		}
	})

	t.Run("whitelist", func(t *testing.T) {
		h := newRateLimit(cfg).Handle(ok)
		ev := selectionEvent("/buy p1 1")
		ev.Actor = 7

		for i := 0; i < 5; i++ {
			require.NoError(t, h(context.Background(), ev))
		}
	})

	t.Run("disabled", func(t *testing.T) {
		disabled := cfg
		disabled.Enabled = false
		h := newRateLimit(disabled).Handle(ok)

		for i := 0; i < 5; i++ {
			require.NoError(t, h(context.Background(), selectionEvent("/buy p1 1")))
		}
	})
}

func TestMetrics_PassesResultThrough(t *testing.T) {
	boom := errors.New("boom")
	h := Metrics(func(context.Context, event.UserEvent) error { return boom })

	assert.ErrorIs(t, h(context.Background(), selectionEvent("/cart")), boom)
}

func TestHTTPLogging_KeepsStatusAndCorrelationID(t *testing.T) {
	var seen string
	h := New(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, seen)
}
