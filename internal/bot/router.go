package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Proton-105/himera-shop/internal/bot/handlers"
	"github.com/Proton-105/himera-shop/internal/event"
)

// Router runs every event through the middleware chain into a single
// terminal handler, the conversation engine.
type Router struct {
	mu          sync.RWMutex
	handler     handlers.Handler
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router ending in h.
func NewRouter(h handlers.Handler, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		handler:     h,
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Route hands the event to the wrapped handler.
func (r *Router) Route(ctx context.Context, ev event.UserEvent) error {
	wrapped := handlers.Chain(r.handler, r.middlewaresSnapshot()...)
	if wrapped == nil {
		r.log.WarnContext(ctx, "no handler configured", slog.String("actor", ev.Actor.String()))
		return nil
	}
	return wrapped(ctx, ev)
}

func (r *Router) middlewaresSnapshot() []handlers.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.middlewares) == 0 {
		return nil
	}

	snapshot := make([]handlers.Middleware, len(r.middlewares))
	copy(snapshot, r.middlewares)
	return snapshot
}
