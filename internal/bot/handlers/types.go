package handlers

import (
	"context"

	"github.com/Proton-105/himera-shop/internal/event"
)

// Handler processes one normalized user event.
type Handler func(ctx context.Context, ev event.UserEvent) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Chain wraps h so that mws[0] runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	if h == nil {
		return nil
	}

	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}

	return wrapped
}
