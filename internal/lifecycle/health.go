package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// HealthChecker exposes liveness and readiness checks.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Dependencies reports the combined health of external dependencies.
type Dependencies interface {
	Err(ctx context.Context) error
}

// Status reports liveness while the process runs and readiness while its
// dependencies are healthy and shutdown has not begun.
type Status struct {
	deps     Dependencies
	log      *slog.Logger
	draining atomic.Bool
}

// NewStatus creates a new Status instance.
func NewStatus(deps Dependencies, log *slog.Logger) *Status {
	if log == nil {
		log = slog.Default()
	}
	return &Status{deps: deps, log: log}
}

// Drain marks the process as shutting down; readiness fails afterwards.
func (p *Status) Drain() {
	p.draining.Store(true)
}

func (p *Status) Liveness(ctx context.Context) error {
	return nil
}

func (p *Status) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return errDraining
	}
	if p.deps == nil {
		return nil
	}
	return p.deps.Err(ctx)
}

// Handler serves a check as 200 or 503.
func (p *Status) Handler(check func(context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			p.log.Debug("status check failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
