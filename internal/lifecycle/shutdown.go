package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Shutdown coordinates graceful shutdown hooks in parallel.
type Shutdown struct {
	mu    sync.Mutex
	hooks []Hook
	log   *slog.Logger
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log}
}

// Register adds a named shutdown hook.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, Hook{Name: name, Fn: fn})
}

// Execute runs all registered hooks concurrently and waits for completion or
// ctx expiry. Hooks still running at expiry are reported as failed.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	start := time.Now()
	if s.log != nil {
		s.log.Info("shutdown sequence started", slog.Int("hook_count", len(hooks)))
	}

	var wg sync.WaitGroup
	var errMu sync.Mutex
	errs := make([]error, 0)
	pending := make(map[string]struct{}, len(hooks))

	for _, hook := range hooks {
		h := hook
		if h.Fn == nil {
			continue
		}

		errMu.Lock()
		pending[h.Name] = struct{}{}
		errMu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				errMu.Lock()
				delete(pending, h.Name)
				errMu.Unlock()
			}()

			hookCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			if s.log != nil {
				s.log.Info("running shutdown hook", slog.String("hook", h.Name))
			}

			if err := h.Fn(hookCtx); err != nil {
				if s.log != nil {
					s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
				}
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				errMu.Unlock()
				return
			}

			if s.log != nil {
				s.log.Info("shutdown hook completed", slog.String("hook", h.Name))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errMu.Lock()
		for name := range pending {
			errs = append(errs, fmt.Errorf("%s: %w", name, ctx.Err()))
		}
		errMu.Unlock()
	}

	elapsed := time.Since(start)

	if s.log != nil {
		s.log.Info("shutdown sequence finished", slog.Duration("elapsed", elapsed))
	}

	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(errs...)
}
