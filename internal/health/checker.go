package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusOK = "OK"

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Checker aggregates health checks for multiple components.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration
	mu      sync.RWMutex
	checks  map[string]Checkable
}

// NewChecker instantiates a Checker. Each check gets at most timeout.
func NewChecker(log *slog.Logger, timeout time.Duration) *Checker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Checker{
		log:     log,
		timeout: timeout,
		checks:  make(map[string]Checkable),
	}
}

// AddCheck registers a checkable component by name.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs all registered health checks and returns their statuses.
func (c *Checker) Check(ctx context.Context) map[string]string {
	c.mu.RLock()
	checks := make(map[string]Checkable, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]string, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Checkable) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			status := statusOK
			if err := check.HealthCheck(checkCtx); err != nil {
				status = err.Error()
				c.log.Error("health check failed", slog.String("component", name), slog.Any("error", err))
			}

			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}

// Err runs all checks and joins the failures.
func (c *Checker) Err(ctx context.Context) error {
	results := c.Check(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if results[name] != statusOK {
			errs = append(errs, errors.New(name+": "+results[name]))
		}
	}
	return errors.Join(errs...)
}

// Handler serves the check results as JSON, with 503 when any check fails.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := c.Check(r.Context())

		status := http.StatusOK
		for _, result := range results {
			if result != statusOK {
				status = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(results); err != nil {
			c.log.Warn("failed to write health response", slog.Any("error", err))
		}
	})
}

// Pinger abstracts the subset of the Redis client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// BotAPI is the part of telebot.Bot used to reach the Bot API.
type BotAPI interface {
	Raw(method string, payload interface{}) ([]byte, error)
}

// TelegramChecker verifies that the Telegram bot API is reachable.
type TelegramChecker struct {
	bot BotAPI
}

// NewTelegramChecker constructs a TelegramChecker.
func NewTelegramChecker(bot BotAPI) *TelegramChecker {
	return &TelegramChecker{bot: bot}
}

// HealthCheck calls getMe.
func (c *TelegramChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram bot is not initialized")
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.bot.Raw("getMe", nil)
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// CommerceChecker verifies that the commerce backend issues tokens.
type CommerceChecker struct {
	backend interface {
		Ping(ctx context.Context) error
	}
}

// NewCommerceChecker constructs a CommerceChecker.
func NewCommerceChecker(backend interface{ Ping(ctx context.Context) error }) *CommerceChecker {
	return &CommerceChecker{backend: backend}
}

func (c *CommerceChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.backend == nil {
		return errors.New("commerce backend is not configured")
	}
	return c.backend.Ping(ctx)
}
