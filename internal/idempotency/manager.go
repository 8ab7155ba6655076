package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// ErrRequestInProgress is returned when the same key is being handled elsewhere.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

// Operation is the work guarded by a key. Its result is stored as JSON.
type Operation func(ctx context.Context) (interface{}, error)

type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Manager runs an operation at most once per key within ttl.
type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

const (
	defaultLockTTL      = 5 * time.Minute
	defaultPollInterval = 100 * time.Millisecond
)

type manager struct {
	store        Store
	log          *slog.Logger
	lockTTL      time.Duration
	pollInterval time.Duration
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:        store,
		log:          log,
		lockTTL:      defaultLockTTL,
		pollInterval: defaultPollInterval,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			return &Result{Response: record.Response, FromCache: true}, nil
		}

		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}

		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		record, err = m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if record != nil {
			switch record.Status {
			case StatusProcessing:
				return nil, ErrRequestInProgress
			case StatusCompleted:
				return &Result{Response: record.Response, FromCache: true}, nil
			}
		}

		// The holder has not written its marker yet.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("idempotency lock not released", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// A delivery may have completed between the first read and the lock.
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Response: record.Response, FromCache: true}, nil
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, m.lockTTL); err != nil {
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		// A failed operation may be retried under the same key.
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.Warn("idempotency record not cleared", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{
		Status:   StatusCompleted,
		Response: responseBytes,
	}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: responseBytes}, nil
}
