package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/himera-shop/internal/domain"
)

const (
	lockKeyPrefix    = "lock-"
	lockPollInterval = 50 * time.Millisecond
)

// ErrLocked indicates the actor's lock could not be acquired in time.
var ErrLocked = errors.New("session is locked, try again later")

// Locker serializes event handling per actor.
type Locker interface {
	// Lock blocks until the actor's lock is held or the wait expires. The
	// returned function releases it.
	Lock(ctx context.Context, actor domain.UserID) (func(), error)
}

// LockKey is the key guarding the actor's event processing.
func LockKey(actor domain.UserID) string { return lockKeyPrefix + actor.String() }

// RedisLocker is a distributed per-actor lock built on SETNX with a
// token-checked release.
type RedisLocker struct {
	client KV
	ttl    time.Duration
	wait   time.Duration
	log    *slog.Logger
}

// NewRedisLocker creates a lock whose entries expire after ttl. Lock gives up after wait.
func NewRedisLocker(client KV, ttl, wait time.Duration, log *slog.Logger) *RedisLocker {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		log:    log,
	}
}

// Lock acquires the actor's lock, polling until the wait deadline.
func (l *RedisLocker) Lock(ctx context.Context, actor domain.UserID) (func(), error) {
	key := LockKey(actor)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			l.log.Error("failed to acquire actor lock", slog.String("actor", actor.String()), slog.Any("error", err))
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if acquired {
			break
		}

		if !time.Now().Before(deadline) {
			l.log.Warn("actor lock already held", slog.String("actor", actor.String()))
			return nil, ErrLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go l.renew(key, token, actor, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed

			// The caller's context may already be done; release on a fresh one.
			released, err := l.client.CompareAndDelete(context.Background(), key, token)
			if err != nil {
				l.log.Error("failed to release actor lock", slog.String("actor", actor.String()), slog.Any("error", err))
				return
			}
			if !released {
				l.log.Warn("actor lock expired before release", slog.String("actor", actor.String()))
			}
		})
	}, nil
}

// renew extends the lock every third of its TTL until stop is closed or the
// lock is lost.
func (l *RedisLocker) renew(key, token string, actor domain.UserID, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := l.client.CompareAndExpire(context.Background(), key, token, l.ttl)
			if err != nil {
				l.log.Warn("failed to renew actor lock", slog.String("actor", actor.String()), slog.Any("error", err))
				continue
			}
			if !ok {
				l.log.Warn("actor lock lost", slog.String("actor", actor.String()))
				return
			}
		}
	}
}

// MemoryLocker serializes actors inside a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[domain.UserID]*actorLock
}

type actorLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[domain.UserID]*actorLock)}
}

// Lock waits for the actor's slot or for ctx to end.
func (l *MemoryLocker) Lock(ctx context.Context, actor domain.UserID) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[actor]
	if !ok {
		lock = &actorLock{ch: make(chan struct{}, 1)}
		l.locks[actor] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(actor, lock, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(actor, lock, true) })
	}, nil
}

func (l *MemoryLocker) release(actor domain.UserID, lock *actorLock, held bool) {
	if held {
		<-lock.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, actor)
	}
}
