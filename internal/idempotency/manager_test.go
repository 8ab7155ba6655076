package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_RunsOnce(t *testing.T) {
	_, client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger())
	ctx := context.Background()

	calls := 0
	op := func(context.Context) (interface{}, error) {
		calls++
		return "done", nil
	}

	first, err := m.Execute(ctx, "cb:1", time.Hour, op)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := m.Execute(ctx, "cb:1", time.Hour, op)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.JSONEq(t, `"done"`, string(second.Response))
	assert.Equal(t, 1, calls)
}

// lateStore completes the key right before the lock is granted, as a
// concurrent delivery finishing between the first read and Lock would.
type lateStore struct {
	Store
	once bool
}

func (s *lateStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.once {
		s.once = true
		if err := s.Store.Set(ctx, key, &Record{Status: StatusCompleted, Response: []byte(`"first"`)}, time.Hour); err != nil {
			return false, err
		}
	}
	return s.Store.Lock(ctx, key, ttl)
}

func TestManager_CompletedBeforeLockIsNotRerun(t *testing.T) {
	_, client := setupTestRedis(t)
	m := NewManager(&lateStore{Store: NewRedisStore(client, testLogger())}, testLogger())

	result, err := m.Execute(context.Background(), "cb:late", time.Hour, func(context.Context) (interface{}, error) {
		t.Fatal("completed delivery must not run again")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.JSONEq(t, `"first"`, string(result.Response))
}

func TestManager_FailureAllowsRetry(t *testing.T) {
	_, client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger())
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := m.Execute(ctx, "cb:2", time.Hour, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	result, err := m.Execute(ctx, "cb:2", time.Hour, func(context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestManager_InProgress(t *testing.T) {
	_, client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger())
	ctx := context.Background()

	started := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := m.Execute(ctx, "msg:1:1", time.Hour, func(context.Context) (interface{}, error) {
			close(started)
			<-finish
			return nil, nil
		})
		done <- err
	}()

	<-started
	_, err := m.Execute(ctx, "msg:1:1", time.Hour, func(context.Context) (interface{}, error) {
		t.Fatal("duplicate must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrRequestInProgress)

	close(finish)
	require.NoError(t, <-done)
}

func TestManager_StoreUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger())
	mr.Close()

	_, err := m.Execute(context.Background(), "cb:3", time.Hour, func(context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestGenerateKey_Deterministic(t *testing.T) {
	assert.Equal(t, GenerateKey("cb", "abc"), GenerateKey("cb", "abc"))
	assert.NotEqual(t, GenerateKey("cb", "abc"), GenerateKey("msg", "abc"))
	assert.Equal(t, GenerateKey("cb", "a", "bc"), GenerateKey("cb", "a", "bc"))
	assert.NotEqual(t, GenerateKey("cb", "a", "bc"), GenerateKey("cb", "ab", "c"))
	assert.True(t, strings.HasPrefix(GenerateKey("cb", "abc"), "cb:"))
	assert.Len(t, GenerateKey("x"), len("x:")+64)
}

func TestCleaner_RemovesKeysWithoutTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.HSet(ctx, "idempotency:stale", "status", StatusCompleted).Err())
	require.NoError(t, client.Set(ctx, "idempotency:fresh", "1", time.Hour).Err())

	removed, err := NewCleaner(client, testLogger(), time.Minute, 25*time.Hour).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.False(t, mr.Exists("idempotency:stale"))
	assert.True(t, mr.Exists("idempotency:fresh"))
}
