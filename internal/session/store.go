// Package session persists per-user conversation data: the current state, the
// cached cart id and the live prompt reference.
package session

import (
	"context"
	"errors"
)

// ErrNotFound indicates that a session record does not exist.
var ErrNotFound = errors.New("session record not found")

// Store is the durable key-value capability sessions are kept in.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites the value stored under key.
	Set(ctx context.Context, key, value string) error
}

// AtomicStore is a Store that can write a key only when it is absent.
type AtomicStore interface {
	Store
	// SetIfAbsent stores value when key is missing and reports whether it did.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
}
