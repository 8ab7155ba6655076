package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Proton-105/himera-shop/internal/domain"
	"github.com/Proton-105/himera-shop/internal/state"
)

const (
	stateKeyPrefix  = "state-"
	cartKeyPrefix   = "cart-"
	promptKeyPrefix = "prompt-"
)

// StateKey is the key holding the actor's conversation state.
func StateKey(actor domain.UserID) string { return stateKeyPrefix + actor.String() }

// CartKey is the key holding the actor's cached cart id.
func CartKey(actor domain.UserID) string { return cartKeyPrefix + actor.String() }

// PromptKey is the key holding the reference to the actor's live prompt.
func PromptKey(actor domain.UserID) string { return promptKeyPrefix + actor.String() }

// PromptRef locates the message currently shown as the actor's prompt.
type PromptRef struct {
	MessageID int   `json:"message_id"`
	ChatID    int64 `json:"chat_id"`
}

// Sessions gives typed access to the records kept per actor.
type Sessions struct {
	store Store
	log   *slog.Logger
}

// NewSessions wraps a store.
func NewSessions(store Store, log *slog.Logger) *Sessions {
	if log == nil {
		log = slog.Default()
	}

	return &Sessions{store: store, log: log}
}

// State returns the persisted conversation state or ErrNotFound.
func (s *Sessions) State(ctx context.Context, actor domain.UserID) (state.State, error) {
	raw, ok, err := s.store.Get(ctx, StateKey(actor))
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}

	return state.Parse(raw)
}

// SetState overwrites the actor's conversation state.
func (s *Sessions) SetState(ctx context.Context, actor domain.UserID, st state.State) error {
	if err := s.store.Set(ctx, StateKey(actor), string(st)); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// CartID returns the cached cart id, if any.
func (s *Sessions) CartID(ctx context.Context, actor domain.UserID) (string, bool, error) {
	id, ok, err := s.store.Get(ctx, CartKey(actor))
	if err != nil {
		return "", false, fmt.Errorf("get cart id: %w", err)
	}
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// ClaimCartID records cartID for the actor unless another id is already
// cached, in which case the cached id wins and is returned. Stores without
// SetIfAbsent fall back to last-write-wins.
func (s *Sessions) ClaimCartID(ctx context.Context, actor domain.UserID, cartID string) (string, error) {
	key := CartKey(actor)

	atomic, ok := s.store.(AtomicStore)
	if !ok {
		if err := s.store.Set(ctx, key, cartID); err != nil {
			return "", fmt.Errorf("set cart id: %w", err)
		}
		return cartID, nil
	}

	written, err := atomic.SetIfAbsent(ctx, key, cartID)
	if err != nil {
		return "", fmt.Errorf("claim cart id: %w", err)
	}
	if written {
		return cartID, nil
	}

	existing, found, err := s.CartID(ctx, actor)
	if err != nil {
		return "", err
	}
	if !found {
		// The key exists but is empty; treat as ours.
		if err := s.store.Set(ctx, key, cartID); err != nil {
			return "", fmt.Errorf("set cart id: %w", err)
		}
		return cartID, nil
	}

	return existing, nil
}

// Prompt returns the reference to the actor's live prompt.
func (s *Sessions) Prompt(ctx context.Context, actor domain.UserID) (PromptRef, bool, error) {
	raw, ok, err := s.store.Get(ctx, PromptKey(actor))
	if err != nil {
		return PromptRef{}, false, fmt.Errorf("get prompt: %w", err)
	}
	if !ok || raw == "" {
		return PromptRef{}, false, nil
	}

	var ref PromptRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		s.log.Warn("discarding malformed prompt reference", slog.String("actor", actor.String()), slog.Any("error", err))
		return PromptRef{}, false, nil
	}

	return ref, true, nil
}

// SetPrompt records the actor's live prompt. A zero ref clears it.
func (s *Sessions) SetPrompt(ctx context.Context, actor domain.UserID, ref PromptRef) error {
	value := ""
	if ref != (PromptRef{}) {
		payload, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("encode prompt: %w", err)
		}
		value = string(payload)
	}

	if err := s.store.Set(ctx, PromptKey(actor), value); err != nil {
		return fmt.Errorf("set prompt: %w", err)
	}
	return nil
}
