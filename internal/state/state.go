// Package state defines the conversation states of the shop dialogue.
package state

import (
	"errors"
	"fmt"
)

// State represents a conversation state. The set of values is closed.
type State string

const (
	// StateStart is the entry point; any event lists the catalog.
	StateStart State = "START"
	// StateMenuChoose indicates the user is looking at the product list.
	StateMenuChoose State = "MENU_CHOOSE"
	// StateDescription indicates the user is looking at a single product.
	StateDescription State = "DESCRIPTION"
	// StateCart indicates the user is looking at their cart.
	StateCart State = "CART"
	// StateWaitingEmail indicates the bot expects a typed email address.
	StateWaitingEmail State = "WAITING_EMAIL"
)

// ErrUnknownState is returned when a persisted value is not a known state.
var ErrUnknownState = errors.New("unknown conversation state")

// All lists every state in flow order.
var All = []State{
	StateStart,
	StateMenuChoose,
	StateDescription,
	StateCart,
	StateWaitingEmail,
}

// Parse converts a persisted value into a State.
func Parse(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, raw)
	}
	return s, nil
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateStart, StateMenuChoose, StateDescription, StateCart, StateWaitingEmail:
		return true
	default:
		return false
	}
}

// AcceptsText reports whether the state expects free text instead of a menu selection.
func (s State) AcceptsText() bool {
	return s == StateWaitingEmail
}

func (s State) String() string {
	return string(s)
}
