// Package presenter renders shop screens and delivers them to the user,
// keeping a single live prompt per conversation.
package presenter

import (
	"context"

	"github.com/Proton-105/himera-shop/internal/domain"
)

// Choice is a labeled option whose Token is sent back when the user picks it.
type Choice struct {
	Label string
	Token string
}

// Message is a transport-agnostic outgoing screen.
type Message struct {
	Text     string
	PhotoURL string
	Choices  [][]Choice
}

// Presenter delivers screens to users.
type Presenter interface {
	// Present sends msg as the actor's new prompt and retracts the previous one.
	Present(ctx context.Context, actor domain.UserID, msg Message) error
	// RetractPrompt removes the actor's live prompt, if any.
	RetractPrompt(ctx context.Context, actor domain.UserID) error
	// Acknowledge shows a short notice in reply to the button tap ref without
	// replacing the prompt.
	Acknowledge(ctx context.Context, actor domain.UserID, ref, text string) error
	// Notify sends a plain message that is not tracked as a prompt.
	Notify(ctx context.Context, actor domain.UserID, text string) error
}
