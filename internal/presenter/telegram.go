package presenter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-shop/internal/domain"
	"github.com/Proton-105/himera-shop/internal/session"
)

// Sender is the part of *telebot.Bot the presenter uses.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
	Respond(c *telebot.Callback, resp ...*telebot.CallbackResponse) error
}

// PromptStore remembers each actor's live prompt.
type PromptStore interface {
	Prompt(ctx context.Context, actor domain.UserID) (session.PromptRef, bool, error)
	SetPrompt(ctx context.Context, actor domain.UserID, ref session.PromptRef) error
}

// Telegram presents screens through the Telegram Bot API.
type Telegram struct {
	sender  Sender
	prompts PromptStore
	log     *slog.Logger
}

var _ Presenter = (*Telegram)(nil)

// NewTelegram creates a Telegram presenter.
func NewTelegram(sender Sender, prompts PromptStore, log *slog.Logger) *Telegram {
	if log == nil {
		log = slog.Default()
	}

	return &Telegram{
		sender:  sender,
		prompts: prompts,
		log:     log.With(slog.String("component", "presenter")),
	}
}

// Present sends msg, then deletes the previous prompt and records the new one.
// When sending fails the previous prompt stays live.
func (t *Telegram) Present(ctx context.Context, actor domain.UserID, msg Message) error {
	markup, err := Markup(msg)
	if err != nil {
		return fmt.Errorf("build keyboard: %w", err)
	}

	sent, err := t.send(actor, msg, markup)
	if err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}

	if err := t.RetractPrompt(ctx, actor); err != nil {
		return err
	}

	ref := session.PromptRef{MessageID: sent.ID, ChatID: int64(actor)}
	if sent.Chat != nil {
		ref.ChatID = sent.Chat.ID
	}

	return t.prompts.SetPrompt(ctx, actor, ref)
}

// RetractPrompt deletes the live prompt. A message Telegram refuses to delete
// (too old, already gone) is only logged.
func (t *Telegram) RetractPrompt(ctx context.Context, actor domain.UserID) error {
	ref, ok, err := t.prompts.Prompt(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	stored := telebot.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
	if err := t.sender.Delete(stored); err != nil {
		t.log.WarnContext(ctx, "failed to delete previous prompt",
			slog.String("actor", actor.String()),
			slog.Int("message_id", ref.MessageID),
			slog.Any("error", err),
		)
	}

	return t.prompts.SetPrompt(ctx, actor, session.PromptRef{})
}

// Acknowledge answers a button tap with a toast. Without a callback ref the
// text is sent as a plain message.
func (t *Telegram) Acknowledge(ctx context.Context, actor domain.UserID, ref, text string) error {
	if ref == "" {
		return t.Notify(ctx, actor, text)
	}

	if err := t.sender.Respond(&telebot.Callback{ID: ref}, &telebot.CallbackResponse{Text: text}); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (t *Telegram) Notify(_ context.Context, actor domain.UserID, text string) error {
	if _, err := t.sender.Send(telebot.ChatID(actor), text); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

func (t *Telegram) send(actor domain.UserID, msg Message, markup *telebot.ReplyMarkup) (*telebot.Message, error) {
	to := telebot.ChatID(actor)

	var opts []interface{}
	if markup != nil {
		opts = append(opts, markup)
	}

	if msg.PhotoURL != "" {
		photo := &telebot.Photo{File: telebot.FromURL(msg.PhotoURL), Caption: msg.Text}
		return t.sender.Send(to, photo, opts...)
	}

	return t.sender.Send(to, msg.Text, opts...)
}
