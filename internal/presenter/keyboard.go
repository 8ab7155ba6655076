package presenter

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"
)

// CallbackDataLimitBytes is Telegram's cap on button payloads.
const CallbackDataLimitBytes = 64

// InlineKeyboardBuilder accumulates rows of choices before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]Choice
}

// NewInlineKeyboard creates an empty builder.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]Choice, 0)}
}

// AddRow appends a row. Empty rows are skipped.
func (b *InlineKeyboardBuilder) AddRow(choices ...Choice) *InlineKeyboardBuilder {
	if len(choices) == 0 {
		return b
	}

	row := make([]Choice, len(choices))
	copy(row, choices)
	b.rows = append(b.rows, row)
	return b
}

// Build renders inline markup. It returns nil markup when there are no rows.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	if len(b.rows) == 0 {
		return nil, nil
	}

	inlineKeyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		inlineKeyboard[i] = make([]telebot.InlineButton, len(row))
		for j, choice := range row {
			if len(choice.Token) > CallbackDataLimitBytes {
				return nil, fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(choice.Token))
			}
			inlineKeyboard[i][j] = telebot.InlineButton{
				Text: choice.Label,
				Data: choice.Token,
			}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inlineKeyboard}, nil
}

// Markup renders the choices of msg.
func Markup(msg Message) (*telebot.ReplyMarkup, error) {
	builder := NewInlineKeyboard()
	for _, row := range msg.Choices {
		builder.AddRow(row...)
	}
	return builder.Build()
}
