package event

import (
	"strings"

	"gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-shop/internal/domain"
)

// Normalize converts a Telegram update into a UserEvent. ok is false when the
// update carries nothing to act on.
func Normalize(u telebot.Update) (UserEvent, bool) {
	switch {
	case u.Callback != nil:
		return fromCallback(u.ID, u.Callback)
	case u.Message != nil:
		return fromMessage(u.ID, u.Message)
	default:
		return UserEvent{}, false
	}
}

func fromCallback(updateID int, cb *telebot.Callback) (UserEvent, bool) {
	var actor int64
	var messageID int
	switch {
	case cb.Message != nil && cb.Message.Chat != nil:
		actor = cb.Message.Chat.ID
		messageID = cb.Message.ID
	case cb.Sender != nil:
		actor = cb.Sender.ID
	default:
		return UserEvent{}, false
	}

	token := cb.Data
	if cb.Unique != "" {
		// Payloads built with telebot's unique prefix arrive split.
		token = strings.TrimSpace("/" + cb.Unique + " " + cb.Data)
	}

	return UserEvent{
		Actor:     domain.UserID(actor),
		Token:     token,
		Kind:      KindSelection,
		Selection: ParseSelection(token),
		Ref:       cb.ID,
		MessageID: messageID,
		UpdateID:  updateID,
	}, true
}

func fromMessage(updateID int, msg *telebot.Message) (UserEvent, bool) {
	if msg.Chat == nil || msg.Text == "" {
		return UserEvent{}, false
	}

	ev := UserEvent{
		Actor:     domain.UserID(msg.Chat.ID),
		Token:     msg.Text,
		Kind:      KindText,
		MessageID: msg.ID,
		UpdateID:  updateID,
	}
	if commandWord(msg.Text) == CommandStart {
		ev.Token = CommandStart
		ev.Kind = KindCommand
	}

	return ev, true
}

// commandWord returns the leading bot command of text without its @botname
// suffix and payload, or "" when text is not a command.
func commandWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	word, _, _ := strings.Cut(fields[0], "@")
	return word
}
