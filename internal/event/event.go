// Package event turns raw Telegram updates into typed user events.
package event

import (
	"strings"

	"github.com/Proton-105/himera-shop/internal/domain"
)

// Kind tells how the user produced an event.
type Kind int

const (
	// KindCommand is the global "/start" reset.
	KindCommand Kind = iota + 1
	// KindSelection is a tap on a rendered choice.
	KindSelection
	// KindText is free text typed by the user.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindSelection:
		return "selection"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// CommandStart resets the conversation from any state.
const CommandStart = "/start"

// Selection verbs carried in button payloads.
const (
	VerbDescription = "/description"
	VerbCart        = "/cart"
	VerbBack        = "/back"
	VerbBuy         = "/buy"
	VerbMenu        = "/menu"
	VerbRemove      = "/remove"
	VerbPay         = "/pay"
)

// Selection is a parsed "/<verb> <args...>" payload.
type Selection struct {
	Verb string
	Args []string
}

// ParseSelection splits a payload into verb and arguments. It never fails;
// payloads that are not verbs yield a Selection whose Verb does not start
// with a slash.
func ParseSelection(token string) Selection {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return Selection{}
	}
	return Selection{Verb: fields[0], Args: fields[1:]}
}

// Token renders the selection back into its payload form.
func (s Selection) Token() string {
	if len(s.Args) == 0 {
		return s.Verb
	}
	return s.Verb + " " + strings.Join(s.Args, " ")
}

// Is reports whether the selection has the given verb and argument count.
func (s Selection) Is(verb string, args int) bool {
	return s.Verb == verb && len(s.Args) == args
}

// UserEvent is a normalized inbound event.
type UserEvent struct {
	Actor     domain.UserID
	Token     string
	Kind      Kind
	Selection Selection
	// Ref is the callback id of a button tap, empty otherwise.
	Ref string
	// MessageID is the id of the message that carried the event.
	MessageID int
	UpdateID  int
}

// IsStart reports whether the event is the global reset.
func (e UserEvent) IsStart() bool {
	return e.Token == CommandStart
}
