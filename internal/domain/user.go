package domain

import "strconv"

// UserID identifies a conversation participant. For Telegram it is the chat id.
type UserID int64

// String renders the identifier the way it appears in session keys.
func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Customer is the checkout contact sent to the commerce backend.
type Customer struct {
	UserID UserID
	Email  string
}
