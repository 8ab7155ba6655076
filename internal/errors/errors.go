// Package errors defines the application error taxonomy and the policies
// applied to it: user-facing messages, retries and circuit breaking.
package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes.
const (
	CodeValidation = "E100"
	CodeUserInput  = "E110"
	CodeStore      = "E200"
	CodeBackend    = "E300"
	CodeState      = "E400"
	CodeRateLimit  = "E500"
)

var (
	// ErrUnknownUser means an event arrived from an actor with no conversation yet.
	ErrUnknownUser = errors.New("unknown user")
	// ErrNoCart means a cart operation needs a cart the actor does not have.
	ErrNoCart = errors.New("no cart for user")
)

const defaultUserMessage = "Something went wrong. Please try again later"

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewUserInputError wraps a recoverable user mistake. userMessage tells the
// user how to get back on track.
func NewUserInputError(cause error, userMessage string) *AppError {
	msg := "user input error"
	if cause != nil {
		msg = fmt.Sprintf("user input error: %s", cause.Error())
	}

	return &AppError{
		Code:        CodeUserInput,
		Message:     msg,
		UserMessage: userMessage,
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       cause,
	}
}

func NewUnknownUserError() *AppError {
	return NewUserInputError(ErrUnknownUser, "Please send /start to begin")
}

func NewNoCartError() *AppError {
	return NewUserInputError(ErrNoCart, "Your cart is gone, please return to the menu")
}

func NewStoreError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStore,
		Message:     fmt.Sprintf("Session store error: %s", underlyingMsg),
		UserMessage: "Temporary problem, your progress was not changed. Please try again",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	msg := fmt.Sprintf("External API error: %s", apiName)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}

	return &AppError{
		Code:        CodeBackend,
		Message:     msg,
		UserMessage: "The shop is temporarily unavailable, your progress was not changed",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewPermanentAPIError is a backend rejection that retrying cannot fix.
func NewPermanentAPIError(apiName string, cause error) *AppError {
	appErr := NewExternalAPIError(apiName, cause)
	appErr.Retryable = false
	return appErr
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This action is not available right now",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       nil,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// IsUserInput reports whether err is a recoverable user-input error.
func IsUserInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code == CodeUserInput || appErr.Code == CodeValidation
	}
	return false
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return defaultUserMessage
}
