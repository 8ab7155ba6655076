package ratelimit

import (
	"errors"
	"strings"
	"time"

	"github.com/Proton-105/himera-shop/internal/domain"
	"github.com/Proton-105/himera-shop/pkg/config"
)

// ErrNoRule is returned when no limit is configured for a scope.
var ErrNoRule = errors.New("rate limit rule is not configured")

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limiting is switched on.
func (r *Rules) Enabled() bool {
	return r.config.Enabled
}

// IsWhitelisted returns true if the actor bypasses rate limits.
func (r *Rules) IsWhitelisted(actor domain.UserID) bool {
	for _, id := range r.config.Whitelist {
		if id == int64(actor) {
			return true
		}
	}
	return false
}

// GetSelectionLimit returns the limit for a keyboard selection verb such as
// "/buy". Verbs are matched without the leading slash.
func (r *Rules) GetSelectionLimit(verb string) (int, time.Duration, error) {
	name := strings.TrimPrefix(strings.ToLower(verb), "/")
	rule, ok := r.config.Selections[name]
	if !ok {
		return 0, 0, ErrNoRule
	}
	return parseRule(rule)
}

// GetPerUserLimit returns the per-user rate limiting rule.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

// UserKey is the limiter key for all events of an actor.
func UserKey(actor domain.UserID) string {
	return "user:" + actor.String()
}

// SelectionKey is the limiter key for one selection verb of an actor.
func SelectionKey(actor domain.UserID, verb string) string {
	return "selection:" + strings.TrimPrefix(verb, "/") + ":" + actor.String()
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Limit <= 0 {
		return 0, 0, ErrNoRule
	}
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
