package lifecycle

import (
	"context"
	"errors"
)

var errDraining = errors.New("shutting down")

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}
