package shop

import (
	"context"
	"log/slog"

	"github.com/Proton-105/himera-shop/internal/commerce"
	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/pkg/metrics"
)

// CartSessions is the cart-id half of the session accessor.
type CartSessions interface {
	CartID(ctx context.Context, actor domain.UserID) (string, bool, error)
	ClaimCartID(ctx context.Context, actor domain.UserID, cartID string) (string, error)
}

// CartResolver returns the actor's cart, creating it on first use.
type CartResolver struct {
	sessions CartSessions
	carts    commerce.Carts
	log      *slog.Logger
}

func NewCartResolver(sessions CartSessions, carts commerce.Carts, log *slog.Logger) *CartResolver {
	if log == nil {
		log = slog.Default()
	}
	return &CartResolver{sessions: sessions, carts: carts, log: log}
}

// Resolve returns the cached cart id or creates a cart and claims it. If a
// concurrent call claimed a cart first, its id is returned and the cart created
// here is left orphaned in the backend.
func (r *CartResolver) Resolve(ctx context.Context, actor domain.UserID) (string, error) {
	cartID, ok, err := r.sessions.CartID(ctx, actor)
	if err != nil {
		return "", apperrors.NewStoreError(err)
	}
	if ok {
		return cartID, nil
	}

	cart, err := r.carts.CreateCart(ctx, actor)
	if err != nil {
		return "", err
	}
	metrics.RecordCartCreated()

	winner, err := r.sessions.ClaimCartID(ctx, actor, cart.ID)
	if err != nil {
		return "", apperrors.NewStoreError(err)
	}

	if winner != cart.ID {
		r.log.WarnContext(ctx, "cart claimed concurrently, dropping duplicate",
			slog.String("actor", actor.String()),
			slog.String("cart_id", winner),
			slog.String("orphaned_cart_id", cart.ID),
		)
	} else {
		r.log.InfoContext(ctx, "cart created", slog.String("actor", actor.String()), slog.String("cart_id", cart.ID))
	}

	return winner, nil
}
