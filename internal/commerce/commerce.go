// Package commerce talks to the Elastic Path (Moltin v2) commerce backend.
package commerce

import (
	"context"
	"time"

	"github.com/Proton-105/himera-shop/internal/domain"
)

const (
	DefaultBaseURL = "https://api.moltin.com/v2"
	DefaultAuthURL = "https://api.moltin.com/oauth/access_token"
)

// Catalog reads products and their images.
type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	GetImage(ctx context.Context, id string) (domain.Image, error)
}

// Carts manages backend carts and their line items.
type Carts interface {
	CreateCart(ctx context.Context, actor domain.UserID) (domain.Cart, error)
	GetCart(ctx context.Context, id string) (domain.Cart, error)
	GetCartLines(ctx context.Context, id string) ([]domain.CartLine, error)
	AddLine(ctx context.Context, cartID, productID string, quantity int) error
	RemoveLine(ctx context.Context, cartID, lineID string) error
}

// Customers registers shoppers at checkout.
type Customers interface {
	RegisterCustomer(ctx context.Context, customer domain.Customer) error
}

// Config holds backend endpoints and client credentials.
type Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	// RetryReads retries failed GET requests with backoff. Mutations are never retried.
	RetryReads bool
}

func (cfg Config) withDefaults() Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg
}
