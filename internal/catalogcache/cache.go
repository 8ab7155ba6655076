// Package catalogcache keeps the product catalog in Redis in front of the
// commerce backend.
package catalogcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-shop/internal/commerce"
	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/pkg/metrics"
	appredis "github.com/Proton-105/himera-shop/pkg/redis"
)

const (
	productsKey      = "catalog:products"
	productKeyPrefix = "catalog:product:"
	imageKeyPrefix   = "catalog:image:"
)

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache is a read-through commerce.Catalog. Redis failures fall back to the
// upstream catalog.
type Cache struct {
	upstream   commerce.Catalog
	client     KV
	ttl        time.Duration
	productTTL time.Duration
	log        *slog.Logger
}

var _ commerce.Catalog = (*Cache)(nil)

// New wraps upstream with a Redis cache. The product list and images live for
// ttl. Product cards carry price and stock and live for productTTL; zero
// disables caching them.
func New(upstream commerce.Catalog, client KV, ttl, productTTL time.Duration, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}

	return &Cache{
		upstream:   upstream,
		client:     client,
		ttl:        ttl,
		productTTL: productTTL,
		log:        log.With(slog.String("component", "catalogcache")),
	}
}

func (c *Cache) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if c.get(ctx, productsKey, &products) {
		return products, nil
	}

	products, err := c.upstream.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	c.set(ctx, productsKey, products, c.ttl)
	return products, nil
}

func (c *Cache) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	if c.productTTL > 0 && c.get(ctx, productKeyPrefix+id, &product) {
		return product, nil
	}

	product, err := c.upstream.GetProduct(ctx, id)
	if err != nil {
		if !apperrors.IsRetryable(err) {
			// The product is gone upstream; stop offering it in the menu.
			if invErr := c.Invalidate(ctx); invErr != nil {
				c.log.Warn("catalog cache invalidation failed", slog.Any("error", invErr))
			}
		}
		return domain.Product{}, err
	}

	if c.productTTL > 0 {
		c.set(ctx, productKeyPrefix+id, product, c.productTTL)
	}
	return product, nil
}

func (c *Cache) GetImage(ctx context.Context, id string) (domain.Image, error) {
	var image domain.Image
	if c.get(ctx, imageKeyPrefix+id, &image) {
		return image, nil
	}

	image, err := c.upstream.GetImage(ctx, id)
	if err != nil {
		return domain.Image{}, err
	}

	c.set(ctx, imageKeyPrefix+id, image, c.ttl)
	return image, nil
}

// Refresh reloads the product list and every product from upstream.
func (c *Cache) Refresh(ctx context.Context) error {
	products, err := c.upstream.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}

	if err := c.write(ctx, productsKey, products, c.ttl); err != nil {
		return err
	}
	if c.productTTL > 0 {
		for _, product := range products {
			if err := c.write(ctx, productKeyPrefix+product.ID, product, c.productTTL); err != nil {
				return err
			}
		}
	}

	c.log.Info("catalog cache refreshed", slog.Int("products", len(products)))
	return nil
}

// Invalidate drops the cached product list so the next menu is rebuilt from
// upstream.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Delete(ctx, productsKey); err != nil {
		return fmt.Errorf("invalidate catalog: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string, out any) bool {
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, appredis.ErrNil) {
			c.log.Warn("catalog cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		metrics.RecordCatalogCache(false)
		return false
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.log.Warn("discarding malformed catalog entry", slog.String("key", key), slog.Any("error", err))
		metrics.RecordCatalogCache(false)
		return false
	}

	metrics.RecordCatalogCache(true)
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := c.write(ctx, key, value, ttl); err != nil {
		c.log.Warn("catalog cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *Cache) write(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode catalog entry: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, ttl); err != nil {
		return fmt.Errorf("set catalog entry: %w", err)
	}
	return nil
}
