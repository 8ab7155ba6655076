package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/pkg/metrics"
)

const apiName = "commerce"

var (
	_ Catalog   = (*Client)(nil)
	_ Carts     = (*Client)(nil)
	_ Customers = (*Client)(nil)
)

// Client is the HTTP implementation of Catalog, Carts and Customers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *tokenSource
	breaker    *apperrors.CircuitBreaker
	log        *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client for API and token calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds a backend client. Empty endpoints fall back to the public Moltin API.
func NewClient(cfg Config, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	log = log.With(slog.String("component", "commerce"))

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		// Rejections such as 404 say nothing about backend health.
		breaker: apperrors.NewCircuitBreaker().IgnoreErrors(func(err error) bool {
			return !apperrors.IsRetryable(err)
		}),
		log: log,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenSource(cfg, c.httpClient, log)

	return c
}

// Ping verifies that the backend accepts the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var payload []productPayload
	if err := c.do(ctx, "list_products", http.MethodGet, "/products", nil, &payload); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(payload))
	for _, p := range payload {
		products = append(products, p.toDomain())
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var payload productPayload
	if err := c.do(ctx, "get_product", http.MethodGet, "/products/"+url.PathEscape(id), nil, &payload); err != nil {
		return domain.Product{}, err
	}
	return payload.toDomain(), nil
}

func (c *Client) GetImage(ctx context.Context, id string) (domain.Image, error) {
	var payload filePayload
	if err := c.do(ctx, "get_image", http.MethodGet, "/files/"+url.PathEscape(id), nil, &payload); err != nil {
		return domain.Image{}, err
	}
	return domain.Image{ID: payload.ID, URL: payload.Link.Href}, nil
}

func (c *Client) CreateCart(ctx context.Context, actor domain.UserID) (domain.Cart, error) {
	body := dataRequest{Data: newCartPayload{
		Name:        fmt.Sprintf("Cart of user %s", actor),
		Description: fmt.Sprintf("Cart of user %s in FishStore", actor),
	}}

	var payload cartPayload
	if err := c.do(ctx, "create_cart", http.MethodPost, "/carts", body, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

func (c *Client) GetCart(ctx context.Context, id string) (domain.Cart, error) {
	var payload cartPayload
	if err := c.do(ctx, "get_cart", http.MethodGet, "/carts/"+url.PathEscape(id), nil, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

func (c *Client) GetCartLines(ctx context.Context, id string) ([]domain.CartLine, error) {
	var payload []cartItemPayload
	if err := c.do(ctx, "get_cart_items", http.MethodGet, "/carts/"+url.PathEscape(id)+"/items", nil, &payload); err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(payload))
	for _, item := range payload {
		lines = append(lines, item.toDomain())
	}
	return lines, nil
}

func (c *Client) AddLine(ctx context.Context, cartID, productID string, quantity int) error {
	body := dataRequest{Data: newCartItemPayload{
		ID:       productID,
		Type:     "cart_item",
		Quantity: quantity,
	}}

	return c.do(ctx, "add_cart_item", http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/items", body, nil)
}

func (c *Client) RemoveLine(ctx context.Context, cartID, lineID string) error {
	path := "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(lineID)
	return c.do(ctx, "remove_cart_item", http.MethodDelete, path, nil, nil)
}

func (c *Client) RegisterCustomer(ctx context.Context, customer domain.Customer) error {
	body := dataRequest{Data: newCustomerPayload{
		Type:  "customer",
		Name:  customer.UserID.String(),
		Email: customer.Email,
	}}

	err := c.do(ctx, "create_customer", http.MethodPost, "/customers", body, nil)

	var status *statusErr
	if errors.As(err, &status) && status.code == http.StatusUnprocessableEntity {
		return apperrors.NewValidationError("Please send a valid email address.")
	}
	return err
}

// do performs one API call through the circuit breaker and decodes the
// "data" envelope into out.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	start := time.Now()

	call := func() error {
		return c.breaker.Call(func() error {
			return c.send(ctx, method, path, body, out)
		})
	}

	var err error
	if method == http.MethodGet && c.cfg.RetryReads {
		err = apperrors.WithRetry(ctx, call)
	} else {
		err = call()
	}

	if errors.Is(err, apperrors.ErrCircuitOpen) {
		err = apperrors.NewExternalAPIError(apiName, err)
	}

	status := "ok"
	if err != nil {
		status = "error"
		c.log.Warn("commerce request failed",
			slog.String("operation", operation),
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
	metrics.RecordCommerceRequest(operation, status, time.Since(start))

	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		if req, ok := body.(dataRequest); ok {
			if err := validatePayload(req.Data); err != nil {
				return apperrors.NewPermanentAPIError(apiName, fmt.Errorf("invalid request: %w", err))
			}
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewPermanentAPIError(apiName, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return apperrors.NewPermanentAPIError(apiName, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewExternalAPIError(apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(apiName, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperrors.NewExternalAPIError(apiName, fmt.Errorf("decode response: %w", err))
	}
	if len(env.Data) == 0 {
		return apperrors.NewExternalAPIError(apiName, fmt.Errorf("response has no data"))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.NewExternalAPIError(apiName, fmt.Errorf("decode data: %w", err))
	}
	if err := validatePayload(out); err != nil {
		return apperrors.NewPermanentAPIError(apiName, fmt.Errorf("invalid response: %w", err))
	}

	return nil
}

type statusErr struct {
	code int
	body string
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// statusError maps a non-2xx response to an AppError. Client errors other
// than 401 and 429 are permanent.
func statusError(name string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := &statusErr{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewExternalAPIError(name, err)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.NewPermanentAPIError(name, err)
	default:
		return apperrors.NewExternalAPIError(name, err)
	}
}
