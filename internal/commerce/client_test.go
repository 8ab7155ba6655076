package commerce

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
)

type fakeBackend struct {
	t           *testing.T
	tokenCalls int32
	// tokenTTL is the expires_in value handed out, in seconds.
	tokenTTL int64

	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newFakeBackend(t *testing.T) (*fakeBackend, *Client) {
	t.Helper()

	fb := &fakeBackend{
		t:        t,
		tokenTTL: 3600,
		handlers: make(map[string]http.HandlerFunc),
	}

	server := httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:      server.URL + "/v2",
		AuthURL:      server.URL + "/oauth/access_token",
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), WithHTTPClient(server.Client()))

	return fb, client
}

func (fb *fakeBackend) on(method, path string, handler http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.handlers[method+" "+path] = handler
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/access_token" {
		require.NoError(fb.t, r.ParseForm())
		assert.Equal(fb.t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(fb.t, "id", r.PostForm.Get("client_id"))
		assert.Equal(fb.t, "secret", r.PostForm.Get("client_secret"))

		atomic.AddInt32(&fb.tokenCalls, 1)
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   atomic.LoadInt64(&fb.tokenTTL),
		})
		return
	}

	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			require.NoError(fb.t, json.Unmarshal(raw, &rec.Body))
		}
	}

	fb.mu.Lock()
	fb.requests = append(fb.requests, rec)
	handler, ok := fb.handlers[r.Method+" "+r.URL.Path]
	fb.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (fb *fakeBackend) last() recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.requests[len(fb.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(data any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	}
}

func TestClient_ListProducts(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/products", respond([]map[string]any{
		{
			"id":          "p1",
			"name":        "Salmon",
			"description": "Fresh salmon",
			"meta": map[string]any{
				"display_price": map[string]any{"with_tax": map[string]any{"formatted": "$10.00"}},
				"stock":         map[string]any{"level": 12},
			},
			"relationships": map[string]any{
				"main_image": map[string]any{"data": map[string]any{"id": "img-1"}},
			},
		},
		{"id": "p2", "name": "Trout"},
	}))

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, domain.Product{
		ID:          "p1",
		Name:        "Salmon",
		Description: "Fresh salmon",
		Price:       "$10.00",
		Stock:       12,
		ImageID:     "img-1",
	}, products[0])
	assert.Equal(t, "", products[1].ImageID)
	assert.Equal(t, "Bearer tok", fb.last().Auth)
}

func TestClient_GetImage(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/files/img-1", respond(map[string]any{
		"id":   "img-1",
		"link": map[string]any{"href": "https://cdn.example/img-1.png"},
	}))

	image, err := client.GetImage(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Image{ID: "img-1", URL: "https://cdn.example/img-1.png"}, image)
}

func TestClient_CartLifecycle(t *testing.T) {
	fb, client := newFakeBackend(t)
	ctx := context.Background()

	fb.on(http.MethodPost, "/v2/carts", respond(map[string]any{"id": "cart-1"}))
	fb.on(http.MethodPost, "/v2/carts/cart-1/items", respond([]any{}))
	fb.on(http.MethodGet, "/v2/carts/cart-1", respond(map[string]any{
		"id":   "cart-1",
		"meta": map[string]any{"display_price": map[string]any{"with_tax": map[string]any{"formatted": "$30.00"}}},
	}))
	fb.on(http.MethodGet, "/v2/carts/cart-1/items", respond([]map[string]any{{
		"id":          "line-1",
		"product_id":  "p1",
		"name":        "Salmon",
		"description": "Fresh salmon",
		"quantity":    3,
		"meta": map[string]any{"display_price": map[string]any{"with_tax": map[string]any{
			"unit":  map[string]any{"formatted": "$10.00"},
			"value": map[string]any{"formatted": "$30.00"},
		}}},
	}}))
	fb.on(http.MethodDelete, "/v2/carts/cart-1/items/line-1", respond([]any{}))

	cart, err := client.CreateCart(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "cart-1", cart.ID)
	assert.Equal(t, map[string]any{"data": map[string]any{
		"name":        "Cart of user 42",
		"description": "Cart of user 42 in FishStore",
	}}, fb.last().Body)

	require.NoError(t, client.AddLine(ctx, "cart-1", "p1", 3))
	assert.Equal(t, map[string]any{"data": map[string]any{
		"id":       "p1",
		"type":     "cart_item",
		"quantity": float64(3),
	}}, fb.last().Body)

	cart, err = client.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, "$30.00", cart.Total)

	lines, err := client.GetCartLines(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{
		ID:          "line-1",
		ProductID:   "p1",
		Name:        "Salmon",
		Description: "Fresh salmon",
		UnitPrice:   "$10.00",
		Quantity:    3,
		Total:       "$30.00",
	}}, lines)

	require.NoError(t, client.RemoveLine(ctx, "cart-1", "line-1"))
	assert.Equal(t, http.MethodDelete, fb.last().Method)
}

func TestClient_RegisterCustomer(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodPost, "/v2/customers", respond(map[string]any{"id": "c1"}))

	err := client.RegisterCustomer(context.Background(), domain.Customer{UserID: 42, Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": map[string]any{
		"type":  "customer",
		"name":  "42",
		"email": "a@b.com",
	}}, fb.last().Body)
}

func TestClient_RegisterCustomerRejectedEmail(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodPost, "/v2/customers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": []any{
			map[string]any{"title": "Failed Validation", "detail": "email must be a valid email"},
		}})
	})

	err := client.RegisterCustomer(context.Background(), domain.Customer{UserID: 42, Email: "nope"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)
	assert.True(t, apperrors.IsUserInput(err))
}

func TestClient_RejectsMalformedResources(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/products", respond([]map[string]any{
		{"id": "p1", "name": "Salmon"},
		{"id": "", "name": "Ghost"},
	}))
	fb.on(http.MethodGet, "/v2/files/img-1", respond(map[string]any{
		"id":   "img-1",
		"link": map[string]any{"href": "not a url"},
	}))

	_, err := client.ListProducts(context.Background())
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeBackend, appErr.Code)
	assert.False(t, appErr.Retryable)
	assert.Contains(t, err.Error(), "item 1")

	_, err = client.GetImage(context.Background(), "img-1")
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.Retryable)
}

func TestClient_RejectsInvalidRequests(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodPost, "/v2/carts/cart-1/items", func(http.ResponseWriter, *http.Request) {
		t.Fatal("invalid line must not reach the backend")
	})

	err := client.AddLine(context.Background(), "cart-1", "p1", 0)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.Retryable)
}

func TestClient_TokenCaching(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/products", respond([]any{}))

	for i := 0; i < 3; i++ {
		_, err := client.ListProducts(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fb.tokenCalls))
	assert.Equal(t, "Bearer tok", fb.last().Auth)
}

func TestClient_TokenRenewedNearExpiry(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/products", respond([]any{}))
	atomic.StoreInt64(&fb.tokenTTL, 5)

	for i := 0; i < 2; i++ {
		_, err := client.ListProducts(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&fb.tokenCalls), "tokens inside the early expiry window are refetched")

	atomic.StoreInt64(&fb.tokenTTL, 3600)
	for i := 0; i < 2; i++ {
		_, err := client.ListProducts(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&fb.tokenCalls))
}

func TestClient_TokenEndpointErrors(t *testing.T) {
	_, client := newFakeBackend(t)
	client.tokens = newTokenSource(Config{
		AuthURL:      "http://127.0.0.1:0/oauth/access_token",
		ClientID:     "id",
		ClientSecret: "secret",
	}, client.httpClient, client.log)

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err), "transport failures are transient")

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_client"})
	}))
	t.Cleanup(rejecting.Close)

	client.tokens = newTokenSource(Config{
		AuthURL:      rejecting.URL,
		ClientID:     "id",
		ClientSecret: "wrong",
	}, rejecting.Client(), client.log)

	err = client.Ping(context.Background())
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.Retryable, "rejected credentials are permanent")
}

func TestClient_UnauthorizedInvalidatesToken(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/products", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": []any{}})
	})

	_, err := client.ListProducts(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))

	fb.on(http.MethodGet, "/v2/products", respond([]any{}))
	_, err = client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fb.tokenCalls))
}

func TestClient_Errors(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.on(http.MethodGet, "/v2/carts/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetProduct(context.Background(), "missing")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeBackend, appErr.Code)
	assert.False(t, appErr.Retryable)

	_, err = client.GetCart(context.Background(), "broken")
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Retryable)
}

func TestClient_RetryReads(t *testing.T) {
	fb, client := newFakeBackend(t)
	client.cfg.RetryReads = true

	var calls int32
	fb.on(http.MethodGet, "/v2/products/p1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		respond(map[string]any{"id": "p1", "name": "Salmon"})(w, r)
	})

	product, err := client.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Salmon", product.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Ping(t *testing.T) {
	fb, client := newFakeBackend(t)

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fb.tokenCalls))
}
