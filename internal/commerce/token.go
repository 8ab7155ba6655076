package commerce

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/Proton-105/himera-shop/internal/errors"
)

// tokenEarlyExpiry renews the access token this long before it expires.
const tokenEarlyExpiry = 30 * time.Second

// tokenSource hands out the client-credentials access token. The oauth2
// reuse source caches it until expiry; Invalidate forces a new fetch.
type tokenSource struct {
	cfg  clientcredentials.Config
	base context.Context
	log  *slog.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
}

func newTokenSource(cfg Config, hc *http.Client, log *slog.Logger) *tokenSource {
	ts := &tokenSource{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		// Fetches are bounded by the HTTP client timeout, not by the caller.
		base: context.WithValue(context.Background(), oauth2.HTTPClient, hc),
		log:  log,
	}
	ts.source = ts.newSource()
	return ts
}

func (ts *tokenSource) newSource() oauth2.TokenSource {
	return oauth2.ReuseTokenSourceWithExpiry(nil, ts.cfg.TokenSource(ts.base), tokenEarlyExpiry)
}

// Token returns a valid access token.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ts.mu.Lock()
	source := ts.source
	ts.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", tokenError(err)
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.source = ts.newSource()
	ts.log.Debug("commerce token invalidated")
}

// tokenError maps token endpoint failures onto the backend error taxonomy.
func tokenError(err error) error {
	const name = "commerce token"

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusUnauthorized {
			return apperrors.NewPermanentAPIError(name, err)
		}
	}
	return apperrors.NewExternalAPIError(name, err)
}
