package sambungo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ambiyansyah-risyal/sambungo/internal/singleflight"
)

// DefaultRefreshWindow is the margin before actual expiry at which a token
// is treated as already expired, masking latency and clock skew.
const DefaultRefreshWindow = 2 * time.Minute

// defaultTokenTTL applies when the token endpoint omits expires_in and the
// token carries no exp claim.
const defaultTokenTTL = 3600 * time.Second

// AccessToken is an immutable bearer credential. It is replaced wholesale on
// refresh, never mutated in place.
type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// IsExpired reports whether the token is within the early-refresh window of
// its expiry. A non-positive window falls back to DefaultRefreshWindow.
func (t AccessToken) IsExpired(window time.Duration) bool {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	return !time.Now().Before(t.ExpiresOn.Add(-window))
}

// TokenRequestContext describes a scope request for a single call.
type TokenRequestContext struct {
	Scopes []string
}

// TokenProvider acquires bearer tokens for the auth policy.
type TokenProvider interface {
	// GetToken returns a valid token, serving from cache when fresh.
	GetToken(ctx context.Context, trc TokenRequestContext) (AccessToken, error)

	// ForceRefresh fetches a new token bypassing the cache freshness check.
	// Used by the auth policy after a 401.
	ForceRefresh(ctx context.Context, trc TokenRequestContext) (AccessToken, error)
}

// TokenProviderOption configures a BearerTokenProvider.
type TokenProviderOption func(*BearerTokenProvider)

// WithTokenHTTPClient sets the HTTP client used for token requests.
func WithTokenHTTPClient(client *http.Client) TokenProviderOption {
	return func(p *BearerTokenProvider) {
		p.httpClient = client
	}
}

// WithRefreshWindow sets the early-refresh window.
func WithRefreshWindow(window time.Duration) TokenProviderOption {
	return func(p *BearerTokenProvider) {
		p.refreshWindow = window
	}
}

// WithDefaultScopes sets the scopes used when a request supplies none.
func WithDefaultScopes(scopes ...string) TokenProviderOption {
	return func(p *BearerTokenProvider) {
		p.scopes = scopes
	}
}

// BearerTokenProvider obtains and caches OAuth2 client-credentials tokens.
// The cache is owned by the provider instance and keyed by scope set; at
// most one token fetch is in flight per key under concurrent demand. Safe
// for concurrent use.
type BearerTokenProvider struct {
	httpClient    *http.Client
	tokenURL      string
	clientID      string
	clientSecret  string
	scopes        []string
	refreshWindow time.Duration
	metrics       *MetricsCollector

	mu     sync.RWMutex
	cache  map[string]AccessToken
	flight *singleflight.Group
}

// NewBearerTokenProvider creates a provider against the given token
// endpoint.
func NewBearerTokenProvider(tokenURL, clientID, clientSecret string, options ...TokenProviderOption) *BearerTokenProvider {
	p := &BearerTokenProvider{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokenURL:      tokenURL,
		clientID:      clientID,
		clientSecret:  clientSecret,
		refreshWindow: DefaultRefreshWindow,
		cache:         make(map[string]AccessToken),
		flight:        singleflight.New(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// GetToken implements TokenProvider. Fast path: a cached token outside the
// early-refresh window is returned without synchronization beyond the read
// lock.
func (p *BearerTokenProvider) GetToken(ctx context.Context, trc TokenRequestContext) (AccessToken, error) {
	scopes := p.resolveScopes(trc)
	key := scopeKey(scopes)

	if token, ok := p.cached(key); ok && !token.IsExpired(p.refreshWindow) {
		return token, nil
	}
	return p.refresh(ctx, scopes, key, AccessToken{})
}

// ForceRefresh implements TokenProvider. It skips the freshness fast path
// but still yields a token refreshed by a concurrent caller in the meantime,
// so it never fetches twice for the same rejection.
func (p *BearerTokenProvider) ForceRefresh(ctx context.Context, trc TokenRequestContext) (AccessToken, error) {
	scopes := p.resolveScopes(trc)
	key := scopeKey(scopes)

	stale, _ := p.cached(key)
	return p.refresh(ctx, scopes, key, stale)
}

// refresh runs the single-flight slow path. stale is the token the caller
// considers invalid (zero value when none); inside the flight the cache is
// re-checked so a refresh completed while this caller waited wins without a
// new fetch.
func (p *BearerTokenProvider) refresh(ctx context.Context, scopes []string, key string, stale AccessToken) (AccessToken, error) {
	result, err := p.flight.Do(ctx, key, func() (any, error) {
		if cached, ok := p.cached(key); ok && cached.Token != stale.Token && !cached.IsExpired(p.refreshWindow) {
			return cached, nil
		}

		token, err := p.fetchToken(ctx, scopes)
		if err != nil {
			p.metrics.RecordTokenRefresh("error")
			return AccessToken{}, err
		}
		p.metrics.RecordTokenRefresh("success")

		p.mu.Lock()
		p.cache[key] = token
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return result.(AccessToken), nil
}

func (p *BearerTokenProvider) cached(key string) (AccessToken, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	token, ok := p.cache[key]
	if !ok || token.Token == "" {
		return AccessToken{}, false
	}
	return token, true
}

// resolveScopes prefers request-supplied scopes over configured defaults.
func (p *BearerTokenProvider) resolveScopes(trc TokenRequestContext) []string {
	if len(trc.Scopes) > 0 {
		return trc.Scopes
	}
	return p.scopes
}

func scopeKey(scopes []string) string {
	return strings.Join(scopes, " ")
}

// fetchToken performs the client-credentials grant against the token
// endpoint.
func (p *BearerTokenProvider) fetchToken(ctx context.Context, scopes []string) (AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, &Error{Type: ErrorTypeTokenFetch, Message: "failed to build token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return AccessToken{}, &Error{Type: ErrorTypeTokenFetch, Message: "token request failed", Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AccessToken{}, &Error{
			Type:          ErrorTypeTokenFetch,
			Message:       "token endpoint returned non-success status",
			StatusCode:    resp.StatusCode,
			Body:          readSnippet(resp.Body, requestSnippetLimit),
			CorrelationID: resp.Header.Get(correlationIDHeader),
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return AccessToken{}, &Error{Type: ErrorTypeTokenFetch, Message: "failed to decode token response", Cause: err}
	}
	if payload.AccessToken == "" {
		return AccessToken{}, &Error{Type: ErrorTypeTokenFetch, Message: "token response missing access_token"}
	}

	return AccessToken{
		Token:     payload.AccessToken,
		ExpiresOn: tokenExpiry(payload.AccessToken, payload.ExpiresIn),
	}, nil
}

// tokenExpiry derives the expiry timestamp: expires_in when present, the
// token's own exp claim when it parses as a JWT, else defaultTokenTTL.
func tokenExpiry(token string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}

	parser := jwt.NewParser()
	if parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{}); err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return time.Now().Add(defaultTokenTTL)
}
