package sambungo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenServer struct {
	*httptest.Server

	calls    atomic.Int64
	mu       sync.Mutex
	lastForm map[string]string
}

// newTokenServer returns a token endpoint issuing token-1, token-2, ... with
// a short artificial latency so concurrent callers overlap.
func newTokenServer(t *testing.T, expiresIn int64) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		time.Sleep(20 * time.Millisecond)

		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		ts.lastForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
			"scope":         r.PostFormValue("scope"),
		}
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if expiresIn > 0 {
			fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":%d}`, n, expiresIn)
			return
		}
		fmt.Fprintf(w, `{"access_token":"token-%d"}`, n)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) form(key string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastForm[key]
}

func TestBearerTokenProviderFetchesAndCaches(t *testing.T) {
	ts := newTokenServer(t, 3600)
	provider := NewBearerTokenProvider(ts.URL, "client", "secret", WithDefaultScopes("api.read"))

	first, err := provider.GetToken(context.Background(), TokenRequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "token-1", first.Token)
	assert.False(t, first.IsExpired(DefaultRefreshWindow))

	second, err := provider.GetToken(context.Background(), TokenRequestContext{})
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
	assert.EqualValues(t, 1, ts.calls.Load(), "expected the cached token to be reused")
}

func TestBearerTokenProviderSingleFlight(t *testing.T) {
	ts := newTokenServer(t, 3600)
	provider := NewBearerTokenProvider(ts.URL, "client", "secret", WithDefaultScopes("api.read"))

	const callers = 10
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := provider.GetToken(context.Background(), TokenRequestContext{})
			assert.NoError(t, err)
			tokens[i] = token.Token
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ts.calls.Load(), "expected exactly one token endpoint invocation")
	for i := 1; i < callers; i++ {
		assert.Equal(t, tokens[0], tokens[i], "expected all callers to observe the same token")
	}
}

func TestBearerTokenProviderForceRefresh(t *testing.T) {
	ts := newTokenServer(t, 3600)
	provider := NewBearerTokenProvider(ts.URL, "client", "secret")

	first, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"api.read"}})
	require.NoError(t, err)

	refreshed, err := provider.ForceRefresh(context.Background(), TokenRequestContext{Scopes: []string{"api.read"}})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, refreshed.Token, "expected forced refresh to bypass the cache")
	assert.EqualValues(t, 2, ts.calls.Load())

	cached, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"api.read"}})
	require.NoError(t, err)
	assert.Equal(t, refreshed.Token, cached.Token)
	assert.EqualValues(t, 2, ts.calls.Load(), "expected refreshed token to be cached")
}

func TestBearerTokenProviderConcurrentForceRefresh(t *testing.T) {
	ts := newTokenServer(t, 3600)
	provider := NewBearerTokenProvider(ts.URL, "client", "secret", WithDefaultScopes("api.read"))

	_, err := provider.GetToken(context.Background(), TokenRequestContext{})
	require.NoError(t, err)

	const callers = 10
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := provider.ForceRefresh(context.Background(), TokenRequestContext{})
			assert.NoError(t, err)
			tokens[i] = token.Token
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 2, ts.calls.Load(), "expected concurrent forced refreshes to coalesce into one fetch")
	for i := 1; i < callers; i++ {
		assert.Equal(t, tokens[0], tokens[i])
	}
}

func TestBearerTokenProviderScopeHandling(t *testing.T) {
	ts := newTokenServer(t, 3600)
	provider := NewBearerTokenProvider(ts.URL, "client-id", "client-secret", WithDefaultScopes("default.scope"))

	_, err := provider.GetToken(context.Background(), TokenRequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", ts.form("grant_type"))
	assert.Equal(t, "client-id", ts.form("client_id"))
	assert.Equal(t, "client-secret", ts.form("client_secret"))
	assert.Equal(t, "default.scope", ts.form("scope"))

	// Request-supplied scopes override the defaults and are space-joined.
	_, err = provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"a.read", "b.write"}})
	require.NoError(t, err)
	assert.Equal(t, "a.read b.write", ts.form("scope"))
}

func TestBearerTokenProviderExpiredTokenRefetched(t *testing.T) {
	// expires_in well inside the early-refresh window, so the cached token
	// is never considered fresh.
	ts := newTokenServer(t, 1)
	provider := NewBearerTokenProvider(ts.URL, "client", "secret")

	first, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"s"}})
	require.NoError(t, err)

	second, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"s"}})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
	assert.EqualValues(t, 2, ts.calls.Load())
}

func TestBearerTokenProviderNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	t.Cleanup(server.Close)

	provider := NewBearerTokenProvider(server.URL, "client", "wrong-secret")
	_, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"s"}})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrorTypeTokenFetch, e.Type)
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Contains(t, e.Body, "invalid_client")
}

func TestBearerTokenProviderMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expires_in":3600}`)
	}))
	t.Cleanup(server.Close)

	provider := NewBearerTokenProvider(server.URL, "client", "secret")
	_, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"s"}})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrorTypeTokenFetch, e.Type)
}

func TestAccessTokenIsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Duration
		window  time.Duration
		want    bool
	}{
		{"fresh token", time.Hour, DefaultRefreshWindow, false},
		{"inside refresh window", time.Minute, DefaultRefreshWindow, true},
		{"already expired", -time.Minute, DefaultRefreshWindow, true},
		{"zero window uses default", time.Minute, 0, true},
		{"zero window fresh", time.Hour, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := AccessToken{Token: "x", ExpiresOn: time.Now().Add(tt.expires)}
			assert.Equal(t, tt.want, token.IsExpired(tt.window))
		})
	}
}

func TestAccessTokenZeroValueExpired(t *testing.T) {
	var token AccessToken
	assert.True(t, token.IsExpired(DefaultRefreshWindow))
}

func TestTokenExpiryFromJWTClaim(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"sub": "client",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q}`, signed)
	}))
	t.Cleanup(server.Close)

	provider := NewBearerTokenProvider(server.URL, "client", "secret")
	token, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"s"}})
	require.NoError(t, err)

	assert.WithinDuration(t, exp, token.ExpiresOn, 2*time.Second,
		"expected expiry derived from the JWT exp claim when expires_in is absent")
}

func TestTokenExpiryDefaultWhenOpaque(t *testing.T) {
	ts := newTokenServer(t, 0)
	provider := NewBearerTokenProvider(ts.URL, "client", "secret")

	token, err := provider.GetToken(context.Background(), TokenRequestContext{Scopes: []string{"s"}})
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(defaultTokenTTL), token.ExpiresOn, 5*time.Second,
		"expected the 3600s default for opaque tokens without expires_in")
}
