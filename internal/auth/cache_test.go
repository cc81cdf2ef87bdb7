package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lunarvale/tonearm/internal/shared"
)

// fakeClock is a manually advanced clock for expiry tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// failingTransport fails every request at the transport layer.
type failingTransport struct {
	err error
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, f.err
}

// tokenServer counts issuance requests and responds with sequentially
// numbered tokens.
func tokenServer(t *testing.T, expiresIn int, fetches *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/auth/token" {
			t.Errorf("expected path /api/auth/token, got %s", r.URL.Path)
		}

		var body struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body.Key != "uk-test" {
			t.Errorf("expected key 'uk-test', got %q", body.Key)
		}

		n := fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken": fmt.Sprintf("token-%d", n),
			"expiresIn":   expiresIn,
			"scopes":      []string{"catalog:read"},
		})
	}))
}

func newTestCache(baseURL string, clock *fakeClock) *TokenCache {
	opts := TokenCacheOpts{
		BaseURL:      baseURL,
		UniversalKey: "uk-test",
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	return NewTokenCache(opts)
}

func TestTokenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Cache Hit Avoids Second Fetch", func(t *testing.T) {
		var fetches atomic.Int64
		server := tokenServer(t, 300, &fetches)
		defer server.Close()

		clock := newFakeClock()
		cache := newTestCache(server.URL, clock)

		first, err := cache.GetAccessToken(ctx, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if first.Value != "token-1" {
			t.Errorf("expected token-1, got %s", first.Value)
		}
		if first.TokenType != "Bearer" {
			t.Errorf("expected default token type Bearer, got %s", first.TokenType)
		}

		clock.Advance(60 * time.Second)

		second, err := cache.GetAccessToken(ctx, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if second.Value != first.Value {
			t.Errorf("expected cached token %s, got %s", first.Value, second.Value)
		}
		if got := fetches.Load(); got != 1 {
			t.Errorf("expected 1 fetch, got %d", got)
		}
	})

	t.Run("Skew Triggers Early Refresh", func(t *testing.T) {
		var fetches atomic.Int64
		server := tokenServer(t, 40, &fetches)
		defer server.Close()

		clock := newFakeClock()
		cache := newTestCache(server.URL, clock)

		first, err := cache.GetAccessToken(ctx, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if first.Value != "token-1" {
			t.Errorf("expected token-1, got %s", first.Value)
		}

		// A 40s token is only usable for 10s once the 30s skew is
		// subtracted; 12s later it must be refreshed.
		clock.Advance(12 * time.Second)

		second, err := cache.GetAccessToken(ctx, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if second.Value != "token-2" {
			t.Errorf("expected token-2, got %s", second.Value)
		}
		if got := fetches.Load(); got != 2 {
			t.Errorf("expected 2 fetches, got %d", got)
		}
	})

	t.Run("Concurrent Callers Coalesce", func(t *testing.T) {
		var fetches atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches.Add(1)
			time.Sleep(100 * time.Millisecond)
			json.NewEncoder(w).Encode(map[string]any{
				"accessToken": "shared-token",
				"expiresIn":   300,
			})
		}))
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		const callers = 8
		tokens := make([]*AccessToken, callers)
		errs := make([]error, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = cache.GetAccessToken(ctx, false)
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			if errs[i] != nil {
				t.Fatalf("caller %d: expected no error, got %v", i, errs[i])
			}
			if tokens[i].Value != "shared-token" {
				t.Errorf("caller %d: expected shared-token, got %s", i, tokens[i].Value)
			}
		}
		if got := fetches.Load(); got != 1 {
			t.Errorf("expected 1 fetch for %d callers, got %d", callers, got)
		}
	})

	t.Run("Concurrent Callers Share Failure", func(t *testing.T) {
		var fetches atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches.Add(1)
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"message": "maintenance"}`))
		}))
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		const callers = 4
		errs := make([]error, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = cache.GetAccessToken(ctx, false)
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			var tokenErr *TokenError
			if !errors.As(errs[i], &tokenErr) {
				t.Fatalf("caller %d: expected *TokenError, got %v", i, errs[i])
			}
			if tokenErr.Status != http.StatusServiceUnavailable {
				t.Errorf("caller %d: expected status 503, got %d", i, tokenErr.Status)
			}
			if tokenErr.Message != "maintenance" {
				t.Errorf("caller %d: expected message 'maintenance', got %q", i, tokenErr.Message)
			}
		}
		if got := fetches.Load(); got != 1 {
			t.Errorf("expected 1 fetch, got %d", got)
		}
	})

	t.Run("Forced Refresh Bypasses Valid Token", func(t *testing.T) {
		var fetches atomic.Int64
		server := tokenServer(t, 300, &fetches)
		defer server.Close()

		clock := newFakeClock()
		cache := newTestCache(server.URL, clock)

		first, err := cache.GetAccessToken(ctx, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		forced, err := cache.GetAccessToken(ctx, true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if forced.Value == first.Value {
			t.Error("forced refresh should replace the cached token")
		}
		if got := fetches.Load(); got != 2 {
			t.Errorf("expected 2 fetches, got %d", got)
		}

		cached, usable := cache.Cached()
		if !usable || cached.Value != forced.Value {
			t.Errorf("expected cache to hold %s, got %v (usable=%v)", forced.Value, cached, usable)
		}
	})

	t.Run("Forced Refresh Joins In-Flight Fetch", func(t *testing.T) {
		var fetches atomic.Int64
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches.Add(1)
			<-release
			json.NewEncoder(w).Encode(map[string]any{
				"accessToken": "joined-token",
				"expiresIn":   300,
			})
		}))
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		var wg sync.WaitGroup
		results := make([]*AccessToken, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0], _ = cache.GetAccessToken(ctx, true)
		}()
		go func() {
			defer wg.Done()
			results[1], _ = cache.GetAccessToken(ctx, true)
		}()

		// Let both callers reach the cache before the server responds.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if results[0] == nil || results[1] == nil {
			t.Fatal("expected both callers to receive a token")
		}
		if results[0].Value != results[1].Value {
			t.Errorf("expected both callers to share a token, got %s and %s", results[0].Value, results[1].Value)
		}
		if got := fetches.Load(); got != 1 {
			t.Errorf("expected 1 fetch for two forced callers, got %d", got)
		}
	})

	t.Run("Upstream Rejection Carries Status And Message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "invalid key"}`))
		}))
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		_, err := cache.GetAccessToken(ctx, false)
		var tokenErr *TokenError
		if !errors.As(err, &tokenErr) {
			t.Fatalf("expected *TokenError, got %v", err)
		}
		if tokenErr.Kind != KindUpstreamRejected {
			t.Errorf("expected KindUpstreamRejected, got %s", tokenErr.Kind)
		}
		if tokenErr.Status != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", tokenErr.Status)
		}
		if tokenErr.Message != "invalid key" {
			t.Errorf("expected message 'invalid key', got %q", tokenErr.Message)
		}
	})

	t.Run("Error Message Extraction", func(t *testing.T) {
		tc := []struct {
			name string
			body string
			want string
		}{
			{
				name: "message field preferred",
				body: `{"message": "bad key", "error": "ignored"}`,
				want: "bad key",
			},
			{
				name: "error field fallback",
				body: `{"error": "denied"}`,
				want: "denied",
			},
			{
				name: "raw text fallback",
				body: "plain failure text",
				want: "plain failure text",
			},
			{
				name: "long body truncated",
				body: strings.Repeat("x", 1000),
				want: strings.Repeat("x", 400),
			},
			{
				name: "empty body",
				body: "",
				want: "token request rejected",
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				cache := newTestCache(server.URL, nil)

				_, err := cache.GetAccessToken(ctx, false)
				var tokenErr *TokenError
				if !errors.As(err, &tokenErr) {
					t.Fatalf("expected *TokenError, got %v", err)
				}
				if tokenErr.Message != tt.want {
					t.Errorf("expected message %q, got %q", tt.want, tokenErr.Message)
				}
			})
		}
	})

	t.Run("Malformed Payload Leaves Cache Empty", func(t *testing.T) {
		var fetches atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches.Add(1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		_, err := cache.GetAccessToken(ctx, false)
		var tokenErr *TokenError
		if !errors.As(err, &tokenErr) {
			t.Fatalf("expected *TokenError, got %v", err)
		}
		if tokenErr.Kind != KindMalformedResponse {
			t.Errorf("expected KindMalformedResponse, got %s", tokenErr.Kind)
		}
		if tokenErr.Status != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", tokenErr.Status)
		}

		if cached, _ := cache.Cached(); cached != nil {
			t.Error("expected no token cached after malformed payload")
		}

		// A second call must start a fresh attempt.
		cache.GetAccessToken(ctx, false)
		if got := fetches.Load(); got != 2 {
			t.Errorf("expected 2 fetches, got %d", got)
		}
	})

	t.Run("Malformed Payload Variants", func(t *testing.T) {
		tc := []struct {
			name string
			body string
		}{
			{name: "non-JSON body", body: "<html>oops</html>"},
			{name: "empty token", body: `{"accessToken": "", "expiresIn": 300}`},
			{name: "zero lifetime", body: `{"accessToken": "abc", "expiresIn": 0}`},
			{name: "negative lifetime", body: `{"accessToken": "abc", "expiresIn": -5}`},
			{name: "missing lifetime", body: `{"accessToken": "abc"}`},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				cache := newTestCache(server.URL, nil)

				_, err := cache.GetAccessToken(ctx, false)
				var tokenErr *TokenError
				if !errors.As(err, &tokenErr) {
					t.Fatalf("expected *TokenError, got %v", err)
				}
				if tokenErr.Kind != KindMalformedResponse {
					t.Errorf("expected KindMalformedResponse, got %s", tokenErr.Kind)
				}
				if tokenErr.Status != http.StatusBadGateway {
					t.Errorf("expected status 502, got %d", tokenErr.Status)
				}
			})
		}
	})

	t.Run("Not Configured", func(t *testing.T) {
		tc := []struct {
			name string
			opts TokenCacheOpts
		}{
			{name: "missing base URL", opts: TokenCacheOpts{UniversalKey: "uk-test"}},
			{name: "missing universal key", opts: TokenCacheOpts{BaseURL: "http://localhost:8080"}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				cache := NewTokenCache(tt.opts)

				_, err := cache.GetAccessToken(ctx, false)
				var tokenErr *TokenError
				if !errors.As(err, &tokenErr) {
					t.Fatalf("expected *TokenError, got %v", err)
				}
				if tokenErr.Kind != KindConfiguration {
					t.Errorf("expected KindConfiguration, got %s", tokenErr.Kind)
				}
				if tokenErr.Status != http.StatusInternalServerError {
					t.Errorf("expected status 500, got %d", tokenErr.Status)
				}
				if !errors.Is(err, shared.ErrMissingCredentials) {
					t.Error("expected error to wrap shared.ErrMissingCredentials")
				}
			})
		}
	})

	t.Run("Network Failure", func(t *testing.T) {
		client := &http.Client{
			Transport: &failingTransport{err: errors.New("connection refused")},
		}
		cache := NewTokenCache(TokenCacheOpts{
			BaseURL:      "http://localhost:1",
			UniversalKey: "uk-test",
			HTTPClient:   client,
		})

		_, err := cache.GetAccessToken(ctx, false)
		var tokenErr *TokenError
		if !errors.As(err, &tokenErr) {
			t.Fatalf("expected *TokenError, got %v", err)
		}
		if tokenErr.Kind != KindNetworkFailure {
			t.Errorf("expected KindNetworkFailure, got %s", tokenErr.Kind)
		}
		if tokenErr.Status != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", tokenErr.Status)
		}
		if !strings.Contains(tokenErr.Message, "connection refused") {
			t.Errorf("expected underlying message, got %q", tokenErr.Message)
		}
	})

	t.Run("Fetch Timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "late", "expiresIn": 300})
		}))
		defer server.Close()

		cache := NewTokenCache(TokenCacheOpts{
			BaseURL:      server.URL,
			UniversalKey: "uk-test",
			Timeout:      50 * time.Millisecond,
		})

		_, err := cache.GetAccessToken(ctx, false)
		var tokenErr *TokenError
		if !errors.As(err, &tokenErr) {
			t.Fatalf("expected *TokenError, got %v", err)
		}
		if tokenErr.Kind != KindNetworkFailure {
			t.Errorf("expected KindNetworkFailure, got %s", tokenErr.Kind)
		}
	})

	t.Run("ClearCache Forces New Fetch", func(t *testing.T) {
		var fetches atomic.Int64
		server := tokenServer(t, 300, &fetches)
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		if _, err := cache.GetAccessToken(ctx, false); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		cache.ClearCache()

		if cached, _ := cache.Cached(); cached != nil {
			t.Error("expected empty cache after ClearCache")
		}

		token, err := cache.GetAccessToken(ctx, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.Value != "token-2" {
			t.Errorf("expected token-2 after clear, got %s", token.Value)
		}
		if got := fetches.Load(); got != 2 {
			t.Errorf("expected 2 fetches, got %d", got)
		}
	})

	t.Run("Canceled Waiter Does Not Fail Others", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "survivor", "expiresIn": 300})
		}))
		defer server.Close()

		cache := newTestCache(server.URL, nil)

		var wg sync.WaitGroup
		var firstToken *AccessToken
		var firstErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			firstToken, firstErr = cache.GetAccessToken(ctx, false)
		}()

		time.Sleep(50 * time.Millisecond)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := cache.GetAccessToken(canceled, false)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}

		close(release)
		wg.Wait()

		if firstErr != nil {
			t.Fatalf("expected surviving caller to succeed, got %v", firstErr)
		}
		if firstToken.Value != "survivor" {
			t.Errorf("expected survivor token, got %s", firstToken.Value)
		}
	})

	t.Run("Token Endpoint URL Joining", func(t *testing.T) {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "abc", "expiresIn": 300})
		}))
		defer server.Close()

		// Trailing slash on the configured base must not produce a double slash.
		cache := newTestCache(server.URL+"/", nil)
		if _, err := cache.GetAccessToken(ctx, false); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if path != "/api/auth/token" {
			t.Errorf("expected path /api/auth/token, got %s", path)
		}
	})
}

func TestTokenSource(t *testing.T) {
	t.Run("Maps Cache Token", func(t *testing.T) {
		var fetches atomic.Int64
		server := tokenServer(t, 300, &fetches)
		defer server.Close()

		cache := newTestCache(server.URL, nil)
		source := cache.TokenSource(context.Background())

		token, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.AccessToken != "token-1" {
			t.Errorf("expected token-1, got %s", token.AccessToken)
		}
		if token.TokenType != "Bearer" {
			t.Errorf("expected Bearer, got %s", token.TokenType)
		}
		if token.Expiry.IsZero() {
			t.Error("expected expiry to be set")
		}

		// Second read serves from cache.
		if _, err := source.Token(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := fetches.Load(); got != 1 {
			t.Errorf("expected 1 fetch, got %d", got)
		}
	})

	t.Run("Propagates Errors", func(t *testing.T) {
		cache := NewTokenCache(TokenCacheOpts{})
		source := cache.TokenSource(context.Background())

		if _, err := source.Token(); err == nil {
			t.Error("expected configuration error")
		}
	})
}
