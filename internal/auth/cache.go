package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lunarvale/tonearm/internal/shared"
)

const (
	// tokenPath is the issuance endpoint relative to the upstream base URL.
	tokenPath = "/api/auth/token"

	// defaultFetchTimeout bounds how long a single issuance attempt may block.
	defaultFetchTimeout = 10 * time.Second

	// maxErrorBody caps how much of an upstream error body is carried in messages.
	maxErrorBody = 400
)

// TokenCache provides a currently valid [AccessToken] with minimal
// upstream issuance calls. It is safe for concurrent use; at most one
// issuance request is in flight at any time.
type TokenCache struct {
	baseURL    string
	key        string
	httpClient *http.Client
	timeout    time.Duration
	logger     *log.Logger
	now        func() time.Time

	mu       sync.Mutex
	token    *AccessToken
	inflight *pendingFetch
}

// pendingFetch is a single in-flight issuance request. Callers needing a
// refresh while one is outstanding wait on done and share its outcome.
type pendingFetch struct {
	done  chan struct{}
	token *AccessToken
	err   error
}

func (p *pendingFetch) wait(ctx context.Context) (*AccessToken, error) {
	select {
	case <-p.done:
		return p.token, p.err
	case <-ctx.Done():
		// The shared fetch keeps running for other waiters.
		return nil, ctx.Err()
	}
}

// TokenCacheOpts contains configuration options for creating a [TokenCache].
type TokenCacheOpts struct {
	BaseURL      string        // upstream base URL; the token endpoint lives at {BaseURL}/api/auth/token
	UniversalKey string        // pre-shared credential sent to the issuance endpoint
	HTTPClient   *http.Client  // defaults to http.DefaultClient
	Timeout      time.Duration // per-attempt bound, defaults to 10s
	Logger       *log.Logger
	Now          func() time.Time // clock override for tests
}

// NewTokenCache creates a new TokenCache with the provided configuration.
func NewTokenCache(opts TokenCacheOpts) *TokenCache {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &TokenCache{
		baseURL:    opts.BaseURL,
		key:        opts.UniversalKey,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// GetAccessToken returns a usable token, fetching one from the upstream
// issuance endpoint if the cache is empty, stale, or force is set.
//
// Forced refreshes bypass the cache hit short-circuit but still join an
// already in-flight fetch rather than starting a redundant one.
func (c *TokenCache) GetAccessToken(ctx context.Context, force bool) (*AccessToken, error) {
	c.mu.Lock()

	if !force && c.token.Usable(c.now()) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}

	if c.inflight != nil {
		pending := c.inflight
		c.mu.Unlock()
		return pending.wait(ctx)
	}

	if c.baseURL == "" || c.key == "" {
		c.mu.Unlock()
		return nil, configError("token issuance is not configured", shared.ErrMissingCredentials)
	}

	pending := &pendingFetch{done: make(chan struct{})}
	c.inflight = pending
	c.mu.Unlock()

	go c.fetch(pending)

	return pending.wait(ctx)
}

// ClearCache discards the cached token and detaches any in-flight fetch.
// A detached fetch still settles for its waiters but writes nothing back.
func (c *TokenCache) ClearCache() {
	c.mu.Lock()
	c.token = nil
	c.inflight = nil
	c.mu.Unlock()
}

// Cached returns the currently cached token, if any, and whether it is
// still usable. It never triggers a fetch.
func (c *TokenCache) Cached() (*AccessToken, bool) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	return token, token.Usable(c.now())
}

// fetch performs the issuance request and settles the pending fetch for
// every waiter. Failures are never cached.
func (c *TokenCache) fetch(pending *pendingFetch) {
	token, err := c.requestToken()

	c.mu.Lock()
	if c.inflight == pending {
		c.inflight = nil
		if err == nil {
			c.token = token
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("token fetch failed", "error", err)
	} else {
		c.logger.Debug("token refreshed", "expires_in", token.ExpiresIn)
	}

	pending.token = token
	pending.err = err
	close(pending.done)
}

// tokenResponse is the issuance endpoint's success payload.
type tokenResponse struct {
	AccessToken string   `json:"accessToken"`
	TokenType   string   `json:"tokenType"`
	ExpiresIn   int      `json:"expiresIn"`
	Scopes      []string `json:"scopes"`
}

// requestToken issues a single request to the token endpoint. The
// request runs under the cache's own deadline, detached from callers,
// since its outcome is shared by every waiter.
func (c *TokenCache) requestToken() (*AccessToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"key": c.key})
	if err != nil {
		return nil, malformedError("failed to encode token request", err)
	}

	endpoint := shared.JoinURL(c.baseURL, tokenPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to create token request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to read token response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp.StatusCode, errorMessage(body), nil)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, malformedError("token endpoint returned a non-JSON body", err)
	}
	if parsed.AccessToken == "" {
		return nil, malformedError("token endpoint returned an empty access token", nil)
	}
	if parsed.ExpiresIn <= 0 {
		return nil, malformedError("token endpoint returned a non-positive lifetime", nil)
	}
	if parsed.TokenType == "" {
		parsed.TokenType = "Bearer"
	}

	now := c.now()
	return &AccessToken{
		Value:     parsed.AccessToken,
		TokenType: parsed.TokenType,
		ExpiresIn: parsed.ExpiresIn,
		ExpiresAt: now.Add(time.Duration(parsed.ExpiresIn) * time.Second),
		Scopes:    parsed.Scopes,
	}, nil
}

// errorMessage extracts a human-readable message from an upstream error
// body, preferring a "message" field, then "error", then the raw text
// truncated to a safe length.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		text = "token request rejected"
	}
	return text
}
