package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/lunarvale/tonearm/internal/auth"
	"github.com/lunarvale/tonearm/internal/shared"
	"golang.org/x/time/rate"
)

const defaultBaseURL string = "http://localhost:8080"

// TokenProvider supplies bearer tokens for outbound requests.
// *auth.TokenCache is the production implementation.
type TokenProvider interface {
	GetAccessToken(ctx context.Context, force bool) (*auth.AccessToken, error)
}

// Client makes authenticated HTTP requests to the upstream music API.
type Client struct {
	baseURL    string
	provider   TokenProvider
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// ClientOpts contains configuration options for creating a [Client].
type ClientOpts struct {
	BaseURL    string
	Provider   TokenProvider
	HTTPClient *http.Client
	RateLimit  float64 // requests per second; zero disables pacing
	Logger     *log.Logger
}

// NewClient creates a new upstream API client.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Client{
		baseURL:    opts.BaseURL,
		provider:   opts.Provider,
		httpClient: opts.HTTPClient,
		limiter:    limiter,
		logger:     opts.Logger,
	}
}

// Response represents a raw upstream response with status and body.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs an authenticated GET request to the specified path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs an authenticated POST request with the given JSON body.
func (c *Client) Post(ctx context.Context, path string, data []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, data)
}

// do sends the request, forcing one token refresh and one retry if the
// upstream answers 401.
func (c *Client) do(ctx context.Context, method, path string, data []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, data, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Debug("upstream returned 401, refreshing token", "method", method, "path", path)
		return c.send(ctx, method, path, data, true)
	}

	return resp, nil
}

// send performs a single authenticated request.
func (c *Client) send(ctx context.Context, method, path string, data []byte, forceRefresh bool) (*Response, error) {
	token, err := c.provider.GetAccessToken(ctx, forceRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	fullURL := shared.JoinURL(c.baseURL, path)

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", token.Header())
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	var jsonData any
	if err := json.Unmarshal(respBody, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
