package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lunarvale/tonearm/internal/auth"
	"github.com/lunarvale/tonearm/internal/models"
	"github.com/lunarvale/tonearm/internal/proxy"
	"github.com/lunarvale/tonearm/internal/repositories"
	"github.com/lunarvale/tonearm/internal/shared"
)

// HealthHandler answers liveness checks.
type HealthHandler struct{}

func (h *HealthHandler) Routes() []string {
	return []string{"/healthz"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProxyHandler forwards /api/* requests to the upstream music API through
// the authenticated proxy client, serving fresh GET responses from the
// local response cache when one is configured.
type ProxyHandler struct {
	client *proxy.Client
	cache  *repositories.ResponseRepository
	ttl    int
	logger *log.Logger
}

// ProxyHandlerOpts contains configuration for creating a [ProxyHandler].
type ProxyHandlerOpts struct {
	Client     *proxy.Client
	Cache      *repositories.ResponseRepository // nil disables response caching
	TTLSeconds int
	Logger     *log.Logger
}

// NewProxyHandler creates a proxy passthrough handler.
func NewProxyHandler(opts ProxyHandlerOpts) *ProxyHandler {
	if opts.TTLSeconds <= 0 {
		opts.TTLSeconds = 60
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &ProxyHandler{
		client: opts.Client,
		cache:  opts.Cache,
		ttl:    opts.TTLSeconds,
		logger: opts.Logger,
	}
}

func (h *ProxyHandler) Routes() []string {
	return []string{"/api/"}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path = path + "?" + r.URL.RawQuery
	}

	switch r.Method {
	case http.MethodGet:
		h.serveGet(w, r, path)
	case http.MethodPost:
		h.servePost(w, r, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProxyHandler) serveGet(w http.ResponseWriter, r *http.Request, path string) {
	key := models.ResponseKey(http.MethodGet, path)

	if h.cache != nil {
		if entry, err := h.cache.GetByKey(key); err == nil && entry.Fresh(time.Now()) {
			w.Header().Set("Content-Type", entry.ContentType())
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(entry.StatusCode())
			w.Write(entry.Body())
			return
		}
	}

	resp, err := h.client.Get(r.Context(), path)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.cache != nil && resp.StatusCode == http.StatusOK {
		entry := models.NewCachedResponse(key, resp.StatusCode, resp.Headers.Get("Content-Type"), resp.Body, time.Now(), h.ttl)
		if err := h.cache.Put(entry); err != nil {
			// Serving the live response matters more than caching it.
			h.logger.Warn("failed to cache response", "key", key, "error", err)
		}
	}

	forward(w, resp)
}

func (h *ProxyHandler) servePost(w http.ResponseWriter, r *http.Request, path string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(http.StatusBadRequest, "failed to read request body"))
		return
	}

	resp, err := h.client.Post(r.Context(), path, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	forward(w, resp)
}

// writeError maps token acquisition failures onto the gateway's
// user-visible contract: configuration problems are reported as a fixed
// misconfiguration message, upstream rejections keep their status and
// message, and everything else is a generic upstream failure.
func (h *ProxyHandler) writeError(w http.ResponseWriter, err error) {
	var tokenErr *auth.TokenError
	if errors.As(err, &tokenErr) {
		switch tokenErr.Kind {
		case auth.KindConfiguration:
			writeJSON(w, http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "service misconfigured"))
		case auth.KindUpstreamRejected:
			writeJSON(w, tokenErr.Status, errorBody(tokenErr.Status, tokenErr.Message))
		default:
			writeJSON(w, http.StatusBadGateway, errorBody(http.StatusBadGateway, shared.ErrUpstreamUnavailable.Error()))
		}
		return
	}

	h.logger.Warn("proxy request failed", "error", err)
	writeJSON(w, http.StatusBadGateway, errorBody(http.StatusBadGateway, shared.ErrUpstreamUnavailable.Error()))
}

// forward copies an upstream response to the client as-is.
func forward(w http.ResponseWriter, resp *proxy.Response) {
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorBody(status int, message string) map[string]any {
	return map[string]any{"status": status, "message": message}
}
