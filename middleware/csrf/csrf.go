// Package csrf keeps a CSRF token in memory and plays it on mutating
// requests, rotating it from response headers. Both hooks are ordinary
// interceptor entries.
package csrf

import (
	"context"
	"net/http"
	"sync"

	"github.com/fluxhttp/flux-go/pkg/flux"
)

// DefaultHeader is the header the token travels in, both directions.
const DefaultHeader = "X-CSRF-Token"

// TokenStore holds the current token. Safe for concurrent use.
type TokenStore struct {
	mu     sync.RWMutex
	token  string
	header string
}

// New creates a store using DefaultHeader.
func New(initial string) *TokenStore {
	return &TokenStore{token: initial, header: DefaultHeader}
}

// WithHeader overrides the header name and returns s.
func (s *TokenStore) WithHeader(name string) *TokenStore {
	s.header = name
	return s
}

// Token returns the current token.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the current token.
func (s *TokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Attach registers both hooks on the client and returns their entry ids.
func (s *TokenStore) Attach(c *flux.Client) (requestID, responseID int) {
	requestID = c.Interceptors.Request.Use(s.OnRequest, nil)
	responseID = c.Interceptors.Response.Use(s.OnResponse, nil)
	return requestID, responseID
}

// OnRequest injects the token header into mutating requests.
func (s *TokenStore) OnRequest(_ context.Context, cfg *flux.RequestConfig) (*flux.RequestConfig, error) {
	if !mutating(cfg.Method) {
		return cfg, nil
	}
	token := s.Token()
	if token == "" {
		return cfg, nil
	}
	if cfg.Headers == nil {
		cfg.Headers = http.Header{}
	}
	cfg.Headers.Set(s.header, token)
	return cfg, nil
}

// OnResponse rotates the stored token when the server sends a fresh one.
func (s *TokenStore) OnResponse(_ context.Context, resp *flux.Response) (*flux.Response, error) {
	if token := resp.Headers.Get(s.header); token != "" {
		s.SetToken(token)
	}
	return resp, nil
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
