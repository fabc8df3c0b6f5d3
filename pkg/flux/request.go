package flux

import (
	"context"
	"net/http"
)

// Convenience wrappers per method. The optional cfg overrides the client
// defaults for this call; URL, method and body given here win over cfg.

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodGet, url, nil))
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodHead, url, nil))
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodOptions, url, nil))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodDelete, url, nil))
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body *Body, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodPost, url, body))
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, url string, body *Body, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodPut, url, body))
}

// Patch issues a PATCH request with the given body.
func (c *Client) Patch(ctx context.Context, url string, body *Body, cfg *RequestConfig) (*Response, error) {
	return c.Request(ctx, withCall(cfg, http.MethodPatch, url, body))
}

func withCall(cfg *RequestConfig, method, url string, body *Body) *RequestConfig {
	call := &RequestConfig{Method: method, URL: url, Body: body}
	return MergeConfig(cfg, call)
}
