package flux

import (
	"context"
	"net/http"
)

// HTTPAdapter is the full-featured backend: redirects, connection reuse and
// proxy handling come from the wrapped *http.Client.
type HTTPAdapter struct {
	client *http.Client
}

// NewHTTPAdapter wraps client; nil selects a plain client on the default
// transport. Retries, timeouts and decompression are owned by the engine and
// the shared transport helpers, so the wrapped client should not duplicate
// them.
func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPAdapter{client: client}
}

// Send implements Adapter.
func (a *HTTPAdapter) Send(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	ctx, cancel := applyTimeout(ctx, cfg)

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	native, err := a.client.Do(req)
	if err != nil {
		cancel()
		return nil, classifySendError(ctx, cfg, req, err)
	}

	// The deadline context must stay alive until the body is drained; hand
	// the cancel to the response closer.
	resp, err := finishResponse(ctx, cfg, native, funcCloser(func() error {
		cancel()
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
