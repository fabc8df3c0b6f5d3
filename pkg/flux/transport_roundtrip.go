package flux

import (
	"context"
	"net/http"
)

// RoundTripAdapter is the low-level backend: one round trip per call, no
// redirect following and no cookie jar, suitable when the caller wants full
// control over every exchange.
type RoundTripAdapter struct {
	transport http.RoundTripper
}

// NewRoundTripAdapter wraps rt; nil selects http.DefaultTransport.
func NewRoundTripAdapter(rt http.RoundTripper) *RoundTripAdapter {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &RoundTripAdapter{transport: rt}
}

// Send implements Adapter.
func (a *RoundTripAdapter) Send(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	ctx, cancel := applyTimeout(ctx, cfg)

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	native, err := a.transport.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, classifySendError(ctx, cfg, req, err)
	}

	return finishResponse(ctx, cfg, native, funcCloser(func() error {
		cancel()
		return nil
	}))
}
