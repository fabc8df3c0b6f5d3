package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxhttp/flux-go/middleware/ratelimit"
	"github.com/fluxhttp/flux-go/pkg/flux"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
)

func TestLimiterFailFast(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(0.001, 1).FailFast()
	cfg := &flux.RequestConfig{Method: http.MethodGet, URL: "http://example.com"}

	out, err := limiter.OnRequest(context.Background(), cfg)
	require.NoError(t, err)
	assert.Same(t, cfg, out)

	_, err = limiter.OnRequest(context.Background(), cfg)
	require.Error(t, err)

	code, ok := fluxerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, fluxerrors.CodeRequest, code)
}

func TestLimiterWait(t *testing.T) {
	t.Parallel()

	t.Run("waits for the next token", func(t *testing.T) {
		t.Parallel()

		limiter := ratelimit.New(100, 1)
		cfg := &flux.RequestConfig{Method: http.MethodGet}

		_, err := limiter.OnRequest(context.Background(), cfg)
		require.NoError(t, err)

		start := time.Now()
		_, err = limiter.OnRequest(context.Background(), cfg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	})

	t.Run("honors the context deadline", func(t *testing.T) {
		t.Parallel()

		limiter := ratelimit.New(0.001, 1)
		cfg := &flux.RequestConfig{Method: http.MethodGet}

		_, err := limiter.OnRequest(context.Background(), cfg)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = limiter.OnRequest(ctx, cfg)
		require.Error(t, err)
	})
}

func TestLimiterAttach(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := flux.New()
	id := ratelimit.New(0.001, 1).FailFast().Attach(client)

	_, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())

	// Ejecting the limiter lifts the gate.
	client.Interceptors.Request.Eject(id)
	_, err = client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}
