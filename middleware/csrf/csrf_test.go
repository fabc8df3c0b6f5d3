package csrf_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxhttp/flux-go/middleware/csrf"
	"github.com/fluxhttp/flux-go/pkg/flux"
)

func TestTokenStoreOnRequest(t *testing.T) {
	t.Parallel()

	t.Run("injects on mutating methods", func(t *testing.T) {
		t.Parallel()

		store := csrf.New("tok-1")
		cfg := &flux.RequestConfig{Method: http.MethodPost}

		out, err := store.OnRequest(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", out.Headers.Get(csrf.DefaultHeader))
	})

	t.Run("skips safe methods", func(t *testing.T) {
		t.Parallel()

		store := csrf.New("tok-1")
		cfg := &flux.RequestConfig{Method: http.MethodGet}

		out, err := store.OnRequest(context.Background(), cfg)
		require.NoError(t, err)
		assert.Empty(t, out.Headers.Get(csrf.DefaultHeader))
	})

	t.Run("empty token is a no-op", func(t *testing.T) {
		t.Parallel()

		store := csrf.New("")
		cfg := &flux.RequestConfig{Method: http.MethodPost}

		out, err := store.OnRequest(context.Background(), cfg)
		require.NoError(t, err)
		assert.Nil(t, out.Headers)
	})

	t.Run("custom header name", func(t *testing.T) {
		t.Parallel()

		store := csrf.New("tok-1").WithHeader("X-XSRF-Token")
		cfg := &flux.RequestConfig{Method: http.MethodDelete}

		out, err := store.OnRequest(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", out.Headers.Get("X-XSRF-Token"))
	})
}

func TestTokenStoreOnResponse(t *testing.T) {
	t.Parallel()

	store := csrf.New("old")
	resp := &flux.Response{Headers: http.Header{}}
	resp.Headers.Set(csrf.DefaultHeader, "fresh")

	out, err := store.OnResponse(context.Background(), resp)
	require.NoError(t, err)
	assert.Same(t, resp, out)
	assert.Equal(t, "fresh", store.Token())

	// No header present keeps the current token.
	_, err = store.OnResponse(context.Background(), &flux.Response{Headers: http.Header{}})
	require.NoError(t, err)
	assert.Equal(t, "fresh", store.Token())
}

func TestTokenStoreAttach(t *testing.T) {
	t.Parallel()

	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(csrf.DefaultHeader)
		w.Header().Set(csrf.DefaultHeader, "rotated")
	}))
	defer server.Close()

	store := csrf.New("initial")
	client := flux.New()
	store.Attach(client)

	_, err := client.Post(context.Background(), server.URL, flux.Text("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, "initial", gotToken)
	assert.Equal(t, "rotated", store.Token())
}
