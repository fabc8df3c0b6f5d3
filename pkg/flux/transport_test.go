package flux_test

import (
	"compress/gzip"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxhttp/flux-go/pkg/flux"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
)

func adapters() map[string]flux.Adapter {
	return map[string]flux.Adapter{
		"http":      flux.NewHTTPAdapter(nil),
		"roundtrip": flux.NewRoundTripAdapter(nil),
		"socket":    flux.NewSocketAdapter(nil),
	}
}

func TestAdapterContract(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":1,"title":"hello"}`))
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
			_, _ = w.Write(body)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)

	for name, adapter := range adapters() {
		adapter := adapter
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("JSON auto-decode", func(t *testing.T) {
				t.Parallel()

				resp, err := adapter.Send(context.Background(), &flux.RequestConfig{URL: server.URL + "/json"})
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, resp.Status)

				data, ok := resp.Data.(map[string]any)
				require.True(t, ok, "expected structured body, got %T", resp.Data)
				assert.Equal(t, "hello", data["title"])

				var typed struct {
					ID    int    `json:"id"`
					Title string `json:"title"`
				}
				require.NoError(t, resp.JSON(&typed))
				assert.Equal(t, 1, typed.ID)
			})

			t.Run("Object body serialized as JSON", func(t *testing.T) {
				t.Parallel()

				cfg := &flux.RequestConfig{
					URL:    server.URL + "/echo",
					Method: http.MethodPost,
					Body:   flux.JSON(map[string]string{"name": "flux"}),
				}
				resp, err := adapter.Send(context.Background(), cfg)
				require.NoError(t, err)
				assert.Contains(t, resp.Headers.Get("Content-Type"), "application/json")
				assert.JSONEq(t, `{"name":"flux"}`, resp.Text())
			})

			t.Run("Stream body relayed", func(t *testing.T) {
				t.Parallel()

				cfg := &flux.RequestConfig{
					URL:    server.URL + "/echo",
					Method: http.MethodPost,
					Body:   flux.Stream(strings.NewReader("streamed payload")),
				}
				resp, err := adapter.Send(context.Background(), cfg)
				require.NoError(t, err)
				assert.Equal(t, "streamed payload", resp.Text())
			})

			t.Run("Timeout reported within the deadline", func(t *testing.T) {
				t.Parallel()

				started := time.Now()
				_, err := adapter.Send(context.Background(), &flux.RequestConfig{
					URL:     server.URL + "/slow",
					Timeout: 50 * time.Millisecond,
				})
				elapsed := time.Since(started)

				require.Error(t, err)
				code, ok := fluxerrors.CodeOf(err)
				require.True(t, ok)
				assert.Contains(t, []fluxerrors.Code{fluxerrors.CodeTimedOut, fluxerrors.CodeAborted}, code)
				assert.Less(t, elapsed, 150*time.Millisecond, "must fail near the 50ms deadline, not the 200ms handler")
			})

			t.Run("Status classification", func(t *testing.T) {
				t.Parallel()

				_, err := adapter.Send(context.Background(), &flux.RequestConfig{URL: server.URL + "/missing"})
				code, _ := fluxerrors.CodeOf(err)
				assert.Equal(t, fluxerrors.CodeClient, code)

				_, err = adapter.Send(context.Background(), &flux.RequestConfig{URL: server.URL + "/broken"})
				code, _ = fluxerrors.CodeOf(err)
				assert.Equal(t, fluxerrors.CodeServer, code)

				var fe *fluxerrors.Error
				require.True(t, stderrors.As(err, &fe))
				assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
				assert.NotNil(t, fe.Response, "the received response rides on the error")
			})

			t.Run("Relaxed status predicate resolves", func(t *testing.T) {
				t.Parallel()

				resp, err := adapter.Send(context.Background(), &flux.RequestConfig{
					URL:            server.URL + "/missing",
					ValidateStatus: func(s int) bool { return s < 500 },
				})
				require.NoError(t, err)
				assert.Equal(t, http.StatusNotFound, resp.Status)
			})
		})
	}
}

func TestTransparentDecompression(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("compressed greetings"))
		_ = gz.Close()
	}))
	t.Cleanup(server.Close)

	t.Run("Decoded by default", func(t *testing.T) {
		t.Parallel()

		adapter := flux.NewHTTPAdapter(nil)
		resp, err := adapter.Send(context.Background(), &flux.RequestConfig{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, "compressed greetings", resp.Text())
		assert.Empty(t, resp.Headers.Get("Content-Encoding"))
	})

	t.Run("Left alone when disabled", func(t *testing.T) {
		t.Parallel()

		adapter := flux.NewHTTPAdapter(nil)
		resp, err := adapter.Send(context.Background(), &flux.RequestConfig{
			URL:               server.URL,
			DisableDecompress: true,
			Headers:           http.Header{"Accept-Encoding": []string{"gzip"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "gzip", resp.Headers.Get("Content-Encoding"))
		assert.NotEqual(t, "compressed greetings", resp.Text())
	})
}

func TestTimeoutDuringBodyRead(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush() // headers out, body stalls past the deadline
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("tail"))
	}))
	t.Cleanup(server.Close)

	for name, adapter := range adapters() {
		adapter := adapter
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := adapter.Send(context.Background(), &flux.RequestConfig{
				URL:     server.URL,
				Timeout: 50 * time.Millisecond,
			})
			require.Error(t, err)

			code, ok := fluxerrors.CodeOf(err)
			require.True(t, ok)
			assert.Contains(t, []fluxerrors.Code{fluxerrors.CodeTimedOut, fluxerrors.CodeAborted}, code,
				"a deadline expiring mid-body is still a timeout")
		})
	}
}

func TestResponseTypeStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("chunked body"))
	}))
	t.Cleanup(server.Close)

	adapter := flux.NewHTTPAdapter(nil)
	resp, err := adapter.Send(context.Background(), &flux.RequestConfig{
		URL:          server.URL,
		ResponseType: flux.ResponseTypeStream,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Stream)
	defer resp.Stream.Close()

	body, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "chunked body", string(body))
	assert.Empty(t, resp.Body, "stream mode leaves the body undrained")
}

func TestBuildFailures(t *testing.T) {
	t.Parallel()

	adapter := flux.NewHTTPAdapter(nil)

	t.Run("Relative URL without base", func(t *testing.T) {
		t.Parallel()

		_, err := adapter.Send(context.Background(), &flux.RequestConfig{URL: "/posts"})
		code, ok := fluxerrors.CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, fluxerrors.CodeRequest, code)
	})

	t.Run("Unserializable JSON body", func(t *testing.T) {
		t.Parallel()

		_, err := adapter.Send(context.Background(), &flux.RequestConfig{
			URL:    "https://example.com",
			Method: http.MethodPost,
			Body:   flux.JSON(func() {}),
		})
		code, ok := fluxerrors.CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, fluxerrors.CodeRequest, code)
	})
}

func TestConnectionRefused(t *testing.T) {
	t.Parallel()

	for name, adapter := range adapters() {
		adapter := adapter
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := adapter.Send(context.Background(), &flux.RequestConfig{
				URL:     "http://127.0.0.1:1", // nothing listens here
				Timeout: time.Second,
			})
			require.Error(t, err)
			assert.True(t, fluxerrors.IsFluxError(err), "raw transport errors must be classified")
		})
	}
}
