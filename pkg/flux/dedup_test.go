package flux_test

import (
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxhttp/flux-go/pkg/flux"
)

func TestDeduplicatorDo(t *testing.T) {
	t.Parallel()

	t.Run("Concurrent identical keys share one execution", func(t *testing.T) {
		t.Parallel()

		dedup := flux.NewDeduplicator(0)
		var calls, sharers int32

		var wg sync.WaitGroup
		results := make([]*flux.Response, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err, shared := dedup.Do("key", time.Second, func() (*flux.Response, error) {
					atomic.AddInt32(&calls, 1)
					time.Sleep(50 * time.Millisecond)
					return &flux.Response{Status: http.StatusOK}, nil
				})
				require.NoError(t, err)
				if shared {
					atomic.AddInt32(&sharers, 1)
				}
				results[i] = resp
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Equal(t, int32(5), atomic.LoadInt32(&sharers), "one execution means every caller observed sharing")
		for _, resp := range results {
			assert.Equal(t, results[0], resp, "all callers observe the same result")
		}
	})

	t.Run("Failures propagate identically to every sharer", func(t *testing.T) {
		t.Parallel()

		dedup := flux.NewDeduplicator(0)
		boom := stderrors.New("boom")

		var wg sync.WaitGroup
		errs := make([]error, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err, _ := dedup.Do("key", time.Second, func() (*flux.Response, error) {
					time.Sleep(30 * time.Millisecond)
					return nil, boom
				})
				errs[i] = err
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.ErrorIs(t, err, boom)
		}
	})

	t.Run("Entries drop on settlement", func(t *testing.T) {
		t.Parallel()

		dedup := flux.NewDeduplicator(0)
		var calls int32
		exec := func() (*flux.Response, error) {
			atomic.AddInt32(&calls, 1)
			return &flux.Response{Status: http.StatusOK}, nil
		}

		_, err, shared := dedup.Do("key", time.Second, exec)
		require.NoError(t, err)
		assert.False(t, shared)
		_, err, shared = dedup.Do("key", time.Second, exec)
		require.NoError(t, err)
		assert.False(t, shared)

		assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "sequential calls execute independently")
		assert.Zero(t, dedup.Len())
	})

	t.Run("Expired in-flight entry is not reused", func(t *testing.T) {
		t.Parallel()

		dedup := flux.NewDeduplicator(0)
		var calls int32
		release := make(chan struct{})

		go func() {
			_, _, _ = dedup.Do("key", 10*time.Millisecond, func() (*flux.Response, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return &flux.Response{Status: http.StatusOK}, nil
			})
		}()

		time.Sleep(40 * time.Millisecond) // beyond maxAge, first call still in flight

		resp, err, _ := dedup.Do("key", 10*time.Millisecond, func() (*flux.Response, error) {
			atomic.AddInt32(&calls, 1)
			return &flux.Response{Status: http.StatusTeapot}, nil
		})
		close(release)
		require.NoError(t, err)
		assert.Equal(t, http.StatusTeapot, resp.Status, "fresh execution, not the stale one")
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("Closed deduplicator executes independently", func(t *testing.T) {
		t.Parallel()

		dedup := flux.NewDeduplicator(0)
		dedup.Close()

		var calls int32
		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, shared := dedup.Do("key", time.Second, func() (*flux.Response, error) {
					atomic.AddInt32(&calls, 1)
					time.Sleep(20 * time.Millisecond)
					return &flux.Response{Status: http.StatusOK}, nil
				})
				assert.False(t, shared)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("Soft cap evicts the oldest pending entry", func(t *testing.T) {
		t.Parallel()

		dedup := flux.NewDeduplicator(2)
		releaseA := make(chan struct{})
		releaseB := make(chan struct{})

		go func() {
			_, _, _ = dedup.Do("a", time.Minute, func() (*flux.Response, error) {
				<-releaseA
				return &flux.Response{}, nil
			})
		}()
		time.Sleep(10 * time.Millisecond)
		go func() {
			_, _, _ = dedup.Do("b", time.Minute, func() (*flux.Response, error) {
				<-releaseB
				return &flux.Response{}, nil
			})
		}()
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, 2, dedup.Len())

		_, err, _ := dedup.Do("c", time.Minute, func() (*flux.Response, error) {
			return &flux.Response{}, nil
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, dedup.Len(), 2)

		close(releaseA)
		close(releaseB)
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	base := func() *flux.RequestConfig {
		return &flux.RequestConfig{
			Method: http.MethodGet,
			URL:    "https://api.example.com/posts/1",
		}
	}

	t.Run("Deterministic for equivalent configs", func(t *testing.T) {
		t.Parallel()

		a, okA := flux.Fingerprint(base())
		b, okB := flux.Fingerprint(base())
		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, a, b)
	})

	t.Run("Method, URL and body distinguish", func(t *testing.T) {
		t.Parallel()

		a, _ := flux.Fingerprint(base())

		other := base()
		other.URL = "https://api.example.com/posts/2"
		b, _ := flux.Fingerprint(other)
		assert.NotEqual(t, a, b)

		posted := base()
		posted.Method = http.MethodPost
		posted.Body = flux.Text("payload")
		c, ok := flux.Fingerprint(posted)
		require.True(t, ok)
		assert.NotEqual(t, a, c)
	})

	t.Run("Configured header subset participates", func(t *testing.T) {
		t.Parallel()

		withHeader := func(value string) *flux.RequestConfig {
			cfg := base()
			cfg.Dedup = &flux.DedupConfig{Enabled: flux.Bool(true), Headers: []string{"X-Tenant"}}
			cfg.Headers = http.Header{}
			cfg.Headers.Set("X-Tenant", value)
			return cfg
		}

		a, _ := flux.Fingerprint(withHeader("one"))
		b, _ := flux.Fingerprint(withHeader("two"))
		assert.NotEqual(t, a, b)
	})

	t.Run("Stream bodies are always distinct", func(t *testing.T) {
		t.Parallel()

		cfg := base()
		cfg.Method = http.MethodPost
		cfg.Body = flux.Stream(strings.NewReader("data"))
		_, ok := flux.Fingerprint(cfg)
		assert.False(t, ok)
	})
}

func TestDefaultSafeMethod(t *testing.T) {
	t.Parallel()

	assert.True(t, flux.DefaultSafeMethod(http.MethodGet))
	assert.True(t, flux.DefaultSafeMethod(http.MethodHead))
	assert.True(t, flux.DefaultSafeMethod(http.MethodOptions))
	assert.False(t, flux.DefaultSafeMethod(http.MethodPost))
	assert.False(t, flux.DefaultSafeMethod(http.MethodDelete))
}
