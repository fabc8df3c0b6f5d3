package flux

import (
	"net/http"
	"time"

	"github.com/fluxhttp/flux-go/pkg/flux/logger"
	"github.com/fluxhttp/flux-go/pkg/flux/metrics"
	"github.com/fluxhttp/flux-go/pkg/flux/retry"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithAdapter selects the transport backend.
func WithAdapter(a Adapter) Option {
	return func(c *Client) {
		if a != nil {
			c.adapter = a
		}
	}
}

// WithHTTPClient selects the HTTP adapter over the given client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.adapter = NewHTTPAdapter(hc)
	}
}

// WithBaseURL sets the base URL relative request URLs resolve against.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.defaults.BaseURL = base
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.defaults.Timeout = d
	}
}

// WithHeader adds a default header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.defaults.Headers == nil {
			c.defaults.Headers = http.Header{}
		}
		c.defaults.Headers.Set(key, value)
	}
}

// WithValidateStatus sets the default status acceptance predicate.
func WithValidateStatus(fn ValidateStatusFunc) Option {
	return func(c *Client) {
		c.defaults.ValidateStatus = fn
	}
}

// WithRetry sets the default retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.defaults.Retry = &cfg
	}
}

// WithDedup sets the default deduplication policy.
func WithDedup(cfg DedupConfig) Option {
	return func(c *Client) {
		c.defaults.Dedup = &cfg
		if cfg.MaxEntries > 0 {
			c.dedup = NewDeduplicator(cfg.MaxEntries)
		}
	}
}

// WithDeduplicator injects a deduplicator, letting several clients share one
// entry map deliberately. Nil disables deduplication for this client.
func WithDeduplicator(d *Deduplicator) Option {
	return func(c *Client) {
		c.dedup = d
	}
}

// WithDefaults merges cfg into the client's base configuration.
func WithDefaults(cfg *RequestConfig) Option {
	return func(c *Client) {
		c.defaults = MergeConfig(c.defaults, cfg)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.collector = m
	}
}
