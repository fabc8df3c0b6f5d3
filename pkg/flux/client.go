// Package flux is an HTTP client presenting one unified request/response
// contract over interchangeable transport backends, with configuration
// layering, ordered interceptors, automatic retry, request deduplication and
// unified cancellation.
package flux

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
	"github.com/fluxhttp/flux-go/pkg/flux/interceptor"
	"github.com/fluxhttp/flux-go/pkg/flux/logger"
	"github.com/fluxhttp/flux-go/pkg/flux/metrics"
	"github.com/fluxhttp/flux-go/pkg/flux/retry"
)

// Interceptors groups the two per-client chains. Entries run sequentially in
// insertion order in both phases.
type Interceptors struct {
	Request  *interceptor.Chain[*RequestConfig]
	Response *interceptor.Chain[*Response]
}

// Client executes requests through a transport adapter. A Client owns its
// interceptor chains and (unless one is injected) its deduplicator; there is
// no process-wide default instance.
type Client struct {
	Interceptors Interceptors

	adapter   Adapter
	defaults  *RequestConfig
	dedup     *Deduplicator
	logger    logger.Logger
	collector *metrics.Collector
}

// New creates a Client with the HTTP adapter and empty defaults.
func New(opts ...Option) *Client {
	c := &Client{
		Interceptors: Interceptors{
			Request:  interceptor.NewChain[*RequestConfig](),
			Response: interceptor.NewChain[*Response](),
		},
		adapter:  NewHTTPAdapter(nil),
		defaults: &RequestConfig{},
		dedup:    NewDeduplicator(0),
		logger:   &logger.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request executes one request: resolve config, run the request chain,
// deduplicate, dispatch with retry under cancellation, then run the response
// chain over the result or the error. Every failure returned to the caller is
// a taxonomy error with a non-empty message.
func (c *Client) Request(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Configuring.
	eff := MergeConfig(c.defaults, cfg)
	if eff.Method == "" {
		eff.Method = http.MethodGet
	}
	requestID := uuid.NewString()
	log := c.logger.WithFields(
		logger.String("request_id", requestID),
		logger.String("method", eff.Method),
		logger.String("url", eff.URL),
	)
	log.Debug("executing request")

	started := time.Now()
	done := c.collector.RequestStarted(eff.Method)

	resp, err := c.execute(ctx, eff, log)

	// Completing: the response chain sees the success value or the error;
	// a rejection handler may recover and re-enter the fulfilled path.
	if err != nil {
		err = c.ensureError(ctx, err, eff, requestID, fluxerrors.CodeRequest)
		if code, ok := fluxerrors.CodeOf(err); ok {
			c.collector.ErrorObserved(string(code))
		}
		log.WithFields(logger.Err(err)).Debug("request failed")

		recovered, rerr := c.Interceptors.Response.RunError(ctx, err)
		if rerr != nil {
			done(0, time.Since(started))
			return nil, c.ensureError(ctx, rerr, eff, requestID, fluxerrors.CodeResponse)
		}
		if recovered == nil {
			// A handler that returns (nil, nil) has not recovered anything;
			// the original failure stands.
			done(0, time.Since(started))
			return nil, err
		}
		resp = recovered
	} else {
		resp, err = c.Interceptors.Response.Run(ctx, resp)
		if err != nil {
			done(0, time.Since(started))
			return nil, c.ensureError(ctx, err, eff, requestID, fluxerrors.CodeResponse)
		}
		if resp == nil {
			done(0, time.Since(started))
			return nil, fluxerrors.New(fluxerrors.CodeResponse, "response interceptor produced a nil response").WithConfig(eff).WithRequestID(requestID)
		}
	}

	status := 0
	if resp != nil {
		status = resp.Status
	}
	done(status, time.Since(started))
	log.WithFields(logger.Int("status", status)).Debug("request completed")
	return resp, nil
}

// execute covers Configuring (request chain) through Dispatching/Retrying.
func (c *Client) execute(ctx context.Context, eff *RequestConfig, log logger.Logger) (*Response, error) {
	eff, err := c.Interceptors.Request.Run(ctx, eff)
	if err != nil {
		return nil, fluxerrors.From(err, fluxerrors.CodeRequest).WithConfig(eff)
	}
	if eff == nil {
		return nil, fluxerrors.New(fluxerrors.CodeRequest, "request interceptor produced a nil config")
	}
	if eff.Method == "" {
		eff.Method = http.MethodGet
	}

	dispatch := func() (*Response, error) {
		return c.dispatch(ctx, eff, log)
	}

	// Deduplicating. A shared execution covers the transport call and its
	// whole retry sequence, so N concurrent callers never multiply retries.
	if pol := eff.Dedup; pol.enabled() && c.dedup != nil {
		safe := pol.Safe
		if safe == nil {
			safe = DefaultSafeMethod
		}
		if safe(eff.Method) {
			keyFn := pol.Key
			if keyFn == nil {
				keyFn = Fingerprint
			}
			if key, ok := keyFn(eff); ok {
				resp, err, shared := c.dedup.Do(key, pol.MaxAge, dispatch)
				if shared {
					c.collector.DedupHit(eff.Method)
					log.WithFields(logger.String("fingerprint", key)).Debug("request joined in-flight execution")
					// Every sharer runs its own response chain; hand each a
					// copy so interceptor mutations stay per-caller.
					resp = resp.Clone()
				}
				return resp, err
			}
		}
	}
	return dispatch()
}

// dispatch runs the adapter under the cancellation source, retrying per the
// resolved policy. On final failure the last attempt's error propagates
// unchanged.
func (c *Client) dispatch(ctx context.Context, eff *RequestConfig, log logger.Logger) (*Response, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src := eff.Cancel
	if src != nil {
		if src.Canceled() {
			return nil, canceledError(src, eff)
		}
		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			select {
			case <-src.Done():
				cancel()
			case <-dctx.Done():
			case <-watchDone:
			}
		}()
	}

	pol := retry.Config{}
	if eff.Retry != nil {
		pol = pol.Merge(eff.Retry)
	}
	pol = pol.Normalize()
	if eff.Body.IsStream() {
		// A stream body cannot be replayed, so a second attempt would send
		// nothing; never retry it.
		pol.Attempts = 0
	}

	var resp *Response
	var lastErr error
	attempt := 0

	bo := backoff.WithContext(pol.NewBackOff(func() error { return lastErr }), dctx)
	err := backoff.RetryNotify(
		func() error {
			r, aerr := c.adapter.Send(dctx, eff)
			if aerr == nil {
				resp = r
				return nil
			}
			lastErr = aerr
			if !pol.ShouldAttempt(aerr, attempt) {
				return backoff.Permanent(aerr)
			}
			attempt++
			return aerr
		},
		bo,
		func(aerr error, wait time.Duration) {
			log.WithFields(
				logger.Err(aerr),
				logger.Int("attempt", attempt),
				logger.Duration("retry_in", wait),
			).Warn("retrying request")
			c.collector.RetryPerformed(eff.Method)
		},
	)
	if err != nil {
		if src != nil && src.Canceled() {
			return nil, canceledError(src, eff)
		}
		// A context expiry during a backoff wait surfaces as a bare context
		// error; the last classified attempt error is more useful unless the
		// wait itself was cut short.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, classifyNative(dctx, err).WithConfig(eff)
		}
		return nil, err
	}
	return resp, nil
}

// ensureError guarantees the taxonomy contract on anything leaving Request.
func (c *Client) ensureError(ctx context.Context, err error, eff *RequestConfig, requestID string, fallback fluxerrors.Code) error {
	var fe *fluxerrors.Error
	if !errors.As(err, &fe) {
		switch {
		case errors.Is(err, context.Canceled):
			fe = classifyNative(ctx, err)
		case errors.Is(err, context.DeadlineExceeded):
			fe = fluxerrors.From(err, fluxerrors.CodeTimedOut)
		default:
			fe = fluxerrors.From(err, fallback)
		}
	}
	if fe.Config == nil {
		fe.Config = eff
	}
	if fe.RequestID == "" {
		fe.RequestID = requestID
	}
	return fe
}

func canceledError(src *CancelSource, eff *RequestConfig) error {
	message := "request canceled"
	if r := src.Reason(); r != nil && r.Message != "" {
		message = r.Message
	}
	return fluxerrors.New(fluxerrors.CodeCanceled, message).WithConfig(eff)
}
