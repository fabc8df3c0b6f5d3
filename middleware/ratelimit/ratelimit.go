// Package ratelimit gates outbound requests behind a token bucket. It attaches
// to a client as an ordinary request-phase interceptor; the core has no
// knowledge of it.
package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/fluxhttp/flux-go/pkg/flux"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
	"github.com/fluxhttp/flux-go/pkg/flux/logger"
)

// Limiter throttles requests to requestsPerSecond with the given burst.
type Limiter struct {
	limiter *rate.Limiter
	wait    bool
	logger  logger.Logger
}

// New creates a Limiter that waits for a token, honoring the request context.
func New(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		wait:    true,
		logger:  &logger.NoOpLogger{},
	}
}

// FailFast makes the limiter reject immediately instead of waiting when no
// token is available.
func (l *Limiter) FailFast() *Limiter {
	l.wait = false
	return l
}

// SetLogger sets the structured logger.
func (l *Limiter) SetLogger(log logger.Logger) {
	l.logger = log
}

// Attach registers the limiter on the client's request chain and returns the
// entry id for later Eject.
func (l *Limiter) Attach(c *flux.Client) int {
	return c.Interceptors.Request.Use(l.OnRequest, nil)
}

// OnRequest is the request-phase interceptor handler.
func (l *Limiter) OnRequest(ctx context.Context, cfg *flux.RequestConfig) (*flux.RequestConfig, error) {
	if !l.wait {
		if !l.limiter.Allow() {
			l.logger.Warn("rate limit exceeded")
			return nil, fluxerrors.New(fluxerrors.CodeRequest, "rate limit exceeded")
		}
		return cfg, nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err // classified by the engine
		}
		// rate.Limiter reports an unreachable deadline synchronously.
		return nil, fluxerrors.From(err, fluxerrors.CodeTimedOut)
	}
	return cfg, nil
}
