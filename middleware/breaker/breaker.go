// Package breaker wraps a transport adapter with a circuit breaker so a
// failing upstream sheds load instead of absorbing every retry sequence.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fluxhttp/flux-go/pkg/flux"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
	"github.com/fluxhttp/flux-go/pkg/flux/logger"
)

// Adapter decorates another flux.Adapter with a gobreaker circuit.
type Adapter struct {
	next    flux.Adapter
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

// Config tunes the circuit.
type Config struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval between count resets while closed.
	Interval time.Duration
	// Timeout before a tripped circuit probes again.
	Timeout time.Duration
}

// Wrap decorates next. Tripping follows the failure ratio of recent calls.
func Wrap(next flux.Adapter, cfg Config) *Adapter {
	a := &Adapter{next: next, logger: &logger.NoOpLogger{}}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "flux",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.WithFields(
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			).Warn("circuit breaker state changed")
		},
	})
	return a
}

// SetLogger sets the structured logger.
func (a *Adapter) SetLogger(log logger.Logger) {
	a.logger = log
}

// Send implements flux.Adapter.
func (a *Adapter) Send(ctx context.Context, cfg *flux.RequestConfig) (*flux.Response, error) {
	result, err := a.breaker.Execute(func() (any, error) {
		return a.next.Send(ctx, cfg)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			// Reported as a network-class failure so the default retry
			// classification treats it as transient.
			return nil, fluxerrors.From(err, fluxerrors.CodeNetwork).WithConfig(cfg)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fluxerrors.From(err, fluxerrors.CodeNetwork).WithConfig(cfg)
		default:
			return nil, err
		}
	}
	resp, ok := result.(*flux.Response)
	if !ok {
		return nil, fluxerrors.New(fluxerrors.CodeNetwork, "unexpected breaker result")
	}
	return resp, nil
}
