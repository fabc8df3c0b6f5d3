// Package retry decides whether a failed attempt runs again and how long to
// wait before it does. The execution engine drives the loop through the
// cenkalti/backoff machinery; this package supplies the classification and
// the delay schedule compiled from a Config.
package retry

import (
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
)

// Backoff selects how the delay grows across attempts.
type Backoff string

const (
	BackoffConstant    Backoff = "constant"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Defaults applied by Config.Normalize.
const (
	DefaultAttempts = 3
	DefaultDelay    = 1000 * time.Millisecond
	DefaultMaxDelay = 30 * time.Second
	DefaultJitter   = 0.1

	// maxRetryAfter caps a server-supplied hint so a hostile header cannot
	// park the client for hours.
	maxRetryAfter = time.Hour
)

// ShouldRetryFunc overrides the default retryability classification entirely
// when set. attempt is 0-based.
type ShouldRetryFunc func(err error, attempt int) bool

// Config is the retry policy attached to a request. The zero value means
// "use defaults"; Attempts < 0 disables retries and Jitter < 0 disables
// jitter.
type Config struct {
	Attempts    int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	Jitter      float64
	ShouldRetry ShouldRetryFunc
}

// Normalize fills unset fields with defaults and returns the result by value.
func (c Config) Normalize() Config {
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Attempts < 0 {
		c.Attempts = 0
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Backoff == "" {
		c.Backoff = BackoffExponential
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	} else if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Merge overlays o onto c field by field; set fields in o win.
func (c Config) Merge(o *Config) Config {
	if o == nil {
		return c
	}
	if o.Attempts != 0 {
		c.Attempts = o.Attempts
	}
	if o.Delay > 0 {
		c.Delay = o.Delay
	}
	if o.MaxDelay > 0 {
		c.MaxDelay = o.MaxDelay
	}
	if o.Backoff != "" {
		c.Backoff = o.Backoff
	}
	if o.Jitter != 0 {
		c.Jitter = o.Jitter
	}
	if o.ShouldRetry != nil {
		c.ShouldRetry = o.ShouldRetry
	}
	return c
}

// ShouldAttempt reports whether the error at the given 0-based attempt index
// warrants another try under this policy. A caller-supplied ShouldRetry
// replaces the default classification entirely.
func (c Config) ShouldAttempt(err error, attempt int) bool {
	if attempt >= c.Attempts {
		return false
	}
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err, attempt)
	}
	return Retryable(err)
}

// Retryable is the default classification: network failures, timeouts,
// server errors, 429 responses and connection resets retry; everything else
// does not. Explicit cancellation never retries.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	code, ok := fluxerrors.CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case fluxerrors.CodeNetwork, fluxerrors.CodeTimedOut, fluxerrors.CodeAborted, fluxerrors.CodeServer:
		return true
	case fluxerrors.CodeClient:
		status, _ := fluxerrors.StatusOf(err)
		return status == http.StatusTooManyRequests
	default:
		return false
	}
}

// DelayFor computes the wait before retry number attempt (0-based): the base
// delay scaled by the backoff mode, plus bounded jitter, capped at MaxDelay,
// and never less than a server-supplied Retry-After hint carried by err.
func (c Config) DelayFor(attempt int, err error) time.Duration {
	base := c.Delay
	switch c.Backoff {
	case BackoffConstant:
	case BackoffLinear:
		base = c.Delay * time.Duration(attempt+1)
	default: // exponential
		base = c.Delay << uint(attempt)
		if base <= 0 || base < c.Delay { // shift overflow
			base = c.MaxDelay
		}
	}

	if c.Jitter > 0 {
		base += time.Duration(rand.Float64() * c.Jitter * float64(base))
	}
	if base > c.MaxDelay {
		base = c.MaxDelay
	}
	if hint, ok := RetryAfter(err); ok && hint > base {
		base = hint
	}
	return base
}

// RetryAfter extracts a server-supplied retry hint from a taxonomy error that
// carries a response. Malformed or negative hints are ignored.
func RetryAfter(err error) (time.Duration, bool) {
	var fe *fluxerrors.Error
	if !errors.As(err, &fe) || fe.Response == nil {
		return 0, false
	}
	hdr, ok := fe.Response.(interface{ Header() http.Header })
	if !ok {
		return 0, false
	}
	d := parseRetryAfter(hdr.Header().Get("Retry-After"))
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// parseRetryAfter understands both delay-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		d := time.Duration(seconds) * time.Second
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d <= 0 {
			return 0
		}
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	return 0
}

// NewBackOff compiles the policy into a backoff.BackOff for use with
// backoff.Retry and friends. lastErr supplies the most recent attempt error
// so a Retry-After hint can floor the computed delay.
func (c Config) NewBackOff(lastErr func() error) backoff.BackOff {
	return &policyBackOff{cfg: c, lastErr: lastErr}
}

type policyBackOff struct {
	cfg     Config
	attempt int
	lastErr func() error
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.cfg.Attempts {
		return backoff.Stop
	}
	var err error
	if b.lastErr != nil {
		err = b.lastErr()
	}
	d := b.cfg.DelayFor(b.attempt, err)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}
