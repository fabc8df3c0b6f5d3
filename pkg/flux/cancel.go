package flux

import (
	"context"
	"sync"
)

// CancelReason explains why a source was triggered.
type CancelReason struct {
	Message string
}

// CancelSource is the caller-held handle used to abort in-flight or queued
// work. It unifies a wait channel and a derived context: triggering the
// source resolves both, exactly once. The engine races the transport call
// against the source; the retry layer shares the same source, so triggering
// it during a backoff wait aborts the whole sequence.
type CancelSource struct {
	mu     sync.Mutex
	reason *CancelReason
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelSource creates an untriggered source.
func NewCancelSource() *CancelSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancelSource{
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Cancel triggers the source with an optional message. The first call wins;
// subsequent calls are no-ops that preserve the original reason.
func (s *CancelSource) Cancel(message string) {
	s.mu.Lock()
	if s.reason != nil {
		s.mu.Unlock()
		return
	}
	s.reason = &CancelReason{Message: message}
	close(s.done)
	s.mu.Unlock()

	s.cancel()
}

// Done returns a channel closed when the source triggers.
func (s *CancelSource) Done() <-chan struct{} {
	return s.done
}

// Context returns the derived cancellation signal, kept in sync with Done.
func (s *CancelSource) Context() context.Context {
	return s.ctx
}

// Canceled reports whether the source has been triggered.
func (s *CancelSource) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason != nil
}

// Reason returns the trigger reason, or nil while untriggered.
func (s *CancelSource) Reason() *CancelReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Bind mirrors an external cancellation signal into the source: when parent
// is canceled the source triggers with the cancellation cause. The returned
// stop function releases the watcher; callers must invoke it once the bound
// work settles.
func (s *CancelSource) Bind(parent context.Context) (stop func()) {
	if parent == nil || parent.Done() == nil {
		return func() {}
	}
	stopc := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			message := ""
			if cause := context.Cause(parent); cause != nil {
				message = cause.Error()
			}
			s.Cancel(message)
		case <-s.done:
		case <-stopc:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stopc) }) }
}
