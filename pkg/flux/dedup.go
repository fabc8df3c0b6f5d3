package flux

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/singleflight"
)

// Dedup defaults.
const (
	DefaultDedupMaxAge  = time.Second
	DefaultDedupEntries = 1000
)

// FingerprintFunc derives the deduplication key for a resolved config. ok is
// false when no deterministic key exists (stream bodies); such requests are
// always treated as distinct.
type FingerprintFunc func(cfg *RequestConfig) (key string, ok bool)

// SafeMethodFunc classifies a method as shareable between concurrent callers.
type SafeMethodFunc func(method string) bool

// Bool returns a pointer to v, for the tri-state config fields below.
func Bool(v bool) *bool { return &v }

// DedupConfig is the per-request deduplication policy.
type DedupConfig struct {
	// Enabled turns deduplication on or off. Nil means "not set here": a
	// merge keeps the base policy's value, and off when set nowhere.
	Enabled *bool

	// MaxAge bounds how long an in-flight entry may be reused.
	MaxAge time.Duration

	// MaxEntries is the soft cap on tracked entries (deduplicator-level
	// setting; the per-request value is ignored once the deduplicator is
	// built).
	MaxEntries int

	// Headers selects the header subset mixed into the fingerprint.
	Headers []string

	Key  FingerprintFunc
	Safe SafeMethodFunc
}

func (d DedupConfig) clone() DedupConfig {
	out := d
	if d.Enabled != nil {
		v := *d.Enabled
		out.Enabled = &v
	}
	if d.Headers != nil {
		out.Headers = append([]string(nil), d.Headers...)
	}
	return out
}

func (d DedupConfig) merge(o *DedupConfig) DedupConfig {
	out := d.clone()
	if o == nil {
		return out
	}
	if o.Enabled != nil {
		v := *o.Enabled
		out.Enabled = &v
	}
	if o.MaxAge > 0 {
		out.MaxAge = o.MaxAge
	}
	if o.MaxEntries > 0 {
		out.MaxEntries = o.MaxEntries
	}
	if o.Headers != nil {
		out.Headers = append([]string(nil), o.Headers...)
	}
	if o.Key != nil {
		out.Key = o.Key
	}
	if o.Safe != nil {
		out.Safe = o.Safe
	}
	return out
}

// enabled reports whether the policy explicitly turns deduplication on.
func (d *DedupConfig) enabled() bool {
	return d != nil && d.Enabled != nil && *d.Enabled
}

// DefaultSafeMethod allows deduplication for GET-class methods only.
func DefaultSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// Fingerprint is the default key function: an xxhash over method, resolved
// URL (params included), serialized body and the configured header subset.
func Fingerprint(cfg *RequestConfig) (string, bool) {
	target, err := cfg.ResolveURL()
	if err != nil {
		return "", false
	}

	var body []byte
	if cfg.Body != nil {
		b, ok := cfg.Body.Bytes()
		if !ok {
			return "", false
		}
		body = b
	}

	h := xxhash.New()
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	_, _ = io.WriteString(h, method)
	_, _ = io.WriteString(h, target)
	_, _ = h.Write(body)
	if cfg.Dedup != nil {
		for _, name := range cfg.Dedup.Headers {
			_, _ = io.WriteString(h, name+"="+cfg.Headers.Get(name))
		}
	}
	return strconv.FormatUint(h.Sum64(), 16), true
}

// Deduplicator collapses concurrent executions with an equivalent fingerprint
// into one shared in-flight call. It exclusively owns the entry map; callers
// only ever observe results.
type Deduplicator struct {
	mu         sync.Mutex
	group      singleflight.Group
	entries    map[string]time.Time
	maxEntries int
	closed     bool
}

// NewDeduplicator creates a deduplicator; maxEntries <= 0 selects the default
// soft cap.
func NewDeduplicator(maxEntries int) *Deduplicator {
	if maxEntries <= 0 {
		maxEntries = DefaultDedupEntries
	}
	return &Deduplicator{
		entries:    make(map[string]time.Time),
		maxEntries: maxEntries,
	}
}

// Close disposes the deduplicator: every subsequent call executes
// independently, even for identical fingerprints.
func (d *Deduplicator) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key := range d.entries {
		d.group.Forget(key)
		delete(d.entries, key)
	}
}

// Len returns the number of tracked in-flight entries.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Do executes fn, sharing its result with every concurrent caller presenting
// the same key. Entries are dropped on settlement and ignored once older than
// maxAge; when the soft cap is hit, the oldest pending entry is evicted first.
// shared reports whether this caller observed another call's execution.
func (d *Deduplicator) Do(key string, maxAge time.Duration, fn func() (*Response, error)) (resp *Response, err error, shared bool) {
	if maxAge <= 0 {
		maxAge = DefaultDedupMaxAge
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		resp, err = fn()
		return resp, err, false
	}

	now := time.Now()
	if created, ok := d.entries[key]; ok && now.Sub(created) > maxAge {
		// The live entry outlived its reuse window; detach it so this call
		// starts a fresh execution.
		d.group.Forget(key)
		delete(d.entries, key)
	}
	if _, ok := d.entries[key]; !ok {
		if len(d.entries) >= d.maxEntries {
			d.evictOldestLocked()
		}
		d.entries[key] = now
	}
	d.mu.Unlock()

	v, err, shared := d.group.Do(key, func() (any, error) {
		defer d.remove(key)
		return fn()
	})
	if v != nil {
		resp = v.(*Response)
	}
	return resp, err, shared
}

func (d *Deduplicator) remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.group.Forget(key)
	delete(d.entries, key)
}

func (d *Deduplicator) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, created := range d.entries {
		if oldestKey == "" || created.Before(oldest) {
			oldestKey = key
			oldest = created
		}
	}
	if oldestKey != "" {
		d.group.Forget(oldestKey)
		delete(d.entries, oldestKey)
	}
}
