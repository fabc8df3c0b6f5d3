package flux

import (
	"net/http"
	"net/url"
	"time"

	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
	"github.com/fluxhttp/flux-go/pkg/flux/retry"
)

// ResponseType selects how the adapter coerces the response body.
type ResponseType string

const (
	// ResponseTypeAuto decodes JSON when the content type indicates it and
	// keeps raw bytes otherwise.
	ResponseTypeAuto ResponseType = ""
	ResponseTypeText ResponseType = "text"
	ResponseTypeJSON ResponseType = "json"
	// ResponseTypeBytes keeps the raw body without decoding.
	ResponseTypeBytes ResponseType = "bytes"
	// ResponseTypeStream hands the undrained body reader to the caller.
	ResponseTypeStream ResponseType = "stream"
)

// ValidateStatusFunc decides whether a received status counts as success.
type ValidateStatusFunc func(status int) bool

// DefaultValidateStatus accepts 2xx.
func DefaultValidateStatus(status int) bool {
	return status >= 200 && status < 300
}

// RequestConfig describes one request. A client holds a base config; the
// per-call config is merged over it with MergeConfig before execution.
type RequestConfig struct {
	URL     string
	BaseURL string
	Method  string

	// Headers are case-insensitively unique; last write wins (http.Header
	// canonicalization provides both).
	Headers http.Header

	Params           Params
	ParamsSerializer ParamsSerializer

	Body *Body

	Timeout        time.Duration
	ValidateStatus ValidateStatusFunc
	ResponseType   ResponseType

	// DisableDecompress turns off transparent gzip/deflate/brotli decoding.
	DisableDecompress bool

	Cancel *CancelSource

	Retry *retry.Config
	Dedup *DedupConfig

	// Metadata is free-form request context available to interceptors.
	Metadata map[string]any
}

// Clone returns a deep-enough copy: maps are copied, function values and the
// body are shared (they are replaced wholesale on merge, never mutated).
func (c *RequestConfig) Clone() *RequestConfig {
	if c == nil {
		return &RequestConfig{}
	}
	out := *c
	out.Headers = cloneHeader(c.Headers)
	out.Params = c.Params.Clone()
	out.Metadata = cloneMetadata(c.Metadata)
	if c.Retry != nil {
		rc := *c.Retry
		out.Retry = &rc
	}
	if c.Dedup != nil {
		dc := c.Dedup.clone()
		out.Dedup = &dc
	}
	return &out
}

// MergeConfig merges override onto base into a new config. Unset override
// fields never erase base values; headers and the retry/dedup sub-configs
// merge key-wise with override winning per key; slices, funcs and the body
// are replaced wholesale. Nil inputs are treated as empty configs and neither
// input is ever mutated. Only declared fields participate, so there is no
// path for a merge to reach shared state outside the result.
func MergeConfig(base, override *RequestConfig) *RequestConfig {
	out := base.Clone()
	if override == nil {
		return out
	}

	if override.URL != "" {
		out.URL = override.URL
	}
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Method != "" {
		out.Method = override.Method
	}
	if len(override.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = http.Header{}
		}
		for key, values := range override.Headers {
			out.Headers.Del(key)
			for _, v := range values {
				out.Headers.Add(key, v)
			}
		}
	}
	if override.Params != nil {
		out.Params = override.Params.Clone()
	}
	if override.ParamsSerializer != nil {
		out.ParamsSerializer = override.ParamsSerializer
	}
	if override.Body != nil {
		out.Body = override.Body
	}
	if override.Timeout > 0 {
		out.Timeout = override.Timeout
	}
	if override.ValidateStatus != nil {
		out.ValidateStatus = override.ValidateStatus
	}
	if override.ResponseType != "" {
		out.ResponseType = override.ResponseType
	}
	if override.DisableDecompress {
		out.DisableDecompress = true
	}
	if override.Cancel != nil {
		out.Cancel = override.Cancel
	}
	if override.Retry != nil {
		if out.Retry == nil {
			rc := *override.Retry
			out.Retry = &rc
		} else {
			rc := out.Retry.Merge(override.Retry)
			out.Retry = &rc
		}
	}
	if override.Dedup != nil {
		if out.Dedup == nil {
			dc := override.Dedup.clone()
			out.Dedup = &dc
		} else {
			dc := out.Dedup.merge(override.Dedup)
			out.Dedup = &dc
		}
	}
	if len(override.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(override.Metadata))
		}
		for k, v := range override.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// ResolveURL joins BaseURL and URL and appends the serialized params.
func (c *RequestConfig) ResolveURL() (string, error) {
	target := c.URL
	u, err := url.Parse(target)
	if err != nil {
		return "", fluxerrors.Newf(fluxerrors.CodeRequest, "invalid url %q: %v", target, err)
	}
	if c.BaseURL != "" {
		base, berr := url.Parse(c.BaseURL)
		if berr != nil {
			return "", fluxerrors.Newf(fluxerrors.CodeRequest, "invalid base url %q: %v", c.BaseURL, berr)
		}
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", fluxerrors.Newf(fluxerrors.CodeRequest, "unsupported relative url %q", target)
	}

	if len(c.Params) > 0 {
		serialize := c.ParamsSerializer
		if serialize == nil {
			serialize = EncodeParams
		}
		encoded := serialize(c.Params)
		if encoded != "" {
			if u.RawQuery != "" {
				u.RawQuery += "&" + encoded
			} else {
				u.RawQuery = encoded
			}
		}
	}
	return u.String(), nil
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	return h.Clone()
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
