// Package validator vetoes requests and responses that violate content
// policy: URL scheme allow-lists, body size bounds and response content-type
// checks. It attaches as ordinary interceptor entries.
package validator

import (
	"context"
	"net/url"
	"strings"

	"github.com/fluxhttp/flux-go/pkg/flux"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
)

// Validator holds the policy. Zero-value fields disable their check.
type Validator struct {
	// AllowedSchemes restricts target URL schemes (e.g. "https").
	AllowedSchemes []string

	// MaxRequestBytes rejects requests with a larger serialized body.
	// Stream bodies have no known size and are not checked.
	MaxRequestBytes int64

	// MaxResponseBytes rejects responses with a larger decoded body.
	MaxResponseBytes int64

	// AllowedContentTypes restricts the response Content-Type by prefix
	// match (e.g. "application/json").
	AllowedContentTypes []string
}

// Attach registers both hooks on the client and returns their entry ids.
func (v *Validator) Attach(c *flux.Client) (requestID, responseID int) {
	requestID = c.Interceptors.Request.Use(v.OnRequest, nil)
	responseID = c.Interceptors.Response.Use(v.OnResponse, nil)
	return requestID, responseID
}

// OnRequest vetoes configs that violate the request policy.
func (v *Validator) OnRequest(_ context.Context, cfg *flux.RequestConfig) (*flux.RequestConfig, error) {
	if v.MaxRequestBytes > 0 && cfg.Body != nil && !cfg.Body.IsStream() {
		if payload, ok := cfg.Body.Bytes(); ok && int64(len(payload)) > v.MaxRequestBytes {
			return nil, fluxerrors.Newf(fluxerrors.CodeRequest,
				"request body of %d bytes exceeds limit %d", len(payload), v.MaxRequestBytes)
		}
	}
	if len(v.AllowedSchemes) == 0 {
		return cfg, nil
	}
	target, err := cfg.ResolveURL()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fluxerrors.From(err, fluxerrors.CodeRequest)
	}
	for _, scheme := range v.AllowedSchemes {
		if strings.EqualFold(u.Scheme, scheme) {
			return cfg, nil
		}
	}
	return nil, fluxerrors.Newf(fluxerrors.CodeRequest, "scheme %q not allowed", u.Scheme)
}

// OnResponse vetoes responses that violate the content policy.
func (v *Validator) OnResponse(_ context.Context, resp *flux.Response) (*flux.Response, error) {
	if v.MaxResponseBytes > 0 && int64(len(resp.Body)) > v.MaxResponseBytes {
		return nil, fluxerrors.Newf(fluxerrors.CodeResponse,
			"response body of %d bytes exceeds limit %d", len(resp.Body), v.MaxResponseBytes).
			WithResponse(resp, resp.Status)
	}
	if len(v.AllowedContentTypes) > 0 {
		contentType := resp.Headers.Get("Content-Type")
		allowed := false
		for _, want := range v.AllowedContentTypes {
			if strings.HasPrefix(contentType, want) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fluxerrors.Newf(fluxerrors.CodeResponse,
				"content type %q not allowed", contentType).
				WithResponse(resp, resp.Status)
		}
	}
	return resp, nil
}
