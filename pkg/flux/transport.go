package flux

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/bytedance/sonic"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
)

// Adapter is the single contract between the engine and a transport backend.
// The backend receives a fully resolved config and must not apply its own
// retry or deduplication logic. Failures are classified into the taxonomy
// here, at the adapter boundary, and never reclassified downstream.
type Adapter interface {
	Send(ctx context.Context, cfg *RequestConfig) (*Response, error)
}

// buildRequest turns a resolved config into a native request. Failures here
// are setup failures: ERR_REQUEST.
func buildRequest(ctx context.Context, cfg *RequestConfig) (*http.Request, error) {
	target, err := cfg.ResolveURL()
	if err != nil {
		return nil, fluxerrors.From(err, fluxerrors.CodeRequest).WithConfig(cfg)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	reader, contentType, length, err := cfg.Body.Payload()
	if err != nil {
		return nil, fluxerrors.From(err, fluxerrors.CodeRequest).WithConfig(cfg)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fluxerrors.From(err, fluxerrors.CodeRequest).WithConfig(cfg)
	}
	if length >= 0 {
		req.ContentLength = length
	}

	for key, values := range cfg.Headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !cfg.DisableDecompress && req.Header.Get("Accept-Encoding") == "" {
		// Decompression is handled here rather than by the backend, so ask
		// for everything this package can decode.
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}
	return req, nil
}

// applyTimeout derives the per-attempt deadline context. The returned cancel
// must be retained until the response body is fully consumed.
func applyTimeout(ctx context.Context, cfg *RequestConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Timeout)
	}
	return ctx, func() {}
}

// classifySendError maps a native transport failure onto the taxonomy.
func classifySendError(ctx context.Context, cfg *RequestConfig, req *http.Request, err error) error {
	fe := classifyNative(ctx, err)
	return fe.WithConfig(cfg).WithRequest(req)
}

func classifyNative(ctx context.Context, err error) *fluxerrors.Error {
	// The native error alone is not authoritative: a backend that tears its
	// connection down on ctx expiry reports a plain connection error, so the
	// context state decides first.
	cerr := ctx.Err()
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(cerr, context.DeadlineExceeded):
		return fluxerrors.From(err, fluxerrors.CodeTimedOut)
	case errors.Is(err, context.Canceled), errors.Is(cerr, context.Canceled):
		message := "request canceled"
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			message = cause.Error()
		}
		e := fluxerrors.New(fluxerrors.CodeCanceled, message)
		return e
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fluxerrors.From(err, fluxerrors.CodeAborted)
	}
	return fluxerrors.From(err, fluxerrors.CodeNetwork)
}

// finishResponse decompresses, coerces and validates a native response. When
// the status predicate rejects it, the returned taxonomy error carries the
// decoded Response for downstream consumers (retry hints, interceptors).
func finishResponse(ctx context.Context, cfg *RequestConfig, native *http.Response, closer io.Closer) (*Response, error) {
	body := native.Body
	if closer != nil {
		body = chainClosers(body, closer)
	}

	if !cfg.DisableDecompress {
		if decoded, ok := decompressBody(body, native.Header.Get("Content-Encoding")); ok {
			body = decoded
			native.Header.Del("Content-Encoding")
			native.Header.Del("Content-Length")
		}
	}

	resp := &Response{
		Status:     native.StatusCode,
		StatusText: strings.TrimSpace(strings.TrimPrefix(native.Status, strconv.Itoa(native.StatusCode))),
		Headers:    native.Header,
		Config:     cfg,
	}
	if resp.StatusText == "" {
		resp.StatusText = http.StatusText(native.StatusCode)
	}

	if cfg.ResponseType == ResponseTypeStream {
		resp.Stream = body
	} else {
		payload, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			// A deadline can expire mid-body; classify like any other
			// transport failure instead of assuming a network fault.
			return nil, classifyNative(ctx, err).WithConfig(cfg)
		}
		resp.Body = payload
		coerceBody(cfg, resp)
	}

	validate := cfg.ValidateStatus
	if validate == nil {
		validate = DefaultValidateStatus
	}
	if !validate(resp.Status) {
		if resp.Stream != nil {
			_ = resp.Stream.Close()
			resp.Stream = nil
		}
		return nil, statusError(cfg, resp)
	}
	return resp, nil
}

// coerceBody decodes the structured form when requested or auto-detected.
// A decode failure falls back to the raw text form, never to an error.
func coerceBody(cfg *RequestConfig, resp *Response) {
	wantJSON := cfg.ResponseType == ResponseTypeJSON
	if cfg.ResponseType == ResponseTypeAuto {
		contentType := resp.Headers.Get("Content-Type")
		wantJSON = strings.Contains(contentType, "application/json") ||
			strings.Contains(contentType, "+json")
	}
	if !wantJSON || len(resp.Body) == 0 {
		return
	}
	var decoded any
	if err := sonic.Unmarshal(resp.Body, &decoded); err == nil {
		resp.Data = decoded
	}
}

func statusError(cfg *RequestConfig, resp *Response) error {
	code := fluxerrors.CodeResponse
	switch {
	case resp.Status >= 400 && resp.Status < 500:
		code = fluxerrors.CodeClient
	case resp.Status >= 500:
		code = fluxerrors.CodeServer
	}
	return fluxerrors.Newf(code, "request failed with status code %d", resp.Status).
		WithConfig(cfg).
		WithResponse(resp, resp.Status)
}

// decompressBody wraps the body reader for known content encodings.
func decompressBody(body io.ReadCloser, encoding string) (io.ReadCloser, bool) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return body, false
		}
		return chainClosers(io.NopCloser(gz), body), true
	case "deflate":
		return chainClosers(io.NopCloser(flate.NewReader(body)), body), true
	case "br":
		return chainClosers(io.NopCloser(brotli.NewReader(body)), body), true
	default:
		return body, false
	}
}

type chainedCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *chainedCloser) Close() error {
	var first error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func chainClosers(primary io.ReadCloser, extra io.Closer) io.ReadCloser {
	return &chainedCloser{Reader: primary, closers: []io.Closer{primary, extra}}
}

type funcCloser func() error

func (f funcCloser) Close() error { return f() }
