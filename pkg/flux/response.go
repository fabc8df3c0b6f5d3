package flux

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
)

// Response is the unified result returned to callers regardless of adapter.
// It is not mutated by the engine once returned; response interceptors are
// the only sanctioned mutation path.
type Response struct {
	Status     int
	StatusText string
	Headers    http.Header

	// Body holds the decoded body bytes. Empty when ResponseTypeStream was
	// requested; read from Stream instead.
	Body []byte

	// Data holds the structured value when the body was decoded as JSON.
	Data any

	// Stream is the undrained body for ResponseTypeStream. The caller owns
	// closing it.
	Stream io.ReadCloser

	// Config is the resolved configuration that produced this response.
	Config *RequestConfig
}

// Clone returns a copy with independent headers and body bytes, so mutating
// the copy (the response interceptors' sanctioned path) never reaches another
// holder of the original. Data and Stream are carried over as-is: interceptors
// replace Data rather than mutate it, and an undrained stream cannot be
// duplicated.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Headers = r.Headers.Clone()
	out.Body = append([]byte(nil), r.Body...)
	return &out
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	return r.Headers
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	return sonic.Unmarshal(r.Body, v)
}

// OK reports whether the status passed the config's acceptance predicate.
// A response handed to the caller always did; interceptors may consult it
// after mutating Status.
func (r *Response) OK() bool {
	validate := DefaultValidateStatus
	if r.Config != nil && r.Config.ValidateStatus != nil {
		validate = r.Config.ValidateStatus
	}
	return validate(r.Status)
}
