package flux

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	fluxerrors "github.com/fluxhttp/flux-go/pkg/flux/errors"
)

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyText
	bodyBytes
	bodyJSON
	bodyForm
	bodyStream
)

// Body is a request payload in one of the accepted shapes. Replayable shapes
// (text, bytes, JSON, form) serialize once per attempt so retries resend the
// same payload; stream bodies are relayed to the transport and cannot be
// replayed.
type Body struct {
	kind   bodyKind
	text   string
	raw    []byte
	obj    any
	form   url.Values
	stream io.Reader
}

// Text wraps a raw string payload.
func Text(s string) *Body { return &Body{kind: bodyText, text: s} }

// Bytes wraps a binary payload.
func Bytes(b []byte) *Body { return &Body{kind: bodyBytes, raw: b} }

// JSON wraps a value to be encoded as a JSON object payload.
func JSON(v any) *Body { return &Body{kind: bodyJSON, obj: v} }

// Form wraps a URL-encoded form payload.
func Form(v url.Values) *Body { return &Body{kind: bodyForm, form: v} }

// Stream wraps a caller-supplied reader relayed to the transport as-is.
func Stream(r io.Reader) *Body { return &Body{kind: bodyStream, stream: r} }

// IsStream reports whether the payload is a non-replayable stream.
func (b *Body) IsStream() bool { return b != nil && b.kind == bodyStream }

// Payload returns a fresh reader over the serialized payload, the default
// content type for the shape, and the length when known (-1 for streams).
func (b *Body) Payload() (io.Reader, string, int64, error) {
	if b == nil {
		return nil, "", 0, nil
	}
	switch b.kind {
	case bodyText:
		return strings.NewReader(b.text), "text/plain; charset=utf-8", int64(len(b.text)), nil
	case bodyBytes:
		return bytes.NewReader(b.raw), "application/octet-stream", int64(len(b.raw)), nil
	case bodyJSON:
		encoded, err := sonic.Marshal(b.obj)
		if err != nil {
			return nil, "", 0, fluxerrors.From(err, fluxerrors.CodeRequest)
		}
		return bytes.NewReader(encoded), "application/json", int64(len(encoded)), nil
	case bodyForm:
		encoded := b.form.Encode()
		return strings.NewReader(encoded), "application/x-www-form-urlencoded", int64(len(encoded)), nil
	case bodyStream:
		return b.stream, "", -1, nil
	default:
		return nil, "", 0, nil
	}
}

// Bytes returns the serialized payload when the shape is replayable. Stream
// bodies report ok=false so callers (the dedup fingerprint in particular)
// treat them as always distinct.
func (b *Body) Bytes() ([]byte, bool) {
	if b == nil {
		return nil, true
	}
	switch b.kind {
	case bodyText:
		return []byte(b.text), true
	case bodyBytes:
		return b.raw, true
	case bodyJSON:
		encoded, err := sonic.Marshal(b.obj)
		if err != nil {
			return nil, false
		}
		return encoded, true
	case bodyForm:
		return []byte(b.form.Encode()), true
	default:
		return nil, false
	}
}
