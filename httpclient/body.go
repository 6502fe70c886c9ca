package httpclient

import (
	"bytes"
	"io"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outgoing is the transport-side builder for one Request: the request itself
// plus a buffered body sink that the selected codec writes into before
// transmission.
//
// WithHeader and ReplaceHeader are copy-on-write. They return a new Outgoing
// with its own copy of the body written so far and never modify the receiver.
type Outgoing struct {
	req  Request
	sink *bytes.Buffer
}

// NewOutgoing binds a builder to req.
func NewOutgoing(req Request) *Outgoing {
	return &Outgoing{req: req, sink: &bytes.Buffer{}}
}

// Request returns the bound request.
func (o *Outgoing) Request() Request { return o.req }

// Header returns the first value of name.
func (o *Outgoing) Header(name string) string { return o.req.Header(name) }

// WithHeader returns a copy with value appended to name.
func (o *Outgoing) WithHeader(name, value string) *Outgoing {
	return o.derive(o.req.WithHeader(name, value))
}

// ReplaceHeader returns a copy where name holds only values.
func (o *Outgoing) ReplaceHeader(name string, values ...string) *Outgoing {
	return o.derive(o.req.ReplaceHeader(name, values...))
}

func (o *Outgoing) derive(req Request) *Outgoing {
	sink := bytes.NewBuffer(append([]byte(nil), o.sink.Bytes()...))
	return &Outgoing{req: req, sink: sink}
}

// Body returns the sink codecs write the encoded body into.
func (o *Outgoing) Body() io.Writer { return o.sink }

// Len returns the number of unencoded body bytes written so far.
func (o *Outgoing) Len() int { return o.sink.Len() }

// Bytes returns the body as it goes on the wire. When the request carries
// Content-Encoding: gzip the buffered bytes are compressed.
func (o *Outgoing) Bytes() ([]byte, error) {
	raw := o.sink.Bytes()
	if len(raw) == 0 || !isGzip(o.req.Header("Content-Encoding")) {
		return append([]byte(nil), raw...), nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isGzip(encoding string) bool {
	for _, part := range strings.Split(encoding, ",") {
		if strings.EqualFold(strings.TrimSpace(part), "gzip") {
			return true
		}
	}
	return false
}

// spanBody ends the transport span when the response body is fully read or
// closed, so the span covers body consumption.
type spanBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	onClose func(bytesRead int64)
}

func newSpanBody(span trace.Span, body io.ReadCloser, onClose func(int64)) io.ReadCloser {
	if body == nil {
		span.End()
		return nil
	}
	return &spanBody{span: span, body: body, onClose: onClose}
}

func (b *spanBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		b.end()
	default:
		b.span.RecordError(err)
		b.span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (b *spanBody) Close() error {
	b.end()
	return b.body.Close()
}

func (b *spanBody) end() {
	if b.closed.CompareAndSwap(false, true) {
		if b.onClose != nil {
			b.onClose(b.read.Load())
		}
		b.span.End()
	}
}
