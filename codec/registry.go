package codec

import (
	"reflect"
	"strings"

	"github.com/kroma-labs/restify-go/httpclient"
)

// Registry selects codecs in registration order. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	codecs []Codec
}

// NewRegistry creates a registry over codecs, in priority order.
func NewRegistry(codecs ...Codec) *Registry {
	return &Registry{codecs: append([]Codec(nil), codecs...)}
}

// DefaultRegistry returns bytes, text, form, JSON and XML codecs. The narrow
// codecs come first so that []byte, string and url.Values are not captured
// by the structured ones.
func DefaultRegistry() *Registry {
	return NewRegistry(Bytes(), Text(), Form(), JSON(), XML())
}

// Codecs returns the registered codecs in order.
func (r *Registry) Codecs() []Codec {
	return append([]Codec(nil), r.codecs...)
}

// WriterFor picks the codec for a body of type t. With a contentType, the
// codec must also have a compatible media type; without one the first codec
// that can write t wins.
func (r *Registry) WriterFor(t reflect.Type, contentType string) (Codec, error) {
	return r.find(t, contentType, "write", Codec.CanWrite)
}

// ReaderFor picks the codec for a response body read as t.
func (r *Registry) ReaderFor(t reflect.Type, contentType string) (Codec, error) {
	return r.find(t, contentType, "read", Codec.CanRead)
}

func (r *Registry) find(t reflect.Type, contentType, op string, can func(Codec, reflect.Type) bool) (Codec, error) {
	t = typeOrAny(t)

	var mt MediaType
	hasType := strings.TrimSpace(contentType) != ""
	if hasType {
		var err error
		if mt, err = ParseMediaType(contentType); err != nil {
			return nil, &httpclient.ConversionError{Type: t, MediaType: contentType, Op: op, Err: err}
		}
	}

	for _, c := range r.codecs {
		if !can(c, t) {
			continue
		}
		if hasType && !compatible(c, mt) {
			continue
		}
		return c, nil
	}
	return nil, &httpclient.ConversionError{Type: t, MediaType: contentType, Op: op, Err: ErrNoCodec}
}

// Write encodes the request body of out. When the request declares no
// Content-Type, the chosen codec's primary media type is added on a copy.
// The returned Outgoing carries the encoded body.
func (r *Registry) Write(out *httpclient.Outgoing) (*httpclient.Outgoing, error) {
	req := out.Request()
	body, t := req.Body()
	if body == nil {
		return out, nil
	}

	contentType := req.Header(httpclient.HeaderContentType)
	c, err := r.WriterFor(t, contentType)
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		out = out.WithHeader(httpclient.HeaderContentType, c.MediaTypes()[0].String())
	}

	if err := c.Write(body, out); err != nil {
		return nil, &httpclient.ConversionError{Type: typeOrAny(t), MediaType: contentType, Op: "write", Err: err}
	}
	return out, nil
}

// Read decodes resp into a value of type t and closes it. An empty body
// yields the zero value of t without consulting any codec; a nil t discards
// the body.
func (r *Registry) Read(resp *httpclient.Response, t reflect.Type) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, httpclient.NewConnectivityError(err)
	}
	if t == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return reflect.Zero(t).Interface(), nil
	}

	contentType := resp.Headers().Get(httpclient.HeaderContentType)
	c, err := r.ReaderFor(t, contentType)
	if err != nil {
		return nil, err
	}

	v, err := c.Read(resp, t)
	if err != nil {
		return nil, &httpclient.ConversionError{Type: t, MediaType: contentType, Op: "read", Err: err}
	}
	return v, nil
}

// ReadableMediaTypes lists the concrete media types that can be read into t,
// for use as an Accept header.
func (r *Registry) ReadableMediaTypes(t reflect.Type) []string {
	t = typeOrAny(t)
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.codecs {
		if !c.CanRead(t) {
			continue
		}
		for _, mt := range c.MediaTypes() {
			s := mt.String()
			if mt.IsWildcard() && s != All.String() || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
