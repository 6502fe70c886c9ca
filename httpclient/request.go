package httpclient

import (
	"fmt"
	"maps"
	"net/url"
	"reflect"
	"strings"
	"time"
)

// Metadata is the per-request settings bag. It travels with the Request
// through interceptors and into the transport.
type Metadata struct {
	// Timeout bounds one attempt. Zero uses the transport default.
	Timeout time.Duration

	// Version is injected into the version header when set.
	Version string

	// Endpoint names the operation the request was built for.
	Endpoint string

	attributes map[string]any
}

// Attribute returns a free-form attribute.
func (m Metadata) Attribute(key string) (any, bool) {
	v, ok := m.attributes[key]
	return v, ok
}

// WithAttribute returns a copy of m with key set.
func (m Metadata) WithAttribute(key string, value any) Metadata {
	attrs := make(map[string]any, len(m.attributes)+1)
	maps.Copy(attrs, m.attributes)
	attrs[key] = value
	m.attributes = attrs
	return m
}

// Request describes one outgoing call. It is immutable: every With* method
// returns a new Request and leaves the receiver untouched, so a Request can be
// shared between goroutines.
type Request struct {
	method   string
	url      *url.URL
	headers  Headers
	body     any
	bodyType reflect.Type
	metadata Metadata
}

// NewRequest creates a request without a body.
func NewRequest(method string, u *url.URL) Request {
	return Request{method: strings.ToUpper(method), url: cloneURL(u)}
}

// ParseRequest parses rawURL and creates a request.
func ParseRequest(method, rawURL string) (Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Request{}, fmt.Errorf("parse request url: %w", err)
	}
	return NewRequest(method, u), nil
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

// Method returns the HTTP method.
func (r Request) Method() string { return r.method }

// URL returns a copy of the target URL.
func (r Request) URL() *url.URL { return cloneURL(r.url) }

// Headers returns the header multimap.
func (r Request) Headers() Headers { return r.headers }

// Header returns the first value of name.
func (r Request) Header(name string) string { return r.headers.Get(name) }

// Body returns the body value and its static type. Both are nil when the
// request has no body.
func (r Request) Body() (any, reflect.Type) { return r.body, r.bodyType }

// HasBody reports whether a body is attached.
func (r Request) HasBody() bool { return r.body != nil }

// Metadata returns the request metadata.
func (r Request) Metadata() Metadata { return r.metadata }

// WithHeader returns a copy with value appended to name.
func (r Request) WithHeader(name, value string) Request {
	r.headers = r.headers.Add(name, value)
	return r
}

// ReplaceHeader returns a copy where name holds only values.
func (r Request) ReplaceHeader(name string, values ...string) Request {
	r.headers = r.headers.Set(name, values...)
	return r
}

// WithoutHeader returns a copy without name.
func (r Request) WithoutHeader(name string) Request {
	r.headers = r.headers.Del(name)
	return r
}

// WithHeaders returns a copy with h replacing all headers.
func (r Request) WithHeaders(h Headers) Request {
	r.headers = h
	return r
}

// WithBody returns a copy carrying body with static type t. A nil t uses the
// dynamic type of body.
func (r Request) WithBody(body any, t reflect.Type) Request {
	if t == nil && body != nil {
		t = reflect.TypeOf(body)
	}
	r.body = body
	r.bodyType = t
	return r
}

// WithURL returns a copy targeting u.
func (r Request) WithURL(u *url.URL) Request {
	r.url = cloneURL(u)
	return r
}

// WithMetadata returns a copy with m as metadata.
func (r Request) WithMetadata(m Metadata) Request {
	r.metadata = m
	return r
}

// WithTimeout returns a copy with the per-request timeout set.
func (r Request) WithTimeout(d time.Duration) Request {
	r.metadata.Timeout = d
	return r
}

// String renders "METHOD url".
func (r Request) String() string {
	return r.method + " " + r.url.String()
}
