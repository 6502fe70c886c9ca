package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Status is the response status line.
type Status struct {
	Code   int
	Reason string
}

// String returns e.g. "404 Not Found".
func (s Status) String() string {
	reason := s.Reason
	if reason == "" {
		reason = http.StatusText(s.Code)
	}
	return strconv.Itoa(s.Code) + " " + reason
}

// Category returns the status family.
func (s Status) Category() StatusCategory { return CategoryOf(s.Code) }

// IsSuccess reports a 2xx status.
func (s Status) IsSuccess() bool { return s.Code >= 200 && s.Code < 300 }

// Response is a received response. The body can be consumed once, either
// through Body or through Bytes. Close drains and closes it exactly once; it is
// safe to call Close many times.
type Response struct {
	status  Status
	headers Headers
	request Request

	mu       sync.Mutex
	body     io.ReadCloser
	buffered []byte
	consumed bool
	closed   bool
}

// NewResponse creates a response. body may be nil for an empty body.
func NewResponse(req Request, status Status, headers Headers, body io.ReadCloser) *Response {
	if body == nil {
		body = http.NoBody
	}
	return &Response{status: status, headers: headers, request: req, body: body}
}

// NewBufferedResponse creates a response whose body is already in memory.
func NewBufferedResponse(req Request, status Status, headers Headers, body []byte) *Response {
	return NewResponse(req, status, headers, io.NopCloser(bytes.NewReader(body)))
}

// Status returns the status line.
func (r *Response) Status() Status { return r.status }

// StatusCode returns the numeric status.
func (r *Response) StatusCode() int { return r.status.Code }

// Headers returns the response headers.
func (r *Response) Headers() Headers { return r.headers }

// Request returns the request that produced this response.
func (r *Response) Request() Request { return r.request }

// Body returns the raw body stream. It can be taken once; later calls return
// an empty reader. Prefer Bytes unless streaming.
func (r *Response) Body() io.ReadCloser {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed || r.closed {
		if r.buffered != nil {
			return io.NopCloser(bytes.NewReader(r.buffered))
		}
		return http.NoBody
	}
	r.consumed = true
	return r.body
}

// Bytes reads the whole body and closes it. Later calls return the same bytes.
func (r *Response) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buffered != nil {
		return r.buffered, nil
	}
	if r.consumed || r.closed {
		return nil, nil
	}
	r.consumed = true

	data, err := io.ReadAll(r.body)
	closeErr := r.body.Close()
	r.closed = true
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	r.buffered = data
	return data, closeErr
}

// Close drains and closes the body once.
func (r *Response) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	_, _ = io.Copy(io.Discard, r.body)
	return r.body.Close()
}

// withBody returns a shallow copy sharing status and headers with a new body.
// Used by response interceptors that rewrite the body.
func (r *Response) withBody(headers Headers, body io.ReadCloser) *Response {
	return NewResponse(r.request, r.status, headers, body)
}
