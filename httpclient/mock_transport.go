package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/kroma-labs/restify-go/async"
)

var _ AsyncTransport = (*MockTransport)(nil)

// MockResponse is a canned reply. A non-nil Err makes the stub fail instead.
type MockResponse struct {
	Status  int
	Body    string
	Headers Headers
	Err     error
}

// JSONResponse returns a MockResponse with Content-Type: application/json.
func JSONResponse(status int, body string) MockResponse {
	return MockResponse{
		Status:  status,
		Body:    body,
		Headers: NewHeaders(HeaderContentType, "application/json"),
	}
}

// RecordedRequest is a request seen by MockTransport, with the wire body.
type RecordedRequest struct {
	Request Request
	Body    []byte
}

// MockTransport is an in-memory Transport for tests. Stubs are checked in
// registration order and the first match wins. Stub bodies registered through
// StubResponse, StubPath, StubPathRegex and StubMethod are served as
// application/json.
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []*stub
	fallback    *stub
	latency     time.Duration
	requests    []RecordedRequest
	requestHook func(Request)
}

type stub struct {
	matcher func(Request) bool

	mu        sync.Mutex
	responses []MockResponse
	next      int
}

// reply returns the next response of the sequence; the last one repeats.
func (s *stub) reply() MockResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.responses[s.next]
	if s.next < len(s.responses)-1 {
		s.next++
	}
	return r
}

// NewMockTransport creates an empty MockTransport. Unmatched requests fail.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every unmatched request with status and body.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	return m.StubDefault(JSONResponse(statusCode, body))
}

// StubError fails every unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	return m.StubDefault(MockResponse{Err: err})
}

// StubDefault answers every unmatched request with the given sequence.
func (m *MockTransport) StubDefault(responses ...MockResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{responses: responses}
	return m
}

// StubPath stubs requests whose URL path equals path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req Request) bool {
		return req.URL().Path == path
	}, JSONResponse(statusCode, body))
}

// StubPathRegex stubs requests whose URL path matches pattern.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req Request) bool {
		return re.MatchString(req.URL().Path)
	}, JSONResponse(statusCode, body))
}

// StubMethod stubs requests with the given method.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req Request) bool {
		return req.Method() == method
	}, JSONResponse(statusCode, body))
}

// StubFunc stubs requests matching the predicate. With several responses the
// stub replies with them in turn and then keeps repeating the last one.
func (m *MockTransport) StubFunc(matcher func(Request) bool, responses ...MockResponse) *MockTransport {
	if len(responses) == 0 {
		panic("httpclient: StubFunc needs at least one response")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, &stub{matcher: matcher, responses: responses})
	return m
}

// StubFuncError stubs requests matching the predicate to fail with err.
func (m *MockTransport) StubFuncError(matcher func(Request) bool, err error) *MockTransport {
	return m.StubFunc(matcher, MockResponse{Err: err})
}

// WithLatency delays every reply by d. The delay honours the request
// timeout and the caller context.
func (m *MockTransport) WithLatency(d time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
	return m
}

// OnRequest sets a hook that is called for each request.
func (m *MockTransport) OnRequest(fn func(Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// Execute implements Transport.
func (m *MockTransport) Execute(ctx context.Context, out *Outgoing) (*Response, error) {
	req := out.Request()
	body, err := out.Bytes()
	if err != nil {
		return nil, &ConversionError{Op: "write", MediaType: req.Header(HeaderContentType), Err: err}
	}

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{Request: req, Body: body})
	hook := m.requestHook
	latency := m.latency
	s := m.match(req)
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	if latency > 0 {
		if timeout := req.Metadata().Timeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("%s: %w", req, context.Canceled)
			}
			return nil, NewConnectivityError(ctx.Err())
		}
	}

	if s == nil {
		return nil, NewConnectivityError(errors.New("no stub found for request: " + req.String()))
	}

	r := s.reply()
	if r.Err != nil {
		var connErr *ConnectivityError
		if errors.As(r.Err, &connErr) || errors.Is(r.Err, context.Canceled) {
			return nil, r.Err
		}
		return nil, NewConnectivityError(r.Err)
	}

	status := Status{Code: r.Status, Reason: http.StatusText(r.Status)}
	return NewBufferedResponse(req, status, r.Headers, []byte(r.Body)), nil
}

// ExecuteAsync implements AsyncTransport.
func (m *MockTransport) ExecuteAsync(ctx context.Context, out *Outgoing) *async.Future[*Response] {
	f := async.New[*Response]()
	ctx, cancel := context.WithCancel(ctx)
	f.OnCancel(cancel)

	go func() {
		defer cancel()
		resp, err := m.Execute(ctx, out)
		if err != nil {
			f.Fail(err)
			return
		}
		if !f.Complete(resp) {
			_ = resp.Close()
		}
	}()
	return f
}

func (m *MockTransport) match(req Request) *stub {
	for _, s := range m.stubs {
		if s.matcher(req) {
			return s
		}
	}
	return m.fallback
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or false if none.
func (m *MockTransport) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.fallback = nil
	m.latency = 0
	m.requestHook = nil
}
