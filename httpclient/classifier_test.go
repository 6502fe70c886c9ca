package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func responseError(code int) *ResponseError {
	return &ResponseError{Status: Status{Code: code}, Request: NewRequest("GET", nil)}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCategory StatusCategory
		wantKind     ErrorKind
	}{
		{
			name:         "given nil, then success",
			err:          nil,
			wantCategory: CategorySuccess,
			wantKind:     KindNone,
		},
		{
			name:         "given 404 response, then not found",
			err:          responseError(http.StatusNotFound),
			wantCategory: CategoryClientError,
			wantKind:     KindNotFound,
		},
		{
			name:         "given wrapped 503 response, then service unavailable",
			err:          fmt.Errorf("call: %w", responseError(http.StatusServiceUnavailable)),
			wantCategory: CategoryServerError,
			wantKind:     KindServiceUnavailable,
		},
		{
			name:         "given 418 response, then generic client error",
			err:          responseError(http.StatusTeapot),
			wantCategory: CategoryClientError,
			wantKind:     KindClientError,
		},
		{
			name:         "given 507 response, then generic server error",
			err:          responseError(http.StatusInsufficientStorage),
			wantCategory: CategoryServerError,
			wantKind:     KindServerError,
		},
		{
			name:         "given conversion error, then conversion",
			err:          &ConversionError{Op: "read", Err: errors.New("bad json")},
			wantCategory: CategoryNone,
			wantKind:     KindConversion,
		},
		{
			name:         "given canceled context, then canceled",
			err:          fmt.Errorf("GET /: %w", context.Canceled),
			wantCategory: CategoryNone,
			wantKind:     KindCanceled,
		},
		{
			name:         "given deadline exceeded, then timeout",
			err:          NewConnectivityError(context.DeadlineExceeded),
			wantCategory: CategoryNone,
			wantKind:     KindTimeout,
		},
		{
			name:         "given connection refused, then connectivity",
			err:          NewConnectivityError(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}),
			wantCategory: CategoryNone,
			wantKind:     KindConnectivity,
		},
		{
			name:         "given unknown host, then unreachable",
			err:          NewConnectivityError(&net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}),
			wantCategory: CategoryNone,
			wantKind:     KindUnreachable,
		},
		{
			name:         "given bare connection reset, then connectivity",
			err:          syscall.ECONNRESET,
			wantCategory: CategoryNone,
			wantKind:     KindConnectivity,
		},
		{
			name:         "given unrelated error, then unknown",
			err:          errors.New("something odd"),
			wantCategory: CategoryNone,
			wantKind:     KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, kind := ClassifyError(tt.err)

			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestResponseError_Is(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		target error
		want   bool
	}{
		{
			name:   "given 404, then matches ErrNotFound",
			code:   http.StatusNotFound,
			target: ErrNotFound,
			want:   true,
		},
		{
			name:   "given 404, then matches ErrClientError",
			code:   http.StatusNotFound,
			target: ErrClientError,
			want:   true,
		},
		{
			name:   "given 404, then does not match ErrServerError",
			code:   http.StatusNotFound,
			target: ErrServerError,
			want:   false,
		},
		{
			name:   "given 502, then matches ErrBadGateway",
			code:   http.StatusBadGateway,
			target: ErrBadGateway,
			want:   true,
		},
		{
			name:   "given 500, then does not match ErrServiceUnavailable",
			code:   http.StatusInternalServerError,
			target: ErrServiceUnavailable,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", responseError(tt.code))

			assert.Equal(t, tt.want, errors.Is(err, tt.target))
		})
	}
}

func TestNewResponseError(t *testing.T) {
	req, _ := ParseRequest("GET", "https://api.example.com/users/1")
	resp := NewBufferedResponse(req, Status{Code: 404, Reason: "Not Found"}, NewHeaders("X-Id", "1"), []byte("missing"))

	err := NewResponseError(resp)

	assert.Equal(t, "missing", string(err.Body))
	assert.Equal(t, "1", err.Headers.Get("X-Id"))
	assert.Equal(t, "GET https://api.example.com/users/1: 404 Not Found", err.Error())
	assert.Equal(t, KindNotFound, err.Kind())
}

func TestConnectivityError_Kind(t *testing.T) {
	assert.Equal(t, KindTimeout, (&ConnectivityError{Timeout: true}).Kind())
	assert.Equal(t, KindUnreachable, (&ConnectivityError{Permanent: true}).Kind())
	assert.Equal(t, KindConnectivity, (&ConnectivityError{}).Kind())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "unknown", ErrorKind(999).String())
}
