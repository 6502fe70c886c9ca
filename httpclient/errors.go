package httpclient

import (
	"errors"
	"fmt"
	"reflect"
)

// StatusCategory is the family of an HTTP status code.
type StatusCategory int

const (
	// CategoryNone means no response was received.
	CategoryNone StatusCategory = iota
	CategoryInformational
	CategorySuccess
	CategoryRedirection
	CategoryClientError
	CategoryServerError
)

// CategoryOf returns the family of code.
func CategoryOf(code int) StatusCategory {
	switch {
	case code >= 100 && code < 200:
		return CategoryInformational
	case code >= 200 && code < 300:
		return CategorySuccess
	case code >= 300 && code < 400:
		return CategoryRedirection
	case code >= 400 && code < 500:
		return CategoryClientError
	case code >= 500 && code < 600:
		return CategoryServerError
	default:
		return CategoryNone
	}
}

// String returns the category name.
func (c StatusCategory) String() string {
	switch c {
	case CategoryInformational:
		return "1xx"
	case CategorySuccess:
		return "2xx"
	case CategoryRedirection:
		return "3xx"
	case CategoryClientError:
		return "4xx"
	case CategoryServerError:
		return "5xx"
	default:
		return "none"
	}
}

// ErrorKind is the closed set of failure kinds. Retry and fallback policies
// switch on it.
type ErrorKind int

const (
	KindNone ErrorKind = iota

	// Transport failures, no response received.
	KindConnectivity
	KindTimeout
	KindUnreachable
	KindCanceled

	// Body encoding or decoding failures.
	KindConversion

	// Received non-2xx responses.
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindClientError
	KindInternalServerError
	KindBadGateway
	KindServiceUnavailable
	KindGatewayTimeout
	KindServerError
	KindUnexpectedStatus

	KindUnknown
)

var errorKindNames = map[ErrorKind]string{
	KindNone:                "none",
	KindConnectivity:        "connectivity",
	KindTimeout:             "timeout",
	KindUnreachable:         "unreachable",
	KindCanceled:            "canceled",
	KindConversion:          "conversion",
	KindBadRequest:          "bad_request",
	KindUnauthorized:        "unauthorized",
	KindForbidden:           "forbidden",
	KindNotFound:            "not_found",
	KindConflict:            "conflict",
	KindTooManyRequests:     "too_many_requests",
	KindClientError:         "client_error",
	KindInternalServerError: "internal_server_error",
	KindBadGateway:          "bad_gateway",
	KindServiceUnavailable:  "service_unavailable",
	KindGatewayTimeout:      "gateway_timeout",
	KindServerError:         "server_error",
	KindUnexpectedStatus:    "unexpected_status",
	KindUnknown:             "unknown",
}

// String returns the kind name, used as the error.type attribute.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindOfStatus maps a non-2xx status code to its kind.
func KindOfStatus(code int) ErrorKind {
	switch code {
	case 400:
		return KindBadRequest
	case 401:
		return KindUnauthorized
	case 403:
		return KindForbidden
	case 404:
		return KindNotFound
	case 409:
		return KindConflict
	case 429:
		return KindTooManyRequests
	case 500:
		return KindInternalServerError
	case 502:
		return KindBadGateway
	case 503:
		return KindServiceUnavailable
	case 504:
		return KindGatewayTimeout
	}
	switch CategoryOf(code) {
	case CategorySuccess:
		return KindNone
	case CategoryClientError:
		return KindClientError
	case CategoryServerError:
		return KindServerError
	default:
		return KindUnexpectedStatus
	}
}

// Sentinels for errors.Is against a ResponseError.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrTooManyRequests     = errors.New("too many requests")
	ErrInternalServerError = errors.New("internal server error")
	ErrBadGateway          = errors.New("bad gateway")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrGatewayTimeout      = errors.New("gateway timeout")

	// ErrClientError matches every 4xx response.
	ErrClientError = errors.New("client error")

	// ErrServerError matches every 5xx response.
	ErrServerError = errors.New("server error")
)

var kindSentinels = map[ErrorKind]error{
	KindBadRequest:          ErrBadRequest,
	KindUnauthorized:        ErrUnauthorized,
	KindForbidden:           ErrForbidden,
	KindNotFound:            ErrNotFound,
	KindConflict:            ErrConflict,
	KindTooManyRequests:     ErrTooManyRequests,
	KindInternalServerError: ErrInternalServerError,
	KindBadGateway:          ErrBadGateway,
	KindServiceUnavailable:  ErrServiceUnavailable,
	KindGatewayTimeout:      ErrGatewayTimeout,
}

// ConnectivityError is a transport failure before a full response was
// received.
type ConnectivityError struct {
	// Timeout is set when the per-request timeout or a network deadline expired.
	Timeout bool

	// Permanent is set for failures a retry cannot fix (unknown host,
	// certificate rejected).
	Permanent bool

	Err error
}

// NewConnectivityError classifies err and wraps it.
func NewConnectivityError(err error) *ConnectivityError {
	return &ConnectivityError{
		Timeout:   isTimeout(err),
		Permanent: isPermanentError(err),
		Err:       err,
	}
}

// Error implements error.
func (e *ConnectivityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("connectivity: timeout: %v", e.Err)
	}
	return fmt.Sprintf("connectivity: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectivityError) Unwrap() error { return e.Err }

// Kind returns KindTimeout, KindUnreachable or KindConnectivity.
func (e *ConnectivityError) Kind() ErrorKind {
	switch {
	case e.Timeout:
		return KindTimeout
	case e.Permanent:
		return KindUnreachable
	default:
		return KindConnectivity
	}
}

// ResponseError is a well-formed response with a non-2xx status.
type ResponseError struct {
	Status  Status
	Headers Headers
	Body    []byte

	// Request is the request that received the response.
	Request Request
}

// NewResponseError reads resp and builds the error. The response is closed.
func NewResponseError(resp *Response) *ResponseError {
	body, _ := resp.Bytes()
	_ = resp.Close()
	return &ResponseError{
		Status:  resp.Status(),
		Headers: resp.Headers(),
		Body:    body,
		Request: resp.Request(),
	}
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Request.Method(), e.Request.URL().Redacted(), e.Status)
}

// Kind returns the kind for the status code.
func (e *ResponseError) Kind() ErrorKind { return KindOfStatus(e.Status.Code) }

// Category returns the status family.
func (e *ResponseError) Category() StatusCategory { return e.Status.Category() }

// Is matches the status sentinels, ErrClientError and ErrServerError.
func (e *ResponseError) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind()]; ok && sentinel == target {
		return true
	}
	switch target {
	case ErrClientError:
		return e.Category() == CategoryClientError
	case ErrServerError:
		return e.Category() == CategoryServerError
	}
	return false
}

// ConversionError reports a missing codec or a codec failure.
type ConversionError struct {
	// Type is the Go type being read or written.
	Type reflect.Type

	// MediaType is the content type involved, if any.
	MediaType string

	// Op is "read" or "write".
	Op string

	Err error
}

// Error implements error.
func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("conversion: cannot %s %v", e.Op, e.Type)
	if e.MediaType != "" {
		msg += " as " + e.MediaType
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the codec error.
func (e *ConversionError) Unwrap() error { return e.Err }
