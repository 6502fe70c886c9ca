package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ClassifyError places err in the closed taxonomy. Retry and breaker
// policies are written against the returned pair rather than against
// concrete error types.
//
//	ClassifyError(nil)                      // CategorySuccess, KindNone
//	ClassifyError(respErr503)               // CategoryServerError, KindServiceUnavailable
//	ClassifyError(context.DeadlineExceeded) // CategoryNone, KindTimeout
//	ClassifyError(connRefused)              // CategoryNone, KindConnectivity
//	ClassifyError(x509Err)                  // CategoryNone, KindUnreachable
//
// The first match wins, in this order:
//   - *ResponseError: its status category and kind
//   - *ConversionError: KindConversion
//   - context.Canceled: KindCanceled
//   - context.DeadlineExceeded: KindTimeout
//   - *ConnectivityError: its own kind
//   - net timeouts: KindTimeout
//   - certificate, unknown host and no-route failures: KindUnreachable
//   - other transient network failures (refused, reset, EOF): KindConnectivity
//   - anything else: KindUnknown
//
// A custom retry rule typically switches on the kind:
//
//	retryable := func(err error) bool {
//		switch _, kind := httpclient.ClassifyError(err); kind {
//		case httpclient.KindTimeout, httpclient.KindConnectivity, httpclient.KindServiceUnavailable:
//			return true
//		default:
//			return false
//		}
//	}
func ClassifyError(err error) (StatusCategory, ErrorKind) {
	if err == nil {
		return CategorySuccess, KindNone
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.Category(), respErr.Kind()
	}

	var convErr *ConversionError
	if errors.As(err, &convErr) {
		return CategoryNone, KindConversion
	}

	if errors.Is(err, context.Canceled) {
		return CategoryNone, KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNone, KindTimeout
	}

	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return CategoryNone, connErr.Kind()
	}

	switch {
	case isTimeout(err):
		return CategoryNone, KindTimeout
	case isPermanentError(err):
		return CategoryNone, KindUnreachable
	case isNetworkError(err):
		return CategoryNone, KindConnectivity
	default:
		return CategoryNone, KindUnknown
	}
}

// isTimeout reports deadline and network timeouts.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isNetworkError returns true for network errors that are typically
// transient and may succeed on retry.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Wrapped errors from third-party libraries lose their type.
	return containsPattern(err,
		"connection refused",
		"connection reset",
		"network is down",
		"network unreachable",
		"i/o timeout",
		"temporary failure",
		"server closed",
		"broken pipe",
		"eof",
	)
}

// isPermanentError returns true for errors that will not succeed on retry.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	return containsPattern(err,
		"x509:",
		"certificate",
		"tls:",
		"no route to host",
		"permission denied",
	)
}

func containsPattern(err error, patterns ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
