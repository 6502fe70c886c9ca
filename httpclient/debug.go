package httpclient

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// GenerateCurlCommand renders out as an equivalent cURL command. The body is
// the one that goes on the wire, after codec and compression.
//
// Example output:
//
//	curl -X POST 'https://api.example.com/users' -H 'Content-Type: application/json' -d '{"name":"John"}'
func GenerateCurlCommand(out *Outgoing) string {
	req := out.Request()
	parts := []string{"curl"}

	if req.Method() != "GET" {
		parts = append(parts, "-X", req.Method())
	}
	parts = append(parts, fmt.Sprintf("'%s'", req.URL().String()))

	h := req.Headers().ToHTTP()
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		for _, v := range h[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if body, err := out.Bytes(); err == nil && len(body) > 0 {
		if isGzip(req.Header(HeaderContentEncoding)) {
			parts = append(parts, "--data-binary", "@-")
		} else {
			escaped := strings.ReplaceAll(string(body), "'", "'\\''")
			parts = append(parts, "-d", fmt.Sprintf("'%s'", escaped))
		}
	}

	return strings.Join(parts, " ")
}

// LoggingRequestInterceptor logs each request at debug level.
func LoggingRequestInterceptor(logger zerolog.Logger) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		logger.Debug().
			Str("method", req.Method()).
			Str("url", req.URL().Redacted()).
			Str("endpoint", req.Metadata().Endpoint).
			Bool("has_body", req.HasBody()).
			Msg("HTTP request")
		return req, nil
	}
}

// LoggingResponseInterceptor logs each response at debug level.
func LoggingResponseInterceptor(logger zerolog.Logger) ResponseInterceptor {
	return func(_ context.Context, resp *Response) (*Response, error) {
		logger.Debug().
			Int("status", resp.StatusCode()).
			Str("status_text", resp.Status().String()).
			Str("endpoint", resp.Request().Metadata().Endpoint).
			Str("content_type", resp.Headers().Get(HeaderContentType)).
			Msg("HTTP response")
		return resp, nil
	}
}

// LogOutgoing logs the cURL rendering of out at trace level.
func LogOutgoing(logger zerolog.Logger, out *Outgoing) {
	if logger.GetLevel() > zerolog.TraceLevel {
		return
	}
	logger.Trace().Str("curl", GenerateCurlCommand(out)).Msg("HTTP request body")
}
