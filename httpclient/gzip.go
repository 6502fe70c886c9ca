package httpclient

import (
	"context"
	"io"
	"mime"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// GzipRequestInterceptor asks for compressed responses and marks requests
// with a compressible body as Content-Encoding: gzip. The Outgoing body sink
// then compresses the encoded body before transmission.
//
// It reads the Content-Type set by earlier interceptors, so register it after
// ContentTypeInterceptor. A caller-supplied Content-Encoding is kept.
func GzipRequestInterceptor() RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		if !req.Headers().Has(HeaderAcceptEncoding) {
			req = req.WithHeader(HeaderAcceptEncoding, "gzip")
		}
		if !req.HasBody() || req.Headers().Has(HeaderContentEncoding) {
			return req, nil
		}
		if !isCompressible(req.Header(HeaderContentType)) {
			return req, nil
		}
		return req.WithHeader(HeaderContentEncoding, "gzip"), nil
	}
}

// GzipResponseInterceptor transparently decompresses gzip responses. The
// Content-Encoding header is removed from the returned response.
func GzipResponseInterceptor() ResponseInterceptor {
	return func(_ context.Context, resp *Response) (*Response, error) {
		if !isGzip(resp.Headers().Get(HeaderContentEncoding)) {
			return resp, nil
		}
		headers := resp.Headers().Del(HeaderContentEncoding).Del("Content-Length")
		return resp.withBody(headers, &gzipBody{src: resp.Body()}), nil
	}
}

// gzipBody opens the gzip reader lazily so that an empty body is not an error.
type gzipBody struct {
	src io.ReadCloser
	zr  *gzip.Reader
	err error
}

func (b *gzipBody) Read(p []byte) (int, error) {
	if b.zr == nil && b.err == nil {
		// An empty body yields io.EOF here, which reads as an empty stream.
		b.zr, b.err = gzip.NewReader(b.src)
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.zr.Read(p)
}

func (b *gzipBody) Close() error {
	if b.zr != nil {
		_ = b.zr.Close()
	}
	return b.src.Close()
}

func isCompressible(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		strings.HasSuffix(mediaType, "+json"),
		strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-www-form-urlencoded":
		return true
	}
	return false
}
