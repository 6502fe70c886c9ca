package httpclient

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// networkTrace holds timing data collected from httptrace.ClientTrace.
// Callbacks may fire from net/http goroutines, but all of them complete before
// RoundTrip returns, which is when the fields are read.
type networkTrace struct {
	dnsStart, dnsDone         time.Time
	connectStart, connectDone time.Time
	tlsStart, tlsDone         time.Time
	wroteRequest, firstByte   time.Time

	connReused  bool
	connRemote  string
	tlsProtocol string
}

func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			nt.connReused = info.Reused
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				nt.connRemote = info.Conn.RemoteAddr().String()
			}
		},
		DNSStart:          func(httptrace.DNSStartInfo) { nt.dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { nt.dnsDone = time.Now() },
		ConnectStart:      func(_, _ string) { nt.connectStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { nt.connectDone = time.Now() },
		TLSHandshakeStart: func() { nt.tlsStart = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.tlsDone = time.Now()
			nt.tlsProtocol = state.NegotiatedProtocol
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { nt.wroteRequest = time.Now() },
		GotFirstResponseByte: func() { nt.firstByte = time.Now() },
	}
}

func phase(start, end time.Time) (time.Duration, bool) {
	if start.IsZero() || end.IsZero() {
		return 0, false
	}
	return end.Sub(start), true
}

// record adds span events and timing metrics for the phases that happened.
func (nt *networkTrace) record(ctx context.Context, s trace.Span, m *metrics, attrs []attribute.KeyValue) {
	if d, ok := phase(nt.dnsStart, nt.dnsDone); ok {
		s.AddEvent("dns.done", trace.WithTimestamp(nt.dnsDone),
			trace.WithAttributes(attribute.Int64("dns.duration_ms", d.Milliseconds())))
		m.recordPhase(ctx, phaseDNS, d, attrs)
	}
	if d, ok := phase(nt.connectStart, nt.connectDone); ok {
		s.AddEvent("connect.done", trace.WithTimestamp(nt.connectDone),
			trace.WithAttributes(
				attribute.Int64("connect.duration_ms", d.Milliseconds()),
				attribute.String("network.peer.address", nt.connRemote),
			))
		m.recordPhase(ctx, phaseConnect, d, attrs)
	}
	if d, ok := phase(nt.tlsStart, nt.tlsDone); ok {
		s.AddEvent("tls.done", trace.WithTimestamp(nt.tlsDone),
			trace.WithAttributes(
				attribute.Int64("tls.duration_ms", d.Milliseconds()),
				attribute.String("tls.protocol", nt.tlsProtocol),
			))
		m.recordPhase(ctx, phaseTLS, d, attrs)
	}
	if d, ok := phase(nt.wroteRequest, nt.firstByte); ok {
		s.AddEvent("got_first_response_byte", trace.WithTimestamp(nt.firstByte),
			trace.WithAttributes(attribute.Int64("ttfb_ms", d.Milliseconds())))
		m.recordPhase(ctx, phaseTTFB, d, attrs)
	}
	s.SetAttributes(attribute.Bool("http.connection.reused", nt.connReused))
}
