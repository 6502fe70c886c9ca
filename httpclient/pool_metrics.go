package httpclient

import (
	"net/http"
	"time"
)

// PoolStats is a snapshot of the connection pool configuration in effect.
// It reports settings, not live connection counts; net/http does not expose
// those. Use it to confirm a preset actually reached the transport:
//
//	t := httpclient.NewNetTransport(httpclient.WithConfig(httpclient.HighThroughputConfig()))
//	stats := t.PoolStats()
//	log.Info().
//		Int("max_idle", stats.MaxIdleConns).
//		Int("max_idle_per_host", stats.MaxIdleConnsPerHost).
//		Dur("idle_timeout", stats.IdleConnTimeout).
//		Msg("connection pool")
//
// With DefaultConfig the snapshot reads 100 / 20 / 100 / 90s.
type PoolStats struct {
	// MaxIdleConns is the maximum idle connections across all hosts.
	// Zero means no limit.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Zero means net/http's DefaultMaxIdleConnsPerHost (2).
	MaxIdleConnsPerHost int

	// MaxConnsPerHost is the maximum total connections per host.
	// Zero means unlimited.
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept before closing.
	// Zero means idle connections are kept until the server closes them.
	IdleConnTimeout time.Duration

	// DisableKeepAlives indicates if HTTP keep-alives are disabled.
	DisableKeepAlives bool
}

// PoolStats returns the pool settings of the underlying *http.Transport, or
// the zero value when a custom RoundTripper hides it.
func (t *NetTransport) PoolStats() PoolStats {
	base := unwrapTransport(t.client.Transport)
	if base == nil {
		return PoolStats{}
	}
	return PoolStats{
		MaxIdleConns:        base.MaxIdleConns,
		MaxIdleConnsPerHost: base.MaxIdleConnsPerHost,
		MaxConnsPerHost:     base.MaxConnsPerHost,
		IdleConnTimeout:     base.IdleConnTimeout,
		DisableKeepAlives:   base.DisableKeepAlives,
	}
}

// unwrapTransport walks wrapped round trippers down to the *http.Transport.
func unwrapTransport(rt http.RoundTripper) *http.Transport {
	for {
		switch t := rt.(type) {
		case *http.Transport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
}
