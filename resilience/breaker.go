package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"

	"github.com/kroma-labs/restify-go/httpclient"
)

// ErrCircuitOpen is returned when the breaker rejects a call without running
// it. The returned error also matches gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// NewRedisStore returns a gobreaker SharedDataStore on Redis, for breakers
// whose state is shared by every instance of a service.
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker is the part of gobreaker used here.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// BreakerConfig holds the circuit breaker behaviour.
//
// The breaker is closed while calls flow, opens once ReadyToTrip holds and
// rejects calls for Timeout, then half-opens to let MaxRequests trial requests
// through.
type BreakerConfig struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the counts periodically while closed. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests before the breaker
	// may trip.
	FailureThreshold uint32

	// FailureRatio trips the breaker once failures/requests reaches it.
	FailureRatio float64

	// ConsecutiveFailures trips the breaker after that many failures in a
	// row. 0 disables the rule.
	ConsecutiveFailures uint32

	// Store shares breaker state between instances. Nil keeps it in memory.
	Store gobreaker.SharedDataStore

	// Classifier selects failures that count against the service. Nil
	// means DefaultBreakerClassifier.
	Classifier Classifier

	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns an in-memory breaker: 10s window and open
// period, tripping after 5 consecutive failures or a 50% failure ratio over
// at least 20 requests.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig is DefaultBreakerConfig with state kept in store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DisabledBreakerConfig never trips.
func DisabledBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: ^uint32(0),
		FailureRatio:     1.0,
		Classifier:       func(httpclient.StatusCategory, httpclient.ErrorKind) bool { return false },
	}
}

// DefaultBreakerClassifier counts connectivity failures, timeouts and 5xx
// responses. 429 is left to retry and backoff.
func DefaultBreakerClassifier(category httpclient.StatusCategory, kind httpclient.ErrorKind) bool {
	switch kind {
	case httpclient.KindConnectivity, httpclient.KindTimeout, httpclient.KindUnreachable:
		return true
	}
	return category == httpclient.CategoryServerError
}

func (cfg BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if cfg.FailureThreshold > 0 && counts.Requests < cfg.FailureThreshold {
		// consecutive failures still trip below the threshold
		return cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
	}
	if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
		return true
	}
	if cfg.FailureRatio > 0 && counts.Requests > 0 {
		return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
	}
	return false
}

// Breaker keeps one circuit breaker per name, created on first use.
type Breaker struct {
	bc  BreakerConfig
	cfg *config

	// factory builds the breaker for a name; replaced in tests.
	factory func(name string) CircuitBreaker

	mu       sync.Mutex
	breakers map[string]CircuitBreaker
}

// NewBreaker creates a Breaker for bc.
func NewBreaker(bc BreakerConfig, opts ...Option) *Breaker {
	if bc.Classifier == nil {
		bc.Classifier = DefaultBreakerClassifier
	}
	b := &Breaker{
		bc:       bc,
		cfg:      newConfig(opts...),
		breakers: make(map[string]CircuitBreaker),
	}
	b.factory = b.newCircuitBreaker
	return b
}

func (b *Breaker) settings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: b.bc.MaxRequests,
		Interval:    b.bc.Interval,
		Timeout:     b.bc.Timeout,
		ReadyToTrip: b.bc.readyToTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || !b.bc.Classifier(httpclient.ClassifyError(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.cfg.metrics.recordBreakerState(context.Background(), name, int64(to))
			b.cfg.logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if b.bc.OnStateChange != nil {
				b.bc.OnStateChange(name, from, to)
			}
		},
	}
}

func (b *Breaker) newCircuitBreaker(name string) CircuitBreaker {
	st := b.settings(name)
	if b.bc.Store == nil {
		return gobreaker.NewCircuitBreaker[interface{}](st)
	}
	dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](b.bc.Store, st)
	if err != nil {
		// A local breaker still protects this instance.
		b.cfg.logger.Warn().Err(err).Str("breaker", name).Msg("distributed breaker unavailable, using local")
		return gobreaker.NewCircuitBreaker[interface{}](st)
	}
	return dcb
}

func (b *Breaker) get(name string) CircuitBreaker {
	if b.cfg.serviceName != "" {
		name = b.cfg.serviceName + "/" + name
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[name]
	if !ok {
		cb = b.factory(name)
		b.breakers[name] = cb
	}
	return cb
}

// Execute runs fn through the breaker for name. A rejected call returns an
// error matching ErrCircuitOpen; otherwise fn's own outcome is returned.
func (b *Breaker) Execute(ctx context.Context, name string, fn func(context.Context) (any, error)) (any, error) {
	v, err := b.get(name).Execute(func() (interface{}, error) {
		return fn(ctx)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.cfg.metrics.recordBreakerRequest(ctx, name, "rejected")
		return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, name, err)
	case err != nil:
		b.cfg.metrics.recordBreakerRequest(ctx, name, "failure")
	default:
		b.cfg.metrics.recordBreakerRequest(ctx, name, "success")
	}
	return v, err
}
