package handler

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kroma-labs/restify-go/endpoint"
)

// ErrInvalidProvider is returned for a provider that is neither a Creator
// nor an Adapter.
var ErrInvalidProvider = errors.New("handler: provider is neither a creator nor an adapter")

// Chain is the outcome of a resolution.
type Chain struct {
	// Handler produces the declared shape.
	Handler Handler

	// Terminal is the innermost handler. Response bodies are converted into
	// Terminal.ReturnType().
	Terminal Handler

	// Path lists the selected providers, outermost first.
	Path []string
}

// CacheStats counts resolution cache lookups.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDefault replaces the terminal used when no registered provider
// matches. The default is Identity.
func WithDefault(c Creator) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.fallback = c
		}
	}
}

// WithLogger sets the logger for resolution events.
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver builds handler chains from an ordered provider list. Results are
// cached per endpoint key; concurrent first lookups of one key resolve once.
// The provider list is read-only after construction.
type Resolver struct {
	providers []Provider
	fallback  Creator
	logger    zerolog.Logger

	cache  sync.Map // string -> Chain
	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewResolver creates a Resolver over providers, tried in order.
func NewResolver(providers []Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		providers: append([]Provider(nil), providers...),
		fallback:  Identity{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the cached chain for e, building it on first use.
func (r *Resolver) Resolve(e endpoint.Endpoint) (Chain, error) {
	key := e.Key()
	if c, ok := r.cache.Load(key); ok {
		r.hits.Add(1)
		return c.(Chain), nil
	}

	var built bool
	v, err, _ := r.group.Do(key, func() (any, error) {
		if c, ok := r.cache.Load(key); ok {
			return c, nil
		}
		built = true
		r.misses.Add(1)
		c, err := r.Build(e)
		if err != nil {
			return nil, err
		}
		r.cache.Store(key, c)
		return c, nil
	})
	if !built {
		r.hits.Add(1)
	}
	if err != nil {
		return Chain{}, err
	}
	return v.(Chain), nil
}

// Build resolves e without consulting the cache.
func (r *Resolver) Build(e endpoint.Endpoint) (Chain, error) {
	var c Chain
	h, err := r.resolve(e, map[reflect.Type]struct{}{}, &c)
	if err != nil {
		return Chain{}, err
	}
	c.Handler = h

	r.logger.Debug().
		Str("endpoint", e.Name).
		Str("shape", e.ReturnType.String()).
		Str("terminal", c.Terminal.ReturnType().String()).
		Strs("path", c.Path).
		Msg("handler chain resolved")
	return c, nil
}

// Stats returns cache hit and miss counts.
func (r *Resolver) Stats() CacheStats {
	return CacheStats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}

func (r *Resolver) resolve(e endpoint.Endpoint, excluded map[reflect.Type]struct{}, c *Chain) (Handler, error) {
	p := r.match(e, excluded)
	if p == nil {
		p = r.fallback
	}
	c.Path = append(c.Path, fmt.Sprintf("%T", p))

	var (
		h   Handler
		err error
	)
	switch p := p.(type) {
	case Adapter:
		innerType := p.InnerType(e)
		next := make(map[reflect.Type]struct{}, len(excluded)+1)
		for id := range excluded {
			next[id] = struct{}{}
		}
		next[identity(p)] = struct{}{}

		var inner Handler
		inner, err = r.resolve(e.WithReturnType(innerType), next, c)
		if err != nil {
			return nil, err
		}
		h, err = p.Adapt(e, inner)
	case Creator:
		h, err = p.Create(e)
		if err == nil {
			c.Terminal = h
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidProvider, p)
	}
	if err != nil {
		return nil, fmt.Errorf("handler: %T for %s: %w", p, e.ReturnType, err)
	}

	if !h.ReturnType().Equal(e.ReturnType) {
		return nil, fmt.Errorf("handler: %T built %s for declared %s",
			p, h.ReturnType(), e.ReturnType)
	}
	return h, nil
}

// match returns the first supporting provider not yet used in this chain.
func (r *Resolver) match(e endpoint.Endpoint, excluded map[reflect.Type]struct{}) Provider {
	for _, p := range r.providers {
		if _, used := excluded[identity(p)]; used {
			continue
		}
		if p.Supports(e) {
			return p
		}
	}
	return nil
}
