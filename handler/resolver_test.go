package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
)

type user struct {
	Name string `json:"name"`
}

func endpointOf(rt endpoint.Type) endpoint.Endpoint {
	return endpoint.Endpoint{Name: "getUser", Path: "/users/{id}", ReturnType: rt}
}

// rematchingAdapter supports Optional shapes and delegates to the very same
// shape, so it matches its own inner type.
type rematchingAdapter struct{}

func (rematchingAdapter) Supports(e endpoint.Endpoint) bool {
	return e.ReturnType.Is(endpoint.KindOptional)
}

func (rematchingAdapter) InnerType(e endpoint.Endpoint) endpoint.Type { return e.ReturnType }

func (rematchingAdapter) Adapt(e endpoint.Endpoint, inner Handler) (Handler, error) {
	return passThrough{adapted{rt: e.ReturnType, inner: inner}}, nil
}

type passThrough struct{ adapted }

func (h passThrough) Handle(ctx context.Context, call async.AsyncCall[any], args []any) (any, error) {
	return h.inner.Handle(ctx, call, args)
}

// wrongShapeCreator builds a handler that lies about its shape.
type wrongShapeCreator struct{}

func (wrongShapeCreator) Supports(endpoint.Endpoint) bool { return true }

func (wrongShapeCreator) Create(endpoint.Endpoint) (Handler, error) {
	return identityHandler{rt: endpoint.Of[int]()}, nil
}

type notAProvider struct{}

func (notAProvider) Supports(endpoint.Endpoint) bool { return true }

func TestResolver_Build(t *testing.T) {
	t.Parallel()

	userType := endpoint.Of[user]()

	tests := []struct {
		name         string
		providers    []Provider
		shape        endpoint.Type
		wantTerminal endpoint.Type
		wantPath     []string
	}{
		{
			name:         "given no matching provider, then default terminal",
			providers:    DefaultProviders(nil),
			shape:        userType,
			wantTerminal: userType,
			wantPath:     []string{"handler.Identity"},
		},
		{
			name:         "given stream of list, then stream adapter over list terminal",
			providers:    DefaultProviders(nil),
			shape:        endpoint.StreamOf(endpoint.ListOf(userType)),
			wantTerminal: endpoint.ListOf(userType),
			wantPath:     []string{"handler.StreamProvider", "handler.ListProvider"},
		},
		{
			name:         "given future of optional, then two adapters over identity",
			providers:    DefaultProviders(nil),
			shape:        endpoint.FutureOf(endpoint.OptionalOf(userType)),
			wantTerminal: userType,
			wantPath:     []string{"handler.FutureProvider", "handler.OptionalProvider", "handler.Identity"},
		},
		{
			name:         "given headers shape, then entity of void terminal",
			providers:    DefaultProviders(nil),
			shape:        endpoint.HeadersType(),
			wantTerminal: endpoint.EntityOf(endpoint.Void()),
			wantPath:     []string{"handler.HeadersProvider", "handler.Identity"},
		},
		{
			name:         "given nested optional, then inner optional falls back to default",
			providers:    DefaultProviders(nil),
			shape:        endpoint.OptionalOf(endpoint.OptionalOf(userType)),
			wantTerminal: endpoint.OptionalOf(userType),
			wantPath:     []string{"handler.OptionalProvider", "handler.Identity"},
		},
		{
			name:         "given self rematching adapter, then next provider is used",
			providers:    []Provider{rematchingAdapter{}, OptionalProvider{}},
			shape:        endpoint.OptionalOf(userType),
			wantTerminal: userType,
			wantPath: []string{
				"handler.rematchingAdapter", "handler.OptionalProvider", "handler.Identity",
			},
		},
		{
			name:         "given self rematching adapter alone, then default terminal",
			providers:    []Provider{rematchingAdapter{}},
			shape:        endpoint.OptionalOf(userType),
			wantTerminal: endpoint.OptionalOf(userType),
			wantPath:     []string{"handler.rematchingAdapter", "handler.Identity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.providers)

			chain, err := r.Build(endpointOf(tt.shape))
			require.NoError(t, err)

			assert.True(t, chain.Handler.ReturnType().Equal(tt.shape))
			assert.True(t, chain.Terminal.ReturnType().Equal(tt.wantTerminal),
				"terminal %s", chain.Terminal.ReturnType())
			assert.Equal(t, tt.wantPath, chain.Path)
		})
	}
}

func TestResolver_UnmatchedEqualsDefault(t *testing.T) {
	t.Parallel()

	e := endpointOf(endpoint.Of[user]())
	chain, err := NewResolver(nil).Build(e)
	require.NoError(t, err)

	want, err := Identity{}.Create(e)
	require.NoError(t, err)
	assert.Equal(t, want, chain.Handler)
	assert.Equal(t, chain.Handler, chain.Terminal)
}

func TestResolver_Errors(t *testing.T) {
	t.Parallel()

	t.Run("given handler with wrong shape, then error", func(t *testing.T) {
		r := NewResolver([]Provider{wrongShapeCreator{}})
		_, err := r.Build(endpointOf(endpoint.Of[string]()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "for declared string")
	})

	t.Run("given provider of neither role, then ErrInvalidProvider", func(t *testing.T) {
		r := NewResolver([]Provider{notAProvider{}})
		_, err := r.Build(endpointOf(endpoint.Of[string]()))
		require.ErrorIs(t, err, ErrInvalidProvider)
	})

	t.Run("given failing resolution, then nothing is cached", func(t *testing.T) {
		r := NewResolver([]Provider{notAProvider{}})
		e := endpointOf(endpoint.Of[string]())
		_, err := r.Resolve(e)
		require.Error(t, err)
		_, err = r.Resolve(e)
		require.Error(t, err)
		assert.Equal(t, uint64(2), r.Stats().Misses)
	})
}

func TestResolver_WithDefault(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, WithDefault(VoidProvider{}))
	chain, err := r.Build(endpointOf(endpoint.Void()))
	require.NoError(t, err)
	assert.Equal(t, []string{"handler.VoidProvider"}, chain.Path)
}

func TestResolver_Resolve_Memoized(t *testing.T) {
	t.Parallel()

	r := NewResolver(DefaultProviders(nil))
	e := endpointOf(endpoint.FutureOf(endpoint.ListOf(endpoint.Of[user]())))

	const callers = 16
	var wg sync.WaitGroup
	chains := make([]Chain, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Resolve(e)
			assert.NoError(t, err)
			chains[i] = c
		}()
	}
	wg.Wait()

	for _, c := range chains[1:] {
		assert.Equal(t, chains[0].Path, c.Path)
	}
	stats := r.Stats()
	assert.Equal(t, uint64(callers), stats.Hits+stats.Misses)
	assert.Equal(t, uint64(1), stats.Misses)

	_, err := r.Resolve(e)
	require.NoError(t, err)
	assert.Equal(t, uint64(callers), r.Stats().Hits)
}

func TestHandleAsync_SyncOnlyHandler(t *testing.T) {
	t.Parallel()

	h := passThrough{adapted{rt: endpoint.Of[string](), inner: identityHandler{rt: endpoint.Of[string]()}}}

	v, err := HandleAsync(context.Background(), h, async.InlineExecutor{}, async.Value[any]("ok"), nil).
		Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	errBoom := errors.New("boom")
	_, err = HandleAsync(context.Background(), h, nil, async.Error[any](errBoom), nil).
		Get(context.Background())
	require.ErrorIs(t, err, errBoom)
}
