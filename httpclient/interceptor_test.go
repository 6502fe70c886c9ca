package httpclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/restify-go/async"
)

func tagInterceptor(tag string) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		return req.WithHeader("X-Order", tag), nil
	}
}

func TestInterceptorChain_Order(t *testing.T) {
	chain := NewInterceptorChain().
		AddRequestInterceptor(tagInterceptor("1")).
		AddAsyncRequestInterceptor(func(_ context.Context, req Request) *async.Future[Request] {
			return async.Completed(req.WithHeader("X-Order", "2"))
		}).
		AddRequestInterceptor(tagInterceptor("3"))

	t.Run("given sync apply, then runs in registration order", func(t *testing.T) {
		got, err := chain.Apply(context.Background(), NewRequest("GET", nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, got.Headers().Values("X-Order"))
	})

	t.Run("given async apply, then runs in registration order", func(t *testing.T) {
		got, err := chain.ApplyAsync(context.Background(), NewRequest("GET", nil)).Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, got.Headers().Values("X-Order"))
	})

	assert.Equal(t, 3, chain.Len())
}

func TestInterceptorChain_ErrorStopsChain(t *testing.T) {
	errBoom := errors.New("boom")
	var reached bool

	chain := NewInterceptorChain().
		AddRequestInterceptor(func(context.Context, Request) (Request, error) {
			return Request{}, errBoom
		}).
		AddRequestInterceptor(func(_ context.Context, req Request) (Request, error) {
			reached = true
			return req, nil
		})

	_, err := chain.Apply(context.Background(), NewRequest("GET", nil))
	require.ErrorIs(t, err, errBoom)

	_, err = chain.ApplyAsync(context.Background(), NewRequest("GET", nil)).Get(context.Background())
	require.ErrorIs(t, err, errBoom)

	assert.False(t, reached)
}

func TestDefaultInjection_NeverOverwrites(t *testing.T) {
	bodyReq := NewRequest("POST", nil).WithBody("payload", nil)

	tests := []struct {
		name        string
		interceptor RequestInterceptor
		req         Request
		header      string
		want        []string
	}{
		{
			name:        "given no accept, then injects default",
			interceptor: AcceptInterceptor(),
			req:         NewRequest("GET", nil),
			header:      HeaderAccept,
			want:        []string{"application/json"},
		},
		{
			name:        "given several media types, then joins them",
			interceptor: AcceptInterceptor("application/json", "text/plain"),
			req:         NewRequest("GET", nil),
			header:      HeaderAccept,
			want:        []string{"application/json, text/plain"},
		},
		{
			name:        "given caller accept, then keeps it",
			interceptor: AcceptInterceptor(),
			req:         NewRequest("GET", nil).WithHeader("accept", "text/xml"),
			header:      HeaderAccept,
			want:        []string{"text/xml"},
		},
		{
			name:        "given body without content type, then injects default",
			interceptor: ContentTypeInterceptor(""),
			req:         bodyReq,
			header:      HeaderContentType,
			want:        []string{"application/json"},
		},
		{
			name:        "given no body, then no content type",
			interceptor: ContentTypeInterceptor(""),
			req:         NewRequest("GET", nil),
			header:      HeaderContentType,
		},
		{
			name:        "given caller content type, then keeps it",
			interceptor: ContentTypeInterceptor(""),
			req:         bodyReq.WithHeader(HeaderContentType, "text/plain"),
			header:      HeaderContentType,
			want:        []string{"text/plain"},
		},
		{
			name:        "given version metadata, then injects version header",
			interceptor: VersionInterceptor(""),
			req:         NewRequest("GET", nil).WithMetadata(Metadata{Version: "2"}),
			header:      DefaultVersionHeader,
			want:        []string{"2"},
		},
		{
			name:        "given caller version header, then keeps it",
			interceptor: VersionInterceptor("X-Version"),
			req:         NewRequest("GET", nil).WithMetadata(Metadata{Version: "2"}).WithHeader("X-Version", "1"),
			header:      "X-Version",
			want:        []string{"1"},
		},
		{
			name:        "given no version, then no header",
			interceptor: VersionInterceptor(""),
			req:         NewRequest("GET", nil),
			header:      DefaultVersionHeader,
		},
		{
			name:        "given caller correlation id, then keeps it",
			interceptor: CorrelationIDInterceptor("X-Request-ID", func() string { return "generated" }),
			req:         NewRequest("GET", nil).WithHeader("X-Request-ID", "mine"),
			header:      "X-Request-ID",
			want:        []string{"mine"},
		},
		{
			name:        "given no correlation id, then generates one",
			interceptor: CorrelationIDInterceptor("X-Request-ID", func() string { return "generated" }),
			req:         NewRequest("GET", nil),
			header:      "X-Request-ID",
			want:        []string{"generated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.interceptor(context.Background(), tt.req)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Headers().Values(tt.header))
		})
	}
}

func TestCorrelationIDInterceptor_DefaultGenerator(t *testing.T) {
	got, err := CorrelationIDInterceptor("X-Request-ID", nil)(context.Background(), NewRequest("GET", nil))

	require.NoError(t, err)
	assert.Len(t, got.Header("X-Request-ID"), 36)
}

func TestAuthInterceptors(t *testing.T) {
	errToken := errors.New("token unavailable")

	tests := []struct {
		name        string
		interceptor RequestInterceptor
		wantHeader  string
		wantValue   string
		wantErr     error
	}{
		{
			name:        "given static token, then replaces authorization",
			interceptor: AuthBearerInterceptor("abc"),
			wantHeader:  "Authorization",
			wantValue:   "Bearer abc",
		},
		{
			name: "given token func, then uses its token",
			interceptor: AuthBearerFuncInterceptor(func(context.Context) (string, error) {
				return "dyn", nil
			}),
			wantHeader: "Authorization",
			wantValue:  "Bearer dyn",
		},
		{
			name: "given failing token func, then fails",
			interceptor: AuthBearerFuncInterceptor(func(context.Context) (string, error) {
				return "", errToken
			}),
			wantErr: errToken,
		},
		{
			name:        "given api key, then sets header",
			interceptor: APIKeyInterceptor("X-API-Key", "secret"),
			wantHeader:  "X-API-Key",
			wantValue:   "secret",
		},
		{
			name:        "given user agent, then sets header",
			interceptor: UserAgentInterceptor("restify/1.0"),
			wantHeader:  "User-Agent",
			wantValue:   "restify/1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("GET", nil).WithHeader("Authorization", "Bearer old")

			got, err := tt.interceptor(context.Background(), req)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantValue}, got.Headers().Values(tt.wantHeader))
		})
	}
}

func TestAsyncAuthBearerInterceptor(t *testing.T) {
	tokens := async.New[string]()
	chain := NewInterceptorChain().
		AddAsyncRequestInterceptor(AsyncAuthBearerInterceptor(func(context.Context) *async.Future[string] {
			return tokens
		}))

	f := chain.ApplyAsync(context.Background(), NewRequest("GET", nil))
	assert.False(t, f.IsDone())

	tokens.Complete("late")

	got, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer late", got.Header("Authorization"))
}

func TestInterceptorChain_ApplyResponse(t *testing.T) {
	errReject := errors.New("rejected")
	resp := NewBufferedResponse(NewRequest("GET", nil), Status{Code: 200}, Headers{}, nil)

	var order []int
	chain := NewInterceptorChain().
		AddResponseInterceptor(func(_ context.Context, r *Response) (*Response, error) {
			order = append(order, 1)
			return r, nil
		}).
		AddResponseInterceptor(func(_ context.Context, r *Response) (*Response, error) {
			order = append(order, 2)
			return r, nil
		})

	got, err := chain.ApplyResponse(context.Background(), resp)
	require.NoError(t, err)
	assert.Same(t, resp, got)
	assert.Equal(t, []int{1, 2}, order)

	chain.AddResponseInterceptor(func(context.Context, *Response) (*Response, error) {
		return nil, errReject
	})
	_, err = chain.ApplyResponse(context.Background(), resp)
	require.ErrorIs(t, err, errReject)
}
