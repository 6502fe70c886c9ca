package invoker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/httpclient"
)

func createPost() endpoint.Endpoint {
	return endpoint.Endpoint{
		Name:       "CreatePost",
		Method:     http.MethodPost,
		Path:       "/users/{id}/posts",
		ReturnType: endpoint.Of[user](),
		Headers:    []endpoint.Header{{Name: "X-User", Value: "user-{id}"}},
		Parameters: []endpoint.Parameter{
			endpoint.PathParam("id", 0),
			endpoint.QueryParam("tag", 1),
			endpoint.HeaderParam("X-Trace", 2),
			endpoint.BodyParam[user](3),
		},
		Options: endpoint.Options{Version: "2"},
	}
}

func TestClient_BuildRequest(t *testing.T) {
	mock := httpclient.NewMockTransport().StubResponse(http.StatusCreated, adaJSON)
	c := newTestClient(t, mock, WithBaseURL("http://api.test/v1"))

	_, err := c.Invoke(context.Background(), createPost(), 42, []string{"go", "http"}, "trace-1", user{ID: 7, Name: "Bob"})
	require.NoError(t, err)

	rec, ok := mock.LastRequest()
	require.True(t, ok)
	req := rec.Request

	assert.Equal(t, http.MethodPost, req.Method())
	assert.Equal(t, "http://api.test/v1/users/42/posts?tag=go&tag=http", req.URL().String())
	assert.Equal(t, "user-42", req.Header("X-User"))
	assert.Equal(t, "trace-1", req.Header("X-Trace"))
	assert.Equal(t, "2", req.Header(httpclient.DefaultVersionHeader))
	assert.Equal(t, "application/json", req.Header(httpclient.HeaderContentType))
	assert.Contains(t, req.Header(httpclient.HeaderAccept), "application/json")
	assert.Equal(t, "CreatePost", req.Metadata().Endpoint)
	assert.JSONEq(t, `{"id":7,"name":"Bob"}`, string(rec.Body))
}

func TestClient_BuildRequest_URL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		args []any
		want string
	}{
		{
			name: "given a path segment with a slash, then it is escaped",
			base: "http://api.test",
			path: "/files/{name}",
			args: []any{"a/b c"},
			want: "http://api.test/files/a%2Fb%20c",
		},
		{
			name: "given a base with a trailing slash, then segments are joined once",
			base: "http://api.test/api/",
			path: "/files/{name}",
			args: []any{"x"},
			want: "http://api.test/api/files/x",
		},
		{
			name: "given a path with a query, then both queries are kept",
			base: "http://api.test?key=k",
			path: "/files/{name}?fields=id",
			args: []any{"x"},
			want: "http://api.test/files/x?key=k&fields=id",
		},
		{
			name: "given an absolute path, then the base is ignored",
			base: "http://api.test",
			path: "https://other.test/files/{name}",
			args: []any{"x"},
			want: "https://other.test/files/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, "")
			c := newTestClient(t, mock, WithBaseURL(tt.base))
			e := endpoint.Endpoint{
				Name:       "GetFile",
				Path:       tt.path,
				ReturnType: endpoint.Void(),
				Parameters: []endpoint.Parameter{endpoint.PathParam("name", 0)},
			}

			_, err := c.Invoke(context.Background(), e, tt.args...)
			require.NoError(t, err)

			rec, _ := mock.LastRequest()
			assert.Equal(t, tt.want, rec.Request.URL().String())
		})
	}
}

func TestClient_BuildRequest_OptionalParams(t *testing.T) {
	mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, "[]")
	c := newTestClient(t, mock, WithDefaultTimeout(3*time.Second), WithDefaultVersion("1"))

	e := endpoint.Endpoint{
		Name:       "Search",
		Path:       "/search",
		ReturnType: endpoint.ListOf(endpoint.Of[user]()),
		Parameters: []endpoint.Parameter{
			endpoint.QueryParam("q", 0),
			endpoint.QueryParam("page", 1),
			endpoint.HeaderParam("X-Tenant", 2),
		},
	}

	var page *int
	_, err := c.Invoke(context.Background(), e, "ada", page, nil)
	require.NoError(t, err)

	rec, _ := mock.LastRequest()
	assert.Equal(t, url.Values{"q": {"ada"}}, rec.Request.URL().Query())
	assert.False(t, rec.Request.Headers().Has("X-Tenant"))
	assert.Equal(t, "1", rec.Request.Header(httpclient.DefaultVersionHeader))
	assert.Equal(t, 3*time.Second, rec.Request.Metadata().Timeout)
}

func TestClient_Interceptors(t *testing.T) {
	var order []string
	var acceptSeen string

	mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, adaJSON)
	c := newTestClient(t, mock,
		WithDefaultHeader("User-Agent", "restify-test"),
		WithRequestInterceptor(func(_ context.Context, req httpclient.Request) (httpclient.Request, error) {
			order = append(order, "sync")
			acceptSeen = req.Header(httpclient.HeaderAccept)
			return req.WithHeader("X-First", "1"), nil
		}),
		WithAsyncRequestInterceptor(func(_ context.Context, req httpclient.Request) *async.Future[httpclient.Request] {
			order = append(order, "async")
			return async.Completed(req.WithHeader("X-Second", req.Header("X-First")+"2"))
		}),
		WithResponseInterceptor(func(_ context.Context, resp *httpclient.Response) (*httpclient.Response, error) {
			order = append(order, "response")
			return resp, nil
		}),
	)

	_, err := c.Invoke(context.Background(), getUser(endpoint.Of[user]()), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"sync", "async", "response"}, order)
	assert.Contains(t, acceptSeen, "application/json")

	rec, _ := mock.LastRequest()
	assert.Equal(t, "12", rec.Request.Header("X-Second"))
	assert.Equal(t, "restify-test", rec.Request.Header("User-Agent"))
}

func TestClient_Interceptors_Error(t *testing.T) {
	mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, adaJSON)
	c := newTestClient(t, mock,
		WithRequestInterceptor(func(context.Context, httpclient.Request) (httpclient.Request, error) {
			return httpclient.Request{}, assert.AnError
		}),
	)

	_, err := c.Invoke(context.Background(), getUser(endpoint.Of[user]()), 1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, mock.RequestCount())
}

func TestClient_Gzip(t *testing.T) {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte(adaJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mock := httpclient.NewMockTransport().StubDefault(httpclient.MockResponse{
		Status: http.StatusOK,
		Body:   compressed.String(),
		Headers: httpclient.NewHeaders(
			httpclient.HeaderContentType, "application/json",
			httpclient.HeaderContentEncoding, "gzip",
		),
	})
	c := newTestClient(t, mock, WithGzip())

	got, err := Invoke[user](context.Background(), c, createPost(), 1, nil, "t", user{ID: 7, Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, ada, got)

	rec, _ := mock.LastRequest()
	assert.Equal(t, "gzip", rec.Request.Header(httpclient.HeaderContentEncoding))
	assert.Equal(t, "gzip", rec.Request.Header(httpclient.HeaderAcceptEncoding))

	zr, err := gzip.NewReader(bytes.NewReader(rec.Body))
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"name":"Bob"}`, string(body))
}

func TestFormatValues(t *testing.T) {
	n := 5
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{name: "given nil, then no value", in: nil, want: nil},
		{name: "given a string, then itself", in: "a", want: []string{"a"}},
		{name: "given an int pointer, then the pointee", in: &n, want: []string{"5"}},
		{name: "given a slice, then one value per element", in: []int{1, 2}, want: []string{"1", "2"}},
		{name: "given bytes, then a single value", in: []byte("ab"), want: []string{"ab"}},
		{
			name: "given a stringer, then its string",
			in:   httpclient.Status{Code: http.StatusOK, Reason: "OK"},
			want: []string{"200 OK"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValues(tt.in))
		})
	}
}

func TestClient_RateLimit(t *testing.T) {
	mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, adaJSON)
	c := newTestClient(t, mock, WithRateLimit(httpclient.RateLimitConfig{
		RequestsPerSecond: 0.001,
		Burst:             1,
	}))

	_, err := c.Invoke(context.Background(), getUser(endpoint.Of[user]()), 1)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), getUser(endpoint.Of[user]()), 2)
	assert.ErrorIs(t, err, httpclient.ErrRateLimited)
	assert.Equal(t, 1, mock.RequestCount())
}
