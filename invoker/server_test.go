package invoker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/httpclient"
	"github.com/kroma-labs/restify-go/resilience"
	"github.com/kroma-labs/restify-go/result"
)

func TestClient_NetTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/1":
			if !strings.Contains(r.Header.Get("Accept"), "application/json") {
				w.WriteHeader(http.StatusNotAcceptable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(ada)
		case r.URL.Path == "/users" && r.Method == http.MethodPost:
			var u user
			if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			u.ID = 99
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(u)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(
		WithBaseURL(srv.URL),
		WithServiceName("users"),
		WithRetryConfig(resilience.NoRetryConfig()),
	)
	require.NoError(t, err)

	t.Run("given a value endpoint, then the user is decoded", func(t *testing.T) {
		got, err := Invoke[user](context.Background(), c, getUser(endpoint.Of[user]()), 1)
		require.NoError(t, err)
		assert.Equal(t, ada, got)
	})

	t.Run("given a future of entity, then it completes natively", func(t *testing.T) {
		create := endpoint.Endpoint{
			Name:       "CreateUser",
			Method:     http.MethodPost,
			Path:       "/users",
			ReturnType: endpoint.FutureOf(endpoint.EntityOf(endpoint.Of[user]())),
			Parameters: []endpoint.Parameter{endpoint.BodyParam[user](0)},
		}

		got, err := c.Invoke(context.Background(), create, user{Name: "Grace"})
		require.NoError(t, err)

		v, err := got.(*async.Future[any]).Get(context.Background())
		require.NoError(t, err)
		entity := v.(result.Entity)
		assert.Equal(t, http.StatusCreated, entity.StatusCode)
		assert.Equal(t, user{ID: 99, Name: "Grace"}, entity.Body)
	})

	t.Run("given a missing resource and an optional, then it is empty", func(t *testing.T) {
		nc, err := New(
			WithBaseURL(srv.URL),
			WithRetryConfig(resilience.NoRetryConfig()),
			WithErrorResponseFallback(resilience.EmptyOnNotFound()),
		)
		require.NoError(t, err)

		got, err := nc.Invoke(context.Background(), getUser(endpoint.OptionalOf(endpoint.Of[user]())), 404)
		require.NoError(t, err)
		assert.Equal(t, result.None[any](), got)
	})

	t.Run("given the default transport, then it is a NetTransport", func(t *testing.T) {
		_, ok := c.Transport().(*httpclient.NetTransport)
		assert.True(t, ok)
	})
}
