// Package api declares the endpoints of the example API and typed wrappers
// over the untyped invoker results.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kroma-labs/restify-go/async"
	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/invoker"
	"github.com/kroma-labs/restify-go/result"
)

type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

var (
	getUser = endpoint.Endpoint{
		Name:       "GetUser",
		Path:       "/users/{id}",
		ReturnType: endpoint.FutureOf(endpoint.OptionalOf(endpoint.Of[User]())),
		Parameters: []endpoint.Parameter{endpoint.PathParam("id", 0)},
		Options:    endpoint.Options{CircuitBreaker: true},
	}

	listPosts = endpoint.Endpoint{
		Name:       "ListPosts",
		Path:       "/posts",
		ReturnType: endpoint.StreamOf(endpoint.ListOf(endpoint.Of[Post]())),
		Parameters: []endpoint.Parameter{endpoint.QueryParam("userId", 0)},
	}

	createPost = endpoint.Endpoint{
		Name:       "CreatePost",
		Method:     http.MethodPost,
		Path:       "/posts",
		ReturnType: endpoint.EitherOf(endpoint.EntityOf(endpoint.Of[Post]())),
		Parameters: []endpoint.Parameter{endpoint.BodyParam[Post](0)},
		Options:    endpoint.Options{Retry: &endpoint.RetryOverride{MaxAttempts: 1}},
	}
)

// Client is the typed facade of the example API.
type Client struct {
	c *invoker.Client
}

func New(c *invoker.Client) *Client {
	return &Client{c: c}
}

// User fetches a user; a missing user is not an error.
func (a *Client) User(ctx context.Context, id int) (User, bool, error) {
	f, err := invoker.Invoke[*async.Future[any]](ctx, a.c, getUser, id)
	if err != nil {
		return User{}, false, err
	}
	v, err := f.Get(ctx)
	if err != nil {
		return User{}, false, err
	}
	u, ok := v.(result.Optional[any]).Get()
	if !ok {
		return User{}, false, nil
	}
	return u.(User), true, nil
}

// Posts streams the posts of a user.
func (a *Client) Posts(ctx context.Context, userID int) ([]Post, error) {
	s, err := invoker.Invoke[*async.Stream[any]](ctx, a.c, listPosts, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.Collect(ctx)
	if err != nil {
		return nil, err
	}
	var posts []Post
	for _, item := range items {
		posts = append(posts, item.([]Post)...)
	}
	return posts, nil
}

// CreatePost creates a post and returns the status line with the stored post.
func (a *Client) CreatePost(ctx context.Context, p Post) (string, Post, error) {
	e, err := invoker.Invoke[result.Either[error, any]](ctx, a.c, createPost, p)
	if err != nil {
		return "", Post{}, err
	}
	if err, failed := e.LeftValue(); failed {
		return "", Post{}, fmt.Errorf("create post: %w", err)
	}
	v, _ := e.RightValue()
	en := v.(result.Entity)
	return en.Status(), en.Body.(Post), nil
}
