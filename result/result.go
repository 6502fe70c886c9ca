// Package result holds the container values produced for wrapped return
// shapes: Optional, Either and Entity.
package result

import (
	"fmt"
	"net/http"
)

// Optional is a value that may be absent.
type Optional[T any] struct {
	value   T
	present bool
}

// Some returns a present optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// None returns an empty optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.present }

// IsPresent reports whether a value is present.
func (o Optional[T]) IsPresent() bool { return o.present }

// OrElse returns the value or def when empty.
func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}

// String implements fmt.Stringer.
func (o Optional[T]) String() string {
	if !o.present {
		return "Optional.empty"
	}
	return fmt.Sprintf("Optional[%v]", o.value)
}

// Either holds exactly one of a Left or a Right value. By convention Left is
// the failure branch.
type Either[L, R any] struct {
	left   L
	right  R
	isLeft bool
}

// Left returns an Either holding l.
func Left[L, R any](l L) Either[L, R] {
	return Either[L, R]{left: l, isLeft: true}
}

// Right returns an Either holding r.
func Right[L, R any](r R) Either[L, R] {
	return Either[L, R]{right: r}
}

// IsLeft reports whether the left branch is set.
func (e Either[L, R]) IsLeft() bool { return e.isLeft }

// IsRight reports whether the right branch is set.
func (e Either[L, R]) IsRight() bool { return !e.isLeft }

// LeftValue returns the left value and whether it is set.
func (e Either[L, R]) LeftValue() (L, bool) { return e.left, e.isLeft }

// RightValue returns the right value and whether it is set.
func (e Either[L, R]) RightValue() (R, bool) { return e.right, !e.isLeft }

// Fold applies onLeft or onRight depending on the branch.
func Fold[L, R, T any](e Either[L, R], onLeft func(L) T, onRight func(R) T) T {
	if e.isLeft {
		return onLeft(e.left)
	}
	return onRight(e.right)
}

// Entity is a full response: status, headers and the decoded body.
type Entity struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       any
}

// Status returns the status line, e.g. "200 OK".
func (e Entity) Status() string {
	if e.Reason == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Reason)
}
