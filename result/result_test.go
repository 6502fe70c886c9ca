package result

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptional(t *testing.T) {
	t.Parallel()

	some := Some("x")
	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Equal(t, "x", some.OrElse("y"))
	assert.Equal(t, "Optional[x]", some.String())

	none := None[string]()
	assert.False(t, none.IsPresent())
	assert.Equal(t, "y", none.OrElse("y"))
	assert.Equal(t, "Optional.empty", none.String())
}

func TestEither(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	left := Left[error, int](errBoom)
	assert.True(t, left.IsLeft())
	l, ok := left.LeftValue()
	assert.True(t, ok)
	assert.Equal(t, errBoom, l)

	right := Right[error, int](3)
	assert.True(t, right.IsRight())
	r, ok := right.RightValue()
	assert.True(t, ok)
	assert.Equal(t, 3, r)

	describe := func(e Either[error, int]) string {
		return Fold(e, func(err error) string { return "err: " + err.Error() }, func(int) string { return "ok" })
	}
	assert.Equal(t, "err: boom", describe(left))
	assert.Equal(t, "ok", describe(right))
}

func TestEntity_Status(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "404 Not Found", Entity{StatusCode: http.StatusNotFound}.Status())
	assert.Equal(t, "200 Fine", Entity{StatusCode: http.StatusOK, Reason: "Fine"}.Status())
}
