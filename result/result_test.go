package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOk(t *testing.T) {
	t.Parallel()
	r := Ok(42)
	assert.True(t, r.IsOk())
	assert.False(t, r.IsErr())
	assert.Equal(t, 42, r.Unwrap())
	assert.Panics(t, func() { r.UnwrapErr() })
}

func TestErr(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("boom")
	r := Err[int](sentinel)
	assert.True(t, r.IsErr())
	assert.False(t, r.IsOk())
	assert.Equal(t, sentinel, r.UnwrapErr())
	assert.Panics(t, func() { r.Unwrap() })
}
