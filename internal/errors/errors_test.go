package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customError struct {
	Msg string
}

func (e customError) Error() string { return e.Msg }

func TestNew(t *testing.T) {
	err := New("test error")
	require.Error(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("wrap non-nil error", func(t *testing.T) {
		wrapped := Wrap(baseErr, "wrapped")
		require.Error(t, wrapped)
		assert.Equal(t, "wrapped: base error", wrapped.Error())
		assert.ErrorIs(t, wrapped, baseErr)
	})

	t.Run("wrap nil error", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "wrapped"))
	})
}

func TestWrapf(t *testing.T) {
	baseErr := errors.New("base error")

	wrapped := Wrapf(baseErr, "wrapped %d", 123)
	require.Error(t, wrapped)
	assert.Equal(t, "wrapped 123: base error", wrapped.Error())
	assert.ErrorIs(t, wrapped, baseErr)
	assert.NoError(t, Wrapf(nil, "wrapped %d", 1))
}

func TestJoin(t *testing.T) {
	cause := customError{Msg: "disk full"}

	joined := Join(ErrStorage, cause)
	assert.ErrorIs(t, joined, ErrStorage)

	var target customError
	require.True(t, As(joined, &target))
	assert.Equal(t, "disk full", target.Msg)

	assert.Equal(t, ErrStorage, Join(ErrStorage, nil))
}

func TestIsAs(t *testing.T) {
	wrapped := Wrap(ErrConflict, "duplicate leaf")
	assert.True(t, Is(wrapped, ErrConflict))
	assert.False(t, Is(wrapped, ErrNotFound))

	var ce customError
	assert.False(t, As(wrapped, &ce))
}
