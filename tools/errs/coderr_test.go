package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeErrorIsMatchesByCode(t *testing.T) {
	err := ErrNotFound.WithDetail("message not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrNotAuthorized)

	wrapped := err.Wrap()
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	a := ErrValidationFailed.WithDetail("first")
	b := ErrValidationFailed.WithDetail("second")

	assert.NotEqual(t, a.Error(), b.Error())
	assert.Empty(t, ErrValidationFailed.Detail, "sentinel stays pristine")
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, 0, CodeOf(errors.New("plain")))
	assert.Equal(t, 0, CodeOf(nil))
}
