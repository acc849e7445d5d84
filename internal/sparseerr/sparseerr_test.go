package sparseerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategoriesAndRetryable(t *testing.T) {
	lockErr := LockFailure("could not acquire writer lock", nil)
	assert.True(t, IsRetryable(lockErr))
	assert.Equal(t, CategoryLockFailure, GetCategory(lockErr))

	ioErr := IOFailure("write failed", errors.New("disk full"))
	assert.False(t, IsRetryable(ioErr))
	assert.ErrorContains(t, ioErr, "write failed")
}

func TestIsMatchesByCode(t *testing.T) {
	a := DataCorruption("bad header", nil)
	b := DataCorruption("different message, same code", nil)
	assert.True(t, errors.Is(a, b))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := SystemError("panic recovered", cause)
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}
