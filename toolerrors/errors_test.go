package toolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableByKind(t *testing.T) {
	assert.True(t, New(KindValidation, "bad json").Retryable)
	assert.True(t, New(KindMissingAction, "no action").Retryable)
	assert.False(t, New(KindResolveError, "unknown tool").Retryable)
	assert.False(t, New(KindCancelled, "sigkill").Retryable)
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := NewWithCause(KindTimeout, "tool timed out", errors.New("context deadline exceeded"))
	assert.True(t, errors.Is(err, Sentinel(KindTimeout)))
	assert.False(t, errors.Is(err, Sentinel(KindCancelled)))
}

func TestFromErrorPreservesExistingToolError(t *testing.T) {
	orig := New(KindExecutionFailure, "tool panicked")
	wrapped := FromError(orig)
	assert.Same(t, orig, wrapped)
}

func TestFromErrorWrapsPlainError(t *testing.T) {
	te := FromError(errors.New("boom"))
	assert.Equal(t, KindExecutionFailure, te.Kind)
	assert.Equal(t, "boom", te.Message)
}
