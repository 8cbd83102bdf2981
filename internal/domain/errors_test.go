package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableError_IsMatchesSentinel(t *testing.T) {
	err := &RetryableError{Cause: errors.New("s3 timeout")}

	assert.ErrorIs(t, err, ErrRetryable)
	assert.NotErrorIs(t, err, ErrPoison)
	assert.Contains(t, err.Error(), "s3 timeout")
}

func TestPoisonError_IsMatchesSentinel(t *testing.T) {
	err := &PoisonError{Cause: errors.New("invalid sha1")}

	assert.ErrorIs(t, err, ErrPoison)
	assert.NotErrorIs(t, err, ErrRetryable)
}

func TestWrappedErrors_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := &RetryableError{Cause: cause}

	assert.ErrorIs(t, err, cause)
}
