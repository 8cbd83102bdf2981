package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beebs-dev/dorch/internal/domain"
)

func TestErrorClass(t *testing.T) {
	assert.Equal(t, "poison", errorClass(domain.ErrPoison))
	assert.Equal(t, "poison", errorClass(&domain.PoisonError{Cause: errors.New("bad sha1")}))
	assert.Equal(t, "no_maps", errorClass(domain.ErrNoMaps))
	assert.Equal(t, "retryable", errorClass(domain.ErrRetryable))
	assert.Equal(t, "retryable", errorClass(&domain.RetryableError{Cause: errors.New("s3 down")}))
	assert.Equal(t, "unknown", errorClass(errors.New("something else")))
}

func TestIsNonRetryable(t *testing.T) {
	assert.True(t, isNonRetryable(domain.ErrPoison))
	assert.True(t, isNonRetryable(domain.ErrNoMaps))
	assert.False(t, isNonRetryable(domain.ErrRetryable))
	assert.False(t, isNonRetryable(errors.New("unclassified")))
}
