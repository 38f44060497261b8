package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmined/syncengine/internal/driveapi"
)

func TestChunkOffsets_SplitsEvenlyAndCoversRemainder(t *testing.T) {
	assert.Equal(t, []int64{0, 10, 20}, chunkOffsets(25, 10))
	assert.Equal(t, []int64{0}, chunkOffsets(0, 10))
	assert.Equal(t, []int64{0}, chunkOffsets(5, 0))
}

func TestChunkLength_ClampsToRemainingBytes(t *testing.T) {
	assert.Equal(t, int64(10), chunkLength(0, 10, 25))
	assert.Equal(t, int64(5), chunkLength(20, 10, 25))
	assert.Equal(t, int64(0), chunkLength(30, 10, 25))
	assert.Equal(t, int64(25), chunkLength(0, 0, 25))
}

func TestIsTransient_ClassifiesServerAndConnectionErrors(t *testing.T) {
	assert.True(t, isTransient(&driveapi.APIError{Status: 503}))
	assert.True(t, isTransient(&driveapi.APIError{Status: 0}))
	assert.False(t, isTransient(&driveapi.APIError{Status: 404}))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(errors.New("some other error")))
}
