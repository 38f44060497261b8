package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeBytes_ReportsPositiveValueForTempDir(t *testing.T) {
	free, err := freeBytes(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))
}

func TestFreeBytes_ErrorsOnMissingPath(t *testing.T) {
	_, err := freeBytes("/nonexistent-path-for-test-12345")
	assert.Error(t, err)
}
