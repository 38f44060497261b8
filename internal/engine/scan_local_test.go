package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
)

func newTestSelectiveSync(t *testing.T, patterns []string) *fsop.SelectiveSync {
	t.Helper()
	return fsop.NewSelectiveSync(patterns)
}

func TestLocalScanner_Scan_BuildsTreeWithRootSentinelParents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("hi"), 0o644))

	snap, err := NewLocalScanner(root).Scan(nil)
	require.NoError(t, err)

	var docs, top *model.SnapshotItem
	for _, item := range snap.Items {
		switch item.Name {
		case "docs":
			docs = item
		case "top.txt":
			top = item
		}
	}
	require.NotNil(t, docs)
	require.NotNil(t, top)
	assert.Equal(t, model.Directory, docs.Type)
	assert.Equal(t, localRootID, docs.ParentID)
	assert.Equal(t, localRootID, top.ParentID)

	var a *model.SnapshotItem
	for _, item := range snap.Items {
		if item.Name == "a.txt" {
			a = item
		}
	}
	require.NotNil(t, a)
	assert.Equal(t, docs.ID, a.ParentID)
	assert.NotEmpty(t, a.Checksum)
}

func TestLocalScanner_Scan_SkipsSelectiveSyncExclusions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "excluded"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "excluded", "x.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.txt"), []byte("k"), 0o644))

	scanner := NewLocalScanner(root)
	selective := newTestSelectiveSync(t, []string{"excluded"})

	snap, err := scanner.Scan(selective)
	require.NoError(t, err)

	for _, item := range snap.Items {
		assert.NotEqual(t, "excluded", item.Name)
		assert.NotEqual(t, "x.txt", item.Name)
	}
}

func TestLocalScanner_Checksum_ReusesCacheWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("stable"), 0o644))

	scanner := NewLocalScanner(root)
	snap1, err := scanner.Scan(nil)
	require.NoError(t, err)
	snap2, err := scanner.Scan(nil)
	require.NoError(t, err)

	var sum1, sum2 string
	for _, item := range snap1.Items {
		if item.Name == "f.txt" {
			sum1 = item.Checksum
		}
	}
	for _, item := range snap2.Items {
		if item.Name == "f.txt" {
			sum2 = item.Checksum
		}
	}
	assert.Equal(t, sum1, sum2)
	assert.NotEmpty(t, sum1)
}
