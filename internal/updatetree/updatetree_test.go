package updatetree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
)

func openTestDB(t *testing.T) *syncdb.DB {
	t.Helper()
	db, err := syncdb.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuild_WiresParentsAndChanges(t *testing.T) {
	db := openTestDB(t)
	root := model.NodeID("root")
	snap := model.NewSnapshot(model.Local, root)
	snap.Add(&model.SnapshotItem{ID: "dir1", ParentID: root, Name: "docs", Type: model.Directory})
	snap.Add(&model.SnapshotItem{ID: "f1", ParentID: "dir1", Name: "a.txt", Type: model.File, Size: 3})

	result := &fsop.Result{Ops: fsop.OperationSet{
		"f1": {Events: fsop.EventCreate, Side: model.Local, NodeID: "f1"},
	}}

	tree, err := Build(model.Local, snap, result, db)
	require.NoError(t, err)

	dir := tree.Get("dir1")
	require.NotNil(t, dir)
	assert.Equal(t, tree.Root, dir.Parent)

	f1 := tree.Get("f1")
	require.NotNil(t, f1)
	assert.Equal(t, dir, f1.Parent)
	assert.True(t, f1.Events.Has(fsop.EventCreate))
	assert.Equal(t, "docs/a.txt", f1.Path())
	assert.True(t, dir.HasChanges())
}

func TestBuild_MaterializesPureDeleteUnderLastKnownParent(t *testing.T) {
	db := openTestDB(t)
	dirID := model.NodeID("dir1")
	require.NoError(t, db.Insert(&syncdb.DbNode{LocalID: &dirID, LocalName: "docs", Type: model.Directory, Status: syncdb.StatusOK}))
	rows, err := db.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	parentID := rows[0].DbID

	root := model.NodeID("root")
	snap := model.NewSnapshot(model.Local, root)
	snap.Add(&model.SnapshotItem{ID: "dir1", ParentID: root, Name: "docs", Type: model.Directory})

	gone := model.NodeID("f-gone")
	result := &fsop.Result{Ops: fsop.OperationSet{
		gone: {
			Events: fsop.EventDelete, Side: model.Local, NodeID: gone,
			DbNode: &syncdb.DbNode{DbID: 99, ParentDbID: &parentID, LocalName: "old.txt"},
		},
	}}

	tree, err := Build(model.Local, snap, result, db)
	require.NoError(t, err)

	deleted := tree.Get(gone)
	require.NotNil(t, deleted)
	assert.True(t, deleted.Events.Has(fsop.EventDelete))
	assert.Equal(t, tree.Get("dir1"), deleted.Parent)
}
