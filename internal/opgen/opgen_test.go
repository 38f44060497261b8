package opgen

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/conflict"
	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
	"github.com/openmined/syncengine/internal/updatetree"
)

func openTestDB(t *testing.T) *syncdb.DB {
	t.Helper()
	db, err := syncdb.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func emptyTree(t *testing.T, db *syncdb.DB, side model.Side) *updatetree.UpdateTree {
	t.Helper()
	root := model.NodeID("root")
	snap := model.NewSnapshot(side, root)
	tree, err := updatetree.Build(side, snap, &fsop.Result{Ops: fsop.OperationSet{}}, db)
	require.NoError(t, err)
	return tree
}

func TestGenerate_CreateOnLocalProducesDownloadBytes(t *testing.T) {
	db := openTestDB(t)
	root := model.NodeID("root")

	remoteSnap := model.NewSnapshot(model.Remote, root)
	remoteSnap.Add(&model.SnapshotItem{ID: "f1", ParentID: root, Name: "report.txt", Type: model.File, Size: 1024})
	remoteResult := &fsop.Result{Ops: fsop.OperationSet{
		"f1": {Events: fsop.EventCreate, Side: model.Remote, NodeID: "f1"},
	}}
	remoteTree, err := updatetree.Build(model.Remote, remoteSnap, remoteResult, db)
	require.NoError(t, err)

	localTree := emptyTree(t, db, model.Local)

	res, err := Generate(localTree, remoteTree, nil, 1<<30, 0)
	require.NoError(t, err)
	require.Len(t, res.Ops, 1)
	op := res.Ops[0]
	assert.Equal(t, OpCreate, op.Type)
	assert.Equal(t, model.Local, op.TargetSide)
	assert.Equal(t, "report.txt", op.NewName)
	assert.False(t, op.Omit)
	assert.EqualValues(t, 1024, res.BytesToDownload)
}

func TestGenerate_NotEnoughDiskSpaceFailsPass(t *testing.T) {
	db := openTestDB(t)
	root := model.NodeID("root")

	remoteSnap := model.NewSnapshot(model.Remote, root)
	remoteSnap.Add(&model.SnapshotItem{ID: "f1", ParentID: root, Name: "big.bin", Type: model.File, Size: 1000})
	remoteResult := &fsop.Result{Ops: fsop.OperationSet{
		"f1": {Events: fsop.EventCreate, Side: model.Remote, NodeID: "f1"},
	}}
	remoteTree, err := updatetree.Build(model.Remote, remoteSnap, remoteResult, db)
	require.NoError(t, err)

	localTree := emptyTree(t, db, model.Local)

	_, err = Generate(localTree, remoteTree, nil, 500, 0)
	require.Error(t, err)
	var diskErr *ErrNotEnoughDiskSpace
	require.ErrorAs(t, err, &diskErr)
	assert.EqualValues(t, 1000, diskErr.Required)
}

func TestGenerate_RenameLocalResolutionSetsNewName(t *testing.T) {
	db := openTestDB(t)
	fileID := model.NodeID("shared")
	require.NoError(t, db.Insert(&syncdb.DbNode{
		LocalID: &fileID, RemoteID: &fileID, LocalName: "notes.txt", RemoteName: "notes.txt",
		Type: model.File, Status: syncdb.StatusOK,
	}))
	rows, err := db.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]

	root := model.NodeID("root")
	localSnap := model.NewSnapshot(model.Local, root)
	localSnap.Add(&model.SnapshotItem{ID: fileID, ParentID: root, Name: "notes.txt", Type: model.File, Size: 5})
	localResult := &fsop.Result{Ops: fsop.OperationSet{
		fileID: {Events: fsop.EventCreate, Side: model.Local, NodeID: fileID, DbNode: row},
	}}
	localTree, err := updatetree.Build(model.Local, localSnap, localResult, db)
	require.NoError(t, err)

	remoteSnap := model.NewSnapshot(model.Remote, root)
	remoteSnap.Add(&model.SnapshotItem{ID: fileID, ParentID: root, Name: "notes.txt", Type: model.File, Size: 7})
	remoteResult := &fsop.Result{Ops: fsop.OperationSet{
		fileID: {Events: fsop.EventCreate, Side: model.Remote, NodeID: fileID, DbNode: row},
	}}
	remoteTree, err := updatetree.Build(model.Remote, remoteSnap, remoteResult, db)
	require.NoError(t, err)

	conflict.LinkCorresponding(localTree, remoteTree)
	localNode := localTree.Get(fileID)
	remoteNode := remoteTree.Get(fileID)

	resolutions := []conflict.Resolution{
		{Conflict: conflict.Conflict{Type: conflict.TypeCreateCreate, Node: localNode, Other: remoteNode}, Kind: conflict.ResolveRenameLocal, NewName: "notes (conflict abcd1234).txt"},
	}

	res, err := Generate(localTree, remoteTree, resolutions, 1<<30, 0)
	require.NoError(t, err)

	var localOp *SyncOperation
	for _, op := range res.Ops {
		if op.TargetSide == model.Remote && op.AffectedNode == localNode {
			localOp = op
		}
	}
	require.NotNil(t, localOp)
	assert.Equal(t, "notes (conflict abcd1234).txt", localOp.NewName)
}
