package conflict

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestQueue_OrdersByPriorityThenDepth(t *testing.T) {
	root := &updatetree.Node{}
	shallow := &updatetree.Node{Parent: root}
	deep := &updatetree.Node{Parent: shallow}

	q := NewQueue()
	q.Push(Conflict{Type: TypeCreateCreate, Node: deep})
	q.Push(Conflict{Type: TypeMoveDelete, Node: shallow})
	q.Push(Conflict{Type: TypeMoveDelete, Node: deep})

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, TypeMoveDelete, first.Type)
	assert.Equal(t, shallow, first.Node) // same type, shallower depth wins

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, TypeMoveDelete, second.Type)

	third, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, TypeCreateCreate, third.Type)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestFind_DetectsEditDeleteOnce(t *testing.T) {
	db := openTestDB(t)
	fileID := model.NodeID("shared")
	require.NoError(t, db.Insert(&syncdb.DbNode{
		LocalID: &fileID, RemoteID: &fileID, LocalName: "notes.txt", RemoteName: "notes.txt",
		Type: model.File, Size: 5, Status: syncdb.StatusOK,
	}))
	rows, err := db.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]

	localSnap := model.NewSnapshot(model.Local, model.NodeID("root"))
	localSnap.Add(&model.SnapshotItem{ID: fileID, ParentID: "root", Name: "notes.txt", Type: model.File, Size: 99})
	localResult := &fsop.Result{Ops: fsop.OperationSet{
		fileID: {Events: fsop.EventEdit, Side: model.Local, NodeID: fileID, DbNode: row},
	}}
	localTree, err := updatetree.Build(model.Local, localSnap, localResult, db)
	require.NoError(t, err)

	remoteSnap := model.NewSnapshot(model.Remote, model.NodeID("root"))
	remoteResult := &fsop.Result{Ops: fsop.OperationSet{
		fileID: {Events: fsop.EventDelete, Side: model.Remote, NodeID: fileID, DbNode: row},
	}}
	remoteTree, err := updatetree.Build(model.Remote, remoteSnap, remoteResult, db)
	require.NoError(t, err)

	LinkCorresponding(localTree, remoteTree)
	conflicts := Find(localTree, remoteTree)
	require.Len(t, conflicts, 1)
	assert.Equal(t, TypeEditDelete, conflicts[0].Type)
}

func TestResolve_EditDeleteWithSurvivingParentRemovesFromDB(t *testing.T) {
	db := openTestDB(t)
	fileID := model.NodeID("shared")
	require.NoError(t, db.Insert(&syncdb.DbNode{
		LocalID: &fileID, RemoteID: &fileID, LocalName: "notes.txt", RemoteName: "notes.txt",
		Type: model.File, Status: syncdb.StatusOK,
	}))
	rows, err := db.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	q := NewQueue()
	localNode := &updatetree.Node{NodeID: fileID, DbID: rows[0].DbID, Events: fsop.EventEdit, Parent: &updatetree.Node{}}
	q.Push(Conflict{Type: TypeEditDelete, Node: localNode})

	resolutions, err := Resolve(q, db)
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, ResolveRemoveFromDB, resolutions[0].Kind)

	after, err := db.GetByID(rows[0].DbID)
	require.NoError(t, err)
	assert.Nil(t, after)
}
