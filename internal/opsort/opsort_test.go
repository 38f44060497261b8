package opsort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
	"github.com/openmined/syncengine/internal/updatetree"
)

func dirNode(dbID model.DbNodeID, name string, parent *updatetree.Node) *updatetree.Node {
	n := &updatetree.Node{
		DbID:   dbID,
		Parent: parent,
		Item:   &model.SnapshotItem{Name: name, Type: model.Directory},
	}
	return n
}

func fileNode(dbID model.DbNodeID, name string, parent *updatetree.Node) *updatetree.Node {
	return &updatetree.Node{
		DbID:   dbID,
		Parent: parent,
		Item:   &model.SnapshotItem{Name: name, Type: model.File},
	}
}

// TestSort_DeleteRunsBeforeMoveIntoSameName builds a delete and a move that
// both target the same (parent, name) on the target side and checks the
// delete ends up scheduled first.
func TestSort_DeleteRunsBeforeMoveIntoSameName(t *testing.T) {
	parent := dirNode(1, "docs", nil)
	deleted := fileNode(2, "report.txt", parent)
	moved := fileNode(3, "report.txt", parent)

	deleteOp := &opgen.SyncOperation{ID: 1, Type: opgen.OpDelete, AffectedNode: deleted, TargetSide: model.Local}
	moveOp := &opgen.SyncOperation{ID: 2, Type: opgen.OpMove, AffectedNode: moved, TargetSide: model.Local}

	res, err := Sort([]*opgen.SyncOperation{moveOp, deleteOp})
	require.NoError(t, err)
	require.False(t, res.Restart)
	require.Len(t, res.Ops, 2)
	assert.Equal(t, deleteOp, res.Ops[0])
	assert.Equal(t, moveOp, res.Ops[1])
}

// TestSort_CreateBeforeCreateOrdersParentFirst checks a child create is
// always scheduled after its own parent's create.
func TestSort_CreateBeforeCreateOrdersParentFirst(t *testing.T) {
	parent := dirNode(0, "archive", nil)
	child := fileNode(0, "notes.txt", parent)

	parentOp := &opgen.SyncOperation{ID: 1, Type: opgen.OpCreate, AffectedNode: parent, TargetSide: model.Local}
	childOp := &opgen.SyncOperation{ID: 2, Type: opgen.OpCreate, AffectedNode: child, TargetSide: model.Local}

	res, err := Sort([]*opgen.SyncOperation{childOp, parentOp})
	require.NoError(t, err)
	require.False(t, res.Restart)
	require.Len(t, res.Ops, 2)
	assert.Equal(t, parentOp, res.Ops[0])
	assert.Equal(t, childOp, res.Ops[1])
}

// TestSort_EditAlwaysAfterMoveOfSameNode checks an edit on a node that also
// moved this pass is scheduled after the move.
func TestSort_EditAlwaysAfterMoveOfSameNode(t *testing.T) {
	parent := dirNode(1, "docs", nil)
	item := &model.SnapshotItem{Name: "renamed.txt", Type: model.File}

	editAffected := &updatetree.Node{NodeID: "shared", DbID: 2, Parent: parent, Item: item}
	moveAffected := &updatetree.Node{NodeID: "shared", DbID: 2, Parent: parent, Item: item}

	editOp := &opgen.SyncOperation{ID: 1, Type: opgen.OpEdit, AffectedNode: editAffected, TargetSide: model.Remote}
	moveOp := &opgen.SyncOperation{ID: 2, Type: opgen.OpMove, AffectedNode: moveAffected, TargetSide: model.Remote}

	res, err := Sort([]*opgen.SyncOperation{editOp, moveOp})
	require.NoError(t, err)
	require.False(t, res.Restart)
	require.Len(t, res.Ops, 2)
	assert.Equal(t, moveOp, res.Ops[0])
	assert.Equal(t, editOp, res.Ops[1])
}

func TestFindCompleteCycle_DetectsClosedChain(t *testing.T) {
	opA := &opgen.SyncOperation{ID: 1, Type: opgen.OpMove}
	opB := &opgen.SyncOperation{ID: 2, Type: opgen.OpMove}
	opC := &opgen.SyncOperation{ID: 3, Type: opgen.OpDelete}

	reorderings := []pair{
		{first: opA, second: opB},
		{first: opB, second: opC},
		{first: opC, second: opA},
	}

	chain, ok := findCompleteCycle(reorderings)
	require.True(t, ok)
	assert.ElementsMatch(t, []*opgen.SyncOperation{opA, opB, opC}, chain)
}

func TestFindCompleteCycle_NoCycleWhenChainDoesNotClose(t *testing.T) {
	opA := &opgen.SyncOperation{ID: 1, Type: opgen.OpMove}
	opB := &opgen.SyncOperation{ID: 2, Type: opgen.OpMove}
	opC := &opgen.SyncOperation{ID: 3, Type: opgen.OpDelete}

	reorderings := []pair{
		{first: opA, second: opB},
		{first: opB, second: opC},
	}

	_, ok := findCompleteCycle(reorderings)
	assert.False(t, ok)
}
