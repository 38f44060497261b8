// Package fsop implements the S1 FS-Op Computer: diffing a snapshot
// against the sync DB to produce the per-side OperationSet that S2 folds
// into an UpdateTree (spec §4.1).
package fsop

import (
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
)

// ChangeEvent is a bit in the per-node change bitset; a single object can
// carry more than one in the same pass (e.g. moved AND edited), matching
// the UpdateTree Node's "bitset of change events" in spec §3.
type ChangeEvent uint8

const (
	EventCreate ChangeEvent = 1 << iota
	EventEdit
	EventMove
	EventDelete
)

func (e ChangeEvent) Has(bit ChangeEvent) bool { return e&bit != 0 }

func (e ChangeEvent) String() string {
	s := ""
	for _, b := range []struct {
		bit  ChangeEvent
		name string
	}{{EventCreate, "Create"}, {EventEdit, "Edit"}, {EventMove, "Move"}, {EventDelete, "Delete"}} {
		if e.Has(b.bit) {
			if s != "" {
				s += "|"
			}
			s += b.name
		}
	}
	if s == "" {
		return "None"
	}
	return s
}

// MoveOrigin records where a moved item used to live, taken from the DB row
// (spec §4.1: "Move carries the DB row's old path as moveOrigin").
type MoveOrigin struct {
	OldParentDbID *model.DbNodeID
	OldName       string
}

// Change is everything S1 detected for one object on one side in this pass.
type Change struct {
	Events ChangeEvent
	Side   model.Side

	// NodeID is the id this change is keyed and addressed by: the current
	// snapshot id for Create/Edit/Move, the DB's last-known id on this side
	// for a pure Delete (a deleted item has no current snapshot entry).
	NodeID model.NodeID

	Item   *model.SnapshotItem // current snapshot state; nil for a pure Delete
	DbNode *syncdb.DbNode      // matched DB row; nil for a pure Create

	MoveOrigin *MoveOrigin // set iff Events.Has(EventMove)

	// OmitCreateTimeOnly marks an Edit whose only delta versus the DB is the
	// creation timestamp (spec §4.1, §9 Open Question 1): downstream stages
	// turn this into a DB-only "omit" operation.
	OmitCreateTimeOnly bool
}

// OperationSet is the per-side output of S1, keyed by Change.NodeID.
type OperationSet map[model.NodeID]*Change

// CorruptionReport flags a file where local and remote sizes disagree for
// an object the DB considers in-sync (spec §4.1 "size-mismatch diagnosis").
type CorruptionReport struct {
	DbNodeID   model.DbNodeID
	LocalSize  int64
	RemoteSize int64
}

// Result is everything S1 produces for one side in one pass.
type Result struct {
	Ops OperationSet

	// Invalidated is true when raw local FS events this pass exceeded the
	// configured threshold; the engine must force a full rescan next pass
	// (spec §4.1 "Invalidation").
	Invalidated bool

	Corruptions []CorruptionReport
}
