package fsop

import (
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
)

// Options tunes S1's behavior; defaults come from internal/config.
type Options struct {
	RawEventThreshold int // local only; 0 disables invalidation
	RawEventCount     int // raw FS events observed this pass, local only
}

// Compute diffs snapshot against the sync DB and returns the OperationSet
// of unresolved changes for that side (spec §4.1).
func Compute(db *syncdb.DB, snapshot *model.Snapshot, opts Options) (*Result, error) {
	res := &Result{Ops: make(OperationSet)}
	side := snapshot.Side

	seenDbIDs := make(map[model.DbNodeID]bool)

	for id, item := range snapshot.Items {
		if id == snapshot.RootID {
			continue
		}

		dbRow, err := db.GetByNodeID(side, id)
		if err != nil {
			return nil, err
		}

		if dbRow == nil {
			res.Ops[id] = &Change{
				Events: EventCreate,
				Side:   side,
				NodeID: id,
				Item:   item,
			}
			continue
		}
		seenDbIDs[dbRow.DbID] = true

		change := &Change{Side: side, NodeID: id, Item: item, DbNode: dbRow}

		// Move: parent or normalized name differs from the DB row.
		currentParentDbID, err := parentDbID(db, side, item.ParentID, snapshot.RootID)
		if err != nil {
			return nil, err
		}
		dbName := dbRow.Name(side)
		if !sameParent(dbRow.ParentDbID, currentParentDbID) || model.NormalizedName(dbName) != model.NormalizedName(item.Name) {
			change.Events |= EventMove
			change.MoveOrigin = &MoveOrigin{OldParentDbID: dbRow.ParentDbID, OldName: dbName}
		}

		// Edit: for files, size/mtime/checksum drift versus the DB row.
		if item.Type == model.File {
			sizeDiff := item.Size != dbRow.Size
			checksumDiff := item.Checksum != "" && dbRow.Checksum != "" && item.Checksum != dbRow.Checksum
			mtimeDiff := !item.ModifiedAt.Equal(dbRow.LastMod(side))
			createdDiff := !item.CreatedAt.Equal(dbRow.CreatedAt)

			if sizeDiff || checksumDiff || mtimeDiff {
				change.Events |= EventEdit
			} else if createdDiff {
				// Creation-time-only drift: still encoded, flagged for S5/S6
				// to coalesce as an omit (spec §4.1, §9 Open Question 1).
				change.Events |= EventEdit
				change.OmitCreateTimeOnly = true
			}
		}

		if change.Events != 0 {
			res.Ops[id] = change
		}
	}

	// Delete: a DB row with no snapshot entry on this side.
	allRows, err := db.All()
	if err != nil {
		return nil, err
	}
	for _, row := range allRows {
		if seenDbIDs[row.DbID] {
			continue
		}
		id := row.ID(side)
		if id == "" {
			continue // never existed on this side; nothing to delete here
		}
		if _, stillLive := snapshot.Items[id]; stillLive {
			continue
		}
		res.Ops[id] = &Change{
			Events: EventDelete,
			Side:   side,
			NodeID: id,
			DbNode: row,
		}
	}

	if side == model.Local && opts.RawEventThreshold > 0 && opts.RawEventCount > opts.RawEventThreshold {
		res.Invalidated = true
	}

	return res, nil
}

// DetectCorruption compares the two sides' snapshots for files the DB
// considers in sync and reports those whose local size still matches the
// DB row while the remote size differs (spec §4.1).
func DetectCorruption(localSnap, remoteSnap *model.Snapshot, db *syncdb.DB) ([]CorruptionReport, error) {
	var out []CorruptionReport
	rows, err := db.All()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Type != model.File || row.LocalID == nil || row.RemoteID == nil {
			continue
		}
		li := localSnap.Get(*row.LocalID)
		ri := remoteSnap.Get(*row.RemoteID)
		if li == nil || ri == nil {
			continue
		}
		// Both sides still match the DB row's size: nothing to report.
		if li.Size == row.Size && ri.Size == row.Size {
			continue
		}
		if li.Size != ri.Size && li.Size == row.Size {
			out = append(out, CorruptionReport{DbNodeID: row.DbID, LocalSize: li.Size, RemoteSize: ri.Size})
		}
	}
	return out, nil
}

func sameParent(a, b *model.DbNodeID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// parentDbID resolves a snapshot parent NodeID to the sync DB's surrogate
// key, treating the snapshot root as the DB root (nil parent).
func parentDbID(db *syncdb.DB, side model.Side, parent model.NodeID, root model.NodeID) (*model.DbNodeID, error) {
	if parent == root || parent == "" {
		return nil, nil
	}
	row, err := db.GetByNodeID(side, parent)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	id := row.DbID
	return &id, nil
}
