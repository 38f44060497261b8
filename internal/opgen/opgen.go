// Package opgen implements S6, the Operation Generator: a breadth-first
// walk of both UpdateTrees that turns every still-pending change event into
// a SyncOperation (or, for a pseudo-conflict/omitted edit, a DB-only
// "omit" operation), plus the pass-wide disk-space guard (spec §4.6).
package opgen

import (
	"fmt"

	"github.com/openmined/syncengine/internal/conflict"
	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/updatetree"
)

// OpType is the action a SyncOperation carries out.
type OpType uint8

const (
	OpCreate OpType = iota
	OpEdit
	OpMove
	OpDelete
	// OpRescue moves a locally-edited file into the sync pair's rescue
	// directory instead of letting an enclosing delete discard the edit
	// (spec §4.5 rescue preservation). Always local-only: it never touches
	// the remote side.
	OpRescue
)

func (t OpType) String() string {
	switch t {
	case OpCreate:
		return "Create"
	case OpEdit:
		return "Edit"
	case OpMove:
		return "Move"
	case OpDelete:
		return "Delete"
	case OpRescue:
		return "Rescue"
	default:
		return "Unknown"
	}
}

// SyncOperation is one unit of work the executor (S8) eventually carries
// out, or, when Omit is set, applies to the DB only without touching either
// filesystem (spec §4.6, §9 Open Question 1).
type SyncOperation struct {
	ID int64

	Type OpType

	// AffectedNode is the node whose change triggered this operation;
	// TargetSide is the replica the operation must be applied to (the side
	// opposite AffectedNode).
	AffectedNode *updatetree.Node
	TargetSide   model.Side

	// CorrespondingNode is AffectedNode's counterpart on the target side,
	// when one already exists (nil for a brand new Create).
	CorrespondingNode *updatetree.Node

	NewName string // target name after the operation, for Create/Move

	// Omit means: update the sync DB and tree only; no filesystem or
	// network I/O. Set for pseudo-conflicts and omitted edits.
	Omit bool
}

// Result is everything S6 produced for one pass.
type Result struct {
	Ops []*SyncOperation

	// BytesToDownload sums the size of every File Create/Edit whose target
	// side is Local, used for the disk-space guard.
	BytesToDownload int64
}

// ErrNotEnoughDiskSpace is returned when the pass's projected downloads
// would leave less than the configured margin free on the local volume.
type ErrNotEnoughDiskSpace struct {
	Required, Available, Margin int64
}

func (e *ErrNotEnoughDiskSpace) Error() string {
	return fmt.Sprintf("not enough disk space: need %d bytes, have %d, margin %d", e.Required, e.Available, e.Margin)
}

var nextID int64

func newOp(t OpType, affected *updatetree.Node) *SyncOperation {
	nextID++
	return &SyncOperation{ID: nextID, Type: t, AffectedNode: affected, TargetSide: affected.Side().Other()}
}

// Generate walks local and remote trees breadth-first, consumes the
// resolutions S5 produced, and returns every SyncOperation still needed
// this pass (spec §4.6).
func Generate(local, remote *updatetree.UpdateTree, resolutions []conflict.Resolution, freeLocalBytes, diskSpaceMargin int64) (*Result, error) {
	res := &Result{}
	processed := make(map[model.NodeID]bool)
	resolutionByNode := indexResolutions(resolutions)

	queue := []*updatetree.Node{local.Root, remote.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == nil {
			continue
		}
		for _, c := range n.Children {
			queue = append(queue, c)
		}
		if processed[n.NodeID] || n.IsRoot() {
			continue
		}
		if n.Events == 0 {
			continue
		}

		other := n.Other
		if other == nil && !n.Events.Has(fsop.EventCreate) {
			return nil, fmt.Errorf("opgen: node %s has no corresponding node for events %s", n.Path(), n.Events)
		}

		resolution, hasResolution := resolutionByNode[n.NodeID]

		if n.Events.Has(fsop.EventCreate) {
			op := generateCreate(n, other, resolution, hasResolution)
			res.Ops = append(res.Ops, op)
			if !op.Omit && op.TargetSide == model.Local && n.Item != nil && n.Item.Type == model.File {
				res.BytesToDownload += n.Item.Size
			}
		}
		if n.Events.Has(fsop.EventDelete) {
			res.Ops = append(res.Ops, generateDelete(n, other, resolution, hasResolution))
		}
		if n.Events.Has(fsop.EventEdit) {
			if n.Rescue {
				res.Ops = append(res.Ops, generateRescue(n))
			} else {
				op := generateEdit(n, other, resolution, hasResolution)
				res.Ops = append(res.Ops, op)
				if !op.Omit && op.TargetSide == model.Local && n.Item != nil && n.Item.Type == model.File {
					res.BytesToDownload += n.Item.Size
				}
			}
		}
		if n.Events.Has(fsop.EventMove) {
			res.Ops = append(res.Ops, generateMove(n, other))
		}

		processed[n.NodeID] = true
	}

	if res.BytesToDownload > 0 && freeLocalBytes >= 0 {
		if freeLocalBytes < res.BytesToDownload+diskSpaceMargin {
			return res, &ErrNotEnoughDiskSpace{Required: res.BytesToDownload, Available: freeLocalBytes, Margin: diskSpaceMargin}
		}
	}

	return res, nil
}

func indexResolutions(resolutions []conflict.Resolution) map[model.NodeID]conflict.Resolution {
	idx := make(map[model.NodeID]conflict.Resolution, len(resolutions))
	for _, r := range resolutions {
		idx[r.Conflict.Node.NodeID] = r
	}
	return idx
}

func generateCreate(n, other *updatetree.Node, resolution conflict.Resolution, hasResolution bool) *SyncOperation {
	op := newOp(OpCreate, n)
	if n.Item != nil {
		op.NewName = n.Item.Name
	}
	if other != nil {
		op.CorrespondingNode = other
		if isPseudoCreateCreate(n, other) {
			op.Omit = true
		}
	}
	if hasResolution && resolution.Kind == conflict.ResolveRenameLocal && n.Side() == model.Local {
		op.NewName = resolution.NewName
	}
	return op
}

func generateEdit(n, other *updatetree.Node, resolution conflict.Resolution, hasResolution bool) *SyncOperation {
	op := newOp(OpEdit, n)
	op.CorrespondingNode = other
	if n.OmitCreateTimeOnly {
		op.Omit = true
	}
	if hasResolution {
		switch resolution.Kind {
		case conflict.ResolveRemoveFromDB, conflict.ResolveRescue:
			op.Omit = true
		}
	}
	return op
}

func generateMove(n, other *updatetree.Node) *SyncOperation {
	op := newOp(OpMove, n)
	op.CorrespondingNode = other
	if n.Item != nil {
		op.NewName = n.Item.Name
	}
	return op
}

// generateRescue builds the local-only move of an about-to-be-orphaned
// edited file into the rescue directory. Unlike every other op, its
// TargetSide is the same side as AffectedNode: the rescue move never
// propagates anywhere.
func generateRescue(n *updatetree.Node) *SyncOperation {
	nextID++
	op := &SyncOperation{ID: nextID, Type: OpRescue, AffectedNode: n, TargetSide: n.Side()}
	if n.Item != nil {
		op.NewName = n.Item.Name
	}
	return op
}

func generateDelete(n, other *updatetree.Node, resolution conflict.Resolution, hasResolution bool) *SyncOperation {
	op := newOp(OpDelete, n)
	op.CorrespondingNode = other
	if hasResolution && resolution.Kind == conflict.ResolveNone {
		op.Omit = true
	}
	return op
}

// isPseudoCreateCreate mirrors the pseudo-conflict test conflict.Find
// already applied; S6 still needs it locally since a Create with a
// corresponding node may never have been pushed onto the conflict queue
// (e.g. both sides created the same empty directory, which is never a real
// conflict to begin with).
func isPseudoCreateCreate(a, b *updatetree.Node) bool {
	if a.Item == nil || b.Item == nil || a.Item.Type != b.Item.Type {
		return false
	}
	if a.Item.Type == model.Directory {
		return model.NormalizedName(a.Item.Name) == model.NormalizedName(b.Item.Name)
	}
	if a.Item.Checksum != "" && b.Item.Checksum != "" {
		return a.Item.Checksum == b.Item.Checksum
	}
	return a.Item.Size == b.Item.Size && a.Item.ModifiedAt.Equal(b.Item.ModifiedAt)
}
