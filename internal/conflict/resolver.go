package conflict

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
	"github.com/openmined/syncengine/internal/updatetree"
)

// ResolutionKind is the action S5 decided on for one conflict; S6 reads
// these to decide what SyncOperations (if any) to still emit for the losing
// node.
type ResolutionKind uint8

const (
	ResolveNone ResolutionKind = iota
	ResolveRemoveFromDB        // drop the DB row so the item is rediscovered as new next pass
	ResolveUndoMove            // revert a move; the other side's move wins
	ResolveRenameLocal         // rename the local object to a conflicted-copy name and exclude it
	ResolveRescue              // move the node (or its edited descendants) to the rescue folder
	ResolvePropagateDelete     // let the delete proceed, no further local action
)

// Resolution is one outcome of resolving a Conflict.
type Resolution struct {
	Conflict Conflict
	Kind     ResolutionKind
	NewName  string // set for ResolveRenameLocal
}

// Resolve drains the queue, applying the policy table from spec §4.5 (the
// conflict resolver's rules) to each conflict in priority order, persisting
// DB edits as it goes and returning the Resolutions S6 needs.
func Resolve(q *Queue, db *syncdb.DB) ([]Resolution, error) {
	var out []Resolution
	for {
		c, ok := q.Pop()
		if !ok {
			break
		}
		res, err := resolveOne(c, db)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", c.Type, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func resolveOne(c Conflict, db *syncdb.DB) (Resolution, error) {
	switch c.Type {
	case TypeMoveParentDelete, TypeCreateParentDelete:
		return resolveParentDelete(c), nil
	case TypeMoveDelete:
		return resolveMoveDelete(c), nil
	case TypeEditDelete:
		return resolveEditDelete(c, db)
	case TypeMoveMoveSource, TypeMoveMoveDest, TypeMoveMoveCycle, TypeMoveCreate:
		return resolveUndoMove(c, db)
	case TypeCreateCreate, TypeEditEdit:
		return resolveRenameLocal(c), nil
	default:
		return Resolution{Conflict: c, Kind: ResolveNone}, nil
	}
}

// resolveParentDelete rescues locally-edited descendants then lets the
// parent's delete propagate.
func resolveParentDelete(c Conflict) Resolution {
	rescueModifiedDescendants(c.Node)
	return Resolution{Conflict: c, Kind: ResolvePropagateDelete}
}

// resolveMoveDelete is a no-op if the move actually happened inside a
// directory also deleted elsewhere (rule 1 already covers that case as
// ParentDelete); otherwise rescue edited descendants and let the delete win.
func resolveMoveDelete(c Conflict) Resolution {
	if c.Node.Parent.Other != nil && c.Node.Parent.Other.Events.Has(fsop.EventDelete) {
		return Resolution{Conflict: c, Kind: ResolveNone}
	}
	rescueModifiedDescendants(c.Node)
	return Resolution{Conflict: c, Kind: ResolvePropagateDelete}
}

// resolveEditDelete: if the parent survives, the edit wins by being
// rediscovered as new next pass (its DB row is dropped); if the parent is
// also gone, rescue a local edit and let the delete stand (a remote edit is
// simply lost to the delete).
func resolveEditDelete(c Conflict, db *syncdb.DB) (Resolution, error) {
	parentDeleted := c.Node.Parent.Other != nil && c.Node.Parent.Other.Events.Has(fsop.EventDelete)
	if !parentDeleted {
		if c.Node.DbID != 0 {
			if err := db.Delete(c.Node.DbID); err != nil {
				return Resolution{}, err
			}
		}
		return Resolution{Conflict: c, Kind: ResolveRemoveFromDB}, nil
	}
	if c.Node.Side() == model.Local {
		return Resolution{Conflict: c, Kind: ResolveRescue}, nil
	}
	return Resolution{Conflict: c, Kind: ResolvePropagateDelete}, nil
}

// resolveUndoMove reverts the move on whichever side the resolver judges
// the loser; remote always wins on a tie, matching the "revert one of the
// move operations, remote wins" rule for MoveMove(Source|Dest|Cycle) and
// MoveCreate.
func resolveUndoMove(c Conflict, db *syncdb.DB) (Resolution, error) {
	loser := pickMoveLoser(c)
	if loser != nil && loser.DbNode != nil && loser.MoveOrigin != nil {
		loser.DbNode.ParentDbID = loser.MoveOrigin.OldParentDbID
		if loser.Side() == model.Local {
			loser.DbNode.LocalName = loser.MoveOrigin.OldName
		} else {
			loser.DbNode.RemoteName = loser.MoveOrigin.OldName
		}
		if err := db.Update(loser.DbNode); err != nil {
			return Resolution{}, err
		}
	}
	return Resolution{Conflict: c, Kind: ResolveUndoMove}, nil
}

func pickMoveLoser(c Conflict) *updatetree.Node {
	if c.Node.Side() == model.Remote {
		if c.Other != nil {
			return c.Other
		}
		return nil
	}
	return c.Node
}

// resolveRenameLocal renames the local side's object to a conflicted-copy
// name, leaving the remote object untouched, mirroring the policy for
// Create-Create/Edit-Edit: never lose data, remote is rediscovered intact
// next pass.
func resolveRenameLocal(c Conflict) Resolution {
	local, _ := localAndRemote(c)
	if local == nil {
		return Resolution{Conflict: c, Kind: ResolveNone}
	}
	return Resolution{Conflict: c, Kind: ResolveRenameLocal, NewName: conflictedName(local)}
}

func localAndRemote(c Conflict) (local, remote *updatetree.Node) {
	if c.Node.Side() == model.Local {
		return c.Node, c.Other
	}
	return c.Other, c.Node
}

// conflictedName appends a short, collision-resistant suffix before the
// extension, e.g. "report (conflict 3f9a1c2b).txt".
func conflictedName(n *updatetree.Node) string {
	name := string(n.NodeID)
	if n.Item != nil {
		name = n.Item.Name
	}
	base, ext := name, ""
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			ext = name[i:]
			base = name[:i]
			break
		}
	}
	return fmt.Sprintf("%s (conflict %s)%s", base, uuid.New().String()[:8], ext)
}

// rescueModifiedDescendants walks the local counterpart of node's subtree
// for locally-edited items not yet synchronized and flags them for rescue;
// S6 reads Node.Rescue when assembling operations and routes anything still
// dirty to the rescue folder instead of letting it follow the enclosing
// delete. No DB mutation happens here since the subtree's rows are about to
// be removed by the delete's own propagation.
func rescueModifiedDescendants(node *updatetree.Node) {
	local := node
	if node.Side() != model.Local {
		local = node.Other
	}
	if local == nil {
		return
	}

	var walk func(n *updatetree.Node)
	walk = func(n *updatetree.Node) {
		if n.Item != nil && n.Events.Has(fsop.EventEdit) {
			n.Rescue = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(local)
}
