package conflict

import (
	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/updatetree"
)

// nameKey groups "new" nodes (no DB id yet, so no direct corresponding node)
// by where they landed, so Create/Move-into-new-name collisions can still
// be matched across trees.
type nameKey struct {
	parentDbID model.DbNodeID
	name       string
}

// LinkCorresponding wires each node's Other pointer to its counterpart in
// the opposite tree: nodes sharing a non-zero DbID are the same object seen
// from both replicas (spec §4.2, "the correspondingNodeInOtherTree
// contract"). Nodes with no DB id yet (pending Creates) are left unlinked;
// Find falls back to positional matching for those.
func LinkCorresponding(local, remote *updatetree.UpdateTree) {
	byDbID := make(map[model.DbNodeID]*updatetree.Node)
	local.Walk(func(n *updatetree.Node) {
		if n.DbID != 0 {
			byDbID[n.DbID] = n
		}
	})
	remote.Walk(func(n *updatetree.Node) {
		if n.DbID == 0 {
			return
		}
		if other, ok := byDbID[n.DbID]; ok {
			n.Other = other
			other.Other = n
		}
	})
}

// Find walks both trees and returns every detected conflict, pseudo-conflicts
// elided, ready to be pushed onto a Queue (spec §4.4).
func Find(local, remote *updatetree.UpdateTree) []Conflict {
	var out []Conflict
	seen := make(map[[2]model.NodeID]bool)

	emit := func(c Conflict) {
		var otherID model.NodeID
		if c.Other != nil {
			otherID = c.Other.NodeID
		}
		key := [2]model.NodeID{c.Node.NodeID, otherID}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	byNameKeyLocal := indexByLandingSpot(local)
	byNameKeyRemote := indexByLandingSpot(remote)

	local.Walk(func(n *updatetree.Node) {
		if c, ok := classify(n, n.Other, local, remote, byNameKeyRemote); ok {
			emit(c)
		}
	})
	remote.Walk(func(n *updatetree.Node) {
		if c, ok := classify(n, n.Other, remote, local, byNameKeyLocal); ok {
			emit(c)
		}
	})

	return out
}

func indexByLandingSpot(tree *updatetree.UpdateTree) map[nameKey]*updatetree.Node {
	idx := make(map[nameKey]*updatetree.Node)
	tree.Walk(func(n *updatetree.Node) {
		if n.IsRoot() || n.Item == nil {
			return
		}
		if !n.Events.Has(fsop.EventCreate) && !n.Events.Has(fsop.EventMove) {
			return
		}
		idx[nameKey{parentDbID: n.Parent.DbID, name: model.NormalizedName(n.Item.Name)}] = n
	})
	return idx
}

// classify determines whether node (on thisTree) conflicts with its
// counterpart, checking the priority-ordered rules of spec §4.4.
func classify(node, other *updatetree.Node, thisTree, otherTree *updatetree.UpdateTree, otherLandingSpots map[nameKey]*updatetree.Node) (Conflict, bool) {
	if node.IsRoot() || node.Events == 0 {
		return Conflict{}, false
	}

	// Rule 1/3: moved or created into a directory deleted on the other side.
	if node.Events.Has(fsop.EventMove) || node.Events.Has(fsop.EventCreate) {
		if parentOther := node.Parent.Other; parentOther != nil && parentOther.Events.Has(fsop.EventDelete) {
			t := TypeMoveParentDelete
			if node.Events.Has(fsop.EventCreate) && !node.Events.Has(fsop.EventMove) {
				t = TypeCreateParentDelete
			}
			return Conflict{Type: t, Node: node, Other: parentOther}, true
		}
	}

	if other != nil {
		// Rule 2: same node moved here, deleted there.
		if node.Events.Has(fsop.EventMove) && other.Events.Has(fsop.EventDelete) {
			return Conflict{Type: TypeMoveDelete, Node: node, Other: other}, true
		}
		// Rule 4: edited here, deleted there.
		if node.Events.Has(fsop.EventEdit) && other.Events.Has(fsop.EventDelete) && !isPseudoOmit(node) {
			return Conflict{Type: TypeEditDelete, Node: node, Other: other}, true
		}
		// Rule 5: both sides moved the same node to different (parent, name).
		if node.Events.Has(fsop.EventMove) && other.Events.Has(fsop.EventMove) {
			if !samePseudoMove(node, other) {
				if cyc, ok := detectCycle(node, other); ok {
					return cyc, true
				}
				return Conflict{Type: TypeMoveMoveSource, Node: node, Other: other}, true
			}
			return Conflict{}, false // pseudo-conflict
		}
		// Rule 9: both created/edited, but pseudo-conflict if content/dir match.
		if node.Events.Has(fsop.EventCreate) && other.Events.Has(fsop.EventCreate) {
			if isPseudoCreateCreate(node, other) {
				return Conflict{}, false
			}
			return Conflict{Type: TypeCreateCreate, Node: node, Other: other}, true
		}
		if node.Events.Has(fsop.EventEdit) && other.Events.Has(fsop.EventEdit) && !node.Events.Has(fsop.EventCreate) {
			if isPseudoEditEdit(node, other) {
				return Conflict{}, false
			}
			return Conflict{Type: TypeEditEdit, Node: node, Other: other}, true
		}
	}

	// Rule 6/7: landed on a (parent, name) taken by something new on the
	// other side (no DB-id correspondence, so look up by landing spot).
	if node.Events.Has(fsop.EventMove) || node.Events.Has(fsop.EventCreate) {
		if node.Item != nil {
			key := nameKey{parentDbID: dbIDOrZero(node.Parent.Other), name: model.NormalizedName(node.Item.Name)}
			if rival := otherLandingSpots[key]; rival != nil && rival.NodeID != safeOtherID(node) {
				t := TypeMoveCreate
				if node.Events.Has(fsop.EventMove) && rival.Events.Has(fsop.EventMove) {
					t = TypeMoveMoveDest
				}
				return Conflict{Type: t, Node: node, Other: rival}, true
			}
		}
	}

	return Conflict{}, false
}

func safeOtherID(n *updatetree.Node) model.NodeID {
	if n.Other == nil {
		return ""
	}
	return n.Other.NodeID
}

func dbIDOrZero(n *updatetree.Node) model.DbNodeID {
	if n == nil {
		return 0
	}
	return n.DbID
}

// isPseudoOmit reports whether node's only edit is the creation-time-only
// drift S1 flags for omission (spec §9 Open Question 1): such an edit never
// competes with a delete on the other side.
func isPseudoOmit(node *updatetree.Node) bool {
	return node.OmitCreateTimeOnly && node.Events == fsop.EventEdit
}

// samePseudoMove reports both sides moving the same DB node to the same
// (parent, name) modulo normalization (spec §4.4 pseudo-conflict rule 2).
func samePseudoMove(a, b *updatetree.Node) bool {
	if a.Item == nil || b.Item == nil {
		return false
	}
	if a.Parent.Other != b.Parent {
		return false
	}
	return model.NormalizedName(a.Item.Name) == model.NormalizedName(b.Item.Name)
}

// isPseudoCreateCreate reports both sides creating the same directory at
// the same relative path, or a file with equal content (spec §4.4 rule 1/3).
func isPseudoCreateCreate(a, b *updatetree.Node) bool {
	if a.Item == nil || b.Item == nil || a.Item.Type != b.Item.Type {
		return false
	}
	if a.Item.Type == model.Directory {
		return model.NormalizedName(a.Item.Name) == model.NormalizedName(b.Item.Name)
	}
	return sameContent(a.Item, b.Item)
}

// isPseudoEditEdit reports both sides editing a file to equal content
// (spec §4.4 rule 3).
func isPseudoEditEdit(a, b *updatetree.Node) bool {
	if a.Item == nil || b.Item == nil {
		return false
	}
	return sameContent(a.Item, b.Item)
}

func sameContent(a, b *model.SnapshotItem) bool {
	if a.Checksum != "" && b.Checksum != "" {
		return a.Checksum == b.Checksum
	}
	return a.Size == b.Size && a.ModifiedAt.Equal(b.ModifiedAt)
}

// detectCycle reports whether a and b's combined move would form a
// parent/child cycle: a moved into b's old subtree while b moved into a's
// old subtree (spec §4.4 rule 8), compared via DB-relative ancestry.
func detectCycle(a, b *updatetree.Node) (Conflict, bool) {
	if isAncestorByDbID(a, b.Parent) && isAncestorByDbID(b, a.Parent) {
		return Conflict{Type: TypeMoveMoveCycle, Node: a, Other: b}, true
	}
	return Conflict{}, false
}

func isAncestorByDbID(ancestor, n *updatetree.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.DbID != 0 && cur.DbID == ancestor.DbID {
			return true
		}
	}
	return false
}
