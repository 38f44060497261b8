package opsort

import (
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
	"github.com/openmined/syncengine/internal/updatetree"
)

// The nine rules below each look for one specific ordering hazard between
// two operation types and, when found, push the dependent operation after
// the one it relies on (operationsorterfilter.h / operationsorterworker.cpp
// fix* methods). They run to a fixed point in Sort's main loop since fixing
// one hazard can expose another.

func byType(l *list, t opgen.OpType) []*opgen.SyncOperation {
	var out []*opgen.SyncOperation
	for _, op := range l.ops {
		if op.Type == t {
			out = append(out, op)
		}
	}
	return out
}

// fixDeleteBeforeMove: a move landing on a (parent, name) occupied by
// something being deleted this pass must wait for that delete, so the
// delete frees the name first.
func fixDeleteBeforeMove(l *list) {
	deletes := byType(l, opgen.OpDelete)
	moves := byType(l, opgen.OpMove)
	if len(deletes) == 0 || len(moves) == 0 {
		return
	}
	for _, del := range deletes {
		for _, mv := range moves {
			if mv.TargetSide != del.TargetSide {
				continue
			}
			if parentDbID(del) != 0 && parentDbID(del) == parentDbID(mv) && affectedName(del) == affectedName(mv) {
				moveFirstAfterSecond(l, mv, del)
			}
		}
	}
}

// fixMoveBeforeCreate: a create landing where a move is about to vacate, or
// a move whose destination name collides with a pending create, must run
// after the move has cleared or claimed the name.
func fixMoveBeforeCreate(l *list) {
	moves := byType(l, opgen.OpMove)
	creates := byType(l, opgen.OpCreate)
	for _, mv := range moves {
		for _, cr := range creates {
			if cr.TargetSide != mv.TargetSide {
				continue
			}
			if moveOriginParentDbID(mv) != 0 && moveOriginParentDbID(mv) == parentDbID(cr) && affectedName(mv) == affectedName(cr) {
				moveFirstAfterSecond(l, cr, mv)
				continue
			}
			if mv.CorrespondingNode != nil && mv.CorrespondingNode.Item != nil && mv.CorrespondingNode.Item.Name == affectedName(cr) {
				moveFirstAfterSecond(l, cr, mv)
			}
		}
	}
}

// fixMoveBeforeDelete: deleting a directory must wait for anything being
// moved out of it, so the move doesn't vanish along with its source.
func fixMoveBeforeDelete(l *list) {
	deletes := byType(l, opgen.OpDelete)
	moves := byType(l, opgen.OpMove)
	for _, del := range deletes {
		if !isDirectory(del) || del.AffectedNode == nil {
			continue
		}
		for _, mv := range moves {
			if mv.TargetSide != del.TargetSide {
				continue
			}
			origin := moveOriginParentDbID(mv)
			var inside func(n *updatetree.Node) bool
			inside = func(n *updatetree.Node) bool {
				found := n.DbID == origin
				for _, c := range n.Children {
					found = found || inside(c)
				}
				return found
			}
			if origin != 0 && inside(del.AffectedNode) {
				moveFirstAfterSecond(l, del, mv)
			}
		}
	}
}

// fixCreateBeforeMove: creating a directory must happen before anything is
// moved into it.
func fixCreateBeforeMove(l *list) {
	creates := byType(l, opgen.OpCreate)
	moves := byType(l, opgen.OpMove)
	for _, cr := range creates {
		if !isDirectory(cr) || cr.AffectedNode == nil {
			continue
		}
		for _, mv := range moves {
			if mv.TargetSide != cr.TargetSide {
				continue
			}
			if mv.AffectedNode != nil && mv.AffectedNode.Parent == cr.AffectedNode {
				moveFirstAfterSecond(l, mv, cr)
			}
		}
	}
}

// fixDeleteBeforeCreate: a create landing on a (parent, name) a delete is
// about to free must wait for that delete.
func fixDeleteBeforeCreate(l *list) {
	deletes := byType(l, opgen.OpDelete)
	creates := byType(l, opgen.OpCreate)
	for _, del := range deletes {
		for _, cr := range creates {
			if cr.TargetSide != del.TargetSide {
				continue
			}
			if parentDbID(del) != 0 && parentDbID(del) == parentDbID(cr) && affectedName(del) == affectedName(cr) {
				moveFirstAfterSecond(l, cr, del)
			}
		}
	}
}

// fixMoveBeforeMoveOccupied: a move into a name another move is vacating
// must wait for the vacating move.
func fixMoveBeforeMoveOccupied(l *list) {
	moves := byType(l, opgen.OpMove)
	for _, mv1 := range moves {
		for _, mv2 := range moves {
			if mv1 == mv2 || mv1.TargetSide != mv2.TargetSide {
				continue
			}
			if moveOriginParentDbID(mv2) == 0 {
				continue
			}
			if moveOriginParentDbID(mv2) == parentDbID(mv1) && affectedName(mv2) == affectedName(mv1) {
				moveFirstAfterSecond(l, mv1, mv2)
			}
		}
	}
}

// fixCreateBeforeCreate: a child create must follow its own parent's
// create, so nested brand-new folders fill in top-down.
func fixCreateBeforeCreate(l *list) {
	creates := byType(l, opgen.OpCreate)

	indexOf := make(map[*opgen.SyncOperation]int, len(l.ops))
	for i, op := range l.ops {
		indexOf[op] = i
	}

	for _, cr := range creates {
		if cr.AffectedNode == nil || cr.AffectedNode.Parent == nil {
			continue
		}
		parent := cr.AffectedNode.Parent
		for _, ancestorOp := range creates {
			if ancestorOp == cr || ancestorOp.AffectedNode != parent {
				continue
			}
			if indexOf[ancestorOp] > indexOf[cr] {
				moveFirstAfterSecond(l, cr, ancestorOp)
			}
		}
	}
}

// fixEditBeforeMove: a move already carries the node's final name, so any
// edit of the same node always runs after its move.
func fixEditBeforeMove(l *list) {
	edits := byType(l, opgen.OpEdit)
	moves := byType(l, opgen.OpMove)
	for _, ed := range edits {
		for _, mv := range moves {
			if mv.TargetSide != ed.TargetSide {
				continue
			}
			if ed.AffectedNode == nil || mv.AffectedNode == nil || ed.AffectedNode.NodeID != mv.AffectedNode.NodeID {
				continue
			}
			moveFirstAfterSecond(l, ed, mv)
		}
	}
}

// fixMoveBeforeMoveHierarchyFlip: if directory x's destination lands under
// directory y's destination, but y's source used to live under x's source,
// the two moves would flip their hierarchy; x must wait for y.
func fixMoveBeforeMoveHierarchyFlip(l *list) {
	moves := byType(l, opgen.OpMove)
	for _, x := range moves {
		if !isDirectory(x) || x.AffectedNode == nil {
			continue
		}
		for _, y := range moves {
			if x == y || !isDirectory(y) || y.AffectedNode == nil || x.TargetSide != y.TargetSide {
				continue
			}
			xBelowY := isUnderDbID(x.AffectedNode, y.AffectedNode.DbID)
			ySourceBelowXSource := moveOriginParentDbID(y) != 0 && moveOriginParentDbID(y) == x.AffectedNode.DbID
			if xBelowY && ySourceBelowXSource {
				moveFirstAfterSecond(l, x, y)
			}
		}
	}
}

// isUnderDbID reports whether n, or one of its ancestors, has DB id target.
func isUnderDbID(n *updatetree.Node, target model.DbNodeID) bool {
	if target == 0 {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.DbID == target {
			return true
		}
	}
	return false
}
