// Package conflict implements S4 (Conflict Finder) and S5 (Conflict
// Resolver): it pairs up nodes across the two UpdateTrees that changed in
// ways that collide, ranks the collisions, and translates each one into the
// operations (or DB edits) that resolve it (spec §4.4, §4.5).
package conflict

import (
	"github.com/openmined/syncengine/internal/updatetree"
)

// Type is a recognised conflict kind, spec §4.4, in priority order (lower
// value wins on simultaneous detection).
type Type uint8

const (
	TypeNone Type = iota
	TypeMoveParentDelete
	TypeMoveDelete
	TypeCreateParentDelete
	TypeEditDelete
	TypeMoveMoveSource
	TypeMoveMoveDest
	TypeMoveCreate
	TypeMoveMoveCycle
	TypeCreateCreate
	TypeEditEdit
)

func (t Type) String() string {
	switch t {
	case TypeMoveParentDelete:
		return "MoveParentDelete"
	case TypeMoveDelete:
		return "MoveDelete"
	case TypeCreateParentDelete:
		return "CreateParentDelete"
	case TypeEditDelete:
		return "EditDelete"
	case TypeMoveMoveSource:
		return "MoveMoveSource"
	case TypeMoveMoveDest:
		return "MoveMoveDest"
	case TypeMoveCreate:
		return "MoveCreate"
	case TypeMoveMoveCycle:
		return "MoveMoveCycle"
	case TypeCreateCreate:
		return "CreateCreate"
	case TypeEditEdit:
		return "EditEdit"
	default:
		return "None"
	}
}

// priority returns the rank used by the queue: lower sorts first.
func (t Type) priority() int { return int(t) }

// Conflict pairs the node that triggered detection with its counterpart in
// the other tree.
type Conflict struct {
	Type  Type
	Node  *updatetree.Node // the node this conflict was discovered from
	Other *updatetree.Node // its counterpart in the other tree, may be nil
}

func (c Conflict) depth() int {
	d := 0
	for n := c.Node; n != nil && !n.IsRoot(); n = n.Parent {
		d++
	}
	return d
}

func (c Conflict) path() string { return c.Node.Path() }
