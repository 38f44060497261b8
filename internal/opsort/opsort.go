// Package opsort implements S7, the Operation Sorter: it takes the
// unordered SyncOperation list S6 produced and reorders it so that, as far
// as a single linear pass allows, every operation's prerequisites already
// ran by the time it executes (spec §4.7). It repeatedly applies a fixed
// set of "X before Y" rules until none of them moves anything, then checks
// whether the rules pushed two operations into a dependency cycle; if they
// did, it resolves the cycle with a temporary rename and asks the caller to
// restart the pass.
package opsort

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
)

// Result is the outcome of one sort pass.
type Result struct {
	// Ops is the ordered operation list. When Restart is set, Ops is only
	// the safe-to-run prefix; the rest must wait for the next pass.
	Ops []*opgen.SyncOperation

	// Restart means the caller must re-run the whole S1-S7 pipeline after
	// executing Ops: either a dependency cycle was broken with a renaming
	// operation, or the leading move could not be scheduled first and the
	// tail of the list was deferred.
	Restart bool
}

// pair is one "opFirst must run before opSecond" dependency recorded while
// reordering, used afterwards to detect a cycle (cyclefinder.cpp).
type pair struct {
	first, second *opgen.SyncOperation
}

// list is the mutable working copy of the operation order plus the
// dependency pairs accumulated while fixing it.
type list struct {
	ops         []*opgen.SyncOperation
	reorderings []pair
	changed     bool
}

// Sort repeatedly applies the nine ordering rules to ops until a fixed
// point is reached, detects and breaks any cycle the rules created, and
// filters an impossible leading move, returning the final schedule.
func Sort(ops []*opgen.SyncOperation) (*Result, error) {
	l := &list{ops: append([]*opgen.SyncOperation(nil), ops...)}

	for {
		l.changed = false
		fixDeleteBeforeMove(l)
		fixMoveBeforeCreate(l)
		fixMoveBeforeDelete(l)
		fixCreateBeforeMove(l)
		fixDeleteBeforeCreate(l)
		fixMoveBeforeMoveOccupied(l)
		fixCreateBeforeCreate(l)
		fixEditBeforeMove(l)
		fixMoveBeforeMoveHierarchyFlip(l)

		if !l.changed {
			break
		}
		if cyc, ok := findCompleteCycle(l.reorderings); ok {
			resolution, ok := breakCycle(cyc)
			if !ok {
				return nil, fmt.Errorf("opsort: found an ordering cycle with no delete or move to break it on")
			}
			return &Result{Ops: []*opgen.SyncOperation{resolution}, Restart: true}, nil
		}
	}

	if reshuffled, truncated := fixImpossibleFirstMove(l.ops); truncated {
		return &Result{Ops: reshuffled, Restart: true}, nil
	}

	return &Result{Ops: l.ops}, nil
}

// indexOf returns op's position in l.ops, or -1.
func (l *list) indexOf(op *opgen.SyncOperation) int {
	for i, o := range l.ops {
		if o == op {
			return i
		}
	}
	return -1
}

// moveFirstAfterSecond guarantees opSecond already ran by the time opFirst
// starts: if opFirst currently sits before opSecond in the schedule, it is
// spliced out and reinserted right after opSecond, and the dependency is
// recorded so a later fixed-point pass can detect a cycle (kDrive's
// moveFirstAfterSecond/addPairToReorderings).
func moveFirstAfterSecond(l *list, opFirst, opSecond *opgen.SyncOperation) {
	if opFirst == opSecond {
		return
	}
	firstIdx := l.indexOf(opFirst)
	secondIdx := l.indexOf(opSecond)
	if firstIdx < 0 || secondIdx < 0 || firstIdx >= secondIdx {
		return
	}

	l.ops = append(l.ops[:firstIdx], l.ops[firstIdx+1:]...)
	secondIdx = l.indexOf(opSecond)
	l.ops = append(l.ops[:secondIdx+1], append([]*opgen.SyncOperation{opFirst}, l.ops[secondIdx+1:]...)...)

	l.changed = true
	addPairToReorderings(l, opSecond, opFirst)
}

func addPairToReorderings(l *list, op, dependsOn *opgen.SyncOperation) {
	p := pair{first: op, second: dependsOn}
	for _, existing := range l.reorderings {
		if existing == p {
			return
		}
	}
	l.reorderings = append(l.reorderings, p)
}

// parentDbID returns the DB id of op's affected node's parent, or 0 if
// either side of that relationship is still unsynced.
func parentDbID(op *opgen.SyncOperation) model.DbNodeID {
	if op.AffectedNode == nil || op.AffectedNode.Parent == nil {
		return 0
	}
	return op.AffectedNode.Parent.DbID
}

// moveOriginParentDbID returns the DB id of the folder a Move operation's
// node used to live in, before the move.
func moveOriginParentDbID(op *opgen.SyncOperation) model.DbNodeID {
	if op.AffectedNode == nil || op.AffectedNode.MoveOrigin == nil || op.AffectedNode.MoveOrigin.OldParentDbID == nil {
		return 0
	}
	return *op.AffectedNode.MoveOrigin.OldParentDbID
}

func affectedName(op *opgen.SyncOperation) string {
	if op.NewName != "" {
		return op.NewName
	}
	if op.AffectedNode != nil && op.AffectedNode.Item != nil {
		return op.AffectedNode.Item.Name
	}
	return ""
}

func isDirectory(op *opgen.SyncOperation) bool {
	return op.AffectedNode != nil && op.AffectedNode.Item != nil && op.AffectedNode.Item.Type == model.Directory
}

// newTempName appends a short random suffix to break a naming collision,
// mirroring breakCycle's "generateRandomStringAlphaNum" rename.
func newTempName(base string) string {
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8])
}
