package opsort

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
	"github.com/openmined/syncengine/internal/updatetree"
)

// findCompleteCycle walks the recorded "first must run before second" pairs
// looking for a chain that loops back on itself: start a chain at some
// pair, repeatedly extend it by finding another pair whose first element
// equals the chain's current tail, and stop either when the chain closes
// (the tail equals the starting operation again) or no further pair
// extends it. A closed chain is a genuine ordering deadlock the nine rules
// cannot resolve (cyclefinder.cpp's findCompleteCycle). It is kept apart
// from the rules themselves, same as the original's standalone
// CycleFinder; Sort runs it after every rule round that reordered
// something.
func findCompleteCycle(reorderings []pair) ([]*opgen.SyncOperation, bool) {
	for i, start := range reorderings {
		remaining := make([]pair, 0, len(reorderings)-1)
		remaining = append(remaining, reorderings[:i]...)
		remaining = append(remaining, reorderings[i+1:]...)

		chain := []*opgen.SyncOperation{start.first, start.second}
		inChain := mapset.NewThreadUnsafeSet(start.first, start.second)
		target := start.first
		tail := start.second

		for {
			extended := false
			for j, p := range remaining {
				if p.first != tail {
					continue
				}
				chain = append(chain, p.second)
				inChain.Add(p.second)
				tail = p.second
				remaining = append(remaining[:j], remaining[j+1:]...)
				extended = true
				break
			}
			if tail == target || !extended {
				break
			}
		}

		if tail == target && inChain.Cardinality() > 1 {
			return chain[:len(chain)-1], true
		}
	}
	return nil, false
}

// breakCycle resolves a detected cycle by temporarily renaming whichever
// operation in it is a Delete, or failing that a Move, to a name nothing
// else in the cycle wants, then asking the caller to execute just that
// rename and restart the whole pass (breakCycle in operationsorterworker).
func breakCycle(chain []*opgen.SyncOperation) (*opgen.SyncOperation, bool) {
	var match *opgen.SyncOperation
	for _, op := range chain {
		if op.Type == opgen.OpDelete {
			match = op
			break
		}
	}
	if match == nil {
		for _, op := range chain {
			if op.Type == opgen.OpMove {
				match = op
				break
			}
		}
	}
	if match == nil || match.CorrespondingNode == nil {
		return nil, false
	}

	resolution := &opgen.SyncOperation{
		ID:                match.ID,
		Type:              opgen.OpMove,
		AffectedNode:      match.AffectedNode,
		TargetSide:        match.TargetSide,
		CorrespondingNode: match.CorrespondingNode,
		Omit:              match.Omit,
		NewName:           newTempName(correspondingName(match)),
	}
	return resolution, true
}

func correspondingName(op *opgen.SyncOperation) string {
	if op.CorrespondingNode != nil && op.CorrespondingNode.Item != nil {
		return op.CorrespondingNode.Item.Name
	}
	return affectedName(op)
}

// fixImpossibleFirstMove checks whether the schedule's first operation is a
// directory move whose destination is literally nested inside its own
// source path ("impossible move if dest = source + \"/\""): such a move
// cannot run first because the path it needs to move into doesn't exist
// until other queued moves vacate it. When that happens, only the prefix of
// ops up to the earliest move that must run before it (plus any omitted
// operations, which touch the DB only) is safe to execute this pass.
func fixImpossibleFirstMove(ops []*opgen.SyncOperation) ([]*opgen.SyncOperation, bool) {
	if len(ops) == 0 {
		return ops, false
	}
	first := ops[0]
	if first.Type != opgen.OpMove || !isDirectory(first) {
		return ops, false
	}
	if first.AffectedNode == nil || first.AffectedNode.Parent == nil || first.CorrespondingNode == nil {
		return ops, false
	}

	destParentOther := first.AffectedNode.Parent.Other
	sourceOther := first.AffectedNode.Other
	if destParentOther == nil || sourceOther == nil {
		return ops, false
	}
	if !isUnderDbID(destParentOther, sourceOther.DbID) && destParentOther.DbID != sourceOther.DbID {
		return ops, false
	}

	var moveChain []*updatetree.Node
	for cur := sourceOther.Parent; cur != nil && cur != destParentOther; cur = cur.Parent {
		if cur.Item != nil && cur.Item.Type == model.Directory && cur.Events.Has(fsop.EventMove) {
			moveChain = append(moveChain, cur)
		}
	}
	if len(moveChain) == 0 {
		return ops, false
	}

	var firstDependency *opgen.SyncOperation
	for _, op := range ops {
		for _, n := range moveChain {
			if op.AffectedNode == n {
				firstDependency = op
				break
			}
		}
		if firstDependency != nil {
			break
		}
	}
	if firstDependency == nil {
		return ops, false
	}

	targetSide := destParentOther.Side()
	var reshuffled []*opgen.SyncOperation
	for _, op := range ops {
		if op.TargetSide == targetSide || op.Omit {
			reshuffled = append(reshuffled, op)
		}
		if op == firstDependency {
			break
		}
	}
	return reshuffled, true
}
