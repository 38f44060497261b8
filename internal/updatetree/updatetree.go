// Package updatetree implements S2, the Update-Tree Builder: it folds one
// side's S1 OperationSet onto that side's snapshot to produce a single
// in-memory tree of every live object plus every pending change, so later
// stages (S3-S7) can walk parent-before-child and ask "what happened under
// this subtree" without re-querying the DB.
package updatetree

import (
	"fmt"

	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
)

// Node is one object's view in an UpdateTree: its current snapshot state (if
// still live), its last-agreed DB row (if any), and the change events S1
// found for it this pass.
type Node struct {
	NodeID model.NodeID
	DbID   model.DbNodeID // 0 if the object was never seen by the DB (new Create)

	Parent   *Node
	Children map[model.NodeID]*Node

	Item   *model.SnapshotItem // nil if deleted
	DbNode *syncdb.DbNode      // nil if never persisted

	Events fsop.ChangeEvent
	MoveOrigin *fsop.MoveOrigin

	OmitCreateTimeOnly bool

	// Rescue is set by the conflict resolver (S5) on a locally-edited node
	// whose enclosing directory is about to be deleted: S6 emits a rescue
	// move for it instead of letting the delete silently take the edit.
	Rescue bool

	// Other links to this node's counterpart in the opposite side's tree,
	// set by conflict.LinkCorresponding (S4) once both trees exist.
	Other *Node

	side model.Side // only meaningful on the root; read via treeSide()
}

// IsRoot reports whether n is the synthetic root of its tree.
func (n *Node) IsRoot() bool { return n.Parent == nil }

// Side returns which replica n's tree belongs to.
func (n *Node) Side() model.Side { return n.treeSide() }

// HasChanges reports whether n or any of its descendants carry a change
// event.
func (n *Node) HasChanges() bool {
	if n.Events != 0 {
		return true
	}
	for _, c := range n.Children {
		if c.HasChanges() {
			return true
		}
	}
	return false
}

// Path reconstructs n's path from the tree root using live snapshot names,
// falling back to the DB's last-known name for a deleted node.
func (n *Node) Path() string {
	if n.IsRoot() {
		return ""
	}
	name := n.name()
	parentPath := n.Parent.Path()
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

func (n *Node) name() string {
	if n.Item != nil {
		return n.Item.Name
	}
	if n.DbNode != nil {
		return n.DbNode.Name(n.treeSide())
	}
	return string(n.NodeID)
}

func (n *Node) treeSide() model.Side {
	t := n
	for t.Parent != nil {
		t = t.Parent
	}
	return t.side
}

// UpdateTree is one side's complete object graph for a single pass, built by
// Build from a Snapshot and that side's S1 OperationSet.
type UpdateTree struct {
	Side model.Side
	Root *Node

	byID map[model.NodeID]*Node
}

// Get returns the node for id, or nil.
func (t *UpdateTree) Get(id model.NodeID) *Node { return t.byID[id] }

// Remove detaches id's node from its parent and from the tree's lookup
// index, used by S3 to drop a blacklisted node (and implicitly its
// subtree, which becomes unreachable from Walk) from further consideration
// this pass.
func (t *UpdateTree) Remove(id model.NodeID) {
	n, ok := t.byID[id]
	if !ok {
		return
	}
	if n.Parent != nil {
		delete(n.Parent.Children, id)
	}
	delete(t.byID, id)
}

// Walk visits every node in the tree in parent-before-child order.
func (t *UpdateTree) Walk(fn func(*Node)) {
	var visit func(*Node)
	visit = func(n *Node) {
		fn(n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.Root)
}

// Build constructs the UpdateTree for one side from its live snapshot plus
// the S1 Result computed against it (spec §4.2).
//
// Rules applied while folding:
//  1. Every live snapshot item becomes a Node, wired to its parent.
//  2. A Change from the Result is attached to the Node with the same
//     NodeID, carrying its Events/MoveOrigin/OmitCreateTimeOnly.
//  3. A pure Delete (no live snapshot entry) still gets a Node, parented
//     under its last DB-known parent, so S4/S6 can see "this subtree is
//     gone" without consulting the DB again.
//  4. A Create whose id collides with a DB row under a different parent is
//     a rename-in-place from the builder's point of view; S1 already
//     encodes that as Move, so Build never needs to special-case it here.
func Build(side model.Side, snapshot *model.Snapshot, result *fsop.Result, db *syncdb.DB) (*UpdateTree, error) {
	tree := &UpdateTree{Side: side, byID: make(map[model.NodeID]*Node)}

	root := &Node{NodeID: snapshot.RootID, Children: make(map[model.NodeID]*Node)}
	root.side = side
	tree.Root = root
	tree.byID[snapshot.RootID] = root

	// Pass 1: materialize every live item as a node, without wiring parents
	// yet (a child can be visited before its parent in map iteration order).
	for id, item := range snapshot.Items {
		if id == snapshot.RootID {
			continue
		}
		tree.byID[id] = &Node{NodeID: id, Item: item, Children: make(map[model.NodeID]*Node)}
	}

	// Pass 2: wire parents for live items.
	for id, item := range snapshot.Items {
		if id == snapshot.RootID {
			continue
		}
		n := tree.byID[id]
		parent, ok := tree.byID[item.ParentID]
		if !ok {
			return nil, fmt.Errorf("updatetree(%s): item %s has unresolved parent %s", side, id, item.ParentID)
		}
		n.Parent = parent
		parent.Children[id] = n
	}

	// Pass 3: attach DB rows and pending changes to existing nodes, and
	// materialize pure-Delete nodes that no longer have a live snapshot
	// entry, parented under their last DB-known location.
	for id, change := range result.Ops {
		n, ok := tree.byID[id]
		if !ok {
			n = &Node{NodeID: id, Children: make(map[model.NodeID]*Node)}
			tree.byID[id] = n

			parent := root
			if change.DbNode != nil && change.DbNode.ParentDbID != nil {
				if p := findByDbID(tree, *change.DbNode.ParentDbID); p != nil {
					parent = p
				} else if db != nil {
					// A live parent untouched by S1 gets its DB id only in
					// pass 4; find it through its per-side id instead.
					row, err := db.GetByID(*change.DbNode.ParentDbID)
					if err != nil {
						return nil, err
					}
					if row != nil && tree.byID[row.ID(side)] != nil {
						parent = tree.byID[row.ID(side)]
					}
				}
			}
			n.Parent = parent
			parent.Children[id] = n
		}

		n.DbNode = change.DbNode
		if change.DbNode != nil {
			n.DbID = change.DbNode.DbID
		}
		n.Events = change.Events
		n.MoveOrigin = change.MoveOrigin
		n.OmitCreateTimeOnly = change.OmitCreateTimeOnly
	}

	// Pass 4: for live nodes untouched by S1, still attach their DB row (if
	// any) so S3/S4 can compare live state against last-agreed state.
	for id, n := range tree.byID {
		if n.DbNode != nil || id == snapshot.RootID {
			continue
		}
		row, err := db.GetByNodeID(side, id)
		if err != nil {
			return nil, err
		}
		if row != nil {
			n.DbNode = row
			n.DbID = row.DbID
		}
	}

	return tree, nil
}

func findByDbID(t *UpdateTree, dbID model.DbNodeID) *Node {
	var found *Node
	t.Walk(func(n *Node) {
		if n.DbID == dbID {
			found = n
		}
	})
	return found
}
