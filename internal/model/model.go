// Package model holds the shared data types of the sync pipeline: node
// identifiers, snapshot items and the per-side Snapshot that the FS-op
// computer diffs against the sync DB.
package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Side identifies which replica a piece of state belongs to.
type Side uint8

const (
	Local Side = iota
	Remote
)

func (s Side) String() string {
	if s == Local {
		return "local"
	}
	return "remote"
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Local {
		return Remote
	}
	return Local
}

// ItemType is the kind of filesystem entry a SnapshotItem describes.
type ItemType uint8

const (
	File ItemType = iota
	Directory
	Symlink
)

func (t ItemType) String() string {
	switch t {
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "file"
	}
}

// NodeID is the opaque, per-side stable identifier of an item: an inode-like
// id on the local side, a drive-assigned id on the remote side. Never
// compared across sides.
type NodeID string

// DbNodeID is the sync DB's own surrogate key, stable across both sides.
type DbNodeID int64

// SnapshotItem is a single entry of a per-side current-state tree.
type SnapshotItem struct {
	ID           NodeID
	ParentID     NodeID // empty for the sync root
	Name         string
	Type         ItemType
	Size         int64
	CreatedAt    time.Time
	ModifiedAt   time.Time
	Checksum     string // content hash, empty when unknown (e.g. directories)
	IsLink       bool
}

// NormalizedName returns the name folded the way sibling-clash and rename
// detection compare names: Unicode case-fold plus NFC-adjacent simple
// lowering. It intentionally does not pull in golang.org/x/text/unicode/norm
// to stay dependency-light; names are expected to already be NFC on both
// replicas, which holds for every platform this engine targets.
func NormalizedName(name string) string {
	return strings.Map(unicode.ToLower, name)
}

// Snapshot is an immutable per-side map of current filesystem state taken at
// the start of a pass. Once built it must not be mutated; S1 takes a
// reference, not a copy, and relies on this.
type Snapshot struct {
	Side   Side
	RootID NodeID
	Items  map[NodeID]*SnapshotItem
}

// NewSnapshot creates an empty snapshot; items are added with Add.
func NewSnapshot(side Side, rootID NodeID) *Snapshot {
	return &Snapshot{
		Side:   side,
		RootID: rootID,
		Items:  make(map[NodeID]*SnapshotItem),
	}
}

// Add inserts an item into the snapshot being built.
func (s *Snapshot) Add(item *SnapshotItem) {
	s.Items[item.ID] = item
}

// Get returns the item with the given id, or nil.
func (s *Snapshot) Get(id NodeID) *SnapshotItem {
	return s.Items[id]
}

// Children returns the live children of parent, in no particular order.
func (s *Snapshot) Children(parent NodeID) []*SnapshotItem {
	var out []*SnapshotItem
	for _, it := range s.Items {
		if it.ParentID == parent {
			out = append(out, it)
		}
	}
	return out
}

// Validate checks the snapshot invariants from spec §3: every non-root
// item's parent is present, and (parentId, normalizedName) is unique among
// live children.
func (s *Snapshot) Validate() error {
	seen := make(map[NodeID]map[string]NodeID)
	for id, item := range s.Items {
		if item.ParentID != "" {
			if _, ok := s.Items[item.ParentID]; !ok {
				return fmt.Errorf("snapshot(%s): item %s has dangling parent %s", s.Side, id, item.ParentID)
			}
		}
		bucket, ok := seen[item.ParentID]
		if !ok {
			bucket = make(map[string]NodeID)
			seen[item.ParentID] = bucket
		}
		norm := NormalizedName(item.Name)
		if existing, dup := bucket[norm]; dup {
			return fmt.Errorf("snapshot(%s): sibling name clash under %s: %s and %s both normalize to %q",
				s.Side, item.ParentID, existing, id, norm)
		}
		bucket[norm] = id
	}
	return nil
}
