// Package consistency implements S3, the Consistency Checker: it walks the
// remote tree (and the local tree for length limits only, since local items
// already comply with local platform rules by definition) looking for names
// the target platform cannot represent and for sibling name clashes, and
// temporarily blacklists whatever it finds (spec §4.3).
package consistency

import (
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
	"github.com/openmined/syncengine/internal/updatetree"
)

// InconsistencyType classifies why a node was blacklisted.
type InconsistencyType uint8

const (
	InconsistencyNone InconsistencyType = iota
	InconsistencyForbiddenChar
	InconsistencyReservedName
	InconsistencyTrailingDotOrSpace
	InconsistencyNameTooLong
	InconsistencyPathTooLong
	InconsistencyNameClash
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyForbiddenChar:
		return "forbidden-char"
	case InconsistencyReservedName:
		return "reserved-name"
	case InconsistencyTrailingDotOrSpace:
		return "trailing-dot-or-space"
	case InconsistencyNameTooLong:
		return "name-too-long"
	case InconsistencyPathTooLong:
		return "path-too-long"
	case InconsistencyNameClash:
		return "name-clash"
	default:
		return "none"
	}
}

const (
	maxNameLength = 255
	maxPathLength = 1024
)

// forbiddenChars are illegal in a path component on Windows, the strictest
// of the three target platforms; rejecting them everywhere keeps a name
// portable across all replicas regardless of which OS runs locally.
var forbiddenChars = `<>:"/\|?*`

// reservedStems are Windows device names, case-insensitive, with or without
// an extension.
var reservedStems = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// BlacklistEntry is one node S3 removed from a tree this pass.
type BlacklistEntry struct {
	NodeID model.NodeID
	Side   model.Side
	Path   string
	Type   InconsistencyType
}

// Report is the outcome of one Check call.
type Report struct {
	Blacklisted []BlacklistEntry
}

// tmpBlacklistTTL is how long a consistency blacklist entry sticks before
// the node is eligible for re-evaluation, per spec §4.3 ("expires or the
// name changes").
const tmpBlacklistTTL = 24 * time.Hour

// Check walks tree looking for illegal names and sibling clashes, removing
// offending nodes from the tree and recording them in the sync DB's
// temporary blacklist. checkNameLengthOnly restricts the walk to the
// length-limit rules, used for the local-tree pass (spec §4.3).
func Check(tree *updatetree.UpdateTree, db *syncdb.DB, checkNameLengthOnly bool) (*Report, error) {
	report := &Report{}
	blacklisted := mapset.NewThreadUnsafeSet[model.NodeID]()

	var walkErr error
	tree.Walk(func(n *updatetree.Node) {
		if walkErr != nil || n.IsRoot() || n.Parent == nil || blacklisted.Contains(n.Parent.NodeID) {
			return
		}
		if n.Item == nil {
			return // already gone this pass
		}

		incType := classify(n.Item.Name, checkNameLengthOnly)
		if incType == InconsistencyNone {
			return
		}

		entry := BlacklistEntry{NodeID: n.NodeID, Side: tree.Side, Path: n.Path(), Type: incType}
		report.Blacklisted = append(report.Blacklisted, entry)
		blacklisted.Add(n.NodeID)

		if err := db.TmpBlacklistAdd(tree.Side, n.NodeID, incType.String(), time.Now().Add(tmpBlacklistTTL)); err != nil {
			walkErr = err
			return
		}
		tree.Remove(n.NodeID)
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if !checkNameLengthOnly {
		clashes, err := checkSiblingClashes(tree, db)
		if err != nil {
			return nil, err
		}
		report.Blacklisted = append(report.Blacklisted, clashes...)
	}

	return report, nil
}

func classify(name string, lengthOnly bool) InconsistencyType {
	if len(name) > maxNameLength {
		return InconsistencyNameTooLong
	}
	if lengthOnly {
		return InconsistencyNone
	}
	if strings.ContainsAny(name, forbiddenChars) {
		return InconsistencyForbiddenChar
	}
	for _, c := range name {
		if c < 0x20 {
			return InconsistencyForbiddenChar
		}
	}
	if strings.HasSuffix(name, " ") || strings.HasSuffix(name, ".") {
		return InconsistencyTrailingDotOrSpace
	}
	stem := name
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	if reservedStems[strings.ToLower(stem)] {
		return InconsistencyReservedName
	}
	return InconsistencyNone
}

// checkSiblingClashes finds, per parent, groups of >1 live children whose
// normalized names collide, keeping the oldest arrival (earliest snapshot
// CreatedAt; the order among equal times is not defined) and blacklisting
// the rest.
func checkSiblingClashes(tree *updatetree.UpdateTree, db *syncdb.DB) ([]BlacklistEntry, error) {
	var out []BlacklistEntry

	var walkErr error
	tree.Walk(func(parent *updatetree.Node) {
		if walkErr != nil {
			return
		}
		buckets := make(map[string][]*updatetree.Node)
		for _, c := range parent.Children {
			if c.Item == nil {
				continue
			}
			norm := model.NormalizedName(c.Item.Name)
			buckets[norm] = append(buckets[norm], c)
		}
		for _, group := range buckets {
			if len(group) < 2 {
				continue
			}
			sort.Slice(group, func(i, j int) bool {
				return arrivalTime(group[i]).Before(arrivalTime(group[j]))
			})
			for _, loser := range group[1:] {
				entry := BlacklistEntry{NodeID: loser.NodeID, Side: tree.Side, Path: loser.Path(), Type: InconsistencyNameClash}
				out = append(out, entry)
				if err := db.TmpBlacklistAdd(tree.Side, loser.NodeID, entry.Type.String(), time.Now().Add(tmpBlacklistTTL)); err != nil {
					walkErr = err
					return
				}
				tree.Remove(loser.NodeID)
			}
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

func arrivalTime(n *updatetree.Node) time.Time {
	if n.Item != nil {
		return n.Item.CreatedAt
	}
	return time.Time{}
}
