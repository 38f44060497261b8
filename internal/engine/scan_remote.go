package engine

import (
	"context"
	"fmt"

	"github.com/openmined/syncengine/internal/driveapi"
	"github.com/openmined/syncengine/internal/model"
)

// RemoteScanner builds a model.Snapshot of one drive folder's subtree by
// paginating ListChildren breadth-first (spec §4.1's remote-side scan,
// spec §6's cursor-paginated listing).
type RemoteScanner struct {
	drive  *driveapi.Client
	rootID string
}

func NewRemoteScanner(drive *driveapi.Client, rootID string) *RemoteScanner {
	return &RemoteScanner{drive: drive, rootID: rootID}
}

// Scan walks the remote tree starting at rootID and returns a Snapshot
// addressed the same way the local scanner's is: ParentID empty for items
// directly under the root.
func (s *RemoteScanner) Scan(ctx context.Context) (*model.Snapshot, error) {
	// Snapshot.RootID is always the empty sentinel, matching the local
	// scanner's convention (model.Snapshot.Validate only special-cases "");
	// s.rootID is a separate, driveapi-only concept: the folder id the walk
	// actually starts from.
	snap := model.NewSnapshot(model.Remote, "")

	type dir struct{ id string }
	queue := []dir{{id: s.rootID}}

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		cursor := ""
		for {
			page, err := s.drive.ListChildren(ctx, d.id, cursor)
			if err != nil {
				return nil, fmt.Errorf("remote scan: list %s: %w", d.id, err)
			}
			for _, info := range page.Items {
				parentID := model.NodeID(info.ParentID)
				if info.ParentID == s.rootID {
					parentID = ""
				}
				item := &model.SnapshotItem{
					ID:         model.NodeID(info.ID),
					ParentID:   parentID,
					Name:       info.Name,
					Size:       info.Size,
					ModifiedAt: info.ModTime,
					Checksum:   info.Checksum,
				}
				if info.Type == driveapi.TypeDirectory {
					item.Type = model.Directory
					queue = append(queue, dir{id: info.ID})
				} else {
					item.Type = model.File
				}
				snap.Add(item)
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	return snap, nil
}
