package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/utils"
)

// localNodeID is the local side's identity for a path: the inode number,
// the same derivation the executor backfills into the DB after creating an
// entry (see internal/executor's statNodeID), so a scan always agrees with
// what a just-finished job already wrote.
func localNodeID(path string) (model.NodeID, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return model.NodeID(fmt.Sprintf("%d", st.Ino)), nil
	}
	return model.NodeID(path), nil
}

// localRootID is the sentinel standing for the sync directory itself; no
// inode is stored for it since the root never appears as a child's parent
// comparison target except by equality with this value.
const localRootID = model.NodeID("")

// LocalScanner walks the sync directory into a model.Snapshot, reusing a
// file's last-seen checksum when size and mtime have not changed so a full
// pass doesn't rehash an untouched tree (spec §4.1, grounded on the
// teacher's SyncLocalState.Scan local-state cache).
type LocalScanner struct {
	root   string
	ignore *fsop.IgnoreList

	mu    sync.Mutex
	cache map[string]cachedChecksum
}

type cachedChecksum struct {
	size     int64
	modNanos int64
	checksum string
}

// NewLocalScanner builds a scanner rooted at root, loading root's
// .syncignore on top of the built-in defaults.
func NewLocalScanner(root string) *LocalScanner {
	return &LocalScanner{
		root:   root,
		ignore: fsop.NewIgnoreList(root),
		cache:  make(map[string]cachedChecksum),
	}
}

// Reload re-reads the .syncignore file; call after it changes.
func (s *LocalScanner) Reload() { s.ignore.Reload() }

// Scan walks the tree and returns a fresh Snapshot, skipping ignored paths
// and anything SelectiveSync has excluded.
func (s *LocalScanner) Scan(selective *fsop.SelectiveSync) (*model.Snapshot, error) {
	snap := model.NewSnapshot(model.Local, localRootID)

	idByPath := map[string]model.NodeID{s.root: localRootID}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if path == s.root {
			return nil
		}
		if s.ignore.ShouldIgnore(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("rel path %s: %w", path, err)
		}
		if selective != nil && selective.Excluded(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // vanished between WalkDir's readdir and Lstat; skip it this pass
		}

		id, err := localNodeID(path)
		if err != nil {
			return nil
		}
		idByPath[path] = id

		parentID, ok := idByPath[filepath.Dir(path)]
		if !ok {
			parentID = localRootID
		}

		item := &model.SnapshotItem{
			ID:         id,
			ParentID:   parentID,
			Name:       d.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
			IsLink:     info.Mode()&os.ModeSymlink != 0,
		}
		switch {
		case item.IsLink:
			item.Type = model.Symlink
		case d.IsDir():
			item.Type = model.Directory
		default:
			item.Type = model.File
			item.Checksum = s.checksum(path, info)
		}
		snap.Add(item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *LocalScanner) checksum(path string, info fs.FileInfo) string {
	key := path
	size := info.Size()
	mod := info.ModTime().UnixNano()

	s.mu.Lock()
	prev, ok := s.cache[key]
	s.mu.Unlock()
	if ok && prev.size == size && prev.modNanos == mod {
		return prev.checksum
	}

	sum, err := utils.FileHash(path)
	if err != nil {
		return ""
	}

	s.mu.Lock()
	s.cache[key] = cachedChecksum{size: size, modNanos: mod, checksum: sum}
	s.mu.Unlock()
	return sum
}
