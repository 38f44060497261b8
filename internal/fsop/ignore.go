package fsop

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/openmined/syncengine/internal/utils"
)

var defaultIgnoreLines = []string{
	".syncignore",
	"**/*.syncconflict.*",
	"**/*.syncrejected.*",
	"*.sync.tmp.*",
	".synckeep",
	".DS_Store",
	"Thumbs.db",
	".git",
	".vscode",
	".idea",
	"*.tmp",
	"__pycache__/",
	".ipynb_checkpoints/",
}

// IgnoreList filters local paths out of S1's consideration before they ever
// reach the diff: a blacklisted path is never turned into a Change, matching
// the teacher's SyncIgnoreList (spec §4.1, "ignore rules are applied before
// DB comparison").
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList builds an IgnoreList rooted at baseDir, loading baseDir's
// ".syncignore" file (if present) on top of the built-in defaults.
func NewIgnoreList(baseDir string) *IgnoreList {
	il := &IgnoreList{baseDir: baseDir}
	il.reload()
	return il
}

func (il *IgnoreList) reload() {
	lines := defaultIgnoreLines
	ignorePath := filepath.Join(il.baseDir, ".syncignore")
	if utils.FileExists(ignorePath) {
		custom, err := readIgnoreFile(ignorePath)
		if err != nil {
			slog.Warn("fsop: failed to read .syncignore", "path", ignorePath, "error", err)
		} else if len(custom) > 0 {
			lines = append(append([]string{}, lines...), custom...)
		}
	}
	il.ignore = gitignore.CompileIgnoreLines(lines...)
}

// Reload re-reads the .syncignore file; call after S1 observes it change.
func (il *IgnoreList) Reload() { il.reload() }

// ShouldIgnore reports whether the absolute path should be excluded from
// the sync entirely.
func (il *IgnoreList) ShouldIgnore(absPath string) bool {
	rel, err := filepath.Rel(il.baseDir, absPath)
	if err != nil {
		return false
	}
	return il.ignore.MatchesPath(rel)
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	return lines, nil
}

// SelectiveSync holds the set of glob patterns a user has opted out of
// downloading locally (spec §9, "partial sync of a remote subtree"):
// remote objects matching one of these are left out of the local snapshot
// diff entirely rather than generating delete operations.
type SelectiveSync struct {
	excluded []string
}

func NewSelectiveSync(patterns []string) *SelectiveSync {
	return &SelectiveSync{excluded: patterns}
}

// Excluded reports whether relPath (slash-separated, relative to the sync
// root) falls under one of the excluded subtrees.
func (s *SelectiveSync) Excluded(relPath string) bool {
	for _, pattern := range s.excluded {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern+"/**", relPath); ok {
			return true
		}
	}
	return false
}
