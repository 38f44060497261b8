package fsop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/syncdb"
)

func openTestDB(t *testing.T) *syncdb.DB {
	t.Helper()
	db, err := syncdb.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCompute_DetectsCreate(t *testing.T) {
	db := openTestDB(t)
	root := model.NodeID("root")
	snap := model.NewSnapshot(model.Local, root)
	snap.Add(&model.SnapshotItem{ID: "f1", ParentID: root, Name: "report.txt", Type: model.File, Size: 10})

	res, err := Compute(db, snap, Options{})
	require.NoError(t, err)
	require.Contains(t, res.Ops, model.NodeID("f1"))
	assert.True(t, res.Ops["f1"].Events.Has(EventCreate))
}

func TestCompute_DetectsEditAndMove(t *testing.T) {
	db := openTestDB(t)
	root := model.NodeID("root")
	now := time.Now()

	localID := model.NodeID("f1")
	err := db.Insert(&syncdb.DbNode{
		LocalID:      &localID,
		LocalName:    "old-name.txt",
		Type:         model.File,
		Size:         10,
		CreatedAt:    now,
		LastModLocal: now,
		Status:       syncdb.StatusOK,
	})
	require.NoError(t, err)

	snap := model.NewSnapshot(model.Local, root)
	snap.Add(&model.SnapshotItem{
		ID: localID, ParentID: root, Name: "new-name.txt",
		Type: model.File, Size: 42, CreatedAt: now, ModifiedAt: now.Add(time.Minute),
	})

	res, err := Compute(db, snap, Options{})
	require.NoError(t, err)
	change := res.Ops[localID]
	require.NotNil(t, change)
	assert.True(t, change.Events.Has(EventMove))
	assert.True(t, change.Events.Has(EventEdit))
	require.NotNil(t, change.MoveOrigin)
	assert.Equal(t, "old-name.txt", change.MoveOrigin.OldName)
}

func TestCompute_OmitsCreateTimeOnlyDrift(t *testing.T) {
	db := openTestDB(t)
	root := model.NodeID("root")
	created := time.Now()

	localID := model.NodeID("f1")
	err := db.Insert(&syncdb.DbNode{
		LocalID: &localID, LocalName: "a.txt", Type: model.File,
		Size: 10, Checksum: "abc", CreatedAt: created, LastModLocal: created, Status: syncdb.StatusOK,
	})
	require.NoError(t, err)

	snap := model.NewSnapshot(model.Local, root)
	snap.Add(&model.SnapshotItem{
		ID: localID, ParentID: root, Name: "a.txt", Type: model.File,
		Size: 10, Checksum: "abc", CreatedAt: created.Add(time.Hour), ModifiedAt: created,
	})

	res, err := Compute(db, snap, Options{})
	require.NoError(t, err)
	change := res.Ops[localID]
	require.NotNil(t, change)
	assert.True(t, change.OmitCreateTimeOnly)
}

func TestCompute_DetectsDelete(t *testing.T) {
	db := openTestDB(t)
	localID := model.NodeID("gone")
	err := db.Insert(&syncdb.DbNode{
		LocalID: &localID, LocalName: "gone.txt", Type: model.File, Status: syncdb.StatusOK,
	})
	require.NoError(t, err)

	snap := model.NewSnapshot(model.Local, model.NodeID("root"))
	res, err := Compute(db, snap, Options{})
	require.NoError(t, err)
	require.Contains(t, res.Ops, localID)
	assert.True(t, res.Ops[localID].Events.Has(EventDelete))
}

func TestCompute_InvalidatesOnRawEventOverflow(t *testing.T) {
	db := openTestDB(t)
	snap := model.NewSnapshot(model.Local, model.NodeID("root"))
	res, err := Compute(db, snap, Options{RawEventThreshold: 10, RawEventCount: 11})
	require.NoError(t, err)
	assert.True(t, res.Invalidated)
}

func TestIgnoreList_DefaultsAndCustomRules(t *testing.T) {
	base := t.TempDir()
	il := NewIgnoreList(base)

	absTmp := filepath.Join(base, "project", "scratch.tmp")
	require.NoError(t, os.MkdirAll(filepath.Dir(absTmp), 0o755))
	assert.True(t, il.ShouldIgnore(absTmp))

	require.NoError(t, os.WriteFile(filepath.Join(base, ".syncignore"), []byte("**/*.secret\n"), 0o644))
	il.Reload()
	assert.True(t, il.ShouldIgnore(filepath.Join(base, "vault", "key.secret")))
	assert.False(t, il.ShouldIgnore(filepath.Join(base, "vault", "key.public")))
}

func TestSelectiveSync_Excluded(t *testing.T) {
	s := NewSelectiveSync([]string{"archive/2019", "media/**/*.mov"})
	assert.True(t, s.Excluded("archive/2019/jan.pdf"))
	assert.True(t, s.Excluded("media/clips/trip.mov"))
	assert.False(t, s.Excluded("archive/2020/jan.pdf"))
}
