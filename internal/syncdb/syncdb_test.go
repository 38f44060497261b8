package syncdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGetByNodeID(t *testing.T) {
	db := openTestDB(t)

	localID := model.NodeID("L1")
	remoteID := model.NodeID("R1")
	n := &DbNode{
		LocalID:       &localID,
		RemoteID:      &remoteID,
		LocalName:     "a.txt",
		RemoteName:    "a.txt",
		Type:          model.File,
		Size:          10,
		CreatedAt:     time.Now(),
		LastModLocal:  time.Now(),
		LastModRemote: time.Now(),
		Status:        StatusOK,
	}
	require.NoError(t, db.Insert(n))
	assert.NotZero(t, n.DbID)

	got, err := db.GetByNodeID(model.Local, localID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.txt", got.LocalName)

	got, err = db.GetByNodeID(model.Remote, remoteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n.DbID, got.DbID)
}

func TestLocalIDUniqueness(t *testing.T) {
	db := openTestDB(t)
	localID := model.NodeID("dup")
	n1 := &DbNode{LocalID: &localID, LocalName: "x", RemoteName: "x", CreatedAt: time.Now(), LastModLocal: time.Now(), LastModRemote: time.Now()}
	n2 := &DbNode{LocalID: &localID, LocalName: "y", RemoteName: "y", CreatedAt: time.Now(), LastModLocal: time.Now(), LastModRemote: time.Now()}
	require.NoError(t, db.Insert(n1))
	err := db.Insert(n2)
	if err == nil {
		t.Fatal("expected unique constraint violation for duplicate local_id")
	}
}

func TestDeleteCascadesToChildren(t *testing.T) {
	db := openTestDB(t)
	parent := &DbNode{LocalName: "dir", RemoteName: "dir", Type: model.Directory, CreatedAt: time.Now(), LastModLocal: time.Now(), LastModRemote: time.Now()}
	require.NoError(t, db.Insert(parent))

	child := &DbNode{ParentDbID: &parent.DbID, LocalName: "f", RemoteName: "f", CreatedAt: time.Now(), LastModLocal: time.Now(), LastModRemote: time.Now()}
	require.NoError(t, db.Insert(child))

	require.NoError(t, db.Delete(parent.DbID))

	got, err := db.GetByID(child.DbID)
	require.NoError(t, err)
	assert.Nil(t, got, "child row should be gone via FK cascade")
}

func TestTmpBlacklistExpiry(t *testing.T) {
	db := openTestDB(t)
	id := model.NodeID("blk1")

	require.NoError(t, db.TmpBlacklistAdd(model.Local, id, "illegal name", time.Now().Add(-time.Minute)))
	blacklisted, err := db.TmpBlacklisted(model.Local, id)
	require.NoError(t, err)
	assert.False(t, blacklisted, "expired entry should no longer be blacklisted")

	require.NoError(t, db.TmpBlacklistAdd(model.Local, id, "illegal name", time.Now().Add(time.Hour)))
	blacklisted, err = db.TmpBlacklisted(model.Local, id)
	require.NoError(t, err)
	assert.True(t, blacklisted)
}

func TestCacheReadThrough(t *testing.T) {
	db := openTestDB(t)
	cache, err := NewCache(db, 64)
	require.NoError(t, err)

	localID := model.NodeID("c1")
	n := &DbNode{LocalID: &localID, LocalName: "f", RemoteName: "f", CreatedAt: time.Now(), LastModLocal: time.Now(), LastModRemote: time.Now()}
	require.NoError(t, db.Insert(n))

	got, err := cache.GetByNodeID(model.Local, localID)
	require.NoError(t, err)
	require.NotNil(t, got)

	n.LocalName = "renamed"
	require.NoError(t, db.Update(n))
	cache.Invalidate(n)

	got, err = cache.GetByNodeID(model.Local, localID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.LocalName)
}
