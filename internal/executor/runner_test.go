package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/errs"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
)

// deleteOp is a minimal op whose affected side (Local, since AffectedNode is
// nil) differs from its target side, satisfying delete's invariant guard.
func deleteOp() *opgen.SyncOperation {
	return &opgen.SyncOperation{TargetSide: model.Remote}
}

func TestStatNodeID_ReturnsStableIDForSamePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	id1, err := statNodeID(path)
	require.NoError(t, err)
	id2, err := statNodeID(path)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}

func TestStatNodeID_ErrorsOnMissingPath(t *testing.T) {
	_, err := statNodeID(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRunner_LocalCreateDir_CreatesDirectoryAndLocalID(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sub")

	r := &runner{}
	res := r.localCreateDir(context.Background(), &Job{LocalPath: target})

	require.True(t, res.Info.IsOk())
	assert.NotEmpty(t, res.LocalID)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunner_LocalCreateDir_ToleratesAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	r := &runner{}
	res := r.localCreateDir(context.Background(), &Job{LocalPath: dir})
	assert.True(t, res.Info.IsOk())
}

func TestRunner_Delete_RemovesLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r := &runner{}
	res := r.delete(context.Background(), &Job{
		LocalPath: path,
		Op:        deleteOp(),
	})
	require.True(t, res.Info.IsOk())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_Delete_MissingFileIsNotAnError(t *testing.T) {
	r := &runner{}
	res := r.delete(context.Background(), &Job{
		LocalPath: filepath.Join(t.TempDir(), "missing.txt"),
		Op:        deleteOp(),
	})
	assert.True(t, res.Info.IsOk())
}

func TestRunner_Delete_DehydratedSkipsFilesystem(t *testing.T) {
	r := &runner{}
	res := r.delete(context.Background(), &Job{
		LocalPath:  filepath.Join(t.TempDir(), "never-existed.txt"),
		Dehydrated: true,
		Op:         deleteOp(),
	})
	assert.True(t, res.Info.IsOk())
}

func TestRunner_Move_RenamesLocalFileIntoDestDir(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "newdir")
	srcPath := filepath.Join(src, "f.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))

	r := &runner{}
	res := r.move(context.Background(), &Job{
		LocalPath: srcPath, DestDir: dst, NewName: "f.txt",
	})
	require.True(t, res.Info.IsOk())
	_, err := os.Stat(filepath.Join(dst, "f.txt"))
	assert.NoError(t, err)
}

func TestRunner_Rename_RenamesLocalFileInPlace(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))

	r := &runner{}
	res := r.rename(context.Background(), &Job{LocalPath: srcPath, NewName: "new.txt"})
	require.True(t, res.Info.IsOk())
	_, err := os.Stat(filepath.Join(dir, "new.txt"))
	assert.NoError(t, err)
}

func TestClassifyLocalErr_MapsNotExist(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "missing"))
	info := classifyLocalErr(err)
	assert.Equal(t, errs.SystemError, info.Code)
	assert.Equal(t, errs.CauseNotFound, info.Cause)
}

func TestClassifyLocalErr_OkOnNil(t *testing.T) {
	info := classifyLocalErr(nil)
	assert.True(t, info.IsOk())
}
