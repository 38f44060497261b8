package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ErrorsOnMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, ErrDirNotExist)
}

func TestWatcher_EmitsDebouncedCreateEvent(t *testing.T) {
	dir := t.TempDir()
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	w, err := New(dir)
	require.NoError(t, err)
	w.SetDebounceTimeout(10 * time.Millisecond)
	w.Start(t.Context())
	defer w.Stop()

	testFile := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("hello"), 0o644))

	select {
	case ev := <-w.Events:
		assert.Equal(t, testFile, ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWatcher_CoalescesBurstsIntoOneEvent(t *testing.T) {
	dir := t.TempDir()
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	w, err := New(dir)
	require.NoError(t, err)
	w.SetDebounceTimeout(50 * time.Millisecond)
	w.Start(t.Context())
	defer w.Stop()

	testFile := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(testFile, []byte{byte(i)}, 0o644))
	}

	select {
	case <-w.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case ev := <-w.Events:
		t.Fatalf("expected burst to coalesce into one event, got a second: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	assert.GreaterOrEqual(t, w.Count(), 1)
}

func TestWatcher_IgnoreOnceSuppressesNextEvent(t *testing.T) {
	dir := t.TempDir()
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	w, err := New(dir)
	require.NoError(t, err)
	w.SetDebounceTimeout(10 * time.Millisecond)
	w.Start(t.Context())
	defer w.Stop()

	testFile := filepath.Join(dir, "ignored.txt")
	w.IgnoreOnce(testFile)
	require.NoError(t, os.WriteFile(testFile, []byte("x"), 0o644))

	select {
	case ev := <-w.Events:
		t.Fatalf("expected ignored write to be suppressed, got %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_ResetCount(t *testing.T) {
	dir := t.TempDir()
	dir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	w, err := New(dir)
	require.NoError(t, err)
	w.SetDebounceTimeout(10 * time.Millisecond)
	w.Start(t.Context())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	select {
	case <-w.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	assert.GreaterOrEqual(t, w.Count(), 1)
	w.ResetCount()
	assert.Equal(t, 0, w.Count())
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "Create", EventCreate.String())
	assert.Equal(t, "Remove", EventRemove.String())
	assert.Equal(t, "Rename", EventRename.String())
	assert.Equal(t, "Write", EventWrite.String())
}
