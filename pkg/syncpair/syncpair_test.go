package syncpair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/driveapi"
)

func TestPair_RunOnce_EmptyTreesProduceNoJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(driveapi.ListPage{})
	}))
	defer srv.Close()

	dir := t.TempDir()
	pair, err := Open(Options{
		SyncDir:     filepath.Join(dir, "synced"),
		ServerURL:   srv.URL,
		AccessToken: "test-token",
		ConfigPath:  filepath.Join(dir, "config.json"),
	})
	require.NoError(t, err)
	defer pair.Close()

	report, err := pair.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.JobsRun)
	assert.Equal(t, 0, report.Conflicts)
}

func TestPair_State_StartsStopped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(driveapi.ListPage{})
	}))
	defer srv.Close()

	dir := t.TempDir()
	pair, err := Open(Options{
		SyncDir:     filepath.Join(dir, "synced"),
		ServerURL:   srv.URL,
		AccessToken: "test-token",
		ConfigPath:  filepath.Join(dir, "config.json"),
	})
	require.NoError(t, err)
	defer pair.Close()

	assert.Equal(t, StateStopped, pair.State())
	assert.NoError(t, pair.LastError())
}

func TestOpen_RejectsMissingSyncDir(t *testing.T) {
	_, err := Open(Options{ServerURL: "https://example.com", AccessToken: "t"})
	assert.Error(t, err)
}
