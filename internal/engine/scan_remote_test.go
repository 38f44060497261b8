package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/driveapi"
	"github.com/openmined/syncengine/internal/model"
)

func TestRemoteScanner_Scan_MapsRootChildrenToEmptyParent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/files/root/children":
			_ = json.NewEncoder(w).Encode(driveapi.ListPage{Items: []*driveapi.FileInfo{
				{ID: "dir1", ParentID: "root", Name: "stuff", Type: driveapi.TypeDirectory},
				{ID: "file1", ParentID: "root", Name: "a.txt", Type: driveapi.TypeFile, Size: 10},
			}})
		case "/files/dir1/children":
			_ = json.NewEncoder(w).Encode(driveapi.ListPage{Items: []*driveapi.FileInfo{
				{ID: "file2", ParentID: "dir1", Name: "b.txt", Type: driveapi.TypeFile, Size: 20},
			}})
		default:
			_ = json.NewEncoder(w).Encode(driveapi.ListPage{})
		}
	}))
	defer srv.Close()

	client, err := driveapi.New(driveapi.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	snap, err := NewRemoteScanner(client, "root").Scan(context.Background())
	require.NoError(t, err)
	require.NoError(t, snap.Validate())

	assert.Equal(t, model.NodeID(""), snap.RootID)

	dir1 := snap.Items[model.NodeID("dir1")]
	require.NotNil(t, dir1)
	assert.Equal(t, model.NodeID(""), dir1.ParentID)

	file2 := snap.Items[model.NodeID("file2")]
	require.NotNil(t, file2)
	assert.Equal(t, model.NodeID("dir1"), file2.ParentID)
}

func TestRemoteScanner_Scan_FollowsPagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(driveapi.ListPage{
				Items:      []*driveapi.FileInfo{{ID: "a", ParentID: "root", Name: "a", Type: driveapi.TypeFile}},
				NextCursor: "page2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(driveapi.ListPage{
			Items: []*driveapi.FileInfo{{ID: "b", ParentID: "root", Name: "b", Type: driveapi.TypeFile}},
		})
	}))
	defer srv.Close()

	client, err := driveapi.New(driveapi.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	snap, err := NewRemoteScanner(client, "root").Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.GreaterOrEqual(t, calls, 2)
}
