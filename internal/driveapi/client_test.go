package driveapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(FileInfo{ID: "abc", Name: "report.txt", Type: TypeFile, Size: 42})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	info, err := c.GetFile(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", info.Name)
	assert.EqualValues(t, 42, info.Size)
}

func TestClient_GetFile_DecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(APIError{Code: CodeNotFound, Message: "no such file"})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GetFile(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeNotFound, apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_ListChildren_CachesPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ListPage{Items: []*FileInfo{{ID: "a"}}})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, ListingCacheSize: 16})
	require.NoError(t, err)

	_, err = c.ListChildren(context.Background(), "root", "")
	require.NoError(t, err)
	_, err = c.ListChildren(context.Background(), "root", "")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
