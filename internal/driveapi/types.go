// Package driveapi is the abstract client for the remote drive's RPC
// surface: an id-addressed file tree with copy/move/rename/delete, chunked
// upload sessions, plain downloads, and cursor-paginated listing (spec §6).
// It knows nothing about sync semantics; S8 is the only caller.
package driveapi

import "time"

// FileType mirrors the remote object kinds the drive API reports.
type FileType string

const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "directory"
)

// FileInfo is the drive's view of one remote object.
type FileInfo struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parent_id"`
	Name     string    `json:"name"`
	Type     FileType  `json:"type"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mtime"`
	Revision string    `json:"revision"`
}

// ListPage is one page of a directory listing.
type ListPage struct {
	Items      []*FileInfo `json:"items"`
	NextCursor string      `json:"next_cursor"`
}

// UploadSession tracks a chunked upload in progress.
type UploadSession struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	Name      string `json:"name"`
	TotalSize int64  `json:"total_size"`
	ChunkSize int64  `json:"chunk_size"`
}

// CreateUploadParams describes the file an upload session will produce.
type CreateUploadParams struct {
	ParentID  string
	Name      string
	TotalSize int64
	// ChunkSize is a hint; the server may adjust it and the adjusted value
	// comes back on the UploadSession.
	ChunkSize int64
}
