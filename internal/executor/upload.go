package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/openmined/syncengine/internal/driveapi"
	"github.com/openmined/syncengine/internal/errs"
)

// uploadSession drives a large-file upload above Config.LargeFileThreshold:
// start-session, N parallel chunk uploads, finalize. N halves on a
// transient transport error and the failed chunks are retried, mirroring
// the original's socket-defunct chunk-count adaptation (spec §3
// supplemented feature, §4.8).
func (r *runner) uploadSession(ctx context.Context, j *Job) Result {
	f, err := os.Open(j.LocalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && j.Dehydrated {
			return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
		}
		return Result{Info: classifyLocalErr(err)}
	}
	defer f.Close()

	chunkSize := r.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = j.Size
	}

	session, err := r.drive.CreateUploadSession(ctx, driveapi.CreateUploadParams{
		ParentID: j.remoteParentID(), Name: j.NewName, TotalSize: j.Size, ChunkSize: chunkSize,
	})
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}
	if session.ChunkSize > 0 {
		chunkSize = session.ChunkSize
	}

	parallel := r.cfg.MaxParallelChunks
	if parallel <= 0 {
		parallel = 1
	}

	offsets := chunkOffsets(j.Size, chunkSize)
	uploaded, err := uploadChunks(ctx, r.drive, session.ID, f, offsets, chunkSize, j.Size, parallel)
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}

	finished, err := r.drive.FinishUpload(ctx, session.ID)
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}

	slog.Info("executor", "op", "UploadSession", "path", j.LocalPath, "size", humanize.Bytes(uint64(j.Size)))

	if r.vfs != nil {
		_ = r.vfs.SetInSync(ctx, j.LocalPath, finished.Checksum, j.Size)
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), BytesDone: uploaded, RemoteID: finished.ID}
}

func chunkOffsets(total, chunkSize int64) []int64 {
	if chunkSize <= 0 {
		chunkSize = total
	}
	var offsets []int64
	for off := int64(0); off < total; off += chunkSize {
		offsets = append(offsets, off)
	}
	if len(offsets) == 0 {
		offsets = []int64{0}
	}
	return offsets
}

// uploadChunks uploads every offset in offsets, at most parallel at a time.
// On a transient network error it halves parallel and retries the chunks
// that had not yet succeeded, down to a single sequential worker before
// giving up.
func uploadChunks(ctx context.Context, drive *driveapi.Client, sessionID string, f *os.File, offsets []int64, chunkSize, total int64, parallel int) (int64, error) {
	remaining := offsets
	var uploaded int64

	for {
		failed, n, err := uploadChunkBatch(ctx, drive, sessionID, f, remaining, chunkSize, total, parallel)
		uploaded += n
		if err == nil {
			return uploaded, nil
		}
		if !isTransient(err) || parallel <= 1 {
			return uploaded, err
		}
		slog.Warn("executor", "op", "UploadSession", "event", "chunk batch failed, reducing parallelism", "from", parallel, "error", err)
		parallel /= 2
		remaining = failed
	}
}

func uploadChunkBatch(ctx context.Context, drive *driveapi.Client, sessionID string, f *os.File, offsets []int64, chunkSize, total int64, parallel int) ([]int64, int64, error) {
	type outcome struct {
		offset int64
		n      int64
		err    error
	}

	sem := make(chan struct{}, parallel)
	results := make(chan outcome, len(offsets))

	for _, off := range offsets {
		off := off
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			n, err := uploadOneChunk(ctx, drive, sessionID, f, off, chunkLength(off, chunkSize, total))
			results <- outcome{offset: off, n: n, err: err}
		}()
	}

	var failed []int64
	var uploaded int64
	var firstErr error
	for range offsets {
		o := <-results
		if o.err != nil {
			failed = append(failed, o.offset)
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		uploaded += o.n
	}
	return failed, uploaded, firstErr
}

func uploadOneChunk(ctx context.Context, drive *driveapi.Client, sessionID string, f *os.File, offset, length int64) (int64, error) {
	r := io.NewSectionReader(f, offset, length)
	if err := drive.UploadChunk(ctx, sessionID, offset, r); err != nil {
		return 0, err
	}
	return r.Size(), nil
}

func chunkLength(offset, chunkSize, total int64) int64 {
	remaining := total - offset
	if remaining < 0 {
		return 0
	}
	if chunkSize <= 0 || chunkSize > remaining {
		return remaining
	}
	return chunkSize
}

// isTransient reports whether err looks like the "socket defunct" class of
// failure worth retrying at lower concurrency rather than failing the
// session outright.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *driveapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 0 || apiErr.Status >= 500
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}
