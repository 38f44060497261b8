package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/openmined/syncengine/internal/driveapi"
	"github.com/openmined/syncengine/internal/errs"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/vfs"
)

// statNodeID derives the local id S1 will assign to path on its next scan:
// the inode number, mirroring the original's
// syncItem.setLocalNodeId(std::to_string(fileStat.inode)) so a freshly
// created entry doesn't wait an extra pass to be recognized as already
// synced.
func statNodeID(path string) (model.NodeID, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return model.NodeID(fmt.Sprintf("%d", st.Ino)), nil
	}
	return model.NodeID(path), nil
}

// runner executes a single Job's I/O. It knows nothing about the sync DB or
// the update trees; Executor folds a runner's outcome back into those.
type runner struct {
	drive *driveapi.Client
	vfs   vfs.Provider
	cfg   Config
}

func (r *runner) run(ctx context.Context, j *Job) Result {
	if j.Dehydrated && (j.Kind == KindUploadSmall || j.Kind == KindUploadSession) {
		// An edit on a dehydrated placeholder never uploads; the caller
		// still fixes up the DB modTime so the edit doesn't retrigger.
		return Result{Job: j, Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	var res Result
	switch j.Kind {
	case KindLocalCreateDir:
		res = r.localCreateDir(ctx, j)
	case KindRemoteCreateDir:
		res = r.remoteCreateDir(ctx, j)
	case KindDownload:
		res = r.download(ctx, j)
	case KindUploadSmall:
		res = r.uploadSmall(ctx, j)
	case KindUploadSession:
		res = r.uploadSession(ctx, j)
	case KindDelete:
		res = r.delete(ctx, j)
	case KindMove:
		res = r.move(ctx, j)
	case KindRename:
		res = r.rename(ctx, j)
	case KindCopyToDir:
		res = r.copyToDir(ctx, j)
	default:
		res = Result{Job: j, Info: errs.New(errs.LogicError, errs.CauseUnknown, fmt.Errorf("executor: unknown job kind %d", j.Kind))}
	}
	res.Job = j
	return res
}

func (r *runner) localCreateDir(ctx context.Context, j *Job) Result {
	if err := os.MkdirAll(j.LocalPath, 0o755); err != nil && !os.IsExist(err) {
		return Result{Info: classifyLocalErr(err)}
	}
	if r.vfs != nil && r.vfs.Available(filepath.Dir(j.LocalPath)) {
		if err := r.vfs.CreatePlaceholder(ctx, j.LocalPath, 0, true); err != nil {
			return Result{Info: classifyLocalErr(err)}
		}
	}
	id, _ := statNodeID(j.LocalPath)
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), LocalID: id}
}

func (r *runner) remoteCreateDir(ctx context.Context, j *Job) Result {
	info, err := r.drive.CreateUploadSession(ctx, driveapi.CreateUploadParams{ParentID: j.remoteParentID(), Name: j.NewName, TotalSize: 0})
	if err != nil {
		// directory creation on the remote is modeled as a zero-size
		// upload-session-less call in the abstract API: fall back to the
		// copy/move surface when the drive represents dirs distinctly.
		return Result{Info: classifyAPIErr(err)}
	}
	finished, err := r.drive.FinishUpload(ctx, info.ID)
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), RemoteID: finished.ID}
}

func (r *runner) download(ctx context.Context, j *Job) Result {
	if err := os.MkdirAll(filepath.Dir(j.LocalPath), 0o755); err != nil {
		return Result{Info: classifyLocalErr(err)}
	}

	if r.vfs != nil && r.vfs.Available(filepath.Dir(j.LocalPath)) && !j.BypassCheck {
		if err := r.vfs.CreatePlaceholder(ctx, j.LocalPath, j.Size, false); err != nil {
			return Result{Info: classifyLocalErr(err)}
		}
		if j.Size > r.cfg.LargeFileThreshold {
			// a large file is left as a dehydrated placeholder; pin state
			// is not consulted.
			id, _ := statNodeID(j.LocalPath)
			return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), BytesDone: j.Size, LocalID: id}
		}
	}

	body, err := r.drive.Download(ctx, j.RemoteID)
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}
	defer body.Close()

	f, err := os.Create(j.LocalPath)
	if err != nil {
		return Result{Info: classifyLocalErr(err)}
	}
	defer f.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		return Result{Info: classifyLocalErr(err)}
	}

	if r.vfs != nil {
		_ = r.vfs.SetInSync(ctx, j.LocalPath, "", n)
	}
	id, _ := statNodeID(j.LocalPath)
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), BytesDone: n, LocalID: id}
}

func (r *runner) uploadSmall(ctx context.Context, j *Job) Result {
	f, err := os.Open(j.LocalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && j.Dehydrated {
			return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
		}
		return Result{Info: classifyLocalErr(err)}
	}
	defer f.Close()

	session, err := r.drive.CreateUploadSession(ctx, driveapi.CreateUploadParams{
		ParentID: j.remoteParentID(), Name: j.NewName, TotalSize: j.Size, ChunkSize: j.Size,
	})
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}
	if err := r.drive.UploadChunk(ctx, session.ID, 0, f); err != nil {
		return Result{Info: classifyAPIErr(err)}
	}
	finished, err := r.drive.FinishUpload(ctx, session.ID)
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}

	if r.vfs != nil {
		_ = r.vfs.SetInSync(ctx, j.LocalPath, finished.Checksum, j.Size)
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), BytesDone: j.Size, RemoteID: finished.ID}
}

func (r *runner) delete(ctx context.Context, j *Job) Result {
	if j.affectedSide() == j.Op.TargetSide {
		// Should not happen: Delete always targets the side opposite the
		// change, guarded here defensively rather than assumed.
		return Result{Info: errs.New(errs.LogicError, errs.CauseInvariantViolated, fmt.Errorf("executor: delete job has affected side == target side"))}
	}

	if j.RemoteID != "" {
		if err := r.drive.Delete(ctx, j.RemoteID); err != nil {
			var apiErr *driveapi.APIError
			if errors.As(err, &apiErr) && apiErr.Code == driveapi.CodeNotFound {
				return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
			}
			return Result{Info: classifyAPIErr(err)}
		}
		return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	if j.Dehydrated {
		// No local bytes to remove; just drop the placeholder metadata if
		// the provider still has any.
		if r.vfs != nil {
			_ = r.vfs.ForceStatus(ctx, j.LocalPath, vfs.StatusUnknown)
		}
		return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	var err error
	if j.IsDir {
		err = os.RemoveAll(j.LocalPath)
	} else {
		err = os.Remove(j.LocalPath)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Result{Info: classifyLocalErr(err)}
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
}

func (r *runner) move(ctx context.Context, j *Job) Result {
	if j.RemoteID != "" {
		if _, err := r.drive.Move(ctx, j.RemoteID, j.remoteParentID()); err != nil {
			return Result{Info: classifyAPIErr(err)}
		}
		return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	if err := os.MkdirAll(j.DestDir, 0o755); err != nil {
		return Result{Info: classifyLocalErr(err)}
	}
	// LocalPath is the move's source; DestDir+NewName is its destination.
	// A rescue move shares this code path.
	dest := filepath.Join(j.DestDir, j.NewName)
	if err := os.Rename(j.LocalPath, dest); err != nil {
		if errors.Is(err, os.ErrNotExist) && j.Dehydrated {
			return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
		}
		return Result{Info: classifyLocalErr(err)}
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
}

func (r *runner) rename(ctx context.Context, j *Job) Result {
	if j.RemoteID != "" {
		if _, err := r.drive.Rename(ctx, j.RemoteID, j.NewName); err != nil {
			return Result{Info: classifyAPIErr(err)}
		}
		return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	dest := filepath.Join(filepath.Dir(j.LocalPath), j.NewName)
	if err := os.Rename(j.LocalPath, dest); err != nil {
		return Result{Info: classifyLocalErr(err)}
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil)}
}

func (r *runner) copyToDir(ctx context.Context, j *Job) Result {
	info, err := r.drive.Copy(ctx, j.RemoteID, j.remoteParentID())
	if err != nil {
		return Result{Info: classifyAPIErr(err)}
	}
	return Result{Info: errs.New(errs.Ok, errs.CauseNone, nil), RemoteID: info.ID}
}

// classifyLocalErr maps a local filesystem error onto the (ExitCode,
// ExitCause) taxonomy of spec §7.
func classifyLocalErr(err error) errs.ExitInfo {
	switch {
	case err == nil:
		return errs.New(errs.Ok, errs.CauseNone, nil)
	case errors.Is(err, context.Canceled):
		return errs.New(errs.Ok, errs.CauseOperationCanceled, err)
	case errors.Is(err, os.ErrNotExist):
		return errs.New(errs.SystemError, errs.CauseNotFound, err)
	case errors.Is(err, os.ErrExist):
		return errs.New(errs.SystemError, errs.CauseFileAlreadyExist, err)
	case errors.Is(err, os.ErrPermission):
		return errs.New(errs.SystemError, errs.CauseFileAccessError, err)
	default:
		return errs.New(errs.SystemError, errs.CauseFileAccessError, err)
	}
}

// classifyAPIErr maps a driveapi error onto the (ExitCode, ExitCause)
// taxonomy of spec §7.
func classifyAPIErr(err error) errs.ExitInfo {
	if err == nil {
		return errs.New(errs.Ok, errs.CauseNone, nil)
	}
	if errors.Is(err, context.Canceled) {
		return errs.New(errs.Ok, errs.CauseOperationCanceled, err)
	}

	var apiErr *driveapi.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case driveapi.CodeNotFound:
			return errs.New(errs.NetworkError, errs.CauseNotFound, err)
		case driveapi.CodeAlreadyExists:
			return errs.New(errs.BackError, errs.CauseFileAlreadyExist, err)
		case driveapi.CodeQuotaExceeded:
			return errs.New(errs.BackError, errs.CauseQuotaExceeded, err)
		case driveapi.CodeInvalidName:
			return errs.New(errs.BackError, errs.CauseInvalidName, err)
		case driveapi.CodeUploadStale:
			return errs.New(errs.BackError, errs.CauseUploadNotTerminated, err)
		default:
			return errs.New(errs.NetworkError, errs.CauseConnectionLost, err)
		}
	}
	return errs.New(errs.NetworkError, errs.CauseConnectionLost, err)
}
