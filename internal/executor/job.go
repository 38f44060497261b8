// Package executor implements S8: it turns S7's sorted operation list into
// filesystem and drive-RPC jobs, runs them through a bounded Job Manager,
// and folds each completion back into the sync DB and the in-memory trees
// (spec §4.8).
package executor

import (
	"github.com/openmined/syncengine/internal/errs"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
)

// Kind is the concrete action a Job performs, the "inheritance of jobs"
// variant of spec §9: LocalCreateDir/RemoteCreateDir, Download,
// UploadSmall/UploadSession, Delete, Move, Rename, CopyToDir.
type Kind uint8

const (
	KindLocalCreateDir Kind = iota
	KindRemoteCreateDir
	KindDownload
	KindUploadSmall
	KindUploadSession
	KindDelete
	KindMove
	KindRename
	KindCopyToDir
)

func (k Kind) String() string {
	switch k {
	case KindLocalCreateDir:
		return "LocalCreateDir"
	case KindRemoteCreateDir:
		return "RemoteCreateDir"
	case KindDownload:
		return "Download"
	case KindUploadSmall:
		return "UploadSmall"
	case KindUploadSession:
		return "UploadSession"
	case KindDelete:
		return "Delete"
	case KindMove:
		return "Move"
	case KindRename:
		return "Rename"
	case KindCopyToDir:
		return "CopyToDir"
	default:
		return "Unknown"
	}
}

// Job is one unit of I/O the Job Manager runs. Only the fields relevant to
// Kind are populated; the rest stay zero.
type Job struct {
	ID       int64
	ParentID int64 // 0: no scheduling dependency on another job

	Kind Kind
	Op   *opgen.SyncOperation // the SyncOperation this job carries out

	// LocalPath is the absolute local path the job reads or writes, for
	// every Kind that touches the local filesystem.
	LocalPath string

	// RemoteID/RemoteParentID address the remote object and its
	// destination parent, for every Kind that calls driveapi.
	RemoteID       string
	RemoteParentID string

	// DestDir is the destination directory for a local Move/Rescue job;
	// unused by every other Kind.
	DestDir string

	NewName string
	Size    int64
	IsDir   bool

	// BypassCheck makes a Download write the file's bytes directly,
	// skipping the vfs placeholder step; buildEditJob sets it on every Edit
	// download, whose local file already exists.
	BypassCheck bool

	// Dehydrated marks a job whose target is a placeholder with no local
	// bytes: Delete must not fail trying to trash data that isn't there,
	// and Edit/upload must be skipped in favor of a DB-only fix-up
	// (spec §4.8 "Placeholder / lite-sync integration").
	Dehydrated bool

	// resolveParentRemoteID, when set, overrides RemoteParentID at run
	// time with the id a parent CreateDir/UploadSmall job produced — the
	// parent's id isn't known until that job actually finishes.
	resolveParentRemoteID func() (string, bool)
}

// remoteParentID returns the job's destination parent id, preferring a
// freshly resolved parent job result over the value computed when the job
// was built.
func (j *Job) remoteParentID() string {
	if j.resolveParentRemoteID != nil {
		if id, ok := j.resolveParentRemoteID(); ok && id != "" {
			return id
		}
	}
	return j.RemoteParentID
}

// Result is what one Job produced.
type Result struct {
	Job       *Job
	Info      errs.ExitInfo
	BytesDone int64

	// RemoteID is set on a job that created or found a new id on the
	// remote side (RemoteCreateDir, UploadSmall/UploadSession), for the
	// post-job DB update.
	RemoteID string

	// LocalID is set on a job that created a new filesystem entry
	// (LocalCreateDir, Download of a brand new Create) to the inode-derived
	// id S1 will see on the next pass, so the DB row doesn't wait a whole
	// extra pass to learn it.
	LocalID model.NodeID
}

// affectedSide reports which replica Job.Op.AffectedNode lives on, used to
// decide whether a job is purely local bookkeeping (Rescue) or crosses to
// the other side.
func (j *Job) affectedSide() model.Side {
	if j.Op == nil || j.Op.AffectedNode == nil {
		return model.Local
	}
	return j.Op.AffectedNode.Side()
}
