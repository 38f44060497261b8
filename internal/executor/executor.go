package executor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openmined/syncengine/internal/driveapi"
	"github.com/openmined/syncengine/internal/errs"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
	"github.com/openmined/syncengine/internal/syncdb"
	"github.com/openmined/syncengine/internal/telemetry"
	"github.com/openmined/syncengine/internal/updatetree"
	"github.com/openmined/syncengine/internal/vfs"
)

// Config tunes the Job Manager and the individual jobs it runs; the zero
// value is never valid, use DefaultConfig.
type Config struct {
	// LargeFileThreshold is the file size above which a remote Create/Edit
	// uses UploadSession instead of a single-shot upload, and above which a
	// Download onto a vfs-managed directory stops at a dehydrated
	// placeholder. Downloads themselves are always single-shot.
	LargeFileThreshold int64

	// ChunkSize is the requested per-chunk size for UploadSession.
	ChunkSize int64

	// MaxParallelChunks bounds concurrent chunk uploads within one
	// UploadSession job.
	MaxParallelChunks int

	// JobPoolSize bounds how many jobs run their I/O concurrently across
	// the whole pass. 0 means runtime.NumCPU.
	JobPoolSize int

	// DiskSpaceMargin is the safety margin opgen already checked before
	// this pass; the executor itself does not read it.
	DiskSpaceMargin int64

	// ProgressInterval is how often Execute publishes a progress event.
	ProgressInterval time.Duration
}

// DefaultConfig returns sensible defaults; callers normally build this from
// the loaded internal/config.Config instead.
func DefaultConfig() Config {
	return Config{
		LargeFileThreshold: 32 << 20,
		ChunkSize:          8 << 20,
		MaxParallelChunks:  4,
		JobPoolSize:        0,
		DiskSpaceMargin:    256 << 20,
		ProgressInterval:   500 * time.Millisecond,
	}
}

// Executor is S8: it turns a sorted SyncOperation list into Jobs, runs them
// through the pool, and folds every completion back into the sync DB.
type Executor struct {
	drive  *driveapi.Client
	vfs    vfs.Provider
	db     *syncdb.DB
	cache  *syncdb.Cache
	events *telemetry.Sink
	cfg    Config

	syncRoot  string
	rescueDir string

	// completed is advanced by Execute's drain loop and read by the
	// progress ticker started within the same call.
	completed int64
}

// New builds an Executor rooted at syncRoot, the local directory this sync
// pair mirrors.
func New(drive *driveapi.Client, provider vfs.Provider, db *syncdb.DB, cache *syncdb.Cache, events *telemetry.Sink, syncRoot string, cfg Config) *Executor {
	return &Executor{
		drive:     drive,
		vfs:       provider,
		db:        db,
		cache:     cache,
		events:    events,
		cfg:       cfg,
		syncRoot:  syncRoot,
		rescueDir: filepath.Join(syncRoot, ".rescue"),
	}
}

// Report summarizes one Execute call.
type Report struct {
	JobsRun          int
	BytesTransferred int64

	// Errors lists every unrecoverable outcome, ready for spec §7's
	// user-visible error list.
	Errors []errs.Record

	// Restart means the caller must re-run S1-S7 before calling Execute
	// again: at least one job's outcome invalidated an assumption the
	// pass was built on.
	Restart bool
}

// Execute runs every operation in ops (already sorted by S7) to
// completion, in as much parallelism as Config.JobPoolSize allows while
// respecting parent-before-child ordering, then commits every successful
// outcome to the sync DB (spec §4.8). A job skipped because its parent
// failed (Ok/OperationCanceled) is not committed.
func (e *Executor) Execute(ctx context.Context, ops []*opgen.SyncOperation) (*Report, error) {
	report := &Report{}
	atomic.StoreInt64(&e.completed, 0)

	poolSize := e.cfg.JobPoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	p := newPool(poolSize, (&runner{drive: e.drive, vfs: e.vfs, cfg: e.cfg}).run)

	jobs, err := e.buildJobs(ctx, p, ops)
	if err != nil {
		return nil, fmt.Errorf("executor: build jobs: %w", err)
	}
	if len(jobs) == 0 {
		return report, nil
	}

	stopProgress := e.publishProgress(int64(len(jobs)))
	defer stopProgress()

	resultsByID := make(map[int64]Result, len(jobs))
	for res := range p.Run(ctx, jobs) {
		resultsByID[res.Job.ID] = res
		atomic.AddInt64(&e.completed, 1)
		if !res.Info.IsOk() {
			e.events.Publish(telemetry.Event{Kind: telemetry.EventError, Path: res.Job.LocalPath, Err: res.Info})
		}
	}

	// Commit strictly in S7's schedule order: it already guarantees a
	// parent job appears before its children, so a child's DB write never
	// races ahead of the parent row it depends on.
	for _, j := range jobs {
		res, ok := resultsByID[j.ID]
		if !ok {
			continue
		}
		report.JobsRun++
		report.BytesTransferred += res.BytesDone

		if res.Info.IsOk() && res.Info.Cause != errs.CauseOperationCanceled {
			if err := e.commitJob(j, res); err != nil {
				slog.Error("executor", "op", "commit", "path", j.LocalPath, "error", err)
				report.Errors = append(report.Errors, errs.Record{
					Path: j.LocalPath, Code: errs.DbError,
				})
			}
			continue
		}

		if res.Info.RequestsRestart() {
			report.Restart = true
		}
		if !res.Info.Recoverable() {
			report.Errors = append(report.Errors, errs.Record{
				Path: j.LocalPath, Code: res.Info.Code, Cause: res.Info.Cause,
			})
		}
	}

	e.events.Publish(telemetry.Event{Kind: telemetry.EventPassCompleted})
	if report.Restart {
		e.events.Publish(telemetry.Event{Kind: telemetry.EventRestartRequested})
	}
	slog.Info("executor", "op", "pass", "jobs", report.JobsRun, "bytes", humanize.Bytes(uint64(report.BytesTransferred)), "errors", len(report.Errors))

	return report, nil
}

// publishProgress starts a ticker publishing EventProgress until the
// returned func is called.
func (e *Executor) publishProgress(total int64) func() {
	if e.cfg.ProgressInterval <= 0 || e.events == nil {
		return func() {}
	}
	ticker := time.NewTicker(e.cfg.ProgressInterval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				done := atomic.LoadInt64(&e.completed)
				if total > 0 {
					e.events.Publish(telemetry.Event{Kind: telemetry.EventProgress, Progress: float64(done) / float64(total)})
				}
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(stop) }
}

// nodeKey identifies an updatetree.Node across sides for the jobByNode
// lookup used to wire parent-before-child scheduling.
type nodeKey struct {
	side model.Side
	id   model.NodeID
}

// buildJobs translates ops into Jobs, wiring a child's ParentID (and, for a
// job addressing the remote by id, its resolveParentRemoteID closure) to
// whichever earlier job creates the directory it lands in.
func (e *Executor) buildJobs(ctx context.Context, p *pool, ops []*opgen.SyncOperation) ([]*Job, error) {
	jobs := make([]*Job, 0, len(ops))
	jobByNode := make(map[nodeKey]*Job, len(ops))

	var nextID int64
	for _, op := range ops {
		if op.Omit {
			continue
		}
		j, err := e.buildJob(ctx, op)
		if err != nil {
			return nil, err
		}
		if j == nil {
			continue
		}
		nextID++
		j.ID = nextID

		if parent := op.AffectedNode.Parent; parent != nil && !parent.IsRoot() {
			if pj, ok := jobByNode[nodeKey{parent.Side(), parent.NodeID}]; ok {
				j.ParentID = pj.ID
				if needsRemoteParentResolution(j) {
					parentJob := pj
					j.resolveParentRemoteID = func() (string, bool) {
						res, ok := p.resultFor(parentJob.ID)
						if !ok || !res.Info.IsOk() {
							return "", false
						}
						return res.RemoteID, true
					}
				}
			}
		}

		jobs = append(jobs, j)
		jobByNode[nodeKey{op.AffectedNode.Side(), op.AffectedNode.NodeID}] = j
	}

	return jobs, nil
}

func needsRemoteParentResolution(j *Job) bool {
	switch j.Kind {
	case KindRemoteCreateDir, KindUploadSmall, KindUploadSession, KindMove:
		return j.RemoteParentID == ""
	default:
		return false
	}
}

func (e *Executor) buildJob(ctx context.Context, op *opgen.SyncOperation) (*Job, error) {
	n := op.AffectedNode
	if n == nil {
		return nil, fmt.Errorf("operation %d has no affected node", op.ID)
	}

	switch op.Type {
	case opgen.OpRescue:
		return e.buildRescueJob(op, n), nil
	case opgen.OpCreate:
		return e.buildCreateJob(ctx, op, n), nil
	case opgen.OpEdit:
		return e.buildEditJob(ctx, op, n)
	case opgen.OpMove:
		return e.buildMoveJob(op, n)
	case opgen.OpDelete:
		return e.buildDeleteJob(ctx, op, n)
	default:
		return nil, fmt.Errorf("operation %d has unknown type %v", op.ID, op.Type)
	}
}

func (e *Executor) buildRescueJob(op *opgen.SyncOperation, n *updatetree.Node) *Job {
	name := op.NewName
	if name == "" && n.Item != nil {
		name = n.Item.Name
	}
	return &Job{
		Op:        op,
		Kind:      KindMove,
		LocalPath: e.localPath(n),
		DestDir:   e.rescueDir,
		NewName:   fmt.Sprintf("%s.rescued-%d", name, n.DbID),
	}
}

func (e *Executor) buildCreateJob(ctx context.Context, op *opgen.SyncOperation, n *updatetree.Node) *Job {
	isDir := n.Item != nil && n.Item.Type == model.Directory
	j := &Job{Op: op, NewName: op.NewName, IsDir: isDir}
	if n.Item != nil {
		j.Size = n.Item.Size
	}

	parent := parentOther(n)
	switch op.TargetSide {
	case model.Local:
		j.LocalPath = e.joinLocal(parent, op.NewName)
		if isDir {
			j.Kind = KindLocalCreateDir
		} else {
			j.Kind = KindDownload
			j.RemoteID = string(n.NodeID)
		}
	case model.Remote:
		j.LocalPath = e.localPath(n)
		if parent != nil {
			j.RemoteParentID = string(parent.NodeID)
		}
		switch {
		case isDir:
			j.Kind = KindRemoteCreateDir
		case n.Item != nil && n.Item.Size > e.cfg.LargeFileThreshold:
			j.Kind = KindUploadSession
		default:
			j.Kind = KindUploadSmall
		}
		j.Dehydrated = e.isDehydrated(ctx, j.LocalPath)
	}
	return j
}

func (e *Executor) buildEditJob(ctx context.Context, op *opgen.SyncOperation, n *updatetree.Node) (*Job, error) {
	target := op.CorrespondingNode
	if target == nil {
		return nil, fmt.Errorf("edit operation %d has no corresponding node", op.ID)
	}
	j := &Job{Op: op}
	if n.Item != nil {
		j.Size = n.Item.Size
	}

	switch op.TargetSide {
	case model.Local:
		j.Kind = KindDownload
		j.RemoteID = string(n.NodeID)
		j.LocalPath = e.localPath(target)
		j.BypassCheck = true
	case model.Remote:
		j.LocalPath = e.localPath(n)
		j.RemoteID = string(target.NodeID)
		if target.Parent != nil && !target.Parent.IsRoot() {
			j.RemoteParentID = string(target.Parent.NodeID)
		}
		if target.Item != nil {
			j.NewName = target.Item.Name
		}
		if n.Item != nil && n.Item.Size > e.cfg.LargeFileThreshold {
			j.Kind = KindUploadSession
		} else {
			j.Kind = KindUploadSmall
		}
	}
	j.Dehydrated = e.isDehydrated(ctx, j.LocalPath)
	return j, nil
}

func (e *Executor) buildMoveJob(op *opgen.SyncOperation, n *updatetree.Node) (*Job, error) {
	target := op.CorrespondingNode
	if target == nil {
		return nil, fmt.Errorf("move operation %d has no corresponding node", op.ID)
	}
	newParent := parentOther(n)
	sameParent := (target.Parent != nil && newParent != nil && target.Parent.DbID == newParent.DbID) ||
		(target.Parent == nil && newParent == nil)

	j := &Job{Op: op, NewName: op.NewName}
	switch op.TargetSide {
	case model.Local:
		j.LocalPath = e.localPath(target)
		if sameParent {
			j.Kind = KindRename
		} else {
			j.Kind = KindMove
			if newParent != nil {
				j.DestDir = e.localPath(newParent)
			} else {
				j.DestDir = e.syncRoot
			}
		}
	case model.Remote:
		j.RemoteID = string(target.NodeID)
		if sameParent {
			j.Kind = KindRename
		} else {
			j.Kind = KindMove
			if newParent != nil {
				j.RemoteParentID = string(newParent.NodeID)
			}
		}
	}
	return j, nil
}

func (e *Executor) buildDeleteJob(ctx context.Context, op *opgen.SyncOperation, n *updatetree.Node) (*Job, error) {
	target := op.CorrespondingNode
	if target == nil {
		return nil, fmt.Errorf("delete operation %d has no corresponding node", op.ID)
	}
	j := &Job{Op: op, Kind: KindDelete, IsDir: target.Item != nil && target.Item.Type == model.Directory}
	switch op.TargetSide {
	case model.Local:
		j.LocalPath = e.localPath(target)
		j.Dehydrated = e.isDehydrated(ctx, j.LocalPath)
	case model.Remote:
		j.RemoteID = string(target.NodeID)
	}
	return j, nil
}

// parentOther returns n's parent's counterpart on the opposite side, or nil
// if n has no parent, the parent is the tree root, or the parent's own
// counterpart doesn't exist yet (a pending Create in the same batch).
func parentOther(n *updatetree.Node) *updatetree.Node {
	if n.Parent == nil || n.Parent.IsRoot() {
		return nil
	}
	return n.Parent.Other
}

func (e *Executor) localPath(n *updatetree.Node) string {
	return filepath.Join(e.syncRoot, n.Path())
}

func (e *Executor) joinLocal(parent *updatetree.Node, name string) string {
	if parent == nil {
		return filepath.Join(e.syncRoot, name)
	}
	return filepath.Join(e.syncRoot, parent.Path(), name)
}

func (e *Executor) isDehydrated(ctx context.Context, path string) bool {
	if e.vfs == nil {
		return false
	}
	status, err := e.vfs.Status(ctx, path)
	if err != nil {
		return false
	}
	return status == vfs.StatusDehydrated
}

func (e *Executor) commitJob(j *Job, res Result) error {
	if j.Op == nil || j.Op.Type == opgen.OpRescue {
		return nil
	}
	switch j.Op.Type {
	case opgen.OpCreate:
		return e.commitCreate(j, res)
	case opgen.OpEdit:
		return e.commitEdit(j, res)
	case opgen.OpMove:
		return e.commitMove(j, res)
	case opgen.OpDelete:
		return e.commitDelete(j)
	default:
		return nil
	}
}

func (e *Executor) commitCreate(j *Job, res Result) error {
	n := j.Op.AffectedNode
	if n.Item == nil {
		return fmt.Errorf("create commit: node %s has no live item", n.Path())
	}

	row := &syncdb.DbNode{
		Type:         n.Item.Type,
		Size:         n.Item.Size,
		Checksum:     n.Item.Checksum,
		CreatedAt:    n.Item.CreatedAt,
		LastModLocal: n.Item.ModifiedAt,
		LastModRemote: n.Item.ModifiedAt,
		Status:       syncdb.StatusOK,
		LocalName:    n.Item.Name,
		RemoteName:   n.Item.Name,
	}
	if parent := n.Parent; parent != nil && !parent.IsRoot() && parent.DbID != 0 {
		pid := parent.DbID
		row.ParentDbID = &pid
	}

	switch n.Side() {
	case model.Local:
		localID := n.NodeID
		row.LocalID = &localID
		if res.RemoteID != "" {
			rid := model.NodeID(res.RemoteID)
			row.RemoteID = &rid
		}
	case model.Remote:
		remoteID := n.NodeID
		row.RemoteID = &remoteID
		if res.LocalID != "" {
			lid := res.LocalID
			row.LocalID = &lid
		}
	}

	if err := e.db.Insert(row); err != nil {
		return err
	}
	n.DbID = row.DbID
	n.DbNode = row
	if j.Op.CorrespondingNode != nil {
		j.Op.CorrespondingNode.DbID = row.DbID
		j.Op.CorrespondingNode.DbNode = row
	}
	e.cache.Invalidate(row)
	return nil
}

func (e *Executor) commitEdit(j *Job, res Result) error {
	n := j.Op.AffectedNode
	target := j.Op.CorrespondingNode
	if target == nil || target.DbNode == nil {
		return fmt.Errorf("edit commit: no db row for %s", n.Path())
	}
	row := target.DbNode
	if n.Item != nil {
		row.Size = n.Item.Size
		row.Checksum = n.Item.Checksum
		row.LastModLocal = n.Item.ModifiedAt
		row.LastModRemote = n.Item.ModifiedAt
	}
	if res.RemoteID != "" {
		rid := model.NodeID(res.RemoteID)
		row.RemoteID = &rid
	}
	if res.LocalID != "" {
		lid := res.LocalID
		row.LocalID = &lid
	}
	if err := e.db.Update(row); err != nil {
		return err
	}
	e.cache.Invalidate(row)
	return nil
}

func (e *Executor) commitMove(j *Job, res Result) error {
	n := j.Op.AffectedNode
	target := j.Op.CorrespondingNode
	if target == nil || target.DbNode == nil {
		return fmt.Errorf("move commit: no db row for %s", n.Path())
	}
	row := target.DbNode

	if parent := n.Parent; parent != nil && !parent.IsRoot() && parent.DbID != 0 {
		pid := parent.DbID
		row.ParentDbID = &pid
	} else if parent == nil || parent.IsRoot() {
		row.ParentDbID = nil
	}

	name := j.NewName
	if name == "" && n.Item != nil {
		name = n.Item.Name
	}
	switch j.Op.TargetSide {
	case model.Local:
		row.LocalName = name
	case model.Remote:
		row.RemoteName = name
	}

	if err := e.db.Update(row); err != nil {
		return err
	}
	e.cache.Invalidate(row)
	return nil
}

func (e *Executor) commitDelete(j *Job) error {
	target := j.Op.CorrespondingNode
	if target == nil || target.DbNode == nil {
		return nil
	}
	if err := e.db.Delete(target.DbNode.DbID); err != nil {
		return err
	}
	e.cache.Invalidate(target.DbNode)
	return nil
}
