package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/syncengine/internal/conflict"
	"github.com/openmined/syncengine/internal/consistency"
	"github.com/openmined/syncengine/internal/errs"
	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/model"
	"github.com/openmined/syncengine/internal/opgen"
	"github.com/openmined/syncengine/internal/opsort"
	"github.com/openmined/syncengine/internal/telemetry"
	"github.com/openmined/syncengine/internal/updatetree"
)

// PassReport summarizes one S1-S8 run for telemetry and the status CLI.
type PassReport struct {
	LocalBlacklisted  int
	RemoteBlacklisted int
	Conflicts         int
	JobsRun           int
	BytesTransferred  int64
	Restart           bool
}

// runPass drives the full pipeline once: scan both sides, diff against the
// DB, build update trees, blacklist-check, find and resolve conflicts,
// generate and sort operations, and execute them (spec §4, steps S1-S8).
// A Restart in the returned report means the caller should call runPass
// again immediately rather than waiting for the next tick: S7 broke a
// dependency cycle with a rename, or S8 flagged a restart-worthy error.
func (e *Engine) runPass(ctx context.Context) (*PassReport, error) {
	report := &PassReport{}

	localSnap, err := e.local.Scan(e.selective)
	if err != nil {
		return nil, fmt.Errorf("engine: local scan: %w", err)
	}
	if err := localSnap.Validate(); err != nil {
		return nil, fmt.Errorf("engine: local snapshot: %w", err)
	}

	remoteSnap, err := e.remote.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: remote scan: %w", err)
	}
	if err := remoteSnap.Validate(); err != nil {
		return nil, fmt.Errorf("engine: remote snapshot: %w", err)
	}

	rawCount := e.watcher.Count()
	e.watcher.ResetCount()

	localOps, err := fsop.Compute(e.db, localSnap, fsop.Options{
		RawEventThreshold: e.cfg.RawEventThreshold,
		RawEventCount:     rawCount,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: local fsop: %w", err)
	}
	remoteOps, err := fsop.Compute(e.db, remoteSnap, fsop.Options{})
	if err != nil {
		return nil, fmt.Errorf("engine: remote fsop: %w", err)
	}

	localTree, err := updatetree.Build(model.Local, localSnap, localOps, e.db)
	if err != nil {
		return nil, fmt.Errorf("engine: local update tree: %w", err)
	}
	remoteTree, err := updatetree.Build(model.Remote, remoteSnap, remoteOps, e.db)
	if err != nil {
		return nil, fmt.Errorf("engine: remote update tree: %w", err)
	}

	localReport, err := consistency.Check(localTree, e.db, true)
	if err != nil {
		return nil, fmt.Errorf("engine: local consistency: %w", err)
	}
	remoteReport, err := consistency.Check(remoteTree, e.db, false)
	if err != nil {
		return nil, fmt.Errorf("engine: remote consistency: %w", err)
	}
	report.LocalBlacklisted = len(localReport.Blacklisted)
	report.RemoteBlacklisted = len(remoteReport.Blacklisted)

	conflict.LinkCorresponding(localTree, remoteTree)
	conflicts := conflict.Find(localTree, remoteTree)
	report.Conflicts = len(conflicts)

	queue := conflict.NewQueue()
	for _, c := range conflicts {
		queue.Push(c)
	}
	resolutions, err := conflict.Resolve(queue, e.db)
	if err != nil {
		return nil, fmt.Errorf("engine: conflict resolve: %w", err)
	}

	free, err := freeBytes(e.cfg.SyncDir)
	if err != nil {
		slog.Warn("engine", "op", "freeBytes", "error", err)
		free = -1
	}

	genResult, err := opgen.Generate(localTree, remoteTree, resolutions, free, e.cfg.DiskSpaceMargin)
	if err != nil {
		var diskErr *opgen.ErrNotEnoughDiskSpace
		if errors.As(err, &diskErr) {
			slog.Warn("engine", "op", "opgen", "event", "not enough disk space", "required", diskErr.Required, "available", diskErr.Available)
			e.events.Publish(telemetry.Event{Kind: telemetry.EventError, Err: diskErr})
			return report, nil
		}
		return nil, fmt.Errorf("engine: opgen: %w", err)
	}

	sorted, err := opsort.Sort(genResult.Ops)
	if err != nil {
		return nil, fmt.Errorf("engine: opsort: %w", err)
	}

	execReport, err := e.executor.Execute(ctx, sorted.Ops)
	if err != nil {
		return nil, fmt.Errorf("engine: executor: %w", err)
	}

	report.JobsRun = execReport.JobsRun
	report.BytesTransferred = execReport.BytesTransferred
	report.Restart = sorted.Restart || execReport.Restart

	for _, rec := range execReport.Errors {
		e.events.Publish(recordEvent(rec))
	}

	return report, nil
}

func recordEvent(rec errs.Record) telemetry.Event {
	return telemetry.Event{
		Kind: telemetry.EventError,
		Path: rec.Path,
		Err:  fmt.Errorf("%s/%s: %s", rec.Code, rec.Cause, rec.Path),
	}
}
