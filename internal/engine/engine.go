// Package engine wires S1-S8 into the SyncEngine: the pass loop that scans
// both replicas, reconciles them, and executes the result, driven by a
// full-sync timer and a filesystem watcher the way the teacher's SyncEngine
// drives its own reconcile loop (spec §1, §4, §5).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/openmined/syncengine/internal/config"
	"github.com/openmined/syncengine/internal/driveapi"
	"github.com/openmined/syncengine/internal/executor"
	"github.com/openmined/syncengine/internal/fsop"
	"github.com/openmined/syncengine/internal/fswatch"
	"github.com/openmined/syncengine/internal/syncdb"
	"github.com/openmined/syncengine/internal/telemetry"
	"github.com/openmined/syncengine/internal/vfs"
)

const lockFileName = ".syncengine.lock"

var ErrAlreadyRunning = errors.New("engine: another instance holds the sync lock for this directory")

// State is the engine's run state, published on EventStatusChanged.
type State uint8

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Engine is one sync pair's running instance: a local directory, a remote
// drive folder, and the loop that keeps them converging.
type Engine struct {
	cfg *config.Config

	db    *syncdb.DB
	cache *syncdb.Cache
	drive *driveapi.Client
	vfs   vfs.Provider

	local     *LocalScanner
	remote    *RemoteScanner
	selective *fsop.SelectiveSync
	watcher   *fswatch.Watcher
	executor  *executor.Executor
	events    *telemetry.Sink

	lock *flock.Flock

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// New builds an Engine from cfg, opening the sync DB and wiring every
// pipeline stage. The caller owns db's lifetime via Close.
func New(cfg *config.Config, provider vfs.Provider) (*Engine, error) {
	if provider == nil {
		provider = vfs.Noop{}
	}

	dbPath := filepath.Join(filepath.Dir(cfg.Path), "sync.db")
	db, err := syncdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open sync db: %w", err)
	}

	cache, err := syncdb.NewCache(db, 4096)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: new cache: %w", err)
	}

	drive, err := driveapi.New(driveapi.Config{
		BaseURL:          cfg.ServerURL,
		AccessToken:      cfg.AccessToken,
		UserAgent:        "syncengine",
		ListingCacheSize: 512,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: new drive client: %w", err)
	}

	if err := os.MkdirAll(cfg.SyncDir, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create sync dir: %w", err)
	}

	watcher, err := fswatch.New(cfg.SyncDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: new watcher: %w", err)
	}

	events := telemetry.NewSink(256)

	execCfg := executor.DefaultConfig()
	execCfg.LargeFileThreshold = cfg.LargeFileThreshold
	execCfg.ChunkSize = cfg.ChunkSize
	execCfg.MaxParallelChunks = cfg.MaxParallelChunks
	execCfg.JobPoolSize = cfg.JobPoolSize
	execCfg.DiskSpaceMargin = cfg.DiskSpaceMargin

	return &Engine{
		cfg:      cfg,
		db:       db,
		cache:    cache,
		drive:    drive,
		vfs:      provider,
		local:    NewLocalScanner(cfg.SyncDir),
		remote:   NewRemoteScanner(drive, cfg.RemoteRootID),
		watcher:  watcher,
		events:   events,
		executor: executor.New(drive, provider, db, cache, events, cfg.SyncDir, execCfg),
		lock:     flock.New(filepath.Join(filepath.Dir(cfg.Path), lockFileName)),
		state:    StateStopped,
	}, nil
}

// SetSelectiveSync installs the set of remote subtrees excluded from the
// local replica (spec §9 supplemented feature, "partial sync").
func (e *Engine) SetSelectiveSync(patterns []string) {
	e.selective = fsop.NewSelectiveSync(patterns)
}

// Events returns the channel external collaborators (a GUI, a CLI status
// command) subscribe to.
func (e *Engine) Events() <-chan telemetry.Event { return e.events.Subscribe() }

// State reports whether the engine is stopped, running, or paused.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start acquires the single-instance lock, runs one pass immediately, then
// loops on a timer and on filesystem events until ctx is canceled or Stop
// is called. It blocks until the initial pass completes; the loop itself
// runs in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("engine: already %s", e.state)
	}

	locked, err := e.lock.TryLock()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: acquire lock: %w", err)
	}
	if !locked {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StateRunning
	e.mu.Unlock()

	e.watcher.Start(runCtx)
	e.events.Publish(telemetry.Event{Kind: telemetry.EventStatusChanged})

	if _, err := e.safeRunPass(runCtx); err != nil {
		slog.Error("engine", "op", "initial pass", "error", err)
	}

	e.wg.Add(1)
	go e.loop(runCtx)

	return nil
}

// Stop cancels the pass loop, releases the lock, and waits for the
// background goroutine to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.state = StateStopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	if e.watcher != nil {
		e.watcher.Stop()
	}
	if err := e.lock.Unlock(); err != nil {
		return fmt.Errorf("engine: release lock: %w", err)
	}
	return os.Remove(e.lock.Path())
}

// Pause suspends the pass loop without releasing the instance lock; events
// observed while paused are coalesced by the watcher's debounce and picked
// up on the first pass after Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.state = StatePaused
		e.events.Publish(telemetry.Event{Kind: telemetry.EventStatusChanged})
	}
}

// Resume un-suspends a paused engine.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePaused {
		e.state = StateRunning
		e.events.Publish(telemetry.Event{Kind: telemetry.EventStatusChanged})
	}
}

// RunOnce drives exactly one pass and returns its report, regardless of
// the loop's running state; used by the CLI's one-shot sync command.
func (e *Engine) RunOnce(ctx context.Context) (*PassReport, error) {
	return e.runPass(ctx)
}

// Close releases the watcher's filesystem hooks and the sync DB. Safe to
// call whether or not Start/Stop ever ran (the "once" command never starts
// the loop but still needs the watcher's notify subscription torn down).
func (e *Engine) Close() error {
	e.watcher.Stop()
	return e.db.Close()
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(e.cfg.FullSyncInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.tick(ctx)
			timer.Reset(e.cfg.FullSyncInterval)
		case _, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.tick(ctx)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(e.cfg.FullSyncInterval)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if e.State() != StateRunning {
		return
	}
	if _, err := e.safeRunPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("engine", "op", "pass", "error", err)
	}
}

// safeRunPass runs runPass and, when it reports a restart is needed, runs
// it again immediately (bounded, so a misbehaving cycle-break can't spin
// forever): S7/S8 restarts are meant to resolve in one extra pass.
func (e *Engine) safeRunPass(ctx context.Context) (*PassReport, error) {
	const maxRestarts = 3

	var report *PassReport
	for i := 0; i <= maxRestarts; i++ {
		r, err := e.runPass(ctx)
		if err != nil {
			e.mu.Lock()
			e.lastErr = err
			e.mu.Unlock()
			return nil, err
		}
		report = r
		if !r.Restart {
			break
		}
		slog.Debug("engine", "op", "pass", "event", "restart requested", "attempt", i+1)
	}
	e.events.Publish(telemetry.Event{Kind: telemetry.EventPassCompleted})
	return report, nil
}

// LastError returns the most recent pass error, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
