// Package syncpair is the public facade over one sync pair: a local
// directory and a remote drive folder kept convergent by internal/engine.
// It exists so an out-of-process collaborator (a GUI, a systray app) can
// depend on a small, stable surface instead of reaching into internal/
// packages directly (spec §1, "a GUI observes progress/status/errors but
// is out of scope here").
package syncpair

import (
	"context"
	"time"

	"github.com/openmined/syncengine/internal/config"
	"github.com/openmined/syncengine/internal/engine"
	"github.com/openmined/syncengine/internal/telemetry"
	"github.com/openmined/syncengine/internal/vfs"
)

// State mirrors engine.State without exposing the internal package.
type State = engine.State

const (
	StateStopped = engine.StateStopped
	StateRunning = engine.StateRunning
	StatePaused  = engine.StatePaused
)

// EventKind mirrors telemetry.EventKind.
type EventKind = telemetry.EventKind

const (
	EventProgress         = telemetry.EventProgress
	EventStatusChanged    = telemetry.EventStatusChanged
	EventError            = telemetry.EventError
	EventPassCompleted    = telemetry.EventPassCompleted
	EventRestartRequested = telemetry.EventRestartRequested
)

// Event mirrors telemetry.Event.
type Event = telemetry.Event

// Report mirrors engine.PassReport.
type Report = engine.PassReport

// ErrAlreadyRunning is returned by Start when another process already
// holds the sync pair's instance lock.
var ErrAlreadyRunning = engine.ErrAlreadyRunning

// Options configures a Pair; it is the public equivalent of config.Config,
// keeping every internal package out of a caller's import graph.
type Options struct {
	// SyncDir is the local directory kept in sync.
	SyncDir string
	// ServerURL is the remote drive's API base URL.
	ServerURL string
	// Email identifies the account; informational only.
	Email string
	// AccessToken authenticates every request to ServerURL.
	AccessToken string
	// RemoteRootID is the drive folder id this pair syncs against; empty
	// means the drive's own top-level folder.
	RemoteRootID string
	// ConfigPath is where the instance lock file and sync DB live; empty
	// uses a path derived from SyncDir.
	ConfigPath string
	// FullSyncInterval is how often a pass runs absent filesystem events;
	// zero uses the engine's default.
	FullSyncInterval time.Duration
	// SelectiveSyncExclude lists remote subtrees (doublestar glob
	// patterns, relative to SyncDir) not mirrored locally.
	SelectiveSyncExclude []string
}

func (o Options) toConfig() *config.Config {
	cfg := config.Default()
	cfg.SyncDir = o.SyncDir
	cfg.ServerURL = o.ServerURL
	cfg.Email = o.Email
	cfg.AccessToken = o.AccessToken
	if o.RemoteRootID != "" {
		cfg.RemoteRootID = o.RemoteRootID
	}
	if o.ConfigPath != "" {
		cfg.Path = o.ConfigPath
	}
	if o.FullSyncInterval > 0 {
		cfg.FullSyncInterval = o.FullSyncInterval
	}
	return cfg
}

// Pair is one running (or stopped) sync pair.
type Pair struct {
	e *engine.Engine
}

// Open validates opts and wires a Pair, but does not start syncing; call
// Start (or RunOnce) next.
func Open(opts Options) (*Pair, error) {
	cfg := opts.toConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e, err := engine.New(cfg, vfs.Noop{})
	if err != nil {
		return nil, err
	}
	if len(opts.SelectiveSyncExclude) > 0 {
		e.SetSelectiveSync(opts.SelectiveSyncExclude)
	}
	return &Pair{e: e}, nil
}

// Start begins the pass loop: an immediate pass, then a timer- and
// filesystem-event-driven loop until ctx is canceled or Stop is called.
func (p *Pair) Start(ctx context.Context) error { return p.e.Start(ctx) }

// Stop halts the pass loop and releases the instance lock.
func (p *Pair) Stop() error { return p.e.Stop() }

// Pause suspends the pass loop without releasing the instance lock.
func (p *Pair) Pause() { p.e.Pause() }

// Resume un-suspends a paused Pair.
func (p *Pair) Resume() { p.e.Resume() }

// State reports whether the pair is stopped, running, or paused.
func (p *Pair) State() State { return p.e.State() }

// RunOnce drives exactly one sync pass and returns its summary.
func (p *Pair) RunOnce(ctx context.Context) (*Report, error) { return p.e.RunOnce(ctx) }

// Events returns the channel of progress/status/error notifications a GUI
// subscribes to.
func (p *Pair) Events() <-chan Event { return p.e.Events() }

// LastError returns the most recent pass error, or nil.
func (p *Pair) LastError() error { return p.e.LastError() }

// Close releases the sync DB and watcher resources. Call once the Pair is
// no longer needed, after Stop.
func (p *Pair) Close() error { return p.e.Close() }
