// Package fswatch is the raw FS event producer the engine's pass loop reads
// from (spec §4.1, "raw FS event threshold"): it watches a local sync root
// recursively, debounces bursty writes to one event per path, and counts
// events so the pass loop can tell S1 to invalidate its cache and force a
// full rescan instead of trusting a flood of individual diffs.
package fswatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/openmined/syncengine/internal/utils"
)

const (
	eventBufferSize        = 256
	defaultDebounceTimeout = 50 * time.Millisecond
	defaultIgnoreTimeout   = time.Second
)

// EventKind is the coarse classification of a debounced path event; the
// engine only needs "something changed here", so Write/Create/Remove/Rename
// all collapse to the same downstream action (S1 rescans the path's tree).
type EventKind uint8

const (
	EventWrite EventKind = iota
	EventCreate
	EventRemove
	EventRename
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "Create"
	case EventRemove:
		return "Remove"
	case EventRename:
		return "Rename"
	default:
		return "Write"
	}
}

// Event is one debounced filesystem change under the watched root.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher watches one directory tree and emits a debounced Event stream,
// plus a running count of raw (pre-debounce) events a caller can read with
// Count and reset with ResetCount between sync passes.
type Watcher struct {
	root string

	raw    chan notify.EventInfo
	Events chan Event

	rawCount int64

	ignoreMu sync.Mutex
	ignore   map[string]time.Time

	debounceMu      sync.Mutex
	pending         map[string]Event
	timers          map[string]*time.Timer
	debounceTimeout time.Duration

	done   chan struct{}
	wg     sync.WaitGroup
	stopMu sync.Mutex
	closed bool
}

// New starts watching root recursively. Returns an error if root does not
// exist or the platform watch backend cannot be started there.
func New(root string) (*Watcher, error) {
	if !utils.DirExists(root) {
		return nil, ErrDirNotExist
	}

	w := &Watcher{
		root:            root,
		raw:             make(chan notify.EventInfo, eventBufferSize),
		Events:          make(chan Event, eventBufferSize),
		ignore:          make(map[string]time.Time),
		pending:         make(map[string]Event),
		timers:          make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
		done:            make(chan struct{}),
	}

	if err := notify.Watch(root+"/...", w.raw, notify.Create, notify.Remove, notify.Write, notify.Rename); err != nil {
		return nil, err
	}
	return w, nil
}

// SetDebounceTimeout overrides the default 50ms coalescing window.
func (w *Watcher) SetDebounceTimeout(d time.Duration) {
	w.debounceTimeout = d
}

// Start runs the debounce loop until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop tears down the platform watch and the debounce loop, closing Events.
func (w *Watcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	if w.closed {
		return
	}
	w.closed = true

	close(w.done)
	notify.Stop(w.raw)
	w.wg.Wait()
}

// IgnoreOnce suppresses the next event observed for path within the default
// timeout, used right after the executor writes a file so its own write
// doesn't retrigger a sync pass.
func (w *Watcher) IgnoreOnce(path string) {
	w.IgnoreOnceFor(path, defaultIgnoreTimeout)
}

// IgnoreOnceFor is IgnoreOnce with a caller-supplied timeout.
func (w *Watcher) IgnoreOnceFor(path string, timeout time.Duration) {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	w.ignore[path] = time.Now().Add(timeout)
}

func (w *Watcher) consumeIgnore(path string) bool {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	expiry, ok := w.ignore[path]
	if !ok {
		return false
	}
	delete(w.ignore, path)
	return time.Now().Before(expiry)
}

// Count returns the number of raw (pre-debounce) events observed since the
// last ResetCount, fed into fsop.Options.RawEventThreshold.
func (w *Watcher) Count() int {
	return int(atomic.LoadInt64(&w.rawCount))
}

// ResetCount zeroes the raw event counter at the start of a new pass.
func (w *Watcher) ResetCount() {
	atomic.StoreInt64(&w.rawCount, 0)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	defer w.flushPending()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ei, ok := <-w.raw:
			if !ok {
				return
			}
			atomic.AddInt64(&w.rawCount, 1)
			w.debounce(toEvent(ei))
		}
	}
}

func toEvent(ei notify.EventInfo) Event {
	kind := EventWrite
	switch ei.Event() {
	case notify.Create:
		kind = EventCreate
	case notify.Remove:
		kind = EventRemove
	case notify.Rename:
		kind = EventRename
	}
	return Event{Kind: kind, Path: ei.Path()}
}

func (w *Watcher) debounce(ev Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.timers[ev.Path]; ok {
		t.Stop()
	}
	w.pending[ev.Path] = ev
	w.timers[ev.Path] = time.AfterFunc(w.debounceTimeout, func() { w.flush(ev.Path) })
}

func (w *Watcher) flush(path string) {
	w.debounceMu.Lock()
	ev, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	w.debounceMu.Unlock()
	if !ok {
		return
	}

	if w.consumeIgnore(path) {
		return
	}

	select {
	case w.Events <- ev:
	default:
		slog.Warn("fswatch", "event", "dropped", "reason", "channel full", "path", path)
	}
}

func (w *Watcher) flushPending() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		if ev, ok := w.pending[path]; ok {
			select {
			case w.Events <- ev:
			default:
			}
		}
	}
}
