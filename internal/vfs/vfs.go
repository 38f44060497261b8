// Package vfs defines the capability interface between the executor and an
// OS cloud-files provider (Windows CfAPI, macOS File Provider). It is a
// contract only: the sync pipeline calls it before and after jobs touch a
// local path, but whether a path actually becomes a sparse placeholder is
// entirely up to the Provider in use.
//
// On a platform with no virtual-file support, Noop satisfies the interface
// by doing nothing and reporting every path as fully hydrated.
package vfs

import "context"

// Status is what the provider currently believes about one local path.
type Status uint8

const (
	// StatusUnknown means the path isn't tracked by the provider at all
	// (plain file, or virtual files are disabled).
	StatusUnknown Status = iota
	// StatusHydrated means the full file content is present on disk.
	StatusHydrated
	// StatusDehydrated means the path is a placeholder: metadata only, no
	// local bytes.
	StatusDehydrated
	// StatusSyncing means a hydrate or dehydrate is in flight for the path.
	StatusSyncing
)

func (s Status) String() string {
	switch s {
	case StatusHydrated:
		return "hydrated"
	case StatusDehydrated:
		return "dehydrated"
	case StatusSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// PinState records the user's stated intent for a path, independent of its
// current Status.
type PinState uint8

const (
	// PinUnspecified defers to the provider's default policy.
	PinUnspecified PinState = iota
	// PinOnlineOnly means the provider should dehydrate the path whenever
	// it is safe to do so.
	PinOnlineOnly
	// PinAlwaysLocal means the provider should keep the path hydrated.
	PinAlwaysLocal
)

// Provider is the capability a local filesystem replica may or may not
// offer. Every method takes an absolute local path.
type Provider interface {
	// Available reports whether this Provider actually manages root, i.e.
	// whether the platform's cloud-files integration is enabled there.
	Available(root string) bool

	// CreatePlaceholder materializes path as a dehydrated placeholder of
	// the given size (files) or as an empty placeholder directory
	// (isDir == true). It does not write file content.
	CreatePlaceholder(ctx context.Context, path string, size int64, isDir bool) error

	// Status reports what the provider currently believes about path.
	Status(ctx context.Context, path string) (Status, error)

	// Hydrate requests the provider fetch full content for path, blocking
	// until done or ctx is canceled.
	Hydrate(ctx context.Context, path string) error

	// Dehydrate requests the provider free path's local bytes, keeping
	// only the placeholder metadata.
	Dehydrate(ctx context.Context, path string) error

	// SetPinState records the user's intent for path; it does not itself
	// trigger a hydrate or dehydrate.
	SetPinState(ctx context.Context, path string, pin PinState) error

	// ForceStatus overrides the provider's bookkeeping for path without
	// moving any bytes; the executor uses it to reset the status of a
	// dehydrated placeholder it deletes.
	ForceStatus(ctx context.Context, path string, status Status) error

	// SetInSync tells the provider path's content now matches the remote
	// revision described by etag/size, so it should stop flagging the
	// path as locally modified.
	SetInSync(ctx context.Context, path string, etag string, size int64) error
}

// Noop is the Provider used on replicas with virtual files disabled (or
// unsupported by the platform). CreatePlaceholder, Hydrate and Dehydrate are
// all no-ops; Status always reports StatusHydrated since every path on such
// a replica holds its full content by definition.
type Noop struct{}

var _ Provider = Noop{}

func (Noop) Available(string) bool { return false }

func (Noop) CreatePlaceholder(context.Context, string, int64, bool) error { return nil }

func (Noop) Status(context.Context, string) (Status, error) { return StatusHydrated, nil }

func (Noop) Hydrate(context.Context, string) error { return nil }

func (Noop) Dehydrate(context.Context, string) error { return nil }

func (Noop) SetPinState(context.Context, string, PinState) error { return nil }

func (Noop) ForceStatus(context.Context, string, Status) error { return nil }

func (Noop) SetInSync(context.Context, string, string, int64) error { return nil }
