// Package watch keeps the index in step with domain directories on disk. A
// primary Watcher reconciles one domain directory against the snapshot store;
// a Secondary mirrors a foreign directory into a primary one by linking.
package watch

import (
	"context"
	"errors"
	"time"

	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// ErrDisposed is returned by operations on a disposed watcher.
var ErrDisposed = errors.New("watcher disposed")

// Host is the index a watcher feeds. The engine implements it.
type Host interface {
	Root() string
	Snapshots() resource.SnapshotStore
	Entries(ctx context.Context, hashes []string) (map[string]*resource.Entry, error)
	Enqueue(job *resource.Job) error
	// Emit publishes a resource that needed no work.
	Emit(res *resource.Resource)
	// RemovePath drops a snapshot and publishes the removal.
	RemovePath(ctx context.Context, domainedPath string) error
	// RemoveUnder drops every snapshot under a domained path prefix.
	RemoveUnder(ctx context.Context, prefix string) (int, error)
	// ParsedWithoutLoader reports whether a mods file with this hash was
	// already parsed without finding a loader.
	ParsedWithoutLoader(hash string) bool
	// Revalidated is called after every completed revalidation.
	Revalidated(ctx context.Context, domain resource.Domain)
	Hash(ctx context.Context, file *resource.FileDescriptor) (string, error)
}

const (
	DefaultDebounce       = 200 * time.Millisecond
	DefaultBurstThreshold = 16
)

// Options tunes a watcher.
type Options struct {
	Ignore         *rfs.IgnoreMatcher
	Debounce       time.Duration
	BurstThreshold int
	// Interval is the period of background revalidation. Zero disables it.
	Interval time.Duration
	Logger   resource.Logger
	// Clock names collision copies made by a Secondary.
	Clock resource.Clock
}

func (o *Options) applyDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.BurstThreshold <= 0 {
		o.BurstThreshold = DefaultBurstThreshold
	}
	if o.Logger == nil {
		o.Logger = resource.NewNopLogger()
	}
	if o.Clock == nil {
		o.Clock = resource.RealClock{}
	}
}

// State is the lifecycle position of a primary watcher.
type State int32

const (
	StateInitializing State = iota
	StateWatching
	// StateUnwatched means the native subscription failed or was lost.
	// Periodic and explicit revalidation still run.
	StateUnwatched
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateWatching:
		return "watching"
	case StateUnwatched:
		return "unwatched"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Stats summarizes one revalidation.
type Stats struct {
	Queued  int
	Emitted int
	Removed int
	Skipped int
}
