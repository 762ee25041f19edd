package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"resdex/internal/debounce"
	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// Watcher reconciles one domain directory with the snapshot store. Only
// direct children of the directory are tracked.
type Watcher struct {
	host   Host
	dir    string
	prefix string
	domain resource.Domain
	opts   Options
	logger resource.Logger
	prober *rfs.OSProber

	agg *debounce.Aggregator
	fsw *fsnotify.Watcher

	state    atomic.Int32
	disposed atomic.Bool
	scanning sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for dir, which must lie inside the host root.
func New(host Host, dir string, domain resource.Domain, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch directory: %w", err)
	}
	rel, ok := resource.DomainedPath(host.Root(), abs)
	if !ok {
		return nil, fmt.Errorf("watch directory %s is not inside root %s", abs, host.Root())
	}
	opts.applyDefaults()

	w := &Watcher{
		host:   host,
		dir:    abs,
		prefix: rel + "/",
		domain: domain,
		opts:   opts,
		logger: opts.Logger,
		prober: rfs.NewOSProber(),
	}
	w.agg = debounce.New(opts.Debounce, opts.BurstThreshold, w.onBatch, w.onBurst)
	w.state.Store(int32(StateInitializing))
	return w, nil
}

// State returns the current lifecycle state.
func (w *Watcher) State() State { return State(w.state.Load()) }

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start subscribes to the directory, runs the initial revalidation and
// starts the background loops. A failed subscription is logged and leaves
// the watcher in StateUnwatched.
func (w *Watcher) Start(ctx context.Context) error {
	if w.disposed.Load() {
		return ErrDisposed
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	subErr := w.subscribe()
	if subErr != nil {
		w.logger.Warn("watch subscription failed", "dir", w.dir, "error", subErr)
	}

	if _, err := w.Revalidate(ctx); err != nil {
		w.logger.Error("initial revalidation failed", "dir", w.dir, "error", err)
	}

	if subErr == nil {
		w.state.CompareAndSwap(int32(StateInitializing), int32(StateWatching))
	} else {
		w.state.CompareAndSwap(int32(StateInitializing), int32(StateUnwatched))
	}
	if w.fsw != nil {
		w.wg.Add(1)
		go w.loop(w.fsw)
	}

	if w.opts.Interval > 0 {
		w.wg.Add(1)
		go w.tick()
	}
	return nil
}

func (w *Watcher) subscribe() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	return fsw.Add(w.dir)
}

// Enqueue pushes job for a file inside the watched directory. The job is
// discarded if the watcher is disposed before it runs.
func (w *Watcher) Enqueue(job *resource.Job) error {
	if w.disposed.Load() {
		return ErrDisposed
	}
	if filepath.Dir(job.Path) != w.dir {
		return fmt.Errorf("%s is not in watched directory %s", job.Path, w.dir)
	}
	job.Domain = w.domain
	job.Cancelled = w.disposed.Load
	return w.host.Enqueue(job)
}

// Dispose closes the subscription and stops every background loop. Jobs
// already queued still run but their results are dropped.
func (w *Watcher) Dispose() error {
	if w.disposed.Swap(true) {
		return nil
	}
	w.state.Store(int32(StateDisposed))
	if w.cancel != nil {
		w.cancel()
	}
	w.agg.Stop()

	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.onBurst()
			}
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) tick() {
	defer w.wg.Done()
	t := time.NewTicker(w.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := w.Revalidate(w.ctx); err != nil && !errors.Is(err, ErrDisposed) {
				w.logger.Warn("periodic revalidation failed", "dir", w.dir, "error", err)
			}
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.disposed.Load() {
		return
	}
	path := filepath.Clean(ev.Name)
	if path == w.dir {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.logger.Info("watched directory removed", "dir", w.dir)
			w.state.CompareAndSwap(int32(StateWatching), int32(StateUnwatched))
			w.onBurst()
		}
		return
	}
	if filepath.Dir(path) != w.dir || w.opts.Ignore.Match(filepath.Base(path)) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// Removal is applied before any later create for the same path can
		// be queued, since creates only reach the queue through the batch.
		w.agg.Forget(path)
		w.remove(path)
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		w.agg.Add(path)
	}
}

func (w *Watcher) remove(path string) {
	domainedPath, ok := resource.DomainedPath(w.host.Root(), path)
	if !ok {
		return
	}
	if err := w.host.RemovePath(w.ctx, domainedPath); err != nil {
		w.logger.Warn("removing snapshot failed", "path", path, "error", err)
	}
}

// onBatch probes each changed path and queues it with whatever snapshot the
// store holds for its path or inode.
func (w *Watcher) onBatch(paths []string) {
	ctx := w.ctx
	store := w.host.Snapshots()
	for _, path := range paths {
		if w.disposed.Load() {
			return
		}
		file, err := w.prober.Probe(path)
		if err != nil {
			if !errors.Is(err, resource.ErrNotFound) {
				w.logger.Debug("probe failed", "path", path, "error", err)
			}
			continue
		}
		if !file.IsDirectory && file.Size == 0 {
			continue
		}
		domainedPath, _ := resource.DomainedPath(w.host.Root(), path)
		snap, err := store.GetSnapshot(ctx, domainedPath)
		if err == nil && snap == nil {
			snap, err = store.GetSnapshotByInode(ctx, file.Ino)
		}
		if err != nil {
			w.logger.Warn("snapshot lookup failed", "path", path, "error", err)
		}
		if err := w.Enqueue(&resource.Job{Path: path, File: file, Snapshot: snap}); err != nil {
			w.logger.Debug("enqueue failed", "path", path, "error", err)
		}
	}
}

func (w *Watcher) onBurst() {
	if _, err := w.Revalidate(w.ctx); err != nil && !errors.Is(err, ErrDisposed) {
		w.logger.Warn("revalidation failed", "dir", w.dir, "error", err)
	}
}

// Revalidate lists the directory and reconciles it with the snapshot store:
// files with a valid snapshot and metadata are emitted directly, everything
// else is queued, and snapshots for vanished files are removed.
// Revalidations of one watcher never overlap.
func (w *Watcher) Revalidate(ctx context.Context) (Stats, error) {
	var stats Stats
	if w.disposed.Load() {
		return stats, ErrDisposed
	}
	w.scanning.Lock()
	defer w.scanning.Unlock()

	files, err := w.prober.ListDir(w.dir, w.opts.Ignore)
	if errors.Is(err, fs.ErrNotExist) {
		// The directory is gone, so is everything that was indexed in it.
		if w.disposed.Load() {
			return stats, ErrDisposed
		}
		n, err := w.host.RemoveUnder(ctx, w.prefix)
		if err != nil {
			return stats, err
		}
		stats.Removed = n
		w.host.Revalidated(ctx, w.domain)
		w.logger.Debug("revalidated missing directory", "dir", w.dir, "removed", n)
		return stats, nil
	}
	if err != nil {
		return stats, err
	}

	store := w.host.Snapshots()
	known, err := store.ListSnapshots(ctx, w.prefix, resource.Page{})
	if err != nil {
		return stats, fmt.Errorf("listing snapshots: %w", err)
	}
	inos := make([]uint64, 0, len(files))
	for _, f := range files {
		inos = append(inos, f.Ino)
	}
	linked, err := store.FindSnapshotsByInodes(ctx, inos)
	if err != nil {
		return stats, fmt.Errorf("finding snapshots by inode: %w", err)
	}

	byPath := make(map[string]*resource.Snapshot, len(known))
	byIno := make(map[uint64]*resource.Snapshot, len(known)+len(linked))
	for _, s := range linked {
		byIno[s.Ino] = s
	}
	for _, s := range known {
		byPath[s.DomainedPath] = s
		byIno[s.Ino] = s
	}

	type hit struct {
		file *resource.FileDescriptor
		snap *resource.Snapshot
	}
	var hits []hit
	var moved []*resource.Snapshot
	for _, file := range files {
		if !file.IsDirectory && file.Size == 0 {
			stats.Skipped++
			continue
		}
		domainedPath, ok := resource.DomainedPath(w.host.Root(), file.Path)
		if !ok {
			continue
		}
		snap := byPath[domainedPath]
		if snap == nil {
			snap = byIno[file.Ino]
		}
		delete(byPath, domainedPath)

		if !resource.IsValid(file, snap) {
			w.queue(&resource.Job{Path: file.Path, File: file}, &stats)
			continue
		}
		if snap.DomainedPath != domainedPath {
			snap = snap.Rebase(domainedPath)
			moved = append(moved, snap)
		}
		hits = append(hits, hit{file: file, snap: snap})
	}

	if len(moved) > 0 {
		if w.disposed.Load() {
			return stats, ErrDisposed
		}
		if err := store.UpsertSnapshots(ctx, moved); err != nil {
			w.logger.Warn("saving moved snapshots failed", "dir", w.dir, "count", len(moved), "error", err)
		}
	}

	for domainedPath := range byPath {
		if w.disposed.Load() {
			return stats, ErrDisposed
		}
		if err := w.host.RemovePath(ctx, domainedPath); err != nil {
			w.logger.Warn("removing snapshot failed", "path", domainedPath, "error", err)
			continue
		}
		stats.Removed++
	}

	hashes := make([]string, 0, len(hits))
	for _, h := range hits {
		hashes = append(hashes, h.snap.Hash)
	}
	entries, err := w.host.Entries(ctx, hashes)
	if err != nil {
		return stats, fmt.Errorf("loading metadata: %w", err)
	}
	for _, h := range hits {
		entry := entries[h.snap.Hash]
		switch {
		case entry == nil:
			w.queue(&resource.Job{Path: h.file.Path, File: h.file, Snapshot: h.snap}, &stats)
		case w.domain == resource.DomainMods && !h.file.IsDirectory && !entry.Metadata.HasLoader() &&
			!w.host.ParsedWithoutLoader(h.snap.Hash):
			meta := entry.Metadata
			w.queue(&resource.Job{Path: h.file.Path, File: h.file, Snapshot: h.snap, Metadata: &meta}, &stats)
		default:
			if w.disposed.Load() {
				return stats, ErrDisposed
			}
			w.host.Emit(resource.FromFile(h.file, w.domain, h.snap.Hash, h.snap.Kind, h.file.Path, entry))
			stats.Emitted++
		}
	}

	w.resubscribe()
	w.host.Revalidated(ctx, w.domain)
	w.logger.Debug("revalidated", "dir", w.dir, "queued", stats.Queued, "emitted", stats.Emitted, "removed", stats.Removed)
	return stats, nil
}

func (w *Watcher) queue(job *resource.Job, stats *Stats) {
	if err := w.Enqueue(job); err != nil {
		w.logger.Debug("enqueue failed", "path", job.Path, "error", err)
		return
	}
	stats.Queued++
}

// resubscribe re-adds the directory after the subscription was lost, once
// the directory exists again.
func (w *Watcher) resubscribe() {
	if w.State() != StateUnwatched || w.fsw == nil {
		return
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return
	}
	if w.state.CompareAndSwap(int32(StateUnwatched), int32(StateWatching)) {
		w.logger.Info("watch subscription restored", "dir", w.dir)
	}
}
