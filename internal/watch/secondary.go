package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"resdex/internal/debounce"
	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// Secondary mirrors a foreign directory into a primary domain directory.
// New files whose inode or content is not already stored in the domain are
// hard linked (or copied) into the primary directory, where the primary
// watcher indexes them. Nothing is indexed in place.
type Secondary struct {
	host    Host
	dir     string
	primary string
	domain  resource.Domain
	opts    Options
	logger  resource.Logger
	prober  *rfs.OSProber

	agg *debounce.Aggregator
	fsw *fsnotify.Watcher

	disposed atomic.Bool
	scanning sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSecondary creates a mirror of dir into <root>/<domain>.
func NewSecondary(host Host, dir string, domain resource.Domain, opts Options) (*Secondary, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch directory: %w", err)
	}
	primary := filepath.Join(host.Root(), string(domain))
	if abs == primary {
		return nil, fmt.Errorf("secondary directory %s is the primary directory", abs)
	}
	opts.applyDefaults()

	s := &Secondary{
		host:    host,
		dir:     abs,
		primary: primary,
		domain:  domain,
		opts:    opts,
		logger:  opts.Logger,
		prober:  rfs.NewOSProber(),
	}
	// Every change in a foreign directory is handled individually.
	s.agg = debounce.New(opts.Debounce, 0, s.onBatch, nil)
	return s, nil
}

// Start subscribes to the directory and mirrors its current contents.
func (s *Secondary) Start(ctx context.Context) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if err := os.MkdirAll(s.primary, 0755); err != nil {
		return fmt.Errorf("creating primary directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("watch subscription failed", "dir", s.dir, "error", err)
	} else if err := fsw.Add(s.dir); err != nil {
		s.logger.Warn("watch subscription failed", "dir", s.dir, "error", err)
		fsw.Close()
	} else {
		s.fsw = fsw
		s.wg.Add(1)
		go s.loop()
	}

	if err := s.Revalidate(ctx); err != nil {
		s.logger.Error("initial mirror failed", "dir", s.dir, "error", err)
	}
	return nil
}

// Dispose closes the subscription. It is idempotent.
func (s *Secondary) Dispose() error {
	if s.disposed.Swap(true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.agg.Stop()
	var err error
	if s.fsw != nil {
		err = s.fsw.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Secondary) loop() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watch error", "dir", s.dir, "error", err)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Secondary) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if filepath.Dir(path) != s.dir || s.opts.Ignore.Match(filepath.Base(path)) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		s.agg.Forget(path)
		if domainedPath, ok := resource.DomainedPath(s.host.Root(), path); ok {
			if err := s.host.RemovePath(s.ctx, domainedPath); err != nil {
				s.logger.Warn("removing snapshot failed", "path", path, "error", err)
			}
		}
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		s.agg.Add(path)
	}
}

func (s *Secondary) onBatch(paths []string) {
	for _, path := range paths {
		if s.disposed.Load() {
			return
		}
		file, err := s.prober.Probe(path)
		if err != nil {
			continue
		}
		s.mirrorLogged(s.ctx, file)
	}
}

// Revalidate mirrors every file currently in the directory.
func (s *Secondary) Revalidate(ctx context.Context) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	s.scanning.Lock()
	defer s.scanning.Unlock()

	files, err := s.prober.ListDir(s.dir, s.opts.Ignore)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, file := range files {
		if s.disposed.Load() {
			return ErrDisposed
		}
		s.mirrorLogged(ctx, file)
	}
	return nil
}

func (s *Secondary) mirrorLogged(ctx context.Context, file *resource.FileDescriptor) {
	linked, err := s.mirror(ctx, file)
	switch {
	case err == nil && linked != "":
		s.logger.Info("mirrored resource", "from", file.Path, "to", linked)
	case err != nil && (errors.Is(err, resource.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || rfs.IsBusy(err)):
		s.logger.Debug("mirror skipped", "path", file.Path, "error", err)
	case err != nil:
		s.logger.Error("mirror failed", "path", file.Path, "error", err)
	}
}

// mirror places file into the primary directory unless the domain already
// holds it. It returns the new path, or "" when nothing was placed.
func (s *Secondary) mirror(ctx context.Context, file *resource.FileDescriptor) (string, error) {
	if file.IsDirectory || file.Size == 0 {
		return "", nil
	}
	cached, err := s.isStored(ctx, file)
	if err != nil || cached {
		return "", err
	}

	target := filepath.Join(s.primary, file.FileName)
	if rfs.SameFile(file.Path, target) {
		return "", nil
	}
	if _, err := os.Lstat(target); err == nil {
		ext := filepath.Ext(file.FileName)
		stem := strings.TrimSuffix(file.FileName, ext)
		target = filepath.Join(s.primary, stem+"-"+strconv.FormatInt(s.opts.Clock.Now().UnixMilli(), 10)+ext)
	}
	if _, err := rfs.Place(file.Path, target, false); err != nil {
		return "", err
	}
	return target, nil
}

// isStored reports whether the domain already has file, by inode first and
// then by content hash.
func (s *Secondary) isStored(ctx context.Context, file *resource.FileDescriptor) (bool, error) {
	store := s.host.Snapshots()
	prefix := s.domain.Prefix()

	snap, err := store.GetSnapshotByInode(ctx, file.Ino)
	if err != nil {
		return false, err
	}
	if snap != nil && strings.HasPrefix(snap.DomainedPath, prefix) {
		return true, nil
	}

	hash, err := s.host.Hash(ctx, file)
	if err != nil {
		return false, err
	}
	snaps, err := store.GetSnapshotsByHash(ctx, hash)
	if err != nil {
		return false, err
	}
	for _, sn := range snaps {
		if strings.HasPrefix(sn.DomainedPath, prefix) {
			return true, nil
		}
	}
	return false, nil
}
