package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resdex/internal/config"
	"resdex/internal/database"
	"resdex/internal/engine"
	"resdex/internal/export"
	rfs "resdex/internal/fs"
	"resdex/internal/imagestore"
	"resdex/internal/parser"
	"resdex/internal/resource"
	"resdex/internal/watch"
)

// App is the application layer between the CLI and the engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI input, and manages the store lifecycle on Close.
type App struct {
	cfg      *config.Config
	store    resource.Store
	images   imagestore.Store
	engine   *engine.Engine
	ignore   *rfs.IgnoreMatcher
	interval time.Duration
	logger   resource.Logger
	clock    resource.Clock
	op       *Operation
	logFile  *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "scan", "import").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	config.ApplyDefaults(cfg)
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root_dir is not configured")
	}

	interval, err := cfg.Watcher.Interval()
	if err != nil {
		return nil, err
	}
	ignore, err := rfs.NewIgnoreMatcher(cfg.Filesystem.Ignore)
	if err != nil {
		return nil, fmt.Errorf("parsing ignore patterns: %w", err)
	}

	clock := resource.RealClock{}
	op := NewOperation(operation, clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, ParseLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	images, err := imagestore.NewFromConfig(cfg.Images)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating image store: %w", err)
	}
	if err := images.ValidateSetup(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("validating image store: %w", err)
	}

	// A broken database degrades the engine instead of failing the command.
	store := database.OpenStore(cfg.Database, logger)

	e, err := engine.New(engine.Options{
		Root:        cfg.RootDir,
		Store:       store,
		Parser:      parser.New(logger),
		Images:      images,
		Logger:      logger,
		Concurrency: cfg.Queue.Concurrency,
		MaxRetries:  cfg.Queue.MaxRetries,
		RetryMin:    time.Duration(cfg.Queue.RetryMinMS) * time.Millisecond,
		RetryMax:    time.Duration(cfg.Queue.RetryMaxMS) * time.Millisecond,
		CacheSize:   cfg.Metadata.CacheSize,
		OrphanGC:    cfg.Metadata.OrphanGC,
	})
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	for _, d := range resource.Domains {
		if d != resource.DomainUnclassified {
			e.RegisterInstaller(d, engine.LinkInstaller)
		}
	}

	logger.Debug("operation started", "operation", operation)
	return &App{
		cfg:      cfg,
		store:    store,
		images:   images,
		engine:   e,
		ignore:   ignore,
		interval: interval,
		logger:   logger,
		clock:    clock,
		op:       op,
		logFile:  logFile,
	}, nil
}

// Engine exposes the wired engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Run dispatches cmd and records a failure on the operation.
func (a *App) Run(ctx context.Context, cmd engine.Command) (engine.Result, error) {
	res, err := a.engine.Dispatch(ctx, cmd)
	a.op.Fail(err)
	return res, err
}

// ParseDomains converts raw domain names. An empty list yields every
// configured watcher domain.
func (a *App) ParseDomains(names []string) ([]resource.Domain, error) {
	if len(names) == 0 {
		names = a.cfg.Watcher.Domains
	}
	out := make([]resource.Domain, 0, len(names))
	for _, n := range names {
		d, ok := resource.ParseDomain(n)
		if !ok || d == resource.DomainUnclassified {
			return nil, fmt.Errorf("unknown domain %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}

func (a *App) watchOptions(interval time.Duration) watch.Options {
	return watch.Options{
		Ignore:         a.ignore,
		Debounce:       time.Duration(a.cfg.Watcher.DebounceMS) * time.Millisecond,
		BurstThreshold: a.cfg.Watcher.BurstThreshold,
		Interval:       interval,
		Logger:         a.logger,
		Clock:          a.clock,
	}
}

// Scan revalidates each domain directory once and waits for the queued work
// to finish.
func (a *App) Scan(ctx context.Context, domains []resource.Domain) (watch.Stats, error) {
	var total watch.Stats
	var watchers []*watch.Watcher
	defer func() {
		for _, w := range watchers {
			w.Dispose()
		}
	}()

	for _, d := range domains {
		w, err := watch.New(a.engine, filepath.Join(a.cfg.RootDir, string(d)), d, a.watchOptions(0))
		if err != nil {
			a.op.Fail(err)
			return total, err
		}
		watchers = append(watchers, w)

		stats, err := w.Revalidate(ctx)
		if err != nil {
			a.op.Fail(err)
			return total, fmt.Errorf("scanning %s: %w", d, err)
		}
		total.Queued += stats.Queued
		total.Emitted += stats.Emitted
		total.Removed += stats.Removed
		total.Skipped += stats.Skipped
	}

	// Watchers stay alive until the queue drains; disposing them earlier
	// would discard the queued results.
	if err := a.engine.Wait(ctx); err != nil {
		return total, err
	}
	return total, nil
}

// Watch runs primary watchers for domains plus every configured secondary
// until ctx is cancelled.
func (a *App) Watch(ctx context.Context, domains []resource.Domain) error {
	var disposers []func() error
	defer func() {
		for i := len(disposers) - 1; i >= 0; i-- {
			disposers[i]()
		}
	}()

	for _, d := range domains {
		dir := filepath.Join(a.cfg.RootDir, string(d))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		w, err := a.engine.Watch(ctx, dir, d, a.watchOptions(a.interval))
		if err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
		disposers = append(disposers, w.Dispose)
		a.logger.Info("watching domain", "domain", d, "dir", dir, "state", w.State())
	}

	for _, sc := range a.cfg.Secondary {
		d, ok := resource.ParseDomain(sc.Domain)
		if !ok {
			return fmt.Errorf("unknown domain %q for secondary %s", sc.Domain, sc.Dir)
		}
		s, err := a.engine.WatchSecondary(ctx, sc.Dir, d, a.watchOptions(0))
		if err != nil {
			return fmt.Errorf("mirroring %s: %w", sc.Dir, err)
		}
		disposers = append(disposers, s.Dispose)
		a.logger.Info("mirroring directory", "dir", sc.Dir, "domain", d)
	}

	<-ctx.Done()
	return nil
}

// ExportTarget returns a directory target when dir is set, otherwise the
// configured export target.
func (a *App) ExportTarget(ctx context.Context, dir string) (export.Target, error) {
	if dir != "" {
		return export.NewDirTarget(dir)
	}
	return export.NewTargetFromConfig(ctx, a.cfg.Export)
}

// Close stops the engine, closes the store and finalizes the operation log.
func (a *App) Close() error {
	var errs []error
	if err := a.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing engine: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if len(errs) > 0 {
		a.op.Status = "error"
	}

	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"elapsed", a.op.Elapsed(a.clock.Now()).Truncate(time.Millisecond))

	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
