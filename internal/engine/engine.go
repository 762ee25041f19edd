// Package engine owns the resource index: it runs the job executor behind the
// work queue, answers queries, and imports files into the managed root.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	rfs "resdex/internal/fs"
	"resdex/internal/queue"
	"resdex/internal/resource"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("engine closed")

// Options wires an Engine. Root and Store are required; every other
// collaborator has a default.
type Options struct {
	Root   string
	Store  resource.Store
	Prober resource.Prober
	Hasher resource.Hasher
	Parser resource.Parser
	Images resource.ImageStore
	Logger resource.Logger
	IDGen  resource.IDGenerator

	Concurrency int
	MaxRetries  int
	RetryMin    time.Duration
	RetryMax    time.Duration

	// CacheSize bounds the in-memory entry cache. Zero uses the default.
	CacheSize int
	// OrphanGC sweeps unreferenced metadata after every revalidation.
	OrphanGC bool
}

const defaultCacheSize = 512

// Removal describes a file that left the index.
type Removal struct {
	Domain       resource.Domain
	Path         string
	DomainedPath string
	Hash         string
}

// Engine is one independent index over a managed root. Multiple engines
// never share state.
type Engine struct {
	root     string
	store    resource.Store
	prober   resource.Prober
	hasher   resource.Hasher
	parser   resource.Parser
	images   resource.ImageStore
	logger   resource.Logger
	idgen    resource.IDGenerator
	orphanGC bool
	limit    int

	queue     *queue.Queue[*resource.Job]
	cache     *lru.Cache[string, *resource.Entry]
	resolving singleflight.Group

	parsed  observers[*resource.Resource]
	removed observers[Removal]
	updated observers[[]resource.Update]

	mu         sync.Mutex
	installers map[resource.Domain]Installer
	// noLoader holds hashes this engine parsed in the mods domain without
	// finding a loader. They are not parsed again.
	noLoader map[string]struct{}
	ready      map[resource.Domain]chan struct{}
	closed     bool
}

// New creates an Engine. The store is owned by the caller and is not closed
// by Close.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("engine root is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("engine store is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if opts.Prober == nil {
		opts.Prober = rfs.NewOSProber()
	}
	if opts.Hasher == nil {
		opts.Hasher = rfs.NewSHA1Hasher()
	}
	if opts.Parser == nil {
		opts.Parser = noParser{}
	}
	if opts.Logger == nil {
		opts.Logger = resource.NewNopLogger()
	}
	if opts.IDGen == nil {
		opts.IDGen = resource.UUIDGenerator{}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = queue.DefaultConcurrency
	}

	cache, err := lru.New[string, *resource.Entry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating entry cache: %w", err)
	}

	e := &Engine{
		root:       root,
		store:      opts.Store,
		prober:     opts.Prober,
		hasher:     opts.Hasher,
		parser:     opts.Parser,
		images:     opts.Images,
		logger:     opts.Logger,
		idgen:      opts.IDGen,
		orphanGC:   opts.OrphanGC,
		limit:      opts.Concurrency,
		cache:      cache,
		installers: make(map[resource.Domain]Installer),
		noLoader:   make(map[string]struct{}),
		ready:      make(map[resource.Domain]chan struct{}),
	}
	e.queue = queue.New(e.runJob, queue.Options[*resource.Job]{
		Concurrency: opts.Concurrency,
		MaxRetries:  opts.MaxRetries,
		RetryMin:    opts.RetryMin,
		RetryMax:    opts.RetryMax,
		Key:         (*resource.Job).Key,
		Merge:       resource.MergeJobs,
		Retryable:   rfs.IsTransient,
		OnError:     e.onJobError,
		Logger:      opts.Logger,
	})
	return e, nil
}

// Root returns the absolute managed root.
func (e *Engine) Root() string { return e.root }

// Enqueue pushes a job onto the work queue.
func (e *Engine) Enqueue(job *resource.Job) error {
	if err := e.queue.Push(job); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Path, err)
	}
	return nil
}

// Wait blocks until the work queue is idle.
func (e *Engine) Wait(ctx context.Context) error {
	return e.queue.Wait(ctx)
}

// Close stops the queue, letting running jobs finish. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.queue.Close()
	return nil
}

// OnResourceParsed registers h for every resource the executor or a
// revalidation produces. The returned func unsubscribes.
func (e *Engine) OnResourceParsed(h func(*resource.Resource)) func() {
	return e.parsed.add(h)
}

// OnResourceRemoved registers h for every path that leaves the index.
func (e *Engine) OnResourceRemoved(h func(Removal)) func() {
	return e.removed.add(h)
}

// OnResourceUpdated registers h for every successful UpdateResources call.
func (e *Engine) OnResourceUpdated(h func([]resource.Update)) func() {
	return e.updated.add(h)
}

func (e *Engine) onJobError(job *resource.Job, err error) {
	if errors.Is(err, resource.ErrNotFound) || rfs.IsBusy(err) {
		e.logger.Debug("skipping job", "path", job.Path, "error", err)
		return
	}
	e.logger.Error("indexing failed", "path", job.Path, "error", err)
}

// noParser indexes everything with empty metadata.
type noParser struct{}

func (noParser) Parse(context.Context, string, resource.FileKind, resource.Domain) (*resource.ParseResult, error) {
	return &resource.ParseResult{}, nil
}
