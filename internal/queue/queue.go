// Package queue runs keyed jobs on a bounded pool of goroutines. Jobs that
// share a key are coalesced while they wait and never run concurrently.
package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"resdex/internal/resource"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("queue closed")

const (
	DefaultConcurrency = 16
	DefaultMaxRetries  = 7
	DefaultRetryMin    = time.Second
	DefaultRetryMax    = 3 * time.Second
)

// Options configures a Queue. Key is required; every other field has a default.
type Options[J any] struct {
	Concurrency int
	MaxRetries  int
	RetryMin    time.Duration
	RetryMax    time.Duration

	// Key groups jobs. Pending jobs with the same key are merged.
	Key func(J) string
	// Merge folds newer into a pending older job. Without it the newer job
	// replaces the older one.
	Merge func(older, newer J) J
	// Retryable reports whether err is worth another attempt.
	Retryable func(error) bool
	// OnError receives jobs that failed terminally. Without it failures are
	// logged at error level.
	OnError func(J, error)

	Logger resource.Logger
}

type item[J any] struct {
	job      J
	attempts int
	// retried marks an item coming back from a failed attempt. It is older
	// than anything pushed while it waited.
	retried bool
}

// Queue is an aggregating work queue. The zero value is not usable; call New.
type Queue[J any] struct {
	run  func(context.Context, J) error
	opts Options[J]
	ctx  context.Context

	mu      sync.Mutex
	pending map[string]*item[J]
	order   []string
	running map[string]bool
	delayed map[*time.Timer]struct{}
	closed  bool
	idle    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Queue that executes run for each job.
func New[J any](run func(context.Context, J) error, opts Options[J]) *Queue[J] {
	if opts.Key == nil {
		panic("queue: Options.Key is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = DefaultRetryMin
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = opts.RetryMin
	}
	if opts.Retryable == nil {
		opts.Retryable = func(error) bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = resource.NewNopLogger()
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue[J]{
		run:     run,
		opts:    opts,
		ctx:     context.Background(),
		pending: make(map[string]*item[J]),
		running: make(map[string]bool),
		delayed: make(map[*time.Timer]struct{}),
		idle:    idle,
	}
}

// Push enqueues job, merging it into a pending job with the same key. A job
// whose key is currently running waits until that run finishes.
func (q *Queue[J]) Push(job J) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.enqueueLocked(&item[J]{job: job})
	q.dispatchLocked()
	return nil
}

func (q *Queue[J]) enqueueLocked(it *item[J]) {
	key := q.opts.Key(it.job)
	if existing, ok := q.pending[key]; ok {
		switch {
		case it.retried && q.opts.Merge != nil:
			existing.job = q.opts.Merge(it.job, existing.job)
		case it.retried:
			// The pending job is newer; keep it.
		case q.opts.Merge != nil:
			existing.job = q.opts.Merge(existing.job, it.job)
		default:
			existing.job = it.job
		}
		existing.attempts = max(existing.attempts, it.attempts)
		return
	}
	q.pending[key] = it
	q.order = append(q.order, key)
	q.markBusyLocked()
}

// dispatchLocked starts pending jobs, oldest first, until the pool is full.
// Keys that are already running are skipped and keep their place.
func (q *Queue[J]) dispatchLocked() {
	for i := 0; i < len(q.order) && len(q.running) < q.opts.Concurrency; {
		key := q.order[i]
		if q.running[key] {
			i++
			continue
		}
		it := q.pending[key]
		delete(q.pending, key)
		q.order = append(q.order[:i], q.order[i+1:]...)
		q.running[key] = true
		q.wg.Add(1)
		go q.execute(key, it)
	}
}

func (q *Queue[J]) execute(key string, it *item[J]) {
	defer q.wg.Done()

	err := q.run(q.ctx, it.job)
	it.attempts++

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	retry := err != nil && !closed && q.opts.Retryable(err) && it.attempts <= q.opts.MaxRetries
	if err != nil && !closed && !retry {
		// Reported while the key still counts as running so Wait observes it.
		if q.opts.OnError != nil {
			q.opts.OnError(it.job, err)
		} else {
			q.opts.Logger.Error("job failed", "key", key, "attempts", it.attempts, "error", err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, key)
	if retry && !q.closed {
		q.scheduleRetryLocked(it, err)
	}
	q.dispatchLocked()
	q.markIdleIfDoneLocked()
}

func (q *Queue[J]) scheduleRetryLocked(it *item[J], err error) {
	delay := q.retryDelay()
	q.opts.Logger.Debug("retrying job", "key", q.opts.Key(it.job), "attempt", it.attempts, "delay", delay, "error", err)

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.delayed[t]; !ok {
			return
		}
		delete(q.delayed, t)
		if !q.closed {
			it.retried = true
			q.enqueueLocked(it)
			q.dispatchLocked()
		}
		q.markIdleIfDoneLocked()
	})
	q.delayed[t] = struct{}{}
}

// retryDelay picks a uniformly jittered delay in [RetryMin, RetryMax].
func (q *Queue[J]) retryDelay() time.Duration {
	spread := q.opts.RetryMax - q.opts.RetryMin
	if spread <= 0 {
		return q.opts.RetryMin
	}
	return q.opts.RetryMin + rand.N(spread+1)
}

func (q *Queue[J]) markBusyLocked() {
	select {
	case <-q.idle:
		q.idle = make(chan struct{})
	default:
	}
}

func (q *Queue[J]) markIdleIfDoneLocked() {
	if len(q.pending) > 0 || len(q.running) > 0 || len(q.delayed) > 0 {
		return
	}
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}

// Wait blocks until no job is pending, running or waiting for a retry.
func (q *Queue[J]) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of jobs waiting to start.
func (q *Queue[J]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of jobs currently executing.
func (q *Queue[J]) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// Close stops accepting jobs, drops pending jobs and scheduled retries and
// waits for running jobs to return. Running jobs are not interrupted.
func (q *Queue[J]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	for t := range q.delayed {
		t.Stop()
	}
	dropped := len(q.pending) + len(q.delayed)
	clear(q.delayed)
	clear(q.pending)
	q.order = nil
	q.markIdleIfDoneLocked()
	q.mu.Unlock()

	if dropped > 0 {
		q.opts.Logger.Debug("queue closed with work outstanding", "dropped", dropped)
	}
	q.wg.Wait()
}
