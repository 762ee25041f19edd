// Package debounce collapses bursts of keyed notifications into batches.
package debounce

import (
	"sync"
	"time"
)

// Aggregator collects keys for one window, then hands them to OnBatch. When
// more than Threshold distinct keys arrive in a single window the batch is
// replaced by one OnBurst call.
//
// The window opens on the first key and is not extended by later keys, so a
// steady stream of events still flushes every window.
type Aggregator struct {
	window    time.Duration
	threshold int
	onBatch   func(keys []string)
	onBurst   func()

	mu       sync.Mutex
	pending  map[string]struct{}
	order    []string
	timer    *time.Timer
	stopped  bool
	inflight sync.WaitGroup
}

// New creates an Aggregator. A threshold <= 0 disables the burst branch.
func New(window time.Duration, threshold int, onBatch func(keys []string), onBurst func()) *Aggregator {
	return &Aggregator{
		window:    window,
		threshold: threshold,
		onBatch:   onBatch,
		onBurst:   onBurst,
		pending:   make(map[string]struct{}),
	}
}

// Add records key for the current window. It returns false once stopped.
func (a *Aggregator) Add(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	if _, ok := a.pending[key]; !ok {
		a.pending[key] = struct{}{}
		a.order = append(a.order, key)
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, a.fire)
	}
	return true
}

// Forget drops key from the current window, if present.
func (a *Aggregator) Forget(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[key]; !ok {
		return
	}
	delete(a.pending, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct keys waiting in the current window.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

func (a *Aggregator) fire() {
	a.Flush()
}

// Flush closes the current window immediately and runs its callback on the
// calling goroutine.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.stopped || len(a.order) == 0 {
		a.mu.Unlock()
		return
	}
	keys := a.order
	a.order = nil
	a.pending = make(map[string]struct{})
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	if a.threshold > 0 && len(keys) > a.threshold {
		if a.onBurst != nil {
			a.onBurst()
		}
		return
	}
	if a.onBatch != nil {
		a.onBatch(keys)
	}
}

// Stop discards pending keys and waits for a running callback to return.
// It must not be called from inside a callback.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = make(map[string]struct{})
	a.order = nil
	a.mu.Unlock()

	a.inflight.Wait()
}
