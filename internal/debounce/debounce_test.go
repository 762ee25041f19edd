package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	bursts  int
}

func (r *recorder) batch(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, keys)
}

func (r *recorder) burst() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bursts++
}

func (r *recorder) snapshot() ([][]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...), r.bursts
}

func TestAggregator_FlushesDistinctKeysAfterWindow(t *testing.T) {
	rec := &recorder{}
	a := New(20*time.Millisecond, 16, rec.batch, rec.burst)
	defer a.Stop()

	a.Add("a")
	a.Add("b")
	a.Add("a")
	assert.Equal(t, 2, a.Len())

	require.Eventually(t, func() bool {
		batches, _ := rec.snapshot()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)

	batches, bursts := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Zero(t, bursts)
}

func TestAggregator_BurstCollapsesIntoOneCall(t *testing.T) {
	rec := &recorder{}
	a := New(time.Hour, 3, rec.batch, rec.burst)
	defer a.Stop()

	for _, k := range []string{"a", "b", "c", "d"} {
		a.Add(k)
	}
	a.Flush()

	batches, bursts := rec.snapshot()
	assert.Empty(t, batches)
	assert.Equal(t, 1, bursts)
}

func TestAggregator_AtThresholdIsStillABatch(t *testing.T) {
	rec := &recorder{}
	a := New(time.Hour, 3, rec.batch, rec.burst)
	defer a.Stop()

	for _, k := range []string{"a", "b", "c"} {
		a.Add(k)
	}
	a.Flush()

	batches, bursts := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
	assert.Zero(t, bursts)
}

func TestAggregator_Forget(t *testing.T) {
	rec := &recorder{}
	a := New(time.Hour, 0, rec.batch, rec.burst)
	defer a.Stop()

	a.Add("a")
	a.Add("b")
	a.Forget("a")
	a.Forget("missing")
	a.Flush()

	batches, _ := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"b"}, batches[0])
}

func TestAggregator_EmptyFlushIsNoop(t *testing.T) {
	rec := &recorder{}
	a := New(time.Hour, 1, rec.batch, rec.burst)
	defer a.Stop()

	a.Flush()

	batches, bursts := rec.snapshot()
	assert.Empty(t, batches)
	assert.Zero(t, bursts)
}

func TestAggregator_StopDropsPendingKeys(t *testing.T) {
	rec := &recorder{}
	a := New(10*time.Millisecond, 16, rec.batch, rec.burst)

	a.Add("a")
	a.Stop()
	assert.False(t, a.Add("b"))

	time.Sleep(30 * time.Millisecond)
	batches, bursts := rec.snapshot()
	assert.Empty(t, batches)
	assert.Zero(t, bursts)
}

func TestAggregator_StopWaitsForRunningCallback(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	a := New(time.Hour, 0, func([]string) {
		close(entered)
		<-release
	}, nil)

	a.Add("a")
	go a.Flush()
	<-entered

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a callback was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-stopped
}
