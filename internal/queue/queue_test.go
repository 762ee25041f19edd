package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testJob struct {
	key  string
	tags []string
}

func keyOf(j testJob) string { return j.key }

func mergeTags(older, newer testJob) testJob {
	return testJob{key: older.key, tags: append(append([]string(nil), older.tags...), newer.tags...)}
}

func waitIdle(t *testing.T, q interface{ Wait(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestQueue_RunsEveryJob(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	q := New(func(_ context.Context, j testJob) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, j.key)
		return nil
	}, Options[testJob]{Key: keyOf, Concurrency: 4})
	defer q.Close()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Push(testJob{key: k}))
	}
	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(seen)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestQueue_MergesPendingJobsWithSameKey(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var runs []testJob

	q := New(func(_ context.Context, j testJob) error {
		if j.key == "blocker" {
			<-release
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		runs = append(runs, j)
		return nil
	}, Options[testJob]{Key: keyOf, Merge: mergeTags, Concurrency: 1})
	defer q.Close()

	require.NoError(t, q.Push(testJob{key: "blocker"}))
	require.NoError(t, q.Push(testJob{key: "a", tags: []string{"x"}}))
	require.NoError(t, q.Push(testJob{key: "a", tags: []string{"y"}}))
	assert.Equal(t, 1, q.Pending())

	close(release)
	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"x", "y"}, runs[0].tags)
}

func TestQueue_SameKeyNeverRunsConcurrently(t *testing.T) {
	var active, maxActive int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int32

	q := New(func(_ context.Context, j testJob) error {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	}, Options[testJob]{Key: keyOf, Concurrency: 8})
	defer q.Close()

	require.NoError(t, q.Push(testJob{key: "a"}))
	<-started
	// Queued separately while the first run is in flight.
	require.NoError(t, q.Push(testJob{key: "a"}))
	assert.Equal(t, 1, q.Running())
	assert.Equal(t, 1, q.Pending())

	close(release)
	waitIdle(t, q)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	var active, maxActive int32
	q := New(func(_ context.Context, j testJob) error {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}, Options[testJob]{Key: keyOf, Concurrency: 3})
	defer q.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Push(testJob{key: string(rune('a' + i))}))
	}
	waitIdle(t, q)

	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(3))
}

var errBusy = errors.New("busy")

func TestQueue_RetriesTransientErrors(t *testing.T) {
	var calls int32
	var failed []error
	var mu sync.Mutex

	q := New(func(_ context.Context, j testJob) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errBusy
		}
		return nil
	}, Options[testJob]{
		Key:        keyOf,
		MaxRetries: 7,
		RetryMin:   time.Millisecond,
		RetryMax:   2 * time.Millisecond,
		Retryable:  func(err error) bool { return errors.Is(err, errBusy) },
		OnError: func(_ testJob, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, err)
		},
	})
	defer q.Close()

	require.NoError(t, q.Push(testJob{key: "a"}))
	waitIdle(t, q)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, failed)
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	errs := make(chan error, 1)

	q := New(func(_ context.Context, j testJob) error {
		atomic.AddInt32(&calls, 1)
		return errBusy
	}, Options[testJob]{
		Key:        keyOf,
		MaxRetries: 2,
		RetryMin:   time.Millisecond,
		RetryMax:   time.Millisecond,
		Retryable:  func(err error) bool { return true },
		OnError:    func(_ testJob, err error) { errs <- err },
	})
	defer q.Close()

	require.NoError(t, q.Push(testJob{key: "a"}))
	waitIdle(t, q)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, errBusy)
	default:
		t.Fatal("OnError was not called")
	}
}

func TestQueue_RetryMergesAsOlderThanPendingJob(t *testing.T) {
	release := make(chan struct{})
	firstFailed := make(chan struct{})
	var mu sync.Mutex
	var runs []testJob
	var attempts int32

	q := New(func(_ context.Context, j testJob) error {
		if j.key == "blocker" {
			<-release
			return nil
		}
		if atomic.AddInt32(&attempts, 1) == 1 {
			close(firstFailed)
			return errBusy
		}
		mu.Lock()
		defer mu.Unlock()
		runs = append(runs, j)
		return nil
	}, Options[testJob]{
		Key:         keyOf,
		Merge:       mergeTags,
		Concurrency: 1,
		MaxRetries:  3,
		RetryMin:    10 * time.Millisecond,
		RetryMax:    10 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
	})
	defer q.Close()

	require.NoError(t, q.Push(testJob{key: "a", tags: []string{"old"}}))
	<-firstFailed
	// The blocker holds the only slot so the newer push is still pending
	// when the retry comes back.
	require.NoError(t, q.Push(testJob{key: "blocker"}))
	require.NoError(t, q.Push(testJob{key: "a", tags: []string{"new"}}))
	time.Sleep(100 * time.Millisecond)
	close(release)
	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"old", "new"}, runs[0].tags)
}

func TestQueue_TerminalErrorDoesNotBlockOthers(t *testing.T) {
	boom := errors.New("boom")
	var ok int32
	var onError int32

	q := New(func(_ context.Context, j testJob) error {
		if j.key == "bad" {
			return boom
		}
		atomic.AddInt32(&ok, 1)
		return nil
	}, Options[testJob]{
		Key:     keyOf,
		OnError: func(testJob, error) { atomic.AddInt32(&onError, 1) },
	})
	defer q.Close()

	require.NoError(t, q.Push(testJob{key: "bad"}))
	require.NoError(t, q.Push(testJob{key: "good1"}))
	require.NoError(t, q.Push(testJob{key: "good2"}))
	waitIdle(t, q)

	assert.Equal(t, int32(2), atomic.LoadInt32(&ok))
	assert.Equal(t, int32(1), atomic.LoadInt32(&onError))
}

func TestQueue_CloseDropsPendingAndRejectsPush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	q := New(func(_ context.Context, j testJob) error {
		atomic.AddInt32(&calls, 1)
		if j.key == "first" {
			close(started)
			<-release
		}
		return nil
	}, Options[testJob]{Key: keyOf, Concurrency: 1})

	require.NoError(t, q.Push(testJob{key: "first"}))
	<-started
	require.NoError(t, q.Push(testJob{key: "second"}))

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned before the running job finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.ErrorIs(t, q.Push(testJob{key: "third"}), ErrClosed)
	waitIdle(t, q)
}

func TestQueue_CloseCancelsScheduledRetries(t *testing.T) {
	var calls int32
	q := New(func(_ context.Context, j testJob) error {
		atomic.AddInt32(&calls, 1)
		return errBusy
	}, Options[testJob]{
		Key:        keyOf,
		MaxRetries: 5,
		RetryMin:   time.Hour,
		Retryable:  func(error) bool { return true },
	})

	require.NoError(t, q.Push(testJob{key: "a"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 && q.Running() == 0 },
		time.Second, time.Millisecond)

	q.Close()
	waitIdle(t, q)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueue_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	q := New(func(context.Context, testJob) error {
		<-release
		return nil
	}, Options[testJob]{Key: keyOf})
	defer q.Close()
	defer close(release)

	require.NoError(t, q.Push(testJob{key: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}
