package watch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"resdex/internal/engine"
	rfs "resdex/internal/fs"
	"resdex/internal/resource"
	"resdex/internal/testutil"
	"resdex/internal/watch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

type env struct {
	engine *engine.Engine
	store  resource.Store
	parser *testutil.FakeParser
	root   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewTestDatabase(t)
	parser := testutil.NewFakeParser()
	root := t.TempDir()
	e, err := engine.New(engine.Options{
		Root:        root,
		Store:       store,
		Parser:      parser,
		Concurrency: 2,
		MaxRetries:  1,
		RetryMin:    time.Millisecond,
		RetryMax:    2 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return &env{engine: e, store: store, parser: parser, root: root}
}

func (v *env) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, v.engine.Wait(ctx))
}

func (v *env) snapshot(t *testing.T, domainedPath string) *resource.Snapshot {
	t.Helper()
	s, err := v.store.GetSnapshot(context.Background(), domainedPath)
	require.NoError(t, err)
	return s
}

// newWatcher returns an unstarted watcher so tests drive revalidation
// directly without a native subscription.
func newWatcher(t *testing.T, v *env, domain resource.Domain) *watch.Watcher {
	t.Helper()
	dir := filepath.Join(v.root, string(domain))
	require.NoError(t, os.MkdirAll(dir, 0755))
	w, err := watch.New(v.engine, dir, domain, watch.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { w.Dispose() })
	return w
}

func loader(id string) *resource.ParseResult {
	return &resource.ParseResult{Metadata: resource.Metadata{
		Name:     id,
		Variants: []resource.Variant{&resource.FabricMetadata{ModInfo: resource.ModInfo{ID: id}}},
	}}
}

func TestNew_RejectsDirectoryOutsideRoot(t *testing.T) {
	v := newEnv(t)
	_, err := watch.New(v.engine, t.TempDir(), resource.DomainMods, watch.Options{})
	assert.Error(t, err)
}

func TestRevalidate_IsIdempotent(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	w := newWatcher(t, v, resource.DomainMods)
	testutil.WriteFile(t, w.Dir(), "a.jar", []byte("a"))
	testutil.WriteFile(t, w.Dir(), "b.jar", []byte("b"))
	testutil.WriteFile(t, w.Dir(), "empty.jar", nil)
	v.parser.Set("a.jar", loader("a"))
	v.parser.Set("b.jar", loader("b"))

	stats, err := w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Queued: 2, Skipped: 1}, stats)
	v.wait(t)

	require.NotNil(t, v.snapshot(t, "mods/a.jar"))
	require.NotNil(t, v.snapshot(t, "mods/b.jar"))
	assert.Nil(t, v.snapshot(t, "mods/empty.jar"))

	var mu sync.Mutex
	var emitted []string
	v.engine.OnResourceParsed(func(r *resource.Resource) {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, r.FileName)
	})

	stats, err = w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Emitted: 2, Skipped: 1}, stats)
	assert.Equal(t, 1, v.parser.CallCount("a.jar"))

	mu.Lock()
	assert.ElementsMatch(t, []string{"a.jar", "b.jar"}, emitted)
	mu.Unlock()
}

func TestRevalidate_MarksDomainReady(t *testing.T) {
	v := newEnv(t)
	w := newWatcher(t, v, resource.DomainSaves)

	_, err := w.Revalidate(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, v.engine.WhenReady(ctx, resource.DomainSaves))
}

func TestRevalidate_RemovesVanishedFiles(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	w := newWatcher(t, v, resource.DomainResourcePacks)
	path := testutil.WriteFile(t, w.Dir(), "gone.zip", []byte("gone"))

	_, err := w.Revalidate(ctx)
	require.NoError(t, err)
	v.wait(t)
	require.NotNil(t, v.snapshot(t, "resourcepacks/gone.zip"))

	var removals []engine.Removal
	v.engine.OnResourceRemoved(func(r engine.Removal) { removals = append(removals, r) })

	require.NoError(t, os.Remove(path))
	stats, err := w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.Nil(t, v.snapshot(t, "resourcepacks/gone.zip"))
	require.Len(t, removals, 1)
	assert.Equal(t, path, removals[0].Path)
	assert.Equal(t, testutil.SHA1Hex([]byte("gone")), removals[0].Hash)
}

func TestRevalidate_FollowsRenameByInode(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	w := newWatcher(t, v, resource.DomainResourcePacks)
	old := testutil.WriteFile(t, w.Dir(), "old.zip", []byte("pack"))

	_, err := w.Revalidate(ctx)
	require.NoError(t, err)
	v.wait(t)

	require.NoError(t, os.Rename(old, filepath.Join(w.Dir(), "new.zip")))
	stats, err := w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Emitted: 1, Removed: 1}, stats)

	moved := v.snapshot(t, "resourcepacks/new.zip")
	require.NotNil(t, moved)
	assert.Equal(t, testutil.SHA1Hex([]byte("pack")), moved.Hash)
	assert.Nil(t, v.snapshot(t, "resourcepacks/old.zip"))
}

func TestRevalidate_ReparsesModsWithoutLoaderOnce(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	w := newWatcher(t, v, resource.DomainMods)
	testutil.WriteFile(t, w.Dir(), "plain.jar", []byte("no loader"))

	stats, err := w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Queued: 1}, stats)
	v.wait(t)

	stats, err = w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Emitted: 1}, stats, "content parsed by this engine is not queued again")
	assert.Equal(t, 1, v.parser.CallCount("plain.jar"))

	// A new engine over the same index re-parses loader-less mods once.
	restarted, err := engine.New(engine.Options{Root: v.root, Store: v.store, Parser: v.parser})
	require.NoError(t, err)
	t.Cleanup(func() { restarted.Close() })
	w2, err := watch.New(restarted, w.Dir(), resource.DomainMods, watch.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { w2.Dispose() })

	stats, err = w2.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Queued: 1}, stats)
	ctxWait, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, restarted.Wait(ctxWait))
	assert.Equal(t, 2, v.parser.CallCount("plain.jar"))

	stats, err = w2.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Emitted: 1}, stats)
	assert.Equal(t, 2, v.parser.CallCount("plain.jar"))
}

func TestRevalidate_MissingDirectory(t *testing.T) {
	v := newEnv(t)
	w := newWatcher(t, v, resource.DomainShaderPacks)
	require.NoError(t, os.Remove(w.Dir()))

	stats, err := w.Revalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{}, stats)
}

func TestRevalidate_RemovedDirectoryDropsItsSnapshots(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	w := newWatcher(t, v, resource.DomainSaves)
	testutil.WriteFile(t, w.Dir(), "one.zip", []byte("world one"))
	testutil.WriteFile(t, w.Dir(), "two.zip", []byte("world two"))

	_, err := w.Revalidate(ctx)
	require.NoError(t, err)
	v.wait(t)
	require.NotNil(t, v.snapshot(t, "saves/one.zip"))

	var mu sync.Mutex
	var removed []string
	v.engine.OnResourceRemoved(func(r engine.Removal) {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, r.DomainedPath)
	})

	require.NoError(t, os.RemoveAll(w.Dir()))
	stats, err := w.Revalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.Stats{Removed: 2}, stats)
	assert.Nil(t, v.snapshot(t, "saves/one.zip"))
	assert.Nil(t, v.snapshot(t, "saves/two.zip"))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"saves/one.zip", "saves/two.zip"}, removed)
}

func TestRevalidate_DisposedBeforeSavingMovedSnapshots(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	w := newWatcher(t, v, resource.DomainResourcePacks)
	old := testutil.WriteFile(t, w.Dir(), "old.zip", []byte("pack"))

	_, err := w.Revalidate(ctx)
	require.NoError(t, err)
	v.wait(t)
	require.NoError(t, os.Rename(old, filepath.Join(w.Dir(), "new.zip")))

	require.NoError(t, w.Dispose())
	_, err = w.Revalidate(ctx)
	assert.ErrorIs(t, err, watch.ErrDisposed)
	assert.Nil(t, v.snapshot(t, "resourcepacks/new.zip"))
	assert.NotNil(t, v.snapshot(t, "resourcepacks/old.zip"))
}

func TestWatcher_Dispose(t *testing.T) {
	v := newEnv(t)
	w := newWatcher(t, v, resource.DomainMods)

	require.NoError(t, w.Dispose())
	require.NoError(t, w.Dispose())
	assert.Equal(t, watch.StateDisposed, w.State())

	_, err := w.Revalidate(context.Background())
	assert.ErrorIs(t, err, watch.ErrDisposed)
	err = w.Enqueue(&resource.Job{Path: filepath.Join(w.Dir(), "x.jar")})
	assert.ErrorIs(t, err, watch.ErrDisposed)
	assert.ErrorIs(t, w.Start(context.Background()), watch.ErrDisposed)
}

func TestWatcher_EnqueueOutsideDirectory(t *testing.T) {
	v := newEnv(t)
	w := newWatcher(t, v, resource.DomainMods)

	err := w.Enqueue(&resource.Job{Path: filepath.Join(v.root, "saves", "x.zip")})
	assert.Error(t, err)
}

func TestWatcher_FollowsEvents(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	dir := filepath.Join(v.root, "resourcepacks")
	require.NoError(t, os.MkdirAll(dir, 0755))

	w, err := v.engine.Watch(ctx, dir, resource.DomainResourcePacks, watch.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { w.Dispose() })
	assert.Equal(t, watch.StateWatching, w.State())

	path := testutil.WriteFile(t, dir, "live.zip", []byte("live"))
	require.Eventually(t, func() bool {
		return v.snapshot(t, "resourcepacks/live.zip") != nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return v.snapshot(t, "resourcepacks/live.zip") == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Dispose())
	v.wait(t)
}

func TestWatcher_LiveRenameKeepsMetadata(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	dir := filepath.Join(v.root, "mods")
	require.NoError(t, os.MkdirAll(dir, 0755))
	v.parser.Set("a.jar", loader("a"))

	w, err := v.engine.Watch(ctx, dir, resource.DomainMods, watch.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { w.Dispose() })

	old := testutil.WriteFile(t, dir, "a.jar", []byte("mod a"))
	require.Eventually(t, func() bool {
		return v.snapshot(t, "mods/a.jar") != nil
	}, 5*time.Second, 20*time.Millisecond)
	v.wait(t)

	require.NoError(t, os.Rename(old, filepath.Join(dir, "a2.jar")))
	require.Eventually(t, func() bool {
		return v.snapshot(t, "mods/a2.jar") != nil && v.snapshot(t, "mods/a.jar") == nil
	}, 5*time.Second, 20*time.Millisecond)
	v.wait(t)

	assert.Equal(t, testutil.SHA1Hex([]byte("mod a")), v.snapshot(t, "mods/a2.jar").Hash)
	assert.Equal(t, 1, v.parser.CallCount("a.jar"))
	assert.Zero(t, v.parser.CallCount("a2.jar"), "known content is not parsed again")

	require.NoError(t, w.Dispose())
}

func TestWatcher_BurstCollapsesIntoRevalidation(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	dir := filepath.Join(v.root, "resourcepacks")
	require.NoError(t, os.MkdirAll(dir, 0755))

	w, err := v.engine.Watch(ctx, dir, resource.DomainResourcePacks, watch.Options{
		Debounce:       300 * time.Millisecond,
		BurstThreshold: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Dispose() })

	// A snapshot with no file behind it is only dropped by a revalidation.
	ghost := &resource.Snapshot{
		DomainedPath: "resourcepacks/ghost.zip",
		Ino:          1 << 40,
		Mtime:        time.UnixMilli(1_700_000_000_000),
		Size:         5,
		Kind:         resource.KindZip,
		Hash:         testutil.SHA1Hex([]byte("ghost")),
	}
	require.NoError(t, v.store.UpsertSnapshot(ctx, ghost))

	testutil.WriteFile(t, dir, "small1.zip", []byte("small 1"))
	testutil.WriteFile(t, dir, "small2.zip", []byte("small 2"))
	require.Eventually(t, func() bool {
		return v.snapshot(t, "resourcepacks/small1.zip") != nil && v.snapshot(t, "resourcepacks/small2.zip") != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotNil(t, v.snapshot(t, "resourcepacks/ghost.zip"), "a small batch is handled file by file")

	for _, name := range []string{"b1.zip", "b2.zip", "b3.zip", "b4.zip", "b5.zip"} {
		testutil.WriteFile(t, dir, name, []byte("burst "+name))
	}
	require.Eventually(t, func() bool {
		return v.snapshot(t, "resourcepacks/ghost.zip") == nil
	}, 5*time.Second, 20*time.Millisecond)
	v.wait(t)
	for _, name := range []string{"b1.zip", "b2.zip", "b3.zip", "b4.zip", "b5.zip"} {
		assert.NotNil(t, v.snapshot(t, "resourcepacks/"+name), name)
	}

	require.NoError(t, w.Dispose())
}

func TestWatcher_IgnoredFiles(t *testing.T) {
	v := newEnv(t)
	ignore, err := rfs.NewIgnoreMatcher([]string{"*.txt"})
	require.NoError(t, err)
	dir := filepath.Join(v.root, "mods")
	testutil.WriteFile(t, dir, "notes.txt", []byte("notes"))
	testutil.WriteFile(t, dir, "real.jar", []byte("jar"))

	w, err := watch.New(v.engine, dir, resource.DomainMods, watch.Options{Ignore: ignore})
	require.NoError(t, err)
	t.Cleanup(func() { w.Dispose() })

	stats, err := w.Revalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Queued)
	v.wait(t)
	assert.Nil(t, v.snapshot(t, "mods/notes.txt"))
}

func TestSecondary_MirrorsNewFiles(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	foreign := t.TempDir()
	src := testutil.WriteFile(t, foreign, "extra.jar", []byte("extra mod"))
	testutil.WriteFile(t, foreign, "empty.jar", nil)

	s, err := v.engine.WatchSecondary(ctx, foreign, resource.DomainMods, watch.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { s.Dispose() })

	mirrored := filepath.Join(v.root, "mods", "extra.jar")
	assert.True(t, rfs.SameFile(src, mirrored))
	assert.NoFileExists(t, filepath.Join(v.root, "mods", "empty.jar"))

	late := testutil.WriteFile(t, foreign, "late.jar", []byte("late mod"))
	require.Eventually(t, func() bool {
		return rfs.SameFile(late, filepath.Join(v.root, "mods", "late.jar"))
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose())
}

func TestSecondary_SkipsStoredContent(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	content := []byte("shared mod")
	stored := testutil.WriteFile(t, v.root, "mods/have.jar", content)
	_, err := v.engine.Resolve(ctx, stored, "")
	require.NoError(t, err)

	foreign := t.TempDir()
	testutil.WriteFile(t, foreign, "copy.jar", content)
	testutil.WriteFile(t, foreign, "have.jar", []byte("different mod"))

	clock := testutil.FixedClock()
	s, err := watch.NewSecondary(v.engine, foreign, resource.DomainMods, watch.Options{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { s.Dispose() })
	require.NoError(t, s.Revalidate(ctx))

	assert.NoFileExists(t, filepath.Join(v.root, "mods", "copy.jar"))

	entries, err := os.ReadDir(filepath.Join(v.root, "mods"))
	require.NoError(t, err)
	require.Len(t, entries, 2, "a name collision gets a suffixed name")
	suffixed := filepath.Join(v.root, "mods", fmt.Sprintf("have-%d.jar", clock.Now().UnixMilli()))
	assert.FileExists(t, suffixed)
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestNewSecondary_RejectsPrimaryDirectory(t *testing.T) {
	v := newEnv(t)
	_, err := watch.NewSecondary(v.engine, filepath.Join(v.root, "mods"), resource.DomainMods, watch.Options{})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "watching", watch.StateWatching.String())
	assert.Equal(t, "unwatched", watch.StateUnwatched.String())
}
