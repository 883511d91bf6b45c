package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/catalog"
	"github.com/appbridge/appbridge/internal/fetcher"
	"github.com/appbridge/appbridge/internal/manifest"
	"github.com/appbridge/appbridge/internal/store"
)

// initUpstream creates a local catalog repository with one app per
// folder name.
func initUpstream(t *testing.T, folders ...string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for _, folder := range folders {
		rel := filepath.Join("Apps", folder, "docker-compose.yml")
		content := "services:\n  app:\n    image: example/" + folder + ":latest\nx-casaos:\n  title:\n    en_US: " + folder + "\n  description:\n    en_US: Test app\n  category: Test\n  main: app\n"
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "Apps", folder), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(content), 0o644))
		_, err = worktree.Add(rel)
		require.NoError(t, err)
	}
	_, err = worktree.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

// addApp commits another app folder to an existing upstream.
func addApp(t *testing.T, dir, folder string) {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	rel := filepath.Join("Apps", folder, "docker-compose.yml")
	content := "services:\n  app:\n    image: example/" + folder + ":latest\nx-casaos:\n  title:\n    en_US: " + folder + "\n  description:\n    en_US: Test app\n  category: Test\n  main: app\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Apps", folder), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(content), 0o644))
	_, err = worktree.Add(rel)
	require.NoError(t, err)
	_, err = worktree.Commit("add "+folder, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	f, err := fetcher.New(t.TempDir(), time.Minute, nil, logger)
	require.NoError(t, err)

	builder := catalog.NewBuilder(manifest.Parse, manifest.HasManifest)
	return New(st, f, builder, logger, Config{}), st
}

func addSource(t *testing.T, st store.Store, id, name, url string, priority int) {
	t.Helper()
	require.NoError(t, st.CreateSource(context.Background(), &api.Source{
		ID:         id,
		Name:       name,
		URL:        url,
		Branch:     "master",
		AuthMethod: "public",
		Enabled:    true,
		Priority:   priority,
	}))
}

func TestSyncAll(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin", "Gitea"), 10)
	addSource(t, st, "s2", "community", initUpstream(t, "Plex"), 5)

	require.NoError(t, orch.SyncAll(ctx))

	snap := orch.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.NotNil(t, snap.Get("jellyfin"))
	assert.NotNil(t, snap.Get("plex"))

	statuses := orch.SourceStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "community", statuses[0].SourceName)
	assert.Equal(t, 1, statuses[0].AppsLoaded)
	assert.Equal(t, 2, statuses[1].AppsLoaded)

	// Sync state is mirrored to the store.
	source, err := st.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, source.LastSynced.IsZero())
	assert.Empty(t, source.LastError)
}

func TestSyncAll_PartialFailure(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "good", "official", initUpstream(t, "Jellyfin"), 10)
	addSource(t, st, "bad", "broken", filepath.Join(t.TempDir(), "does-not-exist"), 5)

	require.NoError(t, orch.SyncAll(ctx))

	// The healthy source still populates the catalog.
	assert.Equal(t, 1, orch.Snapshot().Len())

	status := orch.Status()
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.RepositoriesSynced)
	require.Len(t, status.RecentErrors, 1)
	assert.Equal(t, "broken", status.RecentErrors[0].SourceName)

	source, err := st.GetSource(ctx, "bad")
	require.NoError(t, err)
	assert.NotEmpty(t, source.LastError)
}

func TestSyncOne_FailureKeepsSnapshot(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin"), 10)
	require.NoError(t, orch.SyncAll(ctx))
	require.Equal(t, 1, orch.Snapshot().Len())
	before := orch.Snapshot()

	// Point the source at a missing repository and sync again.
	source, err := st.GetSource(ctx, "s1")
	require.NoError(t, err)
	source.URL = filepath.Join(t.TempDir(), "gone")
	require.NoError(t, st.UpdateSource(ctx, source))

	err = orch.SyncOne(ctx, "s1")
	assert.Error(t, err)
	assert.Same(t, before, orch.Snapshot())
}

func TestSyncOne_NotFound(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	err := orch.SyncOne(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrSourceNotFound)
}

func TestSyncOne_Disabled(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin"), 10)
	source, err := st.GetSource(ctx, "s1")
	require.NoError(t, err)
	source.Enabled = false
	require.NoError(t, st.UpdateSource(ctx, source))

	assert.Error(t, orch.SyncOne(ctx, "s1"))
}

func TestSyncOne_AlreadySyncing(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin"), 10)

	orch.mu.Lock()
	orch.inflight["s1"] = true
	orch.mu.Unlock()

	assert.ErrorIs(t, orch.SyncOne(ctx, "s1"), ErrAlreadySyncing)

	orch.mu.Lock()
	delete(orch.inflight, "s1")
	orch.mu.Unlock()
	require.NoError(t, orch.SyncOne(ctx, "s1"))
}

func TestSyncAll_BlockedWhileSourceInflight(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin"), 10)

	orch.mu.Lock()
	orch.inflight["s1"] = true
	orch.mu.Unlock()

	assert.ErrorIs(t, orch.SyncAll(ctx), ErrAlreadySyncing)
}

func TestDropSource(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin"), 10)
	addSource(t, st, "s2", "community", initUpstream(t, "Gitea"), 5)
	require.NoError(t, orch.SyncAll(ctx))
	require.Equal(t, 2, orch.Snapshot().Len())

	require.NoError(t, st.DeleteSource(ctx, "s2"))
	require.NoError(t, orch.DropSource(ctx, "s2"))

	snap := orch.Snapshot()
	assert.Equal(t, 1, snap.Len())
	assert.Nil(t, snap.Get("gitea"))
	assert.Len(t, orch.SourceStatuses(), 1)
}

func TestSnapshotIsolatedFromConcurrentRepublish(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	upstream := initUpstream(t, "Jellyfin")
	addSource(t, st, "s1", "official", upstream, 10)
	require.NoError(t, orch.SyncAll(ctx))

	// A query in flight holds this handle while a new snapshot publishes.
	held := orch.Snapshot()
	results, total := held.Search("test", 50, 0)
	require.Equal(t, 1, total)
	require.Equal(t, "jellyfin", results[0].ID)

	addApp(t, upstream, "Gitea")
	require.NoError(t, orch.SyncAll(ctx))

	// The held snapshot answers from its own world, untouched by the
	// publish; a fresh load sees the new one.
	results, total = held.Search("test", 50, 0)
	assert.Equal(t, 1, total)
	assert.Equal(t, "jellyfin", results[0].ID)
	assert.Equal(t, 1, held.Len())

	fresh := orch.Snapshot()
	require.NotSame(t, held, fresh)
	_, total = fresh.Search("test", 50, 0)
	assert.Equal(t, 2, total)
}

func TestPurgeAll(t *testing.T) {
	orch, st := newTestOrchestrator(t)
	ctx := context.Background()

	addSource(t, st, "s1", "official", initUpstream(t, "Jellyfin"), 10)
	require.NoError(t, orch.SyncAll(ctx))
	require.Greater(t, orch.CacheSize(), int64(0))

	result, err := orch.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)
	assert.Greater(t, result.BytesBefore, int64(0))
	assert.NoError(t, result.SyncError)

	// The resync repopulates the catalog from a fresh clone.
	assert.Equal(t, 1, orch.Snapshot().Len())
	assert.Greater(t, orch.CacheSize(), int64(0))
}
