package fetcher

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
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// initUpstream creates a local repository to clone from and returns its
// path plus a helper committing one file per call.
func initUpstream(t *testing.T) (string, func(name, content string) string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	commit := func(name, content string) string {
		worktree, err := repo.Worktree()
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = worktree.Add(name)
		require.NoError(t, err)
		hash, err := worktree.Commit("add "+name, &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
		})
		require.NoError(t, err)
		return hash.String()
	}
	return dir, commit
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := New(t.TempDir(), time.Minute, nil, testLogger())
	require.NoError(t, err)
	return f
}

func TestFetch_Clone(t *testing.T) {
	upstream, commit := initUpstream(t)
	head := commit("Apps/jellyfin/docker-compose.yml", "services: {}\n")

	f := newTestFetcher(t)
	source := &api.Source{ID: "s1", Name: "src", URL: upstream, Branch: "master", AuthMethod: "public"}

	result, err := f.Fetch(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, head, result.CommitRef)
	assert.Equal(t, f.CheckoutPath("s1"), result.LocalPath)
	assert.True(t, f.HasCheckout("s1"))
	assert.FileExists(t, filepath.Join(result.LocalPath, "Apps/jellyfin/docker-compose.yml"))

	// No staging directories left behind.
	entries, err := os.ReadDir(filepath.Dir(result.LocalPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetch_Update(t *testing.T) {
	upstream, commit := initUpstream(t)
	commit("one.txt", "v1\n")

	f := newTestFetcher(t)
	source := &api.Source{ID: "s1", Name: "src", URL: upstream, Branch: "master", AuthMethod: "public"}

	_, err := f.Fetch(context.Background(), source)
	require.NoError(t, err)

	second := commit("two.txt", "v2\n")
	result, err := f.Fetch(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, second, result.CommitRef)
	assert.FileExists(t, filepath.Join(result.LocalPath, "two.txt"))
}

func TestFetch_BranchNotFound(t *testing.T) {
	upstream, commit := initUpstream(t)
	commit("one.txt", "v1\n")

	f := newTestFetcher(t)
	source := &api.Source{ID: "s1", Name: "src", URL: upstream, Branch: "does-not-exist", AuthMethod: "public"}

	_, err := f.Fetch(context.Background(), source)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindInvalidRef, fetchErr.Kind)
	assert.False(t, f.HasCheckout("s1"))
}

func TestFetch_RepositoryNotFound(t *testing.T) {
	f := newTestFetcher(t)
	source := &api.Source{
		ID: "s1", Name: "src",
		URL:        filepath.Join(t.TempDir(), "missing"),
		Branch:     "master",
		AuthMethod: "public",
	}

	_, err := f.Fetch(context.Background(), source)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "s1", fetchErr.SourceID)
}

func TestFetch_RemoteChanged(t *testing.T) {
	first, commitA := initUpstream(t)
	commitA("a.txt", "a\n")
	second, commitB := initUpstream(t)
	headB := commitB("b.txt", "b\n")

	f := newTestFetcher(t)
	source := &api.Source{ID: "s1", Name: "src", URL: first, Branch: "master", AuthMethod: "public"}
	_, err := f.Fetch(context.Background(), source)
	require.NoError(t, err)

	// Point the source at a different upstream; the stale clone must be
	// discarded, not fetched into.
	source.URL = second
	result, err := f.Fetch(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, headB, result.CommitRef)
	assert.FileExists(t, filepath.Join(result.LocalPath, "b.txt"))
	assert.NoFileExists(t, filepath.Join(result.LocalPath, "a.txt"))
}

func TestSizeAndPurge(t *testing.T) {
	upstream, commit := initUpstream(t)
	commit("data.txt", "some content\n")

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), &api.Source{ID: "s1", URL: upstream, Branch: "master"})
	require.NoError(t, err)

	assert.Greater(t, f.Size(), int64(0))

	require.NoError(t, f.Purge("s1"))
	assert.False(t, f.HasCheckout("s1"))
}

func TestPurgeAll(t *testing.T) {
	upstream, commit := initUpstream(t)
	commit("data.txt", "x\n")

	f := newTestFetcher(t)
	for _, id := range []string{"s1", "s2"} {
		_, err := f.Fetch(context.Background(), &api.Source{ID: id, URL: upstream, Branch: "master"})
		require.NoError(t, err)
	}

	removed, err := f.PurgeAll()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, int64(0), f.Size())
}
