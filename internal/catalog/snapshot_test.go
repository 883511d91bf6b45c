package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	snap := &Snapshot{
		builtAt:    time.Now().UTC(),
		apps:       map[string]*AppDefinition{},
		categories: map[string]int{},
		tokens:     map[string][]string{},
	}
	add := func(app *AppDefinition) {
		snap.apps[app.ID] = app
	}
	add(&AppDefinition{
		ID: "jellyfin", Title: "Jellyfin", Description: "The Free Software Media System",
		Category: "Media", Tags: []string{"media", "streaming"},
		Provenance: Provenance{SourceID: "official", Priority: 10},
	})
	add(&AppDefinition{
		ID: "plex", Title: "Plex", Description: "Stream media everywhere",
		Category: "Media", Tags: []string{"media"},
		Provenance: Provenance{SourceID: "community", Priority: 1},
	})
	add(&AppDefinition{
		ID: "gitea", Title: "Gitea", Description: "Self-hosted Git service",
		Category: "Developer", Tags: []string{"git"},
		Provenance: Provenance{SourceID: "community", Priority: 1},
	})

	(&Builder{}).buildIndices(snap)
	return snap
}

func TestList_OrderAndPagination(t *testing.T) {
	snap := testSnapshot()

	all, total := snap.List("", 0, 0)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "gitea", all[0].ID, "list order is title then ID")
	assert.Equal(t, "jellyfin", all[1].ID)
	assert.Equal(t, "plex", all[2].ID)

	page, total := snap.List("", 2, 0)
	assert.Equal(t, 3, total, "total reflects matches before pagination")
	assert.Len(t, page, 2)

	rest, _ := snap.List("", 2, 2)
	require.Len(t, rest, 1)
	assert.Equal(t, "plex", rest[0].ID)

	none, _ := snap.List("", 10, 99)
	assert.Empty(t, none)
}

func TestList_CategoryFilter(t *testing.T) {
	snap := testSnapshot()

	media, total := snap.List("media", 0, 0)
	assert.Equal(t, 2, total, "category filter is case-insensitive")
	for _, app := range media {
		assert.Equal(t, "Media", app.Category)
	}
}

func TestSearch(t *testing.T) {
	snap := testSnapshot()

	t.Run("score ties break on source priority", func(t *testing.T) {
		hits, total := snap.Search("media", 0, 0)
		assert.Equal(t, 2, total)
		require.NotEmpty(t, hits)
		assert.Equal(t, "jellyfin", hits[0].ID, "equal scores rank the higher-priority source first")
	})

	t.Run("every term must match", func(t *testing.T) {
		_, total := snap.Search("media nonexistent", 0, 0)
		assert.Equal(t, 0, total)
	})

	t.Run("case insensitive", func(t *testing.T) {
		hits, _ := snap.Search("JELLYFIN", 0, 0)
		require.Len(t, hits, 1)
		assert.Equal(t, "jellyfin", hits[0].ID)
	})

	t.Run("empty query", func(t *testing.T) {
		hits, total := snap.Search("  ", 0, 0)
		assert.Nil(t, hits)
		assert.Equal(t, 0, total)
	})

	t.Run("deterministic pagination", func(t *testing.T) {
		first, _ := snap.Search("media", 1, 0)
		second, _ := snap.Search("media", 1, 1)
		require.Len(t, first, 1)
		require.Len(t, second, 1)
		assert.NotEqual(t, first[0].ID, second[0].ID)
	})
}

func TestGet_CaseInsensitive(t *testing.T) {
	snap := testSnapshot()
	assert.NotNil(t, snap.Get("Jellyfin"))
	assert.Nil(t, snap.Get("unknown"))
}

func TestCountBySource(t *testing.T) {
	snap := testSnapshot()
	counts := snap.CountBySource()
	assert.Equal(t, 1, counts["official"])
	assert.Equal(t, 2, counts["community"])
}

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot()
	assert.Equal(t, 0, snap.Len())

	apps, total := snap.List("", 10, 0)
	assert.Empty(t, apps)
	assert.Equal(t, 0, total)

	hits, _ := snap.Search("anything", 10, 0)
	assert.Empty(t, hits)
}
