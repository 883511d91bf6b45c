package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubParse turns folder names into minimal definitions; folders named
// broken-* fail, mirroring a malformed manifest.
func stubParse(appDir string) (*AppDefinition, error) {
	name := strings.ToLower(filepath.Base(appDir))
	if strings.HasPrefix(name, "broken") {
		return nil, &os.PathError{Op: "parse", Path: appDir, Err: os.ErrInvalid}
	}
	return &AppDefinition{
		ID:       name,
		Title:    strings.ToUpper(name[:1]) + name[1:],
		Category: "Test",
		Services: map[string]Service{name: {Name: name, Image: name + ":latest"}},
	}, nil
}

func makeCheckout(t *testing.T, folders ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, folder := range folders {
		dir := filepath.Join(root, "Apps", folder)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))
	}
	return root
}

func TestBuild_MergesSources(t *testing.T) {
	builder := NewBuilder(stubParse, nil)

	snap := builder.Build([]SourceCheckout{
		{SourceID: "s1", SourceName: "first", Priority: 0, Path: makeCheckout(t, "alpha", "beta")},
		{SourceID: "s2", SourceName: "second", Priority: 0, Path: makeCheckout(t, "gamma")},
	})

	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, "first", snap.Get("alpha").Provenance.SourceName)
	assert.Equal(t, "second", snap.Get("gamma").Provenance.SourceName)
	assert.Empty(t, snap.Issues())
}

func TestBuild_PriorityConflict(t *testing.T) {
	builder := NewBuilder(stubParse, nil)

	// Lower priority listed first; sorting must still let the
	// higher-priority source win the shared identifier.
	snap := builder.Build([]SourceCheckout{
		{SourceID: "low", SourceName: "community", Priority: 1, Path: makeCheckout(t, "jellyfin", "extra")},
		{SourceID: "high", SourceName: "official", Priority: 10, Path: makeCheckout(t, "jellyfin")},
	})

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, "official", snap.Get("jellyfin").Provenance.SourceName)

	require.Len(t, snap.Issues(), 1)
	issue := snap.Issues()[0]
	assert.Equal(t, IssueConflictSkip, issue.Kind)
	assert.Equal(t, "low", issue.SourceID)
	assert.Equal(t, "jellyfin", issue.AppID)
}

func TestBuild_ParseErrorsDoNotAbort(t *testing.T) {
	builder := NewBuilder(stubParse, nil)

	snap := builder.Build([]SourceCheckout{
		{SourceID: "s1", SourceName: "src", Path: makeCheckout(t, "broken-app", "good-app")},
	})

	assert.Equal(t, 1, snap.Len())
	assert.NotNil(t, snap.Get("good-app"))

	require.Len(t, snap.Issues(), 1)
	assert.Equal(t, IssueParseError, snap.Issues()[0].Kind)
}

func TestBuild_SkipsDotDirsAndNonManifests(t *testing.T) {
	root := makeCheckout(t, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Apps", ".github"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Apps", "no-manifest-here"), 0o755))

	builder := NewBuilder(stubParse, func(appDir string) bool {
		_, err := os.Stat(filepath.Join(appDir, "docker-compose.yml"))
		return err == nil
	})
	snap := builder.Build([]SourceCheckout{{SourceID: "s1", SourceName: "src", Path: root}})

	assert.Equal(t, 1, snap.Len())
	assert.Empty(t, snap.Issues())
}

func TestBuild_RootLevelApps(t *testing.T) {
	// No Apps/ directory: top-level folders are used instead.
	root := t.TempDir()
	dir := filepath.Join(root, "nginx")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	builder := NewBuilder(stubParse, nil)
	snap := builder.Build([]SourceCheckout{{SourceID: "s1", SourceName: "src", Path: root}})

	assert.Equal(t, 1, snap.Len())
	assert.NotNil(t, snap.Get("nginx"))
}

func TestBuild_CategoryIndex(t *testing.T) {
	builder := NewBuilder(stubParse, nil)
	snap := builder.Build([]SourceCheckout{
		{SourceID: "s1", SourceName: "src", Path: makeCheckout(t, "one", "two", "three")},
	})

	categories := snap.Categories()
	require.Len(t, categories, 1)
	assert.Equal(t, CategoryCount{Name: "Test", Count: 3}, categories[0])
}
