package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SourceCheckout pairs a source's configuration with its on-disk
// working tree.
type SourceCheckout struct {
	SourceID   string
	SourceName string
	Priority   int
	Path       string
}

// ParseFunc converts one app folder into a definition. Wired to
// manifest.Parse; injected so the builder can be tested in isolation.
type ParseFunc func(appDir string) (*AppDefinition, error)

// ManifestProbe reports whether a folder holds a manifest worth
// parsing. Wired to manifest.HasManifest.
type ManifestProbe func(appDir string) bool

// Builder walks fetched repository trees and produces immutable
// snapshots. It never mutates a previously published snapshot.
type Builder struct {
	parse ParseFunc
	probe ManifestProbe
}

// NewBuilder creates a catalog builder around the given parser.
func NewBuilder(parse ParseFunc, probe ManifestProbe) *Builder {
	return &Builder{parse: parse, probe: probe}
}

// Build constructs a query-ready snapshot from the given checkouts.
// Checkouts are processed highest priority first (ties broken by the
// given order), so the conflict rule is first write wins per app
// identifier: a later duplicate is dropped and recorded as an
// informational skip. Per-folder parse failures are recorded and the
// walk continues.
func (b *Builder) Build(checkouts []SourceCheckout) *Snapshot {
	ordered := make([]SourceCheckout, len(checkouts))
	copy(ordered, checkouts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	snap := &Snapshot{
		builtAt:    time.Now().UTC(),
		apps:       map[string]*AppDefinition{},
		categories: map[string]int{},
		tokens:     map[string][]string{},
	}

	for _, checkout := range ordered {
		for _, folder := range b.appFolders(checkout.Path) {
			def, err := b.parse(folder)
			if err != nil {
				snap.issues = append(snap.issues, BuildIssue{
					Kind:     IssueParseError,
					SourceID: checkout.SourceID,
					Folder:   folder,
					Detail:   err.Error(),
				})
				continue
			}

			if winner, taken := snap.apps[def.ID]; taken {
				snap.issues = append(snap.issues, BuildIssue{
					Kind:     IssueConflictSkip,
					SourceID: checkout.SourceID,
					AppID:    def.ID,
					Detail: fmt.Sprintf("dropped: %q already provided by higher-priority source %s",
						def.ID, winner.Provenance.SourceName),
				})
				continue
			}

			def.Provenance = Provenance{
				SourceID:   checkout.SourceID,
				SourceName: checkout.SourceName,
				Priority:   checkout.Priority,
			}
			snap.apps[def.ID] = def
		}
	}

	b.buildIndices(snap)
	return snap
}

// appFolders enumerates candidate app directories inside a checkout.
// Repositories conventionally keep apps under an Apps/ directory; when
// that is absent, top-level folders holding a manifest are used.
func (b *Builder) appFolders(root string) []string {
	base := filepath.Join(root, "Apps")
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		base = root
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folder := filepath.Join(base, entry.Name())
		if b.probe != nil && !b.probe(folder) {
			continue
		}
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	return folders
}

func (b *Builder) buildIndices(snap *Snapshot) {
	ids := make([]string, 0, len(snap.apps))
	for id, app := range snap.apps {
		ids = append(ids, id)
		if app.Category != "" {
			snap.categories[app.Category]++
		}
		for _, token := range appTokens(app) {
			snap.tokens[token] = append(snap.tokens[token], id)
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := snap.apps[ids[i]], snap.apps[ids[j]]
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
	snap.order = ids

	for token := range snap.tokens {
		sort.Strings(snap.tokens[token])
	}
}

func appTokens(app *AppDefinition) []string {
	seen := map[string]bool{}
	var out []string
	add := func(text string) {
		for _, token := range tokenize(text) {
			if !seen[token] {
				seen[token] = true
				out = append(out, token)
			}
		}
	}
	add(app.Title)
	add(app.Description)
	add(app.Developer)
	for _, tag := range app.Tags {
		add(tag)
	}
	return out
}
