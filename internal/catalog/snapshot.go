package catalog

import (
	"sort"
	"strings"
	"time"
)

// Snapshot is an immutable, fully-indexed view of the catalog at one
// point in time. It is built once and then only read; the orchestrator
// replaces the published snapshot wholesale, so readers never need
// locks.
type Snapshot struct {
	builtAt    time.Time
	apps       map[string]*AppDefinition
	order      []string // app IDs sorted by title then ID
	categories map[string]int
	tokens     map[string][]string // search token -> app IDs
	issues     []BuildIssue
}

// IssueKind classifies a non-fatal event recorded during a build pass.
type IssueKind string

const (
	// IssueParseError marks an app folder that could not be parsed.
	IssueParseError IssueKind = "parse_error"
	// IssueConflictSkip marks a lower-priority duplicate that was
	// dropped, which is informational rather than an error.
	IssueConflictSkip IssueKind = "conflict_skip"
)

// BuildIssue records one skipped folder or dropped duplicate.
type BuildIssue struct {
	Kind     IssueKind `json:"kind"`
	SourceID string    `json:"source_id"`
	AppID    string    `json:"app_id,omitempty"`
	Folder   string    `json:"folder,omitempty"`
	Detail   string    `json:"detail"`
}

// EmptySnapshot returns a published-but-empty catalog, used before the
// first sync completes and after a cache purge.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		builtAt:    time.Now().UTC(),
		apps:       map[string]*AppDefinition{},
		categories: map[string]int{},
		tokens:     map[string][]string{},
	}
}

// BuiltAt returns when this snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Len returns the number of apps in the snapshot.
func (s *Snapshot) Len() int { return len(s.apps) }

// Issues returns the parse errors and conflict skips recorded while
// this snapshot was built.
func (s *Snapshot) Issues() []BuildIssue { return s.issues }

// Get returns the app with the given identifier, or nil.
func (s *Snapshot) Get(id string) *AppDefinition {
	return s.apps[strings.ToLower(id)]
}

// CountBySource returns how many apps each source contributed.
func (s *Snapshot) CountBySource() map[string]int {
	counts := make(map[string]int, 4)
	for _, app := range s.apps {
		counts[app.Provenance.SourceID]++
	}
	return counts
}

// List returns apps optionally filtered by category, in stable
// title-then-ID order, paginated. The second return value is the total
// match count before pagination.
func (s *Snapshot) List(category string, limit, offset int) ([]*AppDefinition, int) {
	var matched []*AppDefinition
	for _, id := range s.order {
		app := s.apps[id]
		if category != "" && !strings.EqualFold(app.Category, category) {
			continue
		}
		matched = append(matched, app)
	}
	total := len(matched)
	return paginate(matched, limit, offset), total
}

// Categories returns category names with app counts, sorted by name.
func (s *Snapshot) Categories() []CategoryCount {
	out := make([]CategoryCount, 0, len(s.categories))
	for name, count := range s.categories {
		out = append(out, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CategoryCount pairs a category name with its app count.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Search performs a case-insensitive token/substring match over title,
// description, developer and tags. Ranking is stable: match score
// descending, then source priority descending, then app ID ascending,
// so pagination is deterministic against the same snapshot.
func (s *Snapshot) Search(query string, limit, offset int) ([]*AppDefinition, int) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, 0
	}

	// Exact token hits from the prebuilt index outrank plain
	// substring matches.
	exact := map[string]int{}
	for _, term := range terms {
		for _, id := range s.tokens[term] {
			exact[id]++
		}
	}

	type scored struct {
		app   *AppDefinition
		score int
	}
	var hits []scored
	for _, id := range s.order {
		app := s.apps[id]
		score := matchScore(app, terms)
		if score > 0 {
			hits = append(hits, scored{app: app, score: score + exact[id]})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].app.Provenance.Priority != hits[j].app.Provenance.Priority {
			return hits[i].app.Provenance.Priority > hits[j].app.Provenance.Priority
		}
		return hits[i].app.ID < hits[j].app.ID
	})

	ranked := make([]*AppDefinition, len(hits))
	for i, h := range hits {
		ranked[i] = h.app
	}
	total := len(ranked)
	return paginate(ranked, limit, offset), total
}

func matchScore(app *AppDefinition, terms []string) int {
	title := strings.ToLower(app.Title)
	description := strings.ToLower(app.Description)
	developer := strings.ToLower(app.Developer)

	score := 0
	for _, term := range terms {
		switch {
		case strings.Contains(title, term):
			score += 3
		case strings.Contains(developer, term):
			score += 2
		case strings.Contains(description, term):
			score++
		case tagMatch(app.Tags, term):
			score++
		default:
			// Every term must match somewhere.
			return 0
		}
	}
	return score
}

func tagMatch(tags []string, term string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isTokenRune(r)
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isTokenRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
}

func paginate(apps []*AppDefinition, limit, offset int) []*AppDefinition {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(apps) {
		return nil
	}
	apps = apps[offset:]
	if limit > 0 && limit < len(apps) {
		apps = apps[:limit]
	}
	return apps
}

func sortedServiceNames(services map[string]Service) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
