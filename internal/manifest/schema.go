package manifest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/appbridge/appbridge/internal/catalog"
)

// Parameter describes one environment variable a deployment form can
// customize.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, int, port, path, bool
	Default     string `json:"default,omitempty"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

var typePatterns = []struct {
	paramType string
	patterns  []*regexp.Regexp
}{
	{"port", compileAll(`PORT`)},
	{"int", compileAll(`PUID`, `PGID`, `UID`, `GID`, `_ID$`, `COUNT`)},
	{"path", compileAll(`PATH`, `DIR`, `VOLUME`)},
	{"bool", compileAll(`ENABLED`, `DEBUG`, `SECURE`)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// inferType guesses a parameter's type from its name.
func inferType(name string) string {
	for _, group := range typePatterns {
		for _, pattern := range group.patterns {
			if pattern.MatchString(name) {
				return group.paramType
			}
		}
	}
	return "string"
}

// Schema derives the customizable parameter list from an app's
// declared environment. Variables whose value is an unresolved
// placeholder such as ${HOST_PORT} have no default and are required.
// Common container knobs (TZ, PUID, PGID) are always offered.
func Schema(def *catalog.AppDefinition) []Parameter {
	seen := map[string]bool{}
	var params []Parameter

	for _, name := range serviceNames(def) {
		svc := def.Services[name]
		keys := make([]string, 0, len(svc.Environment))
		for key := range svc.Environment {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if seen[key] {
				continue
			}
			value := svc.Environment[key]
			if strings.HasPrefix(value, "$") {
				placeholder := strings.Trim(value, "${}")
				if strings.HasPrefix(placeholder, "_") {
					continue
				}
				seen[key] = true
				params = append(params, Parameter{
					Name:        key,
					Type:        inferType(key),
					Description: "Environment variable " + key,
					Required:    true,
				})
				continue
			}
			seen[key] = true
			params = append(params, Parameter{
				Name:        key,
				Type:        inferType(key),
				Default:     value,
				Description: "Environment variable " + key,
			})
		}
	}

	common := []Parameter{
		{Name: "TZ", Type: "string", Default: "UTC", Description: "Timezone"},
		{Name: "PUID", Type: "int", Default: "1000", Description: "User ID"},
		{Name: "PGID", Type: "int", Default: "1000", Description: "Group ID"},
	}
	for _, p := range common {
		if !seen[p.Name] {
			params = append(params, p)
		}
	}

	return params
}

func serviceNames(def *catalog.AppDefinition) []string {
	names := make([]string, 0, len(def.Services))
	for name := range def.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
