package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides are user-supplied replacements applied to a manifest at
// deployment time.
type Overrides struct {
	// Env replaces values of environment keys already declared in the
	// manifest. Keys not declared are left to the deployment payload's
	// environment list.
	Env map[string]string
	// Ports remaps a declared host port to a new host port. Container
	// ports are never touched.
	Ports map[int]int
	// Volumes remaps a declared bind-mount host path to a new host
	// path, keyed by the original source path.
	Volumes map[string]string
}

// Render strips vendor extension blocks from the raw manifest, applies
// the overrides and re-serializes the document. The result is what the
// deployment backend receives; applying Render twice with empty
// overrides yields the same document.
func Render(raw string, ov Overrides) (string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("invalid manifest yaml: %w", err)
	}
	if doc == nil {
		return "", fmt.Errorf("empty manifest")
	}

	for key := range doc {
		if strings.HasPrefix(key, "x-") {
			delete(doc, key)
		}
	}

	services, _ := doc["services"].(map[string]any)
	for _, value := range services {
		svc, ok := value.(map[string]any)
		if !ok {
			continue
		}
		applyEnvOverrides(svc, ov.Env)
		applyPortOverrides(svc, ov.Ports)
		applyVolumeOverrides(svc, ov.Volumes)
	}

	var out strings.Builder
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("render manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("render manifest: %w", err)
	}
	return out.String(), nil
}

func applyEnvOverrides(svc map[string]any, overrides map[string]string) {
	if len(overrides) == 0 {
		return
	}
	switch env := svc["environment"].(type) {
	case map[string]any:
		for key, value := range overrides {
			if _, declared := env[key]; declared {
				env[key] = value
			}
		}
	case []any:
		for i, item := range env {
			text, ok := item.(string)
			if !ok {
				continue
			}
			key, _, found := strings.Cut(text, "=")
			if !found {
				continue
			}
			if value, hit := overrides[key]; hit {
				env[i] = key + "=" + value
			}
		}
	}
}

func applyPortOverrides(svc map[string]any, overrides map[int]int) {
	if len(overrides) == 0 {
		return
	}
	ports, ok := svc["ports"].([]any)
	if !ok {
		return
	}
	for i, entry := range ports {
		binding, ok := normalizePort(entry)
		if !ok {
			continue
		}
		newHost, hit := overrides[binding.Published]
		if !hit {
			continue
		}
		switch v := entry.(type) {
		case map[string]any:
			v["published"] = newHost
		default:
			rendered := strconv.Itoa(newHost) + ":" + strconv.Itoa(binding.Target)
			if binding.Protocol != "tcp" {
				rendered += "/" + binding.Protocol
			}
			ports[i] = rendered
		}
	}
}

func applyVolumeOverrides(svc map[string]any, overrides map[string]string) {
	if len(overrides) == 0 {
		return
	}
	volumes, ok := svc["volumes"].([]any)
	if !ok {
		return
	}
	for i, entry := range volumes {
		switch v := entry.(type) {
		case string:
			parts := strings.Split(v, ":")
			if len(parts) < 2 {
				continue
			}
			if newSource, hit := overrides[parts[0]]; hit {
				parts[0] = newSource
				volumes[i] = strings.Join(parts, ":")
			}
		case map[string]any:
			if stringValue(v["type"]) != "bind" {
				continue
			}
			if newSource, hit := overrides[stringValue(v["source"])]; hit {
				v["source"] = newSource
			}
		}
	}
}
