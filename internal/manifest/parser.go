// Package manifest converts compose-style application definitions into
// the normalized catalog schema. Parsing is side-effect free: it reads
// the given folder and nothing else.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/appbridge/appbridge/internal/catalog"
)

// extensionKey is the vendor extension block carrying UI-only metadata
// (category, icon, screenshots, friendly descriptions). It is read for
// metadata and stripped from the definition handed to the deployment
// backend.
const extensionKey = "x-casaos"

// manifestFileNames are probed in order when locating an app's
// definition inside its folder.
var manifestFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yaml",
	"compose.yml",
}

// ParseError reports a malformed or incomplete manifest. The catalog
// builder records it and moves on to the next folder.
type ParseError struct {
	Folder string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest in %s: %s", e.Folder, e.Reason)
}

// Parse reads the app folder and produces a normalized AppDefinition.
// The app identifier is derived from the folder name, lowercased.
func Parse(appDir string) (*catalog.AppDefinition, error) {
	path, err := locateManifest(appDir)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Folder: appDir, Reason: err.Error()}
	}

	return ParseBytes(appDir, raw)
}

// ParseBytes parses manifest content directly; appDir is only used to
// derive the app identifier and annotate errors.
func ParseBytes(appDir string, raw []byte) (*catalog.AppDefinition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Folder: appDir, Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}
	if doc == nil {
		return nil, &ParseError{Folder: appDir, Reason: "empty manifest"}
	}

	meta, _ := doc[extensionKey].(map[string]any)

	servicesDoc, _ := doc["services"].(map[string]any)
	if len(servicesDoc) == 0 {
		return nil, &ParseError{Folder: appDir, Reason: "no services declared"}
	}

	services := make(map[string]catalog.Service, len(servicesDoc))
	imageSeen := false
	for name, value := range servicesDoc {
		svcDoc, ok := value.(map[string]any)
		if !ok {
			continue
		}
		svc := parseService(name, svcDoc)
		if svc.Image != "" {
			imageSeen = true
		}
		services[name] = svc
	}
	if len(services) == 0 {
		return nil, &ParseError{Folder: appDir, Reason: "no usable services declared"}
	}
	if !imageSeen {
		return nil, &ParseError{Folder: appDir, Reason: "no service declares an image"}
	}

	title := localizedString(meta["title"])
	if title == "" {
		return nil, &ParseError{Folder: appDir, Reason: "missing title"}
	}

	def := &catalog.AppDefinition{
		ID:            strings.ToLower(filepath.Base(appDir)),
		Title:         title,
		Description:   localizedString(meta["description"]),
		Developer:     stringValue(meta["developer"]),
		Category:      stringValue(meta["category"]),
		Icon:          stringValue(meta["icon"]),
		Screenshots:   stringList(meta["screenshot_link"]),
		Thumbnail:     stringValue(meta["thumbnail"]),
		PortMap:       stringValue(meta["port_map"]),
		Index:         stringValue(meta["index"]),
		MainService:   stringValue(meta["main"]),
		Architectures: stringList(meta["architectures"]),
		Tags:          stringList(meta["tags"]),
		Services:      services,
		RawManifest:   string(raw),
	}

	if def.MainService == "" {
		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		sort.Strings(names)
		def.MainService = names[0]
	}
	if def.Index == "" {
		def.Index = "/"
	}

	return def, nil
}

func locateManifest(appDir string) (string, error) {
	for _, name := range manifestFileNames {
		path := filepath.Join(appDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", &ParseError{Folder: appDir, Reason: "no compose manifest found"}
}

// HasManifest reports whether the folder contains a compose manifest,
// without parsing it.
func HasManifest(appDir string) bool {
	_, err := locateManifest(appDir)
	return err == nil
}

func parseService(name string, doc map[string]any) catalog.Service {
	svc := catalog.Service{
		Name:          name,
		ContainerName: stringValue(doc["container_name"]),
		Image:         stringValue(doc["image"]),
		Environment:   flattenEnvironment(doc["environment"]),
	}
	if svc.ContainerName == "" {
		svc.ContainerName = name
	}

	if ports, ok := doc["ports"].([]any); ok {
		for _, entry := range ports {
			if binding, ok := normalizePort(entry); ok {
				svc.Ports = append(svc.Ports, binding)
			}
		}
	}
	if volumes, ok := doc["volumes"].([]any); ok {
		for _, entry := range volumes {
			if binding, ok := normalizeVolume(name, entry); ok {
				svc.Volumes = append(svc.Volumes, binding)
			}
		}
	}
	return svc
}

// normalizePort resolves a compose port declaration to one internal
// representation. Protocol defaults to tcp when omitted.
func normalizePort(entry any) (catalog.PortBinding, bool) {
	switch v := entry.(type) {
	case string:
		return parsePortString(v)
	case int:
		return catalog.PortBinding{Published: v, Target: v, Protocol: "tcp"}, true
	case map[string]any:
		binding := catalog.PortBinding{
			Target:    intValue(v["target"]),
			Published: intValue(v["published"]),
			Protocol:  strings.ToLower(stringValue(v["protocol"])),
		}
		if binding.Protocol == "" {
			binding.Protocol = "tcp"
		}
		if binding.Published == 0 {
			binding.Published = binding.Target
		}
		return binding, binding.Target != 0
	default:
		return catalog.PortBinding{}, false
	}
}

// parsePortString handles "8080:80/udp", "8080:80", "127.0.0.1:8080:80"
// and bare "80" forms.
func parsePortString(value string) (catalog.PortBinding, bool) {
	protocol := "tcp"
	if idx := strings.IndexByte(value, '/'); idx >= 0 {
		protocol = strings.ToLower(strings.TrimSpace(value[idx+1:]))
		value = value[:idx]
		if protocol == "" {
			protocol = "tcp"
		}
	}

	parts := strings.Split(strings.TrimSpace(value), ":")
	// Discard a leading bind address such as 127.0.0.1.
	if len(parts) == 3 {
		parts = parts[1:]
	}

	switch len(parts) {
	case 1:
		port, err := strconv.Atoi(parts[0])
		if err != nil {
			return catalog.PortBinding{}, false
		}
		return catalog.PortBinding{Published: port, Target: port, Protocol: protocol}, true
	case 2:
		published, err1 := strconv.Atoi(parts[0])
		target, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return catalog.PortBinding{}, false
		}
		return catalog.PortBinding{Published: published, Target: target, Protocol: protocol}, true
	default:
		return catalog.PortBinding{}, false
	}
}

// normalizeVolume extracts the host-side source and container-side
// target of a bind mount. Named and anonymous volumes are skipped;
// they cannot be remapped per deployment.
func normalizeVolume(service string, entry any) (catalog.VolumeBinding, bool) {
	switch v := entry.(type) {
	case string:
		parts := strings.Split(v, ":")
		if len(parts) < 2 {
			return catalog.VolumeBinding{}, false
		}
		source := parts[0]
		if !isHostPath(source) {
			return catalog.VolumeBinding{}, false
		}
		mode := "rw"
		if len(parts) > 2 && parts[2] != "" {
			mode = parts[2]
		}
		return catalog.VolumeBinding{
			Service: service,
			Source:  source,
			Target:  parts[1],
			Mode:    mode,
		}, true
	case map[string]any:
		if stringValue(v["type"]) != "bind" {
			return catalog.VolumeBinding{}, false
		}
		mode := "rw"
		if readOnly, _ := v["read_only"].(bool); readOnly {
			mode = "ro"
		}
		return catalog.VolumeBinding{
			Service: service,
			Source:  stringValue(v["source"]),
			Target:  stringValue(v["target"]),
			Mode:    mode,
		}, true
	default:
		return catalog.VolumeBinding{}, false
	}
}

func isHostPath(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, ".") ||
		strings.HasPrefix(source, "~")
}

// flattenEnvironment normalizes both the map and the "K=V" list forms.
func flattenEnvironment(entry any) map[string]string {
	out := map[string]string{}
	switch env := entry.(type) {
	case map[string]any:
		for key, value := range env {
			out[key] = scalarString(value)
		}
	case []any:
		for _, item := range env {
			text, ok := item.(string)
			if !ok {
				continue
			}
			key, value, found := strings.Cut(text, "=")
			if found {
				out[key] = value
			}
		}
	}
	return out
}

// localizedString accepts a plain string or a locale map such as
// {en_US: "...", it_IT: "..."}; English is preferred, otherwise the
// first non-empty value wins.
func localizedString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"en_US", "en_us", "en_GB", "en"} {
			if s := stringValue(v[key]); s != "" {
				return s
			}
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if s := stringValue(v[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringValue(value any) string {
	s, _ := value.(string)
	return s
}

func scalarString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringList(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intValue(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case float64:
		return int(v)
	default:
		return 0
	}
}
