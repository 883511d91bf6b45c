package catalog

// PortBinding is the normalized form of a compose port declaration.
// Both the compact "8080:80/tcp" form and the expanded
// {target, published, protocol} form resolve to this record.
type PortBinding struct {
	Published int    `json:"published"` // host side
	Target    int    `json:"target"`    // container side
	Protocol  string `json:"protocol"`  // "tcp" or "udp"
}

// VolumeBinding is a host bind mount owned by one service. Named
// volumes are not represented here; only bind mounts can be remapped
// at deployment time.
type VolumeBinding struct {
	Service string `json:"service"`
	Source  string `json:"source"` // host path
	Target  string `json:"target"` // container path
	Mode    string `json:"mode"`   // "rw" or "ro"
}

// Service is one container definition within an app.
type Service struct {
	Name          string            `json:"name"`
	ContainerName string            `json:"container_name,omitempty"`
	Image         string            `json:"image"`
	Ports         []PortBinding     `json:"ports,omitempty"`
	Volumes       []VolumeBinding   `json:"volumes,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
}

// Provenance records which source an app definition came from and that
// source's priority at build time.
type Provenance struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Priority   int    `json:"priority"`
}

// AppDefinition is a normalized application entry. Immutable once
// placed in a snapshot.
type AppDefinition struct {
	ID            string             `json:"app_id"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Developer     string             `json:"developer,omitempty"`
	Category      string             `json:"category,omitempty"`
	Icon          string             `json:"icon,omitempty"`
	Screenshots   []string           `json:"screenshot_links,omitempty"`
	Thumbnail     string             `json:"thumbnail,omitempty"`
	PortMap       string             `json:"port_map,omitempty"`
	Index         string             `json:"index,omitempty"`
	MainService   string             `json:"main_service"`
	Architectures []string           `json:"architectures,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Services      map[string]Service `json:"services"`
	// RawManifest is the manifest file exactly as found in the source
	// repository, kept for display and audit. The deployment path
	// re-parses it and strips vendor extension blocks before rendering.
	RawManifest string     `json:"compose_content"`
	Provenance  Provenance `json:"provenance"`
}

// Volumes returns every bind mount across all services, ordered by
// service name then source path, for deterministic output.
func (d *AppDefinition) Volumes() []VolumeBinding {
	var out []VolumeBinding
	for _, name := range sortedServiceNames(d.Services) {
		out = append(out, d.Services[name].Volumes...)
	}
	return out
}

// HasVolumeSource reports whether any service declares a bind mount
// with the given host source path.
func (d *AppDefinition) HasVolumeSource(source string) bool {
	for _, svc := range d.Services {
		for _, v := range svc.Volumes {
			if v.Source == source {
				return true
			}
		}
	}
	return false
}

// HasPublishedPort reports whether any service publishes the given
// host port.
func (d *AppDefinition) HasPublishedPort(port int) bool {
	for _, svc := range d.Services {
		for _, p := range svc.Ports {
			if p.Published == port {
				return true
			}
		}
	}
	return false
}
