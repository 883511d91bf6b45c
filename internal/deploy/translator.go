package deploy

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/catalog"
	"github.com/appbridge/appbridge/internal/manifest"
)

// Validation failure reasons surfaced to API clients.
const (
	ReasonMissingStackName    = "missing_stack_name"
	ReasonInvalidStackName    = "invalid_stack_name"
	ReasonInvalidEndpoint     = "invalid_endpoint"
	ReasonUnknownHostPort     = "unknown_host_port"
	ReasonUnknownVolumeSource = "unknown_volume_source"
)

// ValidationError rejects a deployment request before anything reaches
// the backend. Reason is one of the Reason* constants.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid deployment request (%s): %s", e.Reason, e.Detail)
}

// Payload is the backend-agnostic deployment unit produced from an app
// definition plus a deployment request.
type Payload struct {
	StackName        string
	EndpointID       int
	StackFileContent string
	Env              map[string]string
}

// Stack names become Docker project names, same character rules.
var stackNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// Translate validates a deployment request against the app definition
// and produces the rendered payload. Port overrides remap the host side
// of a published port only; volume overrides are keyed by the original
// host source path. Referencing a port or path the app does not declare
// is a ValidationError, not a silent no-op.
func Translate(def *catalog.AppDefinition, req *api.DeployRequest) (*Payload, error) {
	if req.StackName == "" {
		return nil, &ValidationError{Reason: ReasonMissingStackName, Detail: "stack_name is required"}
	}
	if !stackNamePattern.MatchString(req.StackName) {
		return nil, &ValidationError{
			Reason: ReasonInvalidStackName,
			Detail: fmt.Sprintf("stack_name %q must be lowercase alphanumeric with - or _", req.StackName),
		}
	}
	if req.PortainerEndpointID < 0 {
		return nil, &ValidationError{
			Reason: ReasonInvalidEndpoint,
			Detail: fmt.Sprintf("portainer_endpoint_id %d is not a valid endpoint", req.PortainerEndpointID),
		}
	}

	for hostPort := range req.PortOverrides {
		if !def.HasPublishedPort(hostPort) {
			return nil, &ValidationError{
				Reason: ReasonUnknownHostPort,
				Detail: fmt.Sprintf("app %s does not publish host port %d", def.ID, hostPort),
			}
		}
	}
	for sourcePath := range req.VolumeOverrides {
		if !def.HasVolumeSource(sourcePath) {
			return nil, &ValidationError{
				Reason: ReasonUnknownVolumeSource,
				Detail: fmt.Sprintf("app %s does not mount host path %s", def.ID, sourcePath),
			}
		}
	}

	rendered, err := manifest.Render(def.RawManifest, manifest.Overrides{
		Env:     req.EnvOverrides,
		Ports:   req.PortOverrides,
		Volumes: req.VolumeOverrides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render manifest for %s: %w", def.ID, err)
	}

	env := make(map[string]string, len(req.EnvOverrides))
	for key, value := range req.EnvOverrides {
		env[key] = value
	}

	return &Payload{
		StackName:        req.StackName,
		EndpointID:       req.PortainerEndpointID,
		StackFileContent: rendered,
		Env:              env,
	}, nil
}

// EnvList flattens the payload environment into sorted NAME=VALUE pairs
// for backends that take a list rather than a map.
func (p *Payload) EnvList() []string {
	pairs := make([]string, 0, len(p.Env))
	for key, value := range p.Env {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}
