package api

import "time"

// Source is a configured Git origin contributing apps to the catalog.
// Kept here so store, orchestrator and the CLI can share it without
// circular imports.
type Source struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Branch     string    `json:"branch"`
	AuthMethod string    `json:"auth_method"` // "public" or "deploy_key"
	Enabled    bool      `json:"enabled"`
	Priority   int       `json:"priority"` // higher wins identifier conflicts
	LastSynced time.Time `json:"last_synced"`
	LastError  string    `json:"last_error,omitempty"`
}

// SourceCreateRequest is the body of POST /api/repositories.
type SourceCreateRequest struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Branch    string `json:"branch"`
	Priority  int    `json:"priority"`
	DeployKey string `json:"deploy_key,omitempty"`
}

// SourceUpdateRequest is the body of PUT /api/repositories/{id}.
// Pointer fields distinguish "not sent" from zero values.
type SourceUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	URL      *string `json:"url,omitempty"`
	Branch   *string `json:"branch,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
	Priority *int    `json:"priority,omitempty"`
}

// DeployRequest is the body of POST /apps/{id}/deploy.
type DeployRequest struct {
	StackName           string            `json:"stack_name"`
	PortainerEndpointID int               `json:"portainer_endpoint_id"`
	EnvOverrides        map[string]string `json:"env_overrides,omitempty"`
	PortOverrides       map[int]int       `json:"port_overrides,omitempty"`
	VolumeOverrides     map[string]string `json:"volume_overrides,omitempty"`
}

// AppSummary is the list/search representation of an app, without the
// manifest body.
type AppSummary struct {
	ID          string   `json:"app_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Icon        string   `json:"icon,omitempty"`
	Category    string   `json:"category,omitempty"`
	Source      string   `json:"repository_source"`
	Tags        []string `json:"tags,omitempty"`
}

// CategoryCount is one entry of GET /api/categories.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SourceError is one recent per-repository sync failure.
type SourceError struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	LastSync           time.Time     `json:"last_sync"`
	AppsLoaded         int           `json:"apps_loaded"`
	RepositoriesSynced int           `json:"repositories_synced"`
	RecentErrors       []SourceError `json:"recent_errors,omitempty"`
	Healthy            bool          `json:"healthy"`
}

// APIResponse is a standard wrapper for API responses.
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
