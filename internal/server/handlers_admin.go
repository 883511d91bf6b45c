package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/orchestrator"
	"github.com/appbridge/appbridge/internal/portainer"
	"github.com/appbridge/appbridge/internal/repoauth"
	"github.com/appbridge/appbridge/internal/store"
)

// ListSources handles GET /api/repositories
func (s *Server) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.Store.ListSources(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Data: sources})
}

// CreateSource handles POST /api/repositories
func (s *Server) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req api.SourceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	if req.Name == "" || req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}

	method := repoauth.MethodPublic
	if strings.TrimSpace(req.DeployKey) != "" {
		method = repoauth.MethodDeployKey
	}
	if err := repoauth.ValidateCreateInput(req.URL, method, req.DeployKey); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if method == repoauth.MethodDeployKey && !s.Credentials.Enabled() {
		s.respondError(w, http.StatusBadRequest, "credential encryption is not configured; cannot store deploy keys")
		return
	}

	source := &api.Source{
		ID:         uuid.New().String(),
		Name:       req.Name,
		URL:        req.URL,
		Branch:     req.Branch,
		AuthMethod: method,
		Enabled:    true,
		Priority:   req.Priority,
	}
	if err := s.Store.CreateSource(r.Context(), source); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}

	if method == repoauth.MethodDeployKey {
		key := []byte(repoauth.NormalizeDeployKey(req.DeployKey))
		ciphertext, nonce, err := s.Credentials.Seal(key)
		if err != nil {
			_ = s.Store.DeleteSource(r.Context(), source.ID)
			s.respondError(w, http.StatusInternalServerError, "failed to encrypt deploy key")
			return
		}
		credential := &store.SourceCredential{
			SourceID:            source.ID,
			DeployKeyCiphertext: ciphertext,
			DeployKeyNonce:      nonce,
		}
		if err := s.Store.UpsertSourceCredential(r.Context(), credential); err != nil {
			_ = s.Store.DeleteSource(r.Context(), source.ID)
			s.respondError(w, http.StatusInternalServerError, "failed to store deploy key")
			return
		}
	}

	go s.syncInBackground(source.ID, source.Name)

	s.respond(w, http.StatusCreated, api.APIResponse{
		Message: "Repository added; initial sync started",
		Data:    source,
	})
}

// GetSource handles GET /api/repositories/{id}
func (s *Server) GetSource(w http.ResponseWriter, r *http.Request) {
	source, err := s.Store.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondSourceError(w, err)
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Data: source})
}

// UpdateSource handles PUT /api/repositories/{id}
func (s *Server) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var req api.SourceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source, err := s.Store.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondSourceError(w, err)
		return
	}

	if req.Name != nil {
		source.Name = strings.TrimSpace(*req.Name)
	}
	if req.URL != nil {
		source.URL = strings.TrimSpace(*req.URL)
	}
	if req.Branch != nil {
		source.Branch = *req.Branch
	}
	if req.Enabled != nil {
		source.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		source.Priority = *req.Priority
	}
	if source.Name == "" || source.URL == "" {
		s.respondError(w, http.StatusBadRequest, "name and url must not be empty")
		return
	}

	if err := s.Store.UpdateSource(r.Context(), source); err != nil {
		s.respondSourceError(w, err)
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Message: "Repository updated", Data: source})
}

// DeleteSource handles DELETE /api/repositories/{id}
func (s *Server) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteSource(r.Context(), id); err != nil {
		s.respondSourceError(w, err)
		return
	}
	if err := s.Orchestrator.DropSource(r.Context(), id); err != nil {
		s.Logger.Warn("Failed to drop source checkout", "source_id", id, "error", err)
	}
	s.respond(w, http.StatusOK, api.APIResponse{Message: "Repository deleted"})
}

// SyncSource handles POST /api/repositories/{id}/sync
func (s *Server) SyncSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Orchestrator.SyncOne(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrAlreadySyncing):
			s.respondError(w, http.StatusConflict, "sync already in progress")
		case errors.Is(err, store.ErrSourceNotFound):
			s.respondError(w, http.StatusNotFound, "repository not found")
		default:
			s.respondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Message: "Repository synced"})
}

// CacheStatus handles GET /api/settings/cache/status
func (s *Server) CacheStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, api.APIResponse{Data: map[string]any{
		"size_bytes": s.Orchestrator.CacheSize(),
		"sources":    s.Orchestrator.SourceStatuses(),
	}})
}

// ClearCache handles POST /api/settings/cache/clear
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	result, err := s.Orchestrator.PurgeAll(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := map[string]any{
		"bytes_before":        result.BytesBefore,
		"bytes_after":         result.BytesAfter,
		"repositories_purged": result.Purged,
		"resync_completed":    result.SyncError == nil,
	}
	if result.SyncError != nil {
		data["resync_error"] = result.SyncError.Error()
	}
	s.respond(w, http.StatusOK, api.APIResponse{Message: "Cache cleared", Data: data})
}

type portainerSettingsRequest struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	EndpointID int    `json:"endpoint_id"`
	VerifySSL  *bool  `json:"verify_ssl,omitempty"`
}

// GetPortainerSettings handles GET /api/settings/portainer
func (s *Server) GetPortainerSettings(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"configured": false,
		"mode":       s.Portainer.EffectiveMode(),
		"force_mock": s.Portainer.ForceMock(),
	}

	cfg, err := s.Store.GetPortainerConfig(r.Context())
	switch {
	case err == nil:
		data["configured"] = len(cfg.APIKeyCiphertext) > 0
		data["base_url"] = cfg.BaseURL
		data["endpoint_id"] = cfg.EndpointID
	case errors.Is(err, store.ErrConfigNotFound):
		data["base_url"] = s.Config.PortainerBaseURL
		data["endpoint_id"] = s.Config.PortainerEndpointID
		data["configured"] = s.Config.PortainerAPIKey != ""
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Data: data})
}

// SetPortainerSettings handles POST /api/settings/portainer
func (s *Server) SetPortainerSettings(w http.ResponseWriter, r *http.Request) {
	var req portainerSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.BaseURL = strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	if req.BaseURL == "" || strings.TrimSpace(req.APIKey) == "" {
		s.respondError(w, http.StatusBadRequest, "base_url and api_key are required")
		return
	}
	if req.EndpointID <= 0 {
		req.EndpointID = s.Config.PortainerEndpointID
	}
	verifySSL := s.Config.PortainerVerifySSL
	if req.VerifySSL != nil {
		verifySSL = *req.VerifySSL
	}
	if !s.Credentials.Enabled() {
		s.respondError(w, http.StatusBadRequest, "credential encryption is not configured; cannot store the API key")
		return
	}

	client := portainer.NewHTTPClient(req.BaseURL, req.APIKey, req.EndpointID, verifySSL)
	validateCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := client.ValidateConnection(validateCtx); err != nil {
		s.respondError(w, http.StatusBadRequest, "connection validation failed: "+err.Error())
		return
	}

	ciphertext, nonce, err := s.Credentials.Seal([]byte(req.APIKey))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to encrypt API key")
		return
	}
	cfg := &store.PortainerConfig{
		BaseURL:          req.BaseURL,
		APIKeyCiphertext: ciphertext,
		APIKeyNonce:      nonce,
		EndpointID:       req.EndpointID,
		ForceMock:        s.Portainer.ForceMock(),
	}
	if err := s.Store.SavePortainerConfig(r.Context(), cfg); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Portainer.SetReal(client)
	s.Logger.Info("Portainer connection configured", "base_url", req.BaseURL, "endpoint_id", req.EndpointID)
	s.respond(w, http.StatusOK, api.APIResponse{
		Message: "Portainer connection saved",
		Data:    map[string]any{"mode": s.Portainer.EffectiveMode()},
	})
}

// GetPortainerMode handles GET /api/settings/portainer/mode
func (s *Server) GetPortainerMode(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, api.APIResponse{Data: map[string]any{
		"mode":       s.Portainer.EffectiveMode(),
		"force_mock": s.Portainer.ForceMock(),
	}})
}

// TogglePortainerMode handles POST /api/settings/portainer/mode
func (s *Server) TogglePortainerMode(w http.ResponseWriter, r *http.Request) {
	mode := s.Portainer.SetForceMock(!s.Portainer.ForceMock())

	if cfg, err := s.Store.GetPortainerConfig(r.Context()); err == nil {
		cfg.ForceMock = s.Portainer.ForceMock()
		if err := s.Store.SavePortainerConfig(r.Context(), cfg); err != nil {
			s.Logger.Warn("Failed to persist portainer mode", "error", err)
		}
	}

	s.respond(w, http.StatusOK, api.APIResponse{
		Message: "Portainer mode toggled",
		Data: map[string]any{
			"mode":       mode,
			"force_mock": s.Portainer.ForceMock(),
		},
	})
}

// ListMockStacks handles GET /api/mock/stacks
func (s *Server) ListMockStacks(w http.ResponseWriter, r *http.Request) {
	stacks, err := s.Portainer.Mock().ListStacks(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Data: stacks})
}

// ResetMock handles POST /api/mock/reset
func (s *Server) ResetMock(w http.ResponseWriter, r *http.Request) {
	s.Portainer.Mock().Reset()
	s.respond(w, http.StatusOK, api.APIResponse{Message: "Mock backend reset"})
}

func (s *Server) respondSourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrSourceNotFound) {
		s.respondError(w, http.StatusNotFound, "repository not found")
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) syncInBackground(id, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := s.Orchestrator.SyncOne(ctx, id); err != nil && !errors.Is(err, orchestrator.ErrAlreadySyncing) {
		s.Logger.Error("Initial sync failed", "source", name, "error", err)
	}
}
