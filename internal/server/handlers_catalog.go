package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/catalog"
	"github.com/appbridge/appbridge/internal/deploy"
	"github.com/appbridge/appbridge/internal/manifest"
	"github.com/appbridge/appbridge/internal/portainer"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	snap := s.Orchestrator.Snapshot()
	s.respond(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"apps_loaded":  snap.Len(),
		"catalog_from": snap.BuiltAt(),
	})
}

// Status handles GET /status
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.Orchestrator.Status())
}

type appListResponse struct {
	Total int              `json:"total"`
	Apps  []api.AppSummary `json:"apps"`
}

// ListApps handles GET /apps
func (s *Server) ListApps(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	apps, total := s.Orchestrator.Snapshot().List(category, limit, offset)
	s.respond(w, http.StatusOK, appListResponse{Total: total, Apps: summaries(apps)})
}

// SearchApps handles GET /apps/search
func (s *Server) SearchApps(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit, offset := pageParams(r)

	apps, total := s.Orchestrator.Snapshot().Search(query, limit, offset)
	s.respond(w, http.StatusOK, appListResponse{Total: total, Apps: summaries(apps)})
}

// GetApp handles GET /apps/{id}
func (s *Server) GetApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app := s.Orchestrator.Snapshot().Get(id)
	if app == nil {
		s.respondError(w, http.StatusNotFound, "app "+id+" not found")
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Data: app})
}

// GetAppSchema handles GET /apps/{id}/schema
func (s *Server) GetAppSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app := s.Orchestrator.Snapshot().Get(id)
	if app == nil {
		s.respondError(w, http.StatusNotFound, "app "+id+" not found")
		return
	}
	s.respond(w, http.StatusOK, api.APIResponse{Data: map[string]any{
		"app_id":     app.ID,
		"parameters": manifest.Schema(app),
		"volumes":    app.Volumes(),
	}})
}

// DeployApp handles POST /apps/{id}/deploy
func (s *Server) DeployApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app := s.Orchestrator.Snapshot().Get(id)
	if app == nil {
		s.respondError(w, http.StatusNotFound, "app "+id+" not found")
		return
	}

	var req api.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload, err := deploy.Translate(app, &req)
	if err != nil {
		var validationErr *deploy.ValidationError
		if errors.As(err, &validationErr) {
			s.respond(w, http.StatusBadRequest, map[string]any{
				"message": validationErr.Detail,
				"reason":  validationErr.Reason,
			})
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stack, err := s.Portainer.Current().DeployStack(r.Context(), payload)
	if err != nil {
		s.Logger.Error("Deployment failed", "app_id", app.ID, "stack", payload.StackName, "error", err)
		var apiErr *portainer.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			s.respondError(w, apiErr.StatusCode, apiErr.Message)
			return
		}
		s.respondError(w, http.StatusBadGateway, "deployment backend error: "+err.Error())
		return
	}

	s.Logger.Info("Stack deployed", "app_id", app.ID, "stack", stack.Name, "mode", s.Portainer.EffectiveMode())
	s.respond(w, http.StatusCreated, api.APIResponse{
		Message: "Stack deployed successfully",
		Data: map[string]any{
			"stack": stack,
			"mode":  s.Portainer.EffectiveMode(),
		},
	})
}

// ListCategories handles GET /api/categories
func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, api.APIResponse{Data: s.Orchestrator.Snapshot().Categories()})
}

func summaries(apps []*catalog.AppDefinition) []api.AppSummary {
	out := make([]api.AppSummary, 0, len(apps))
	for _, app := range apps {
		out = append(out, api.AppSummary{
			ID:          app.ID,
			Title:       app.Title,
			Description: app.Description,
			Icon:        app.Icon,
			Category:    app.Category,
			Source:      app.Provenance.SourceName,
			Tags:        app.Tags,
		})
	}
	return out
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
