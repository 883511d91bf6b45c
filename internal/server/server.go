package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/config"
	"github.com/appbridge/appbridge/internal/credentials"
	"github.com/appbridge/appbridge/internal/orchestrator"
	"github.com/appbridge/appbridge/internal/portainer"
	"github.com/appbridge/appbridge/internal/store"
)

// Server wires the HTTP surface to the catalog, the source store and
// the deployment backend.
type Server struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Portainer    *portainer.Selector
	Credentials  *credentials.Service
	Config       *config.Config
	Logger       *slog.Logger
}

// Router assembles the chi router for all endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)
	r.Get("/status", s.Status)

	r.Route("/apps", func(r chi.Router) {
		r.Get("/", s.ListApps)
		r.Get("/search", s.SearchApps)
		r.Get("/{id}", s.GetApp)
		r.Get("/{id}/schema", s.GetAppSchema)
		r.Post("/{id}/deploy", s.DeployApp)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.ListCategories)

		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", s.ListSources)
			r.Post("/", s.CreateSource)
			r.Get("/{id}", s.GetSource)
			r.Put("/{id}", s.UpdateSource)
			r.Delete("/{id}", s.DeleteSource)
			r.Post("/{id}/sync", s.SyncSource)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/cache/status", s.CacheStatus)
			r.Post("/cache/clear", s.ClearCache)
			r.Get("/portainer", s.GetPortainerSettings)
			r.Post("/portainer", s.SetPortainerSettings)
			r.Get("/portainer/mode", s.GetPortainerMode)
			r.Post("/portainer/mode", s.TogglePortainerMode)
		})

		r.Route("/mock", func(r chi.Router) {
			r.Get("/stacks", s.ListMockStacks)
			r.Post("/reset", s.ResetMock)
		})
	})

	return r
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, api.APIResponse{Message: message})
}
