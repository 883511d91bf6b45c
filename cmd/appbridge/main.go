package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/catalog"
	"github.com/appbridge/appbridge/internal/config"
	"github.com/appbridge/appbridge/internal/credentials"
	"github.com/appbridge/appbridge/internal/fetcher"
	"github.com/appbridge/appbridge/internal/manifest"
	"github.com/appbridge/appbridge/internal/orchestrator"
	"github.com/appbridge/appbridge/internal/portainer"
	"github.com/appbridge/appbridge/internal/repoauth"
	"github.com/appbridge/appbridge/internal/server"
	"github.com/appbridge/appbridge/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	var dbStore store.Store
	if cfg.DBType == "postgres" {
		dbStore, err = store.NewPostgresStore(context.Background(), cfg.DBConnectionString)
		if err != nil {
			logger.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using PostgreSQL store")
	} else {
		dbPath := filepath.Join(cfg.DataDir, "appbridge.db")
		dbStore, err = store.NewSQLiteStore(dbPath)
		if err != nil {
			logger.Error("Failed to initialize sqlite store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite store", "path", dbPath)
	}
	defer dbStore.Close()

	credentialService, err := credentials.NewServiceFromEnv(filepath.Join(cfg.DataDir, "appbridge-encryption.key"))
	if err != nil {
		logger.Error("Failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}
	logger.Info("Credential encryption is enabled", "source", credentialService.KeySource())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedSources(ctx, cfg, dbStore, logger); err != nil {
		logger.Error("Failed to seed repositories", "error", err)
		os.Exit(1)
	}

	deployKeyLoader := func(sourceID string) ([]byte, error) {
		credential, err := dbStore.GetSourceCredential(context.Background(), sourceID)
		if err != nil {
			return nil, err
		}
		return credentialService.Open(credential.DeployKeyCiphertext, credential.DeployKeyNonce)
	}
	gitFetcher, err := fetcher.New(cfg.CacheDir, cfg.FetchTimeout, deployKeyLoader, logger)
	if err != nil {
		logger.Error("Failed to initialize repository cache", "error", err)
		os.Exit(1)
	}

	builder := catalog.NewBuilder(manifest.Parse, manifest.HasManifest)
	orch := orchestrator.New(dbStore, gitFetcher, builder, logger, orchestrator.Config{
		Interval:    cfg.SyncInterval,
		Concurrency: cfg.SyncConcurrency,
	})

	selector := buildPortainerSelector(ctx, cfg, dbStore, credentialService, logger)

	go orch.Run(ctx)
	go func() {
		if err := orch.SyncAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Initial sync failed", "error", err)
		}
	}()

	srv := &server.Server{
		Store:        dbStore,
		Orchestrator: orch,
		Portainer:    selector,
		Credentials:  credentialService,
		Config:       cfg,
		Logger:       logger,
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("Starting server", "addr", cfg.ListenAddr, "portainer_mode", selector.EffectiveMode())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// seedSources creates or updates sources from the REPOSITORIES env
// list. Existing sources keep their ID; url, branch and priority follow
// the seed so container restarts pick up configuration changes.
func seedSources(ctx context.Context, cfg *config.Config, dbStore store.Store, logger *slog.Logger) error {
	seeds, err := cfg.SeedSources()
	if err != nil {
		return err
	}

	for _, seed := range seeds {
		existing, err := dbStore.GetSourceByName(ctx, seed.Name)
		if errors.Is(err, store.ErrSourceNotFound) {
			source := &api.Source{
				ID:         uuid.New().String(),
				Name:       seed.Name,
				URL:        seed.URL,
				Branch:     seed.Branch,
				AuthMethod: repoauth.MethodPublic,
				Enabled:    true,
				Priority:   seed.Priority,
			}
			if err := dbStore.CreateSource(ctx, source); err != nil {
				return err
			}
			logger.Info("Seeded repository", "name", seed.Name, "url", seed.URL)
			continue
		}
		if err != nil {
			return err
		}

		if existing.URL == seed.URL && existing.Branch == seed.Branch && existing.Priority == seed.Priority {
			continue
		}
		existing.URL = seed.URL
		existing.Branch = seed.Branch
		existing.Priority = seed.Priority
		if err := dbStore.UpdateSource(ctx, existing); err != nil {
			return err
		}
		logger.Info("Updated seeded repository", "name", seed.Name, "url", seed.URL)
	}
	return nil
}

// buildPortainerSelector assembles the deployment backend from stored
// settings, falling back to environment configuration.
func buildPortainerSelector(ctx context.Context, cfg *config.Config, dbStore store.Store, credentialService *credentials.Service, logger *slog.Logger) *portainer.Selector {
	var real portainer.Client
	forceMock := false

	stored, err := dbStore.GetPortainerConfig(ctx)
	switch {
	case err == nil:
		forceMock = stored.ForceMock
		if stored.BaseURL != "" && len(stored.APIKeyCiphertext) > 0 {
			apiKey, openErr := credentialService.Open(stored.APIKeyCiphertext, stored.APIKeyNonce)
			if openErr != nil {
				logger.Warn("Failed to decrypt stored Portainer API key; falling back to mock", "error", openErr)
			} else {
				real = portainer.NewHTTPClient(stored.BaseURL, string(apiKey), stored.EndpointID, cfg.PortainerVerifySSL)
			}
		}
	case errors.Is(err, store.ErrConfigNotFound):
		if cfg.PortainerBaseURL != "" && cfg.PortainerAPIKey != "" {
			real = portainer.NewHTTPClient(cfg.PortainerBaseURL, cfg.PortainerAPIKey, cfg.PortainerEndpointID, cfg.PortainerVerifySSL)
		}
	default:
		logger.Warn("Failed to load Portainer settings; falling back to mock", "error", err)
	}

	selector := portainer.NewSelector(cfg.PortainerMode, real, forceMock)
	logger.Info("Deployment backend selected", "mode", selector.EffectiveMode())
	return selector
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
