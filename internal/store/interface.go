package store

import (
	"context"
	"errors"
	"time"

	"github.com/appbridge/appbridge/internal/api"
)

var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrCredentialNotFound = errors.New("source credential not found")
	ErrConfigNotFound     = errors.New("portainer config not found")
)

// Store defines the interface for durable state: the configured
// repository sources and the Portainer connection settings. The
// catalog itself is never persisted; it is rebuilt from the Git cache.
type Store interface {
	CreateSource(ctx context.Context, source *api.Source) error
	GetSource(ctx context.Context, id string) (*api.Source, error)
	GetSourceByName(ctx context.Context, name string) (*api.Source, error)
	// ListSources returns all sources ordered by priority descending,
	// ties broken by name, so callers can rely on merge order.
	ListSources(ctx context.Context) ([]*api.Source, error)
	UpdateSource(ctx context.Context, source *api.Source) error
	DeleteSource(ctx context.Context, id string) error
	// UpdateSourceSyncState mirrors the orchestrator's per-source
	// outcome (timestamp and error fields only).
	UpdateSourceSyncState(ctx context.Context, id string, lastSynced time.Time, lastError string) error

	UpsertSourceCredential(ctx context.Context, credential *SourceCredential) error
	GetSourceCredential(ctx context.Context, id string) (*SourceCredential, error)
	DeleteSourceCredential(ctx context.Context, id string) error

	GetPortainerConfig(ctx context.Context) (*PortainerConfig, error)
	SavePortainerConfig(ctx context.Context, config *PortainerConfig) error

	Close()
}

// SourceCredential stores a source's encrypted deploy key.
type SourceCredential struct {
	SourceID            string
	DeployKeyCiphertext []byte
	DeployKeyNonce      []byte
}

// PortainerConfig stores the deployment backend settings. The API key
// is sealed by the credential cipher before it reaches the store.
type PortainerConfig struct {
	BaseURL          string
	APIKeyCiphertext []byte
	APIKeyNonce      []byte
	EndpointID       int
	ForceMock        bool
	UpdatedAt        time.Time
}
