package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appbridge/appbridge/internal/api"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT 'main',
		auth_method TEXT NOT NULL DEFAULT 'public',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		priority INTEGER NOT NULL DEFAULT 0,
		last_synced TIMESTAMPTZ,
		last_error TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return err
	}

	credentialsQuery := `
	CREATE TABLE IF NOT EXISTS source_credentials (
		source_id TEXT PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
		deploy_key_ciphertext BYTEA NOT NULL,
		deploy_key_nonce BYTEA NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, credentialsQuery); err != nil {
		return err
	}

	configQuery := `
	CREATE TABLE IF NOT EXISTS portainer_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		base_url TEXT NOT NULL DEFAULT '',
		api_key_ciphertext BYTEA,
		api_key_nonce BYTEA,
		endpoint_id INTEGER NOT NULL DEFAULT 1,
		force_mock BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ
	);
	`
	_, err := s.pool.Exec(ctx, configQuery)
	return err
}

func (s *PostgresStore) CreateSource(ctx context.Context, source *api.Source) error {
	query := `
	INSERT INTO sources (id, name, url, branch, auth_method, enabled, priority, last_synced, last_error)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		source.ID,
		source.Name,
		source.URL,
		source.Branch,
		source.AuthMethod,
		source.Enabled,
		source.Priority,
		pgNullTime(source.LastSynced),
		source.LastError,
	)
	return err
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*api.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	return scanPgSource(row)
}

func (s *PostgresStore) GetSourceByName(ctx context.Context, name string) (*api.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = $1`, name)
	return scanPgSource(row)
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]*api.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY priority DESC, name ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*api.Source
	for rows.Next() {
		source, err := scanPgSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *PostgresStore) UpdateSource(ctx context.Context, source *api.Source) error {
	query := `
	UPDATE sources
	SET name = $1, url = $2, branch = $3, auth_method = $4, enabled = $5, priority = $6
	WHERE id = $7
	`
	tag, err := s.pool.Exec(
		ctx,
		query,
		source.Name,
		source.URL,
		source.Branch,
		source.AuthMethod,
		source.Enabled,
		source.Priority,
		source.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSourceSyncState(ctx context.Context, id string, lastSynced time.Time, lastError string) error {
	query := `UPDATE sources SET last_synced = $1, last_error = $2 WHERE id = $3`
	tag, err := s.pool.Exec(ctx, query, pgNullTime(lastSynced), lastError, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertSourceCredential(ctx context.Context, credential *SourceCredential) error {
	query := `
	INSERT INTO source_credentials (source_id, deploy_key_ciphertext, deploy_key_nonce)
	VALUES ($1, $2, $3)
	ON CONFLICT (source_id) DO UPDATE SET
		deploy_key_ciphertext = EXCLUDED.deploy_key_ciphertext,
		deploy_key_nonce = EXCLUDED.deploy_key_nonce
	`
	_, err := s.pool.Exec(ctx, query, credential.SourceID, credential.DeployKeyCiphertext, credential.DeployKeyNonce)
	return err
}

func (s *PostgresStore) GetSourceCredential(ctx context.Context, id string) (*SourceCredential, error) {
	query := `SELECT source_id, deploy_key_ciphertext, deploy_key_nonce FROM source_credentials WHERE source_id = $1`
	row := s.pool.QueryRow(ctx, query, id)

	credential := &SourceCredential{}
	if err := row.Scan(&credential.SourceID, &credential.DeployKeyCiphertext, &credential.DeployKeyNonce); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return credential, nil
}

func (s *PostgresStore) DeleteSourceCredential(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM source_credentials WHERE source_id = $1`, id)
	return err
}

func (s *PostgresStore) GetPortainerConfig(ctx context.Context) (*PortainerConfig, error) {
	query := `SELECT base_url, api_key_ciphertext, api_key_nonce, endpoint_id, force_mock, updated_at FROM portainer_config WHERE id = 1`
	row := s.pool.QueryRow(ctx, query)

	config := &PortainerConfig{}
	var updatedAt sql.NullTime
	err := row.Scan(&config.BaseURL, &config.APIKeyCiphertext, &config.APIKeyNonce, &config.EndpointID, &config.ForceMock, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	if updatedAt.Valid {
		config.UpdatedAt = updatedAt.Time
	}
	return config, nil
}

func (s *PostgresStore) SavePortainerConfig(ctx context.Context, config *PortainerConfig) error {
	query := `
	INSERT INTO portainer_config (id, base_url, api_key_ciphertext, api_key_nonce, endpoint_id, force_mock, updated_at)
	VALUES (1, $1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		base_url = EXCLUDED.base_url,
		api_key_ciphertext = EXCLUDED.api_key_ciphertext,
		api_key_nonce = EXCLUDED.api_key_nonce,
		endpoint_id = EXCLUDED.endpoint_id,
		force_mock = EXCLUDED.force_mock,
		updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		config.BaseURL,
		config.APIKeyCiphertext,
		config.APIKeyNonce,
		config.EndpointID,
		config.ForceMock,
		time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanPgSource(row pgx.Row) (*api.Source, error) {
	var source api.Source
	var lastSynced sql.NullTime
	err := row.Scan(
		&source.ID,
		&source.Name,
		&source.URL,
		&source.Branch,
		&source.AuthMethod,
		&source.Enabled,
		&source.Priority,
		&lastSynced,
		&source.LastError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	if lastSynced.Valid {
		source.LastSynced = lastSynced.Time
	}
	return &source, nil
}

func pgNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
