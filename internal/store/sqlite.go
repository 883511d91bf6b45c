package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/appbridge/appbridge/internal/api"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the SQLite database and creates necessary tables.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT 'main',
		auth_method TEXT NOT NULL DEFAULT 'public',
		enabled INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		last_synced DATETIME,
		last_error TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create sources table: %w", err)
	}

	credentialsQuery := `
	CREATE TABLE IF NOT EXISTS source_credentials (
		source_id TEXT PRIMARY KEY,
		deploy_key_ciphertext BLOB NOT NULL,
		deploy_key_nonce BLOB NOT NULL,
		FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
	);
	`
	if _, err := db.Exec(credentialsQuery); err != nil {
		return nil, fmt.Errorf("failed to create source_credentials table: %w", err)
	}

	configQuery := `
	CREATE TABLE IF NOT EXISTS portainer_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		base_url TEXT NOT NULL DEFAULT '',
		api_key_ciphertext BLOB,
		api_key_nonce BLOB,
		endpoint_id INTEGER NOT NULL DEFAULT 1,
		force_mock INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME
	);
	`
	if _, err := db.Exec(configQuery); err != nil {
		return nil, fmt.Errorf("failed to create portainer_config table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSource(ctx context.Context, source *api.Source) error {
	query := `
	INSERT INTO sources (id, name, url, branch, auth_method, enabled, priority, last_synced, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		source.ID,
		source.Name,
		source.URL,
		source.Branch,
		source.AuthMethod,
		source.Enabled,
		source.Priority,
		nullTime(source.LastSynced),
		source.LastError,
	)
	return err
}

const sourceColumns = `id, name, url, branch, auth_method, enabled, priority, last_synced, last_error`

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*api.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

func (s *SQLiteStore) GetSourceByName(ctx context.Context, name string) (*api.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	return scanSource(row)
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]*api.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY priority DESC, name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*api.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *SQLiteStore) UpdateSource(ctx context.Context, source *api.Source) error {
	query := `
	UPDATE sources
	SET name = ?, url = ?, branch = ?, auth_method = ?, enabled = ?, priority = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(
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
	return requireRow(result)
}

func (s *SQLiteStore) DeleteSource(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_credentials WHERE source_id = ?`, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireRow(result); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpdateSourceSyncState(ctx context.Context, id string, lastSynced time.Time, lastError string) error {
	query := `UPDATE sources SET last_synced = ?, last_error = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, nullTime(lastSynced), lastError, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *SQLiteStore) UpsertSourceCredential(ctx context.Context, credential *SourceCredential) error {
	query := `
	INSERT INTO source_credentials (source_id, deploy_key_ciphertext, deploy_key_nonce)
	VALUES (?, ?, ?)
	ON CONFLICT(source_id) DO UPDATE SET
		deploy_key_ciphertext = excluded.deploy_key_ciphertext,
		deploy_key_nonce = excluded.deploy_key_nonce
	`
	_, err := s.db.ExecContext(ctx, query, credential.SourceID, credential.DeployKeyCiphertext, credential.DeployKeyNonce)
	return err
}

func (s *SQLiteStore) GetSourceCredential(ctx context.Context, id string) (*SourceCredential, error) {
	query := `SELECT source_id, deploy_key_ciphertext, deploy_key_nonce FROM source_credentials WHERE source_id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	credential := &SourceCredential{}
	if err := row.Scan(&credential.SourceID, &credential.DeployKeyCiphertext, &credential.DeployKeyNonce); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return credential, nil
}

func (s *SQLiteStore) DeleteSourceCredential(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_credentials WHERE source_id = ?`, id)
	return err
}

func (s *SQLiteStore) GetPortainerConfig(ctx context.Context) (*PortainerConfig, error) {
	query := `SELECT base_url, api_key_ciphertext, api_key_nonce, endpoint_id, force_mock, updated_at FROM portainer_config WHERE id = 1`
	row := s.db.QueryRowContext(ctx, query)

	config := &PortainerConfig{}
	var updatedAt sql.NullTime
	err := row.Scan(&config.BaseURL, &config.APIKeyCiphertext, &config.APIKeyNonce, &config.EndpointID, &config.ForceMock, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	if updatedAt.Valid {
		config.UpdatedAt = updatedAt.Time
	}
	return config, nil
}

func (s *SQLiteStore) SavePortainerConfig(ctx context.Context, config *PortainerConfig) error {
	query := `
	INSERT INTO portainer_config (id, base_url, api_key_ciphertext, api_key_nonce, endpoint_id, force_mock, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		base_url = excluded.base_url,
		api_key_ciphertext = excluded.api_key_ciphertext,
		api_key_nonce = excluded.api_key_nonce,
		endpoint_id = excluded.endpoint_id,
		force_mock = excluded.force_mock,
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(
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

func (s *SQLiteStore) Close() {
	s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*api.Source, error) {
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
		if err == sql.ErrNoRows {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	if lastSynced.Valid {
		source.LastSynced = lastSynced.Time
	}
	return &source, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
