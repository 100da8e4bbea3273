// Package datastore implements the pipeline's persistence against MySQL:
// backup settings, snapshot records, the scheduler run log, and the business
// tables snapshots are taken of.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Store wraps the MySQL connection pool. It implements both the record store
// and the domain store consumed by the backup pipeline.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool for the given DSN and verifies
// connectivity.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection pool. Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the pipeline's own tables when they do not exist yet.
// Business tables are owned by the CRM and never created here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS backup_settings (
			owner_id BIGINT NOT NULL PRIMARY KEY,
			data_types TEXT NOT NULL,
			frequency VARCHAR(16) NOT NULL,
			backup_hour INT NOT NULL,
			cloud_linked TINYINT(1) NOT NULL DEFAULT 0,
			cloud_access_token TEXT,
			cloud_refresh_token TEXT,
			cloud_token_expiry DATETIME NULL,
			cloud_token_version INT NOT NULL DEFAULT 0,
			cloud_folder_id VARCHAR(128) NOT NULL DEFAULT '',
			cloud_account_email VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backups (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			entity_type VARCHAR(32) NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			frequency VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			artifact_size VARCHAR(32) NOT NULL,
			pdf_path VARCHAR(512) NOT NULL,
			csv_path VARCHAR(512) NOT NULL,
			INDEX idx_backups_owner (owner_id),
			INDEX idx_backups_expires (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS backup_runs (
			kind VARCHAR(32) NOT NULL,
			run_at DATETIME NOT NULL,
			INDEX idx_backup_runs_kind (kind, run_at)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
