package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"crm-backup-service/internal/models"
)

const settingsColumns = `owner_id, data_types, frequency, backup_hour,
	cloud_linked, cloud_access_token, cloud_refresh_token, cloud_token_expiry,
	cloud_token_version, cloud_folder_id, cloud_account_email,
	created_at, updated_at`

// GetSettings returns the owner's settings, or (nil, nil) when the owner has
// none yet.
func (s *Store) GetSettings(ctx context.Context, ownerID int64) (*models.OwnerSettings, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+settingsColumns+" FROM backup_settings WHERE owner_id = ?", ownerID)

	settings, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup settings: %w", err)
	}
	return settings, nil
}

// SaveSettings inserts or fully replaces an owner's settings row.
func (s *Store) SaveSettings(ctx context.Context, settings *models.OwnerSettings) error {
	var (
		accessToken  sql.NullString
		refreshToken sql.NullString
		tokenExpiry  sql.NullTime
		tokenVersion int
	)
	if creds := settings.CloudCredentials; creds != nil {
		accessToken = sql.NullString{String: creds.AccessToken, Valid: true}
		refreshToken = sql.NullString{String: creds.RefreshToken, Valid: true}
		tokenExpiry = sql.NullTime{Time: creds.Expiry, Valid: true}
		tokenVersion = creds.Version
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backup_settings (`+settingsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data_types = VALUES(data_types),
			frequency = VALUES(frequency),
			backup_hour = VALUES(backup_hour),
			cloud_linked = VALUES(cloud_linked),
			cloud_access_token = VALUES(cloud_access_token),
			cloud_refresh_token = VALUES(cloud_refresh_token),
			cloud_token_expiry = VALUES(cloud_token_expiry),
			cloud_token_version = VALUES(cloud_token_version),
			cloud_folder_id = VALUES(cloud_folder_id),
			cloud_account_email = VALUES(cloud_account_email),
			updated_at = VALUES(updated_at)`,
		settings.OwnerID,
		joinEntityTypes(settings.DataTypes),
		string(settings.Frequency),
		settings.BackupHour,
		settings.CloudLinked,
		accessToken,
		refreshToken,
		tokenExpiry,
		tokenVersion,
		settings.CloudFolderID,
		settings.CloudAccountEmail,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup settings: %w", err)
	}
	return nil
}

// ListSettings returns the settings of every owner.
func (s *Store) ListSettings(ctx context.Context) ([]*models.OwnerSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+settingsColumns+" FROM backup_settings ORDER BY owner_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list backup settings: %w", err)
	}
	defer rows.Close()

	var all []*models.OwnerSettings
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup settings: %w", err)
		}
		all = append(all, settings)
	}
	return all, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSettings(row rowScanner) (*models.OwnerSettings, error) {
	var (
		settings     models.OwnerSettings
		dataTypes    string
		frequency    string
		accessToken  sql.NullString
		refreshToken sql.NullString
		tokenExpiry  sql.NullTime
		tokenVersion int
	)
	err := row.Scan(
		&settings.OwnerID,
		&dataTypes,
		&frequency,
		&settings.BackupHour,
		&settings.CloudLinked,
		&accessToken,
		&refreshToken,
		&tokenExpiry,
		&tokenVersion,
		&settings.CloudFolderID,
		&settings.CloudAccountEmail,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	settings.DataTypes, err = splitEntityTypes(dataTypes)
	if err != nil {
		return nil, err
	}
	settings.Frequency = models.Frequency(frequency)

	if settings.CloudLinked && accessToken.Valid {
		settings.CloudCredentials = &models.CloudCredentials{
			AccessToken:  accessToken.String,
			RefreshToken: refreshToken.String,
			Expiry:       tokenExpiry.Time,
			Version:      tokenVersion,
		}
	}
	return &settings, nil
}

const backupColumns = `id, owner_id, entity_type, created_at, expires_at,
	frequency, status, artifact_size, pdf_path, csv_path`

// InsertBackup persists a new snapshot record.
func (s *Store) InsertBackup(ctx context.Context, b *models.Backup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backups (`+backupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, string(b.EntityType), b.CreatedAt, b.ExpiresAt,
		string(b.Frequency), string(b.Status), b.ArtifactSize, b.PDFPath, b.CSVPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backup record: %w", err)
	}
	return nil
}

// GetBackup returns the backup record, or (nil, nil) when absent.
func (s *Store) GetBackup(ctx context.Context, id string) (*models.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+backupColumns+" FROM backups WHERE id = ?", id)

	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup record: %w", err)
	}
	return b, nil
}

// ListBackups returns the owner's backup records, newest first.
func (s *Store) ListBackups(ctx context.Context, ownerID int64) ([]*models.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+backupColumns+" FROM backups WHERE owner_id = ? ORDER BY created_at DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup records: %w", err)
	}
	defer rows.Close()
	return collectBackups(rows)
}

// DeleteBackup removes a backup record.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM backups WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

// ListExpired returns backups whose retention window elapsed at or before now.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*models.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+backupColumns+" FROM backups WHERE expires_at <= ? ORDER BY expires_at",
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired backup records: %w", err)
	}
	defer rows.Close()
	return collectBackups(rows)
}

func collectBackups(rows *sql.Rows) ([]*models.Backup, error) {
	var all []*models.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		all = append(all, b)
	}
	return all, rows.Err()
}

func scanBackup(row rowScanner) (*models.Backup, error) {
	var (
		b          models.Backup
		entityType string
		frequency  string
		status     string
	)
	err := row.Scan(
		&b.ID, &b.OwnerID, &entityType, &b.CreatedAt, &b.ExpiresAt,
		&frequency, &status, &b.ArtifactSize, &b.PDFPath, &b.CSVPath,
	)
	if err != nil {
		return nil, err
	}
	b.EntityType = models.EntityType(entityType)
	b.Frequency = models.Frequency(frequency)
	b.Status = models.BackupStatus(status)
	return &b, nil
}

// RecordRun appends a scheduler run to the run log.
func (s *Store) RecordRun(ctx context.Context, kind models.RunKind, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO backup_runs (kind, run_at) VALUES (?, ?)", string(kind), at)
	if err != nil {
		return fmt.Errorf("failed to record scheduler run: %w", err)
	}
	return nil
}

// LastRun returns when a run of the given kind last happened, or (nil, nil)
// when it never did.
func (s *Store) LastRun(ctx context.Context, kind models.RunKind) (*time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(run_at) FROM backup_runs WHERE kind = ?", string(kind)).
		Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last scheduler run: %w", err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}

func joinEntityTypes(types []models.EntityType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitEntityTypes(raw string) ([]models.EntityType, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	types := make([]models.EntityType, 0, len(parts))
	for _, p := range parts {
		et, err := models.ParseEntityType(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("corrupt data_types column: %w", err)
		}
		types = append(types, et)
	}
	return types, nil
}
