package backup

import (
	"context"
	"fmt"
	"time"

	"crm-backup-service/internal/logging"
	"crm-backup-service/internal/models"
)

// SettingsStore manages per-owner backup settings, including the cloud link
// lifecycle.
type SettingsStore struct {
	records RecordStore
	cloud   CloudClient
	config  *Config
	logger  *logging.Logger
	now     func() time.Time
}

// NewSettingsStore creates a settings store.
func NewSettingsStore(records RecordStore, cloud CloudClient, config *Config, logger *logging.Logger) *SettingsStore {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SettingsStore{
		records: records,
		cloud:   cloud,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the owner's settings, creating defaults on first access.
// Repeated calls with no intervening Save return identical configuration.
func (ss *SettingsStore) Get(ctx context.Context, ownerID int64) (*models.OwnerSettings, error) {
	if ownerID <= 0 {
		return nil, NewValidationError("owner id is required", nil)
	}
	settings, err := ss.records.GetSettings(ctx, ownerID)
	if err != nil {
		return nil, NewStorageError("failed to load backup settings", err)
	}
	if settings != nil {
		return settings, nil
	}

	settings = ss.defaultSettings(ownerID)
	if err := ss.records.SaveSettings(ctx, settings); err != nil {
		return nil, NewStorageError("failed to persist default backup settings", err)
	}
	ss.logger.Debugf("Created default backup settings for owner %d", ownerID)
	return settings, nil
}

// Save replaces the owner's mutable settings (data types, frequency, backup
// hour) and refreshes UpdatedAt. Cloud link state is managed exclusively by
// LinkCloud/UnlinkCloud and is carried over from the stored record.
func (ss *SettingsStore) Save(ctx context.Context, updated *models.OwnerSettings) (*models.OwnerSettings, error) {
	if updated == nil {
		return nil, NewValidationError("settings are required", nil)
	}

	current, err := ss.Get(ctx, updated.OwnerID)
	if err != nil {
		return nil, err
	}

	current.DataTypes = updated.DataTypes
	current.Frequency = updated.Frequency
	current.BackupHour = updated.BackupHour
	current.UpdatedAt = ss.now()

	if err := current.Validate(); err != nil {
		return nil, NewValidationError("invalid backup settings", err)
	}
	if err := ss.records.SaveSettings(ctx, current); err != nil {
		return nil, NewStorageError("failed to save backup settings", err)
	}
	return current, nil
}

// AuthURL returns the consent URL that starts the cloud link flow.
func (ss *SettingsStore) AuthURL(state string) string {
	return ss.cloud.AuthURL(state)
}

// LinkCloud completes the cloud link flow: it exchanges the authorization
// code for a token pair, resolves the account email (best-effort), ensures
// the upload folder exists, and persists everything atomically with the link
// active. A failure anywhere leaves the owner unlinked; no partial link state
// is ever persisted.
func (ss *SettingsStore) LinkCloud(ctx context.Context, ownerID int64, authCode string) error {
	if authCode == "" {
		return NewValidationError("authorization code is required", nil)
	}

	settings, err := ss.Get(ctx, ownerID)
	if err != nil {
		return err
	}

	creds, err := ss.cloud.Exchange(ctx, authCode)
	if err != nil {
		return err
	}

	session, err := ss.cloud.Session(ctx, creds)
	if err != nil {
		return err
	}

	email, err := session.AccountEmail(ctx)
	if err != nil {
		// Display email is informational only; failing to resolve it must
		// not fail the link.
		ss.logger.Warnf("Could not resolve cloud account email for owner %d: %v", ownerID, err)
		email = ""
	}

	folderID, err := session.EnsureFolder(ctx, ss.config.Cloud.FolderName)
	if err != nil {
		return err
	}

	settings.CloudLinked = true
	settings.CloudCredentials = session.Credentials()
	settings.CloudFolderID = folderID
	settings.CloudAccountEmail = email
	settings.UpdatedAt = ss.now()

	if err := ss.records.SaveSettings(ctx, settings); err != nil {
		return NewStorageError("failed to persist cloud link", err)
	}

	ss.logger.Infof("Cloud storage linked for owner %d (folder %s)", ownerID, folderID)
	return nil
}

// UnlinkCloud clears the owner's cloud credentials and folder binding.
func (ss *SettingsStore) UnlinkCloud(ctx context.Context, ownerID int64) error {
	settings, err := ss.Get(ctx, ownerID)
	if err != nil {
		return err
	}

	settings.CloudLinked = false
	settings.CloudCredentials = nil
	settings.CloudFolderID = ""
	settings.CloudAccountEmail = ""
	settings.UpdatedAt = ss.now()

	if err := ss.records.SaveSettings(ctx, settings); err != nil {
		return NewStorageError("failed to persist cloud unlink", err)
	}

	ss.logger.Infof("Cloud storage unlinked for owner %d", ownerID)
	return nil
}

func (ss *SettingsStore) defaultSettings(ownerID int64) *models.OwnerSettings {
	now := ss.now()
	return &models.OwnerSettings{
		OwnerID:    ownerID,
		DataTypes:  models.AllEntityTypes(),
		Frequency:  models.FrequencyWeekly,
		BackupHour: DefaultBackupHour,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// FormatBackupHour renders a backup hour as HH:MM for display.
func FormatBackupHour(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseBackupHour parses an HH:MM string into minutes since midnight.
func ParseBackupHour(s string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, NewValidationError(fmt.Sprintf("invalid backup hour %q, expected HH:MM", s), err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, NewValidationError(fmt.Sprintf("backup hour %q out of range", s), nil)
	}
	return hour*60 + minute, nil
}
