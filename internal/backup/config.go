package backup

import (
	"time"
)

// Default values applied by SetDefaults.
const (
	DefaultRetentionWindow  = 90 * 24 * time.Hour
	DefaultRestoreBatchSize = 50
	DefaultRestoreTimeout   = 10 * time.Minute
	DefaultUploadAttempts   = 3
	DefaultUploadBackoff    = 5 * time.Second
	DefaultUploadWorkers    = 2
	DefaultHourTolerance    = 5 * time.Minute
	DefaultBackupHour       = 2 * 60 // 02:00
	DefaultCloudFolderName  = "CRM Backups"
)

// CloudConfig holds the OAuth2 application credentials for the cloud storage
// provider. The per-owner token pair lives in OwnerSettings, not here.
type CloudConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	FolderName   string `mapstructure:"folder_name"`
}

// Config contains the backup pipeline system configuration.
type Config struct {
	// ArtifactRoot is the directory under which per-owner artifact
	// directories are created.
	ArtifactRoot string `mapstructure:"artifact_root"`

	// RetentionWindow is the fixed duration after which a backup becomes
	// eligible for purge.
	RetentionWindow time.Duration `mapstructure:"retention_window"`

	// RestoreBatchSize bounds how many rows are buffered before a flush
	// during restore.
	RestoreBatchSize int `mapstructure:"restore_batch_size"`

	// RestoreTimeout bounds the dedicated restore transaction.
	RestoreTimeout time.Duration `mapstructure:"restore_timeout"`

	// UploadAttempts is the attempt limit per upload task.
	UploadAttempts int `mapstructure:"upload_attempts"`

	// UploadBackoff is the base retry delay; attempt n waits n times this.
	UploadBackoff time.Duration `mapstructure:"upload_backoff"`

	// UploadWorkers is the size of the upload worker pool.
	UploadWorkers int `mapstructure:"upload_workers"`

	// HourTolerance is the window around an owner's backup hour within
	// which a cron trigger fires the run.
	HourTolerance time.Duration `mapstructure:"hour_tolerance"`

	Cloud CloudConfig `mapstructure:"cloud"`
}

// SetDefaults fills in zero-valued fields with default configuration.
func (c *Config) SetDefaults() {
	if c.RetentionWindow == 0 {
		c.RetentionWindow = DefaultRetentionWindow
	}
	if c.RestoreBatchSize == 0 {
		c.RestoreBatchSize = DefaultRestoreBatchSize
	}
	if c.RestoreTimeout == 0 {
		c.RestoreTimeout = DefaultRestoreTimeout
	}
	if c.UploadAttempts == 0 {
		c.UploadAttempts = DefaultUploadAttempts
	}
	if c.UploadBackoff == 0 {
		c.UploadBackoff = DefaultUploadBackoff
	}
	if c.UploadWorkers == 0 {
		c.UploadWorkers = DefaultUploadWorkers
	}
	if c.HourTolerance == 0 {
		c.HourTolerance = DefaultHourTolerance
	}
	if c.Cloud.FolderName == "" {
		c.Cloud.FolderName = DefaultCloudFolderName
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ArtifactRoot == "" {
		return NewConfigurationError("artifact root directory is required", nil)
	}
	if c.RetentionWindow <= 0 {
		return NewConfigurationError("retention window must be positive", nil)
	}
	if c.RestoreBatchSize <= 0 {
		return NewConfigurationError("restore batch size must be positive", nil)
	}
	if c.RestoreTimeout <= 0 {
		return NewConfigurationError("restore timeout must be positive", nil)
	}
	if c.UploadAttempts <= 0 {
		return NewConfigurationError("upload attempt limit must be positive", nil)
	}
	if c.UploadWorkers <= 0 {
		return NewConfigurationError("upload worker count must be positive", nil)
	}
	if c.HourTolerance < 0 {
		return NewConfigurationError("hour tolerance cannot be negative", nil)
	}
	return nil
}
