package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"crm-backup-service/internal/logging"
	"crm-backup-service/internal/models"
)

// PurgeResult summarizes one retention sweep.
type PurgeResult struct {
	Processed int
	Purged    int
	Warnings  []string
}

// RetentionManager purges backups whose retention window elapsed and handles
// explicit user deletion. Artifact files are always removed before the record
// is deleted: an orphan file is recoverable, a record pointing at nothing is
// not.
type RetentionManager struct {
	records RecordStore
	logger  *logging.Logger
	now     func() time.Time
}

// NewRetentionManager creates a retention manager.
func NewRetentionManager(records RecordStore, logger *logging.Logger) *RetentionManager {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &RetentionManager{
		records: records,
		logger:  logger,
		now:     time.Now,
	}
}

// PurgeExpired deletes every backup whose ExpiresAt has passed. File deletion
// is best-effort: an I/O failure is logged as a warning and never blocks
// record deletion. Running the sweep again with no new expirations is a
// no-op.
func (rm *RetentionManager) PurgeExpired(ctx context.Context) (*PurgeResult, error) {
	started := rm.now()

	expired, err := rm.records.ListExpired(ctx, started)
	if err != nil {
		return nil, NewStorageError("failed to list expired backups", err)
	}

	result := &PurgeResult{Processed: len(expired)}
	for _, b := range expired {
		result.Warnings = append(result.Warnings, rm.removeArtifacts(b)...)
		if err := rm.records.DeleteBackup(ctx, b.ID); err != nil {
			msg := fmt.Sprintf("failed to delete expired backup record %s: %v", b.ID, err)
			result.Warnings = append(result.Warnings, msg)
			rm.logger.Error(msg)
			continue
		}
		result.Purged++
	}

	rm.logger.LogRetentionSweep(result.Processed, result.Purged, result.Warnings, rm.now().Sub(started))
	return result, nil
}

// Delete removes one backup on explicit user request: both artifact files,
// then the record. Artifact I/O failures are surfaced as warnings in the
// returned slice; the record is deleted regardless.
func (rm *RetentionManager) Delete(ctx context.Context, backupID string) ([]string, error) {
	b, err := rm.records.GetBackup(ctx, backupID)
	if err != nil {
		return nil, NewStorageError("failed to load backup record", err)
	}
	if b == nil {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), nil)
	}

	warnings := rm.removeArtifacts(b)
	if err := rm.records.DeleteBackup(ctx, b.ID); err != nil {
		return warnings, NewStorageError("failed to delete backup record", err)
	}

	rm.logger.Infof("Backup %s deleted", b.ID)
	return warnings, nil
}

func (rm *RetentionManager) removeArtifacts(b *models.Backup) []string {
	var warnings []string
	for _, path := range []string{b.PDFPath, b.CSVPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			msg := fmt.Sprintf("could not remove artifact %s of backup %s: %v", path, b.ID, err)
			warnings = append(warnings, msg)
			rm.logger.Warn(msg)
		}
	}
	return warnings
}
