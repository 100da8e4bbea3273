package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"crm-backup-service/internal/logging"
	"crm-backup-service/internal/models"
)

// Artifact filenames embed the entity type and a second-resolution timestamp
// so they are unique within an owner's directory.
const artifactTimestampLayout = "2006_01_02_15_04_05"

// Generator produces backup snapshots: it fetches the owner's rows, renders
// the CSV and PDF artifacts, persists the Backup record and hands the
// artifacts to the cloud uploader when the owner is linked.
//
// Generation is synchronous with respect to the caller; only the cloud upload
// is decoupled.
type Generator struct {
	records  RecordStore
	domain   DomainStore
	renderer ArtifactRenderer
	uploader *Uploader
	config   *Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewGenerator creates a snapshot generator. uploader may be nil when cloud
// mirroring is disabled for the deployment.
func NewGenerator(records RecordStore, domain DomainStore, renderer ArtifactRenderer, uploader *Uploader, config *Config, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Generator{
		records:  records,
		domain:   domain,
		renderer: renderer,
		uploader: uploader,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate snapshots one entity type for one owner. An empty row set is a
// skip: no record, no artifacts, no error, and (nil, nil) is returned. On
// success the returned record is already persisted and, if the owner is
// cloud-linked, an asynchronous upload has been enqueued; the caller never
// waits on or observes the upload.
func (g *Generator) Generate(ctx context.Context, ownerID int64, entityType models.EntityType, frequency models.Frequency) (*models.Backup, error) {
	started := g.now()

	desc, err := descriptorFor(entityType)
	if err != nil {
		return nil, err
	}

	rows, err := desc.fetch(ctx, g.domain, ownerID)
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to fetch %s rows", entityType), err)
	}
	if len(rows) == 0 {
		g.logger.LogBackupSkipped(ownerID, string(entityType))
		return nil, nil
	}

	csvData, err := g.renderer.RenderCSV(desc.headers, rows)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("%s backup for owner %d", entityTypeLabel(entityType), ownerID)
	pdfData, err := g.renderer.RenderPDF(title, desc.headers, rows)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(g.config.ArtifactRoot, fmt.Sprintf("owner_%d", ownerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewStorageError("failed to create artifact directory", err)
	}

	createdAt := g.now()
	base := strings.ToLower(string(entityType)) + "_" + createdAt.Format(artifactTimestampLayout)
	pdfPath := filepath.Join(dir, base+".pdf")
	csvPath := filepath.Join(dir, base+".csv")

	if err := os.WriteFile(pdfPath, pdfData, 0o644); err != nil {
		return nil, NewStorageError("failed to write PDF artifact", err)
	}
	if err := os.WriteFile(csvPath, csvData, 0o644); err != nil {
		g.discardArtifact(pdfPath)
		return nil, NewStorageError("failed to write CSV artifact", err)
	}

	b := &models.Backup{
		ID:           newBackupID(createdAt),
		OwnerID:      ownerID,
		EntityType:   entityType,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(g.config.RetentionWindow),
		Frequency:    frequency,
		Status:       models.BackupStatusCompleted,
		ArtifactSize: humanize.Bytes(uint64(len(pdfData) + len(csvData))),
		PDFPath:      pdfPath,
		CSVPath:      csvPath,
	}

	if err := g.records.InsertBackup(ctx, b); err != nil {
		// A record is only persisted on success; without it the files are
		// unreachable, so clean them up.
		g.discardArtifact(pdfPath)
		g.discardArtifact(csvPath)
		return nil, NewStorageError("failed to persist backup record", err)
	}

	g.logger.LogBackupGenerated(b.ID, ownerID, string(entityType), len(rows), b.ArtifactSize, g.now().Sub(started))

	g.enqueueUpload(ctx, b)
	return b, nil
}

// enqueueUpload hands the artifacts to the uploader when the owner has an
// active cloud link. Fire-and-forget: nothing here is observable by the
// generation caller.
func (g *Generator) enqueueUpload(ctx context.Context, b *models.Backup) {
	if g.uploader == nil {
		return
	}
	settings, err := g.records.GetSettings(ctx, b.OwnerID)
	if err != nil {
		g.logger.Warnf("Could not load settings to mirror backup %s: %v", b.ID, err)
		return
	}
	if settings == nil || !settings.CloudLinked {
		return
	}
	g.uploader.Enqueue(UploadTask{
		BackupID: b.ID,
		OwnerID:  b.OwnerID,
		PDFPath:  b.PDFPath,
		CSVPath:  b.CSVPath,
	})
}

func (g *Generator) discardArtifact(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.logger.Warnf("Could not remove artifact %s: %v", path, err)
	}
}

// newBackupID generates a unique backup ID: a sortable timestamp prefix plus
// a short random suffix.
func newBackupID(t time.Time) string {
	short := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("backup-%s-%s", t.UTC().Format("20060102-150405"), short)
}

func entityTypeLabel(et models.EntityType) string {
	switch et {
	case models.EntityDeals:
		return "Deals"
	case models.EntityCompanies:
		return "Companies"
	case models.EntityContacts:
		return "Contacts"
	case models.EntityEquipment:
		return "Equipment"
	case models.EntitySIMCards:
		return "SIM cards"
	}
	return string(et)
}
