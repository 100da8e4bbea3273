package backup

import (
	"context"
	"io"
	"time"

	"crm-backup-service/internal/models"
)

// RecordStore persists backup pipeline records: per-owner settings, snapshot
// records and the scheduler run log.
type RecordStore interface {
	// GetSettings returns the settings for an owner, or (nil, nil) when the
	// owner has none yet.
	GetSettings(ctx context.Context, ownerID int64) (*models.OwnerSettings, error)

	// SaveSettings inserts or fully replaces an owner's settings.
	SaveSettings(ctx context.Context, settings *models.OwnerSettings) error

	// ListSettings returns the settings of every owner.
	ListSettings(ctx context.Context) ([]*models.OwnerSettings, error)

	InsertBackup(ctx context.Context, b *models.Backup) error

	// GetBackup returns the backup record, or (nil, nil) when absent.
	GetBackup(ctx context.Context, id string) (*models.Backup, error)

	ListBackups(ctx context.Context, ownerID int64) ([]*models.Backup, error)
	DeleteBackup(ctx context.Context, id string) error

	// ListExpired returns backups whose retention window elapsed at or
	// before now.
	ListExpired(ctx context.Context, now time.Time) ([]*models.Backup, error)

	RecordRun(ctx context.Context, kind models.RunKind, at time.Time) error

	// LastRun returns when a run of the given kind last happened, or
	// (nil, nil) when it never did.
	LastRun(ctx context.Context, kind models.RunKind) (*time.Time, error)
}

// DomainStore exposes the business rows the pipeline snapshots and restores.
// Deals, companies and contacts are owner-scoped; equipment and SIM cards are
// a shared fleet.
type DomainStore interface {
	ListDeals(ctx context.Context, ownerID int64) ([]models.Deal, error)
	ListCompanies(ctx context.Context, ownerID int64) ([]models.Company, error)
	ListContacts(ctx context.Context, ownerID int64) ([]models.Contact, error)
	ListEquipment(ctx context.Context) ([]models.Equipment, error)
	ListSIMCards(ctx context.Context) ([]models.SIMCard, error)

	// FindCompanyIDByName resolves an owner-scoped company reference.
	FindCompanyIDByName(ctx context.Context, ownerID int64, name string) (int64, bool, error)

	// ContactExists reports whether the owner has a contact with that name.
	ContactExists(ctx context.Context, ownerID int64, name string) (bool, error)

	// EquipmentSerials returns the natural keys currently in the fleet.
	EquipmentSerials(ctx context.Context) (map[string]bool, error)

	// SIMICCIDs returns the natural keys currently in the fleet.
	SIMICCIDs(ctx context.Context) (map[string]bool, error)

	// BeginRestore opens the dedicated restore transaction. The caller owns
	// ctx and its timeout.
	BeginRestore(ctx context.Context) (RestoreTx, error)
}

// RestoreTx is the transaction a restore runs in. All batch inserts and
// pre-delete operations happen inside it; Commit makes the restore visible
// as a whole, Rollback discards every batch.
type RestoreTx interface {
	DeleteDealsByOwner(ctx context.Context, ownerID int64) error
	DeleteCompaniesByOwner(ctx context.Context, ownerID int64) error
	DeleteContactsByOwner(ctx context.Context, ownerID int64) error

	InsertDeals(ctx context.Context, rows []models.Deal) error
	InsertCompanies(ctx context.Context, rows []models.Company) error
	InsertContacts(ctx context.Context, rows []models.Contact) error
	InsertEquipment(ctx context.Context, rows []models.Equipment) error
	InsertSIMCards(ctx context.Context, rows []models.SIMCard) error

	Commit() error
	Rollback() error
}

// CloudClient abstracts the OAuth2 cloud storage provider.
type CloudClient interface {
	// AuthURL returns the user consent URL that starts the link flow.
	AuthURL(state string) string

	// Exchange trades an authorization code for a fresh token pair.
	Exchange(ctx context.Context, code string) (*models.CloudCredentials, error)

	// Session builds an authenticated session from a stored token pair.
	Session(ctx context.Context, creds *models.CloudCredentials) (CloudSession, error)
}

// CloudSession is an authenticated connection to the provider. Credentials
// may be refreshed transparently during calls; Credentials returns the
// current pair so the caller can persist a replacement record.
type CloudSession interface {
	AccountEmail(ctx context.Context) (string, error)
	EnsureFolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, folderID, name, mimeType string, data io.Reader) error
	Credentials() *models.CloudCredentials
}

// ArtifactRenderer turns a snapshot's rows into artifact byte streams. Both
// methods are pure with respect to their inputs.
type ArtifactRenderer interface {
	RenderCSV(headers []string, rows [][]string) ([]byte, error)
	RenderPDF(title string, headers []string, rows [][]string) ([]byte, error)
}
