package backup

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"crm-backup-service/internal/logging"
	"crm-backup-service/internal/models"
)

// RestoreResult summarizes one restore run.
type RestoreResult struct {
	BackupID          string
	EntityType        models.EntityType
	RowsRestored      int
	RowsSkipped       int
	DuplicatesSkipped int
}

// RestoreEngine reconstructs live rows from a backup's CSV artifact.
//
// Each restore runs inside one dedicated transaction with its own timeout,
// independent of any ambient transaction, so a large restore cannot be
// silently truncated. Restores are all-or-nothing per entity type.
type RestoreEngine struct {
	records RecordStore
	domain  DomainStore
	config  *Config
	logger  *logging.Logger
	locks   keyedLocks
	now     func() time.Time
}

// NewRestoreEngine creates a restore engine.
func NewRestoreEngine(records RecordStore, domain DomainStore, config *Config, logger *logging.Logger) *RestoreEngine {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &RestoreEngine{
		records: records,
		domain:  domain,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Restore rebuilds the rows captured by the given backup.
//
// Preconditions: the record exists, the retention window has not elapsed, and
// the CSV artifact is still on disk. Owner-scoped types are fully replaced;
// fleet types are inserted with duplicate detection by natural key. No two
// restores for the same (owner, entity type) pair run concurrently.
func (re *RestoreEngine) Restore(ctx context.Context, backupID string) (*RestoreResult, error) {
	b, err := re.records.GetBackup(ctx, backupID)
	if err != nil {
		return nil, NewStorageError("failed to load backup record", err)
	}
	if b == nil {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), nil)
	}
	if b.Expired(re.now()) {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s is no longer available", backupID), nil)
	}

	desc, err := descriptorFor(b.EntityType)
	if err != nil {
		return nil, err
	}

	rows, err := re.readArtifact(b.CSVPath, desc)
	if err != nil {
		return nil, err
	}

	lock := re.locks.acquire(fmt.Sprintf("%d/%s", b.OwnerID, b.EntityType))
	defer lock.Unlock()

	txCtx, cancel := context.WithTimeout(ctx, re.config.RestoreTimeout)
	defer cancel()

	tx, err := re.domain.BeginRestore(txCtx)
	if err != nil {
		return nil, NewRestoreError("failed to open restore transaction", err)
	}

	run := &restoreRun{
		tx:        tx,
		domain:    re.domain,
		ownerID:   b.OwnerID,
		batchSize: re.config.RestoreBatchSize,
		logger:    re.logger,
		now:       re.now,
		result: &RestoreResult{
			BackupID:   b.ID,
			EntityType: b.EntityType,
		},
	}

	if err := desc.restore(txCtx, run, rows); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			re.logger.Warnf("Rollback after failed restore of %s also failed: %v", b.ID, rbErr)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, NewRestoreError("failed to commit restore transaction", err)
	}

	re.logger.LogRestoreSummary(b.ID, string(b.EntityType),
		run.result.RowsRestored, run.result.RowsSkipped, run.result.DuplicatesSkipped)

	return run.result, nil
}

// readArtifact parses the CSV artifact into raw rows, validating that the
// header matches the entity type's versioned schema.
func (re *RestoreEngine) readArtifact(path string, desc *entityDescriptor) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError("backup artifact missing", err)
		}
		return nil, NewStorageError("failed to open backup artifact", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // malformed rows are skipped per row, not fatal
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, NewValidationError("failed to parse backup artifact", err)
	}
	if len(records) == 0 {
		return nil, NewValidationError("backup artifact has no header row", nil)
	}
	if !headersMatch(records[0], desc.headers) {
		return nil, NewValidationError(
			fmt.Sprintf("artifact header does not match the %s schema", desc.entityType), nil)
	}
	return records[1:], nil
}

func headersMatch(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != want[i] {
			return false
		}
	}
	return true
}

// restoreRun carries per-run state shared by the type-specific restorers.
type restoreRun struct {
	tx        RestoreTx
	domain    DomainStore
	ownerID   int64
	batchSize int
	logger    *logging.Logger
	now       func() time.Time
	result    *RestoreResult
}

func (r *restoreRun) skipRow(index, columns int) {
	r.result.RowsSkipped++
	r.logger.Warnf("Skipping malformed row %d (%d columns) during restore of %s",
		index+1, columns, r.result.BackupID)
}

func (r *restoreRun) today() time.Time {
	now := r.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// keyedLocks serializes restores per (owner, entity type) pair. The
// pre-delete-then-rebuild step is not safe under concurrent execution.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire returns the mutex for key, already locked.
func (k *keyedLocks) acquire(key string) *sync.Mutex {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l
}

// Type-specific restorers. Each one converts raw CSV rows field by field with
// fallback defaults, buffers them, and flushes in fixed-size batches; the
// last partial batch always flushes.

func restoreDeals(ctx context.Context, run *restoreRun, rows [][]string) error {
	if err := run.tx.DeleteDealsByOwner(ctx, run.ownerID); err != nil {
		return NewRestoreError("failed to clear existing deals", err)
	}

	flush := func(batch []models.Deal) error {
		if len(batch) == 0 {
			return nil
		}
		if err := run.tx.InsertDeals(ctx, batch); err != nil {
			return NewRestoreError("failed to flush deal batch", err)
		}
		run.result.RowsRestored += len(batch)
		return nil
	}

	batch := make([]models.Deal, 0, run.batchSize)
	for i, raw := range rows {
		if len(raw) != len(dealsDescriptor.headers) {
			run.skipRow(i, len(raw))
			continue
		}
		d := models.Deal{
			Name:            raw[0],
			CompanyID:       int64PtrOr(raw[1]),
			Units:           intOr(raw[3], 0),
			ExpectedRevenue: floatOr(raw[4], 0),
			Description:     raw[5],
			OwnerID:         run.ownerID,
			CloseDate:       dateOr(raw[7], run.today()),
			DealNumber:      raw[8],
			Probability:     intOr(raw[9], 0),
			CreatedAt:       timeOr(raw[11], run.now()),
		}
		d.Phase, _ = models.ParseDealPhase(raw[10])

		// Contact references resolve by name within the same owner; an
		// unresolved reference is left null rather than failing the row.
		if name := strings.TrimSpace(raw[2]); name != "" {
			exists, err := run.domain.ContactExists(ctx, run.ownerID, name)
			if err != nil {
				run.logger.Warnf("Contact lookup %q failed during restore: %v", name, err)
			} else if exists {
				d.ContactName = &name
			}
		}

		batch = append(batch, d)
		if len(batch) >= run.batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}

func restoreCompanies(ctx context.Context, run *restoreRun, rows [][]string) error {
	if err := run.tx.DeleteCompaniesByOwner(ctx, run.ownerID); err != nil {
		return NewRestoreError("failed to clear existing companies", err)
	}

	flush := func(batch []models.Company) error {
		if len(batch) == 0 {
			return nil
		}
		if err := run.tx.InsertCompanies(ctx, batch); err != nil {
			return NewRestoreError("failed to flush company batch", err)
		}
		run.result.RowsRestored += len(batch)
		return nil
	}

	batch := make([]models.Company, 0, run.batchSize)
	for i, raw := range rows {
		if len(raw) != len(companiesDescriptor.headers) {
			run.skipRow(i, len(raw))
			continue
		}
		batch = append(batch, models.Company{
			Name:      raw[0],
			TaxID:     raw[1],
			Address:   raw[2],
			City:      raw[3],
			Phone:     raw[4],
			Email:     raw[5],
			OwnerID:   run.ownerID,
			CreatedAt: timeOr(raw[7], run.now()),
		})
		if len(batch) >= run.batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}

func restoreContacts(ctx context.Context, run *restoreRun, rows [][]string) error {
	if err := run.tx.DeleteContactsByOwner(ctx, run.ownerID); err != nil {
		return NewRestoreError("failed to clear existing contacts", err)
	}

	flush := func(batch []models.Contact) error {
		if len(batch) == 0 {
			return nil
		}
		if err := run.tx.InsertContacts(ctx, batch); err != nil {
			return NewRestoreError("failed to flush contact batch", err)
		}
		run.result.RowsRestored += len(batch)
		return nil
	}

	batch := make([]models.Contact, 0, run.batchSize)
	for i, raw := range rows {
		if len(raw) != len(contactsDescriptor.headers) {
			run.skipRow(i, len(raw))
			continue
		}
		batch = append(batch, models.Contact{
			Name:      raw[0],
			Email:     raw[1],
			Phone:     raw[2],
			Position:  raw[3],
			CompanyID: int64PtrOr(raw[4]),
			OwnerID:   run.ownerID,
			CreatedAt: timeOr(raw[6], run.now()),
		})
		if len(batch) >= run.batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}

func restoreEquipment(ctx context.Context, run *restoreRun, rows [][]string) error {
	// The fleet is shared across owners, so there is no pre-delete.
	// Duplicate detection by serial number keeps repeated restores from
	// multiplying fleet rows.
	seen, err := run.domain.EquipmentSerials(ctx)
	if err != nil {
		return NewRestoreError("failed to load existing equipment serials", err)
	}

	flush := func(batch []models.Equipment) error {
		if len(batch) == 0 {
			return nil
		}
		if err := run.tx.InsertEquipment(ctx, batch); err != nil {
			return NewRestoreError("failed to flush equipment batch", err)
		}
		run.result.RowsRestored += len(batch)
		return nil
	}

	batch := make([]models.Equipment, 0, run.batchSize)
	for i, raw := range rows {
		if len(raw) != len(equipmentDescriptor.headers) {
			run.skipRow(i, len(raw))
			continue
		}
		serial := strings.TrimSpace(raw[0])
		if serial != "" && seen[serial] {
			run.result.DuplicatesSkipped++
			continue
		}
		e := models.Equipment{
			SerialNumber: serial,
			Model:        raw[1],
			Manufacturer: raw[2],
			PurchaseDate: dateOr(raw[4], run.today()),
			Notes:        raw[5],
		}
		e.Status, _ = models.ParseEquipmentStatus(raw[3])
		if serial != "" {
			seen[serial] = true
		}
		batch = append(batch, e)
		if len(batch) >= run.batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}

func restoreSIMCards(ctx context.Context, run *restoreRun, rows [][]string) error {
	seen, err := run.domain.SIMICCIDs(ctx)
	if err != nil {
		return NewRestoreError("failed to load existing SIM ICCIDs", err)
	}

	flush := func(batch []models.SIMCard) error {
		if len(batch) == 0 {
			return nil
		}
		if err := run.tx.InsertSIMCards(ctx, batch); err != nil {
			return NewRestoreError("failed to flush SIM card batch", err)
		}
		run.result.RowsRestored += len(batch)
		return nil
	}

	batch := make([]models.SIMCard, 0, run.batchSize)
	for i, raw := range rows {
		if len(raw) != len(simCardsDescriptor.headers) {
			run.skipRow(i, len(raw))
			continue
		}
		iccid := strings.TrimSpace(raw[0])
		if iccid != "" && seen[iccid] {
			run.result.DuplicatesSkipped++
			continue
		}
		s := models.SIMCard{
			ICCID:          iccid,
			MSISDN:         raw[1],
			Carrier:        raw[2],
			ActivationDate: dateOr(raw[4], run.today()),
		}
		s.Status, _ = models.ParseSIMStatus(raw[3])
		if iccid != "" {
			seen[iccid] = true
		}
		batch = append(batch, s)
		if len(batch) >= run.batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}
