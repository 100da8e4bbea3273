package backup

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"crm-backup-service/internal/models"
)

// In-memory fakes shared by the pipeline tests.

type fakeRecordStore struct {
	mu       sync.Mutex
	settings map[int64]*models.OwnerSettings
	backups  map[string]*models.Backup
	runs     map[models.RunKind][]time.Time

	saveErr   error
	insertErr error
	saveCalls int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		settings: make(map[int64]*models.OwnerSettings),
		backups:  make(map[string]*models.Backup),
		runs:     make(map[models.RunKind][]time.Time),
	}
}

func cloneSettings(s *models.OwnerSettings) *models.OwnerSettings {
	c := *s
	c.DataTypes = append([]models.EntityType(nil), s.DataTypes...)
	if s.CloudCredentials != nil {
		creds := *s.CloudCredentials
		c.CloudCredentials = &creds
	}
	return &c
}

func (f *fakeRecordStore) GetSettings(ctx context.Context, ownerID int64) (*models.OwnerSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[ownerID]
	if !ok {
		return nil, nil
	}
	return cloneSettings(s), nil
}

func (f *fakeRecordStore) SaveSettings(ctx context.Context, s *models.OwnerSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.settings[s.OwnerID] = cloneSettings(s)
	return nil
}

func (f *fakeRecordStore) ListSettings(ctx context.Context) ([]*models.OwnerSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.OwnerSettings
	for _, s := range f.settings {
		all = append(all, cloneSettings(s))
	}
	return all, nil
}

func (f *fakeRecordStore) InsertBackup(ctx context.Context, b *models.Backup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	copied := *b
	f.backups[b.ID] = &copied
	return nil
}

func (f *fakeRecordStore) GetBackup(ctx context.Context, id string) (*models.Backup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.backups[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (f *fakeRecordStore) ListBackups(ctx context.Context, ownerID int64) ([]*models.Backup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.Backup
	for _, b := range f.backups {
		if b.OwnerID == ownerID {
			copied := *b
			all = append(all, &copied)
		}
	}
	return all, nil
}

func (f *fakeRecordStore) DeleteBackup(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.backups, id)
	return nil
}

func (f *fakeRecordStore) ListExpired(ctx context.Context, now time.Time) ([]*models.Backup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []*models.Backup
	for _, b := range f.backups {
		if b.Expired(now) {
			copied := *b
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

func (f *fakeRecordStore) RecordRun(ctx context.Context, kind models.RunKind, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[kind] = append(f.runs[kind], at)
	return nil
}

func (f *fakeRecordStore) LastRun(ctx context.Context, kind models.RunKind) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := f.runs[kind]
	if len(runs) == 0 {
		return nil, nil
	}
	last := runs[len(runs)-1]
	return &last, nil
}

type fakeDomainStore struct {
	deals     []models.Deal
	companies []models.Company
	contacts  []models.Contact
	equipment []models.Equipment
	simCards  []models.SIMCard

	contactNames map[string]bool
	serials      map[string]bool
	iccids       map[string]bool

	tx       *fakeRestoreTx
	beginErr error
}

func newFakeDomainStore() *fakeDomainStore {
	return &fakeDomainStore{
		contactNames: make(map[string]bool),
		serials:      make(map[string]bool),
		iccids:       make(map[string]bool),
		tx:           &fakeRestoreTx{},
	}
}

func (f *fakeDomainStore) ListDeals(ctx context.Context, ownerID int64) ([]models.Deal, error) {
	var out []models.Deal
	for _, d := range f.deals {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDomainStore) ListCompanies(ctx context.Context, ownerID int64) ([]models.Company, error) {
	var out []models.Company
	for _, c := range f.companies {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDomainStore) ListContacts(ctx context.Context, ownerID int64) ([]models.Contact, error) {
	var out []models.Contact
	for _, c := range f.contacts {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDomainStore) ListEquipment(ctx context.Context) ([]models.Equipment, error) {
	return f.equipment, nil
}

func (f *fakeDomainStore) ListSIMCards(ctx context.Context) ([]models.SIMCard, error) {
	return f.simCards, nil
}

func (f *fakeDomainStore) FindCompanyIDByName(ctx context.Context, ownerID int64, name string) (int64, bool, error) {
	for _, c := range f.companies {
		if c.OwnerID == ownerID && c.Name == name {
			return c.ID, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeDomainStore) ContactExists(ctx context.Context, ownerID int64, name string) (bool, error) {
	return f.contactNames[name], nil
}

func (f *fakeDomainStore) EquipmentSerials(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool, len(f.serials))
	for k, v := range f.serials {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDomainStore) SIMICCIDs(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool, len(f.iccids))
	for k, v := range f.iccids {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDomainStore) BeginRestore(ctx context.Context) (RestoreTx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

type fakeRestoreTx struct {
	deletedOwners []string
	deals         []models.Deal
	companies     []models.Company
	contacts      []models.Contact
	equipment     []models.Equipment
	simCards      []models.SIMCard
	batchSizes    []int

	insertErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeRestoreTx) DeleteDealsByOwner(ctx context.Context, ownerID int64) error {
	t.deletedOwners = append(t.deletedOwners, fmt.Sprintf("deals/%d", ownerID))
	return nil
}

func (t *fakeRestoreTx) DeleteCompaniesByOwner(ctx context.Context, ownerID int64) error {
	t.deletedOwners = append(t.deletedOwners, fmt.Sprintf("companies/%d", ownerID))
	return nil
}

func (t *fakeRestoreTx) DeleteContactsByOwner(ctx context.Context, ownerID int64) error {
	t.deletedOwners = append(t.deletedOwners, fmt.Sprintf("contacts/%d", ownerID))
	return nil
}

func (t *fakeRestoreTx) InsertDeals(ctx context.Context, rows []models.Deal) error {
	if t.insertErr != nil {
		return t.insertErr
	}
	t.batchSizes = append(t.batchSizes, len(rows))
	t.deals = append(t.deals, rows...)
	return nil
}

func (t *fakeRestoreTx) InsertCompanies(ctx context.Context, rows []models.Company) error {
	if t.insertErr != nil {
		return t.insertErr
	}
	t.batchSizes = append(t.batchSizes, len(rows))
	t.companies = append(t.companies, rows...)
	return nil
}

func (t *fakeRestoreTx) InsertContacts(ctx context.Context, rows []models.Contact) error {
	if t.insertErr != nil {
		return t.insertErr
	}
	t.batchSizes = append(t.batchSizes, len(rows))
	t.contacts = append(t.contacts, rows...)
	return nil
}

func (t *fakeRestoreTx) InsertEquipment(ctx context.Context, rows []models.Equipment) error {
	if t.insertErr != nil {
		return t.insertErr
	}
	t.batchSizes = append(t.batchSizes, len(rows))
	t.equipment = append(t.equipment, rows...)
	return nil
}

func (t *fakeRestoreTx) InsertSIMCards(ctx context.Context, rows []models.SIMCard) error {
	if t.insertErr != nil {
		return t.insertErr
	}
	t.batchSizes = append(t.batchSizes, len(rows))
	t.simCards = append(t.simCards, rows...)
	return nil
}

func (t *fakeRestoreTx) Commit() error {
	t.committed = true
	return nil
}

func (t *fakeRestoreTx) Rollback() error {
	t.rolledBack = true
	return nil
}

type fakeCloudClient struct {
	session     *fakeCloudSession
	exchangeErr error
	sessionErr  error
}

func newFakeCloudClient() *fakeCloudClient {
	return &fakeCloudClient{session: newFakeCloudSession()}
}

func (f *fakeCloudClient) AuthURL(state string) string {
	return "https://cloud.example.com/auth?state=" + state
}

func (f *fakeCloudClient) Exchange(ctx context.Context, code string) (*models.CloudCredentials, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &models.CloudCredentials{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
		Version:      1,
	}, nil
}

func (f *fakeCloudClient) Session(ctx context.Context, creds *models.CloudCredentials) (CloudSession, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	f.session.creds = creds
	return f.session, nil
}

type fakeCloudSession struct {
	mu        sync.Mutex
	creds     *models.CloudCredentials
	email     string
	emailErr  error
	folderID  string
	folderErr error

	uploadErrs  []error // consumed per Upload call, nil once drained
	uploads     []string
	folderCalls int
}

func newFakeCloudSession() *fakeCloudSession {
	return &fakeCloudSession{
		email:    "owner@example.com",
		folderID: "folder-1",
	}
}

func (s *fakeCloudSession) AccountEmail(ctx context.Context) (string, error) {
	if s.emailErr != nil {
		return "", s.emailErr
	}
	return s.email, nil
}

func (s *fakeCloudSession) EnsureFolder(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folderCalls++
	if s.folderErr != nil {
		return "", s.folderErr
	}
	return s.folderID, nil
}

func (s *fakeCloudSession) Upload(ctx context.Context, folderID, name, mimeType string, data io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.uploadErrs) > 0 {
		err := s.uploadErrs[0]
		s.uploadErrs = s.uploadErrs[1:]
		if err != nil {
			return err
		}
	}
	s.uploads = append(s.uploads, name)
	return nil
}

func (s *fakeCloudSession) Credentials() *models.CloudCredentials {
	return s.creds
}

func testConfig(root string) *Config {
	c := &Config{ArtifactRoot: root}
	c.SetDefaults()
	return c
}

func fixedTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
