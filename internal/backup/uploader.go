package backup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crm-backup-service/internal/logging"
	"crm-backup-service/internal/models"
)

// UploadTask is one backup's pair of artifacts queued for cloud mirroring.
type UploadTask struct {
	BackupID string
	OwnerID  int64
	PDFPath  string
	CSVPath  string

	attempt int
}

// UploadEvent is the audit record of a finished upload task. The triggering
// caller never awaits it; it exists for observability.
type UploadEvent struct {
	BackupID string
	OwnerID  int64
	Attempts int
	Err      error
}

// Uploader mirrors backup artifacts to the owner's cloud folder.
//
// Uploads are fire-and-forget: completion or failure is observable only
// through logs and the event handler, never through the Backup record. Retry
// delays are realized with timer-based re-enqueue so no worker sleeps while
// holding a task, and no data-store transaction is ever held across a delay.
type Uploader struct {
	cloud   CloudClient
	records RecordStore
	config  *Config
	logger  *logging.Logger

	tasks   chan UploadTask
	done    chan struct{}
	pending sync.WaitGroup
	once    sync.Once

	onEvent func(UploadEvent)
}

// NewUploader creates an uploader. Call Start before enqueueing.
func NewUploader(cloud CloudClient, records RecordStore, config *Config, logger *logging.Logger) *Uploader {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Uploader{
		cloud:   cloud,
		records: records,
		config:  config,
		logger:  logger,
		tasks:   make(chan UploadTask, 64),
		done:    make(chan struct{}),
	}
}

// SetEventHandler registers an audit callback for finished tasks. Must be
// called before Start.
func (u *Uploader) SetEventHandler(fn func(UploadEvent)) {
	u.onEvent = fn
}

// Start launches the worker pool.
func (u *Uploader) Start() {
	for i := 0; i < u.config.UploadWorkers; i++ {
		go u.worker()
	}
}

// Enqueue submits a task without blocking the caller.
func (u *Uploader) Enqueue(task UploadTask) {
	u.pending.Add(1)
	select {
	case u.tasks <- task:
	default:
		go func() { u.tasks <- task }()
	}
}

// Wait blocks until every enqueued task has finished, including scheduled
// retries.
func (u *Uploader) Wait() {
	u.pending.Wait()
}

// Close stops the workers. Queued tasks that have not started are abandoned.
func (u *Uploader) Close() {
	u.once.Do(func() { close(u.done) })
}

func (u *Uploader) worker() {
	for {
		select {
		case task := <-u.tasks:
			u.process(context.Background(), task)
		case <-u.done:
			return
		}
	}
}

func (u *Uploader) process(ctx context.Context, task UploadTask) {
	attempt := task.attempt + 1

	err := u.tryUpload(ctx, task)
	u.logger.LogUploadAttempt(task.BackupID, attempt, u.config.UploadAttempts, err)

	if err == nil {
		u.finish(task, attempt, nil)
		return
	}

	if IsRetryable(err) && attempt < u.config.UploadAttempts {
		task.attempt = attempt
		delay := time.Duration(attempt) * u.config.UploadBackoff
		time.AfterFunc(delay, func() {
			select {
			case u.tasks <- task:
			case <-u.done:
				u.finish(task, attempt, err)
			}
		})
		return
	}

	u.logger.LogUploadTerminal(task.BackupID, attempt, err)
	u.finish(task, attempt, err)
}

func (u *Uploader) finish(task UploadTask, attempts int, err error) {
	if u.onEvent != nil {
		u.onEvent(UploadEvent{
			BackupID: task.BackupID,
			OwnerID:  task.OwnerID,
			Attempts: attempts,
			Err:      err,
		})
	}
	u.pending.Done()
}

// tryUpload performs one whole attempt: authenticate, ensure the folder,
// upload PDF then CSV. There is no partial-upload recovery; a failed attempt
// restarts from the PDF, which is safe because filenames are deterministic
// and the provider overwrites in place.
func (u *Uploader) tryUpload(ctx context.Context, task UploadTask) error {
	settings, err := u.records.GetSettings(ctx, task.OwnerID)
	if err != nil {
		return NewStorageError("failed to load settings for upload", err)
	}
	if settings == nil || !settings.CloudLinked || settings.CloudCredentials == nil {
		return NewConfigurationError("owner has no active cloud link", nil)
	}

	session, err := u.cloud.Session(ctx, settings.CloudCredentials)
	if err != nil {
		return err
	}

	folderID := settings.CloudFolderID
	folderResolved := false
	if folderID == "" {
		folderID, err = session.EnsureFolder(ctx, u.config.Cloud.FolderName)
		if err != nil {
			return err
		}
		settings.CloudFolderID = folderID
		folderResolved = true
	}

	if err := u.uploadFile(ctx, session, folderID, task.PDFPath, MimeTypePDF); err != nil {
		return err
	}
	if err := u.uploadFile(ctx, session, folderID, task.CSVPath, MimeTypeCSV); err != nil {
		return err
	}

	u.persistRefreshedState(ctx, settings, session, folderResolved)
	return nil
}

func (u *Uploader) uploadFile(ctx context.Context, session CloudSession, folderID, path, mimeType string) error {
	f, err := os.Open(path)
	if err != nil {
		return NewStorageError("failed to open artifact "+path, err)
	}
	defer f.Close()
	return session.Upload(ctx, folderID, filepath.Base(path), mimeType, f)
}

// persistRefreshedState saves a refreshed token pair (replaced atomically as
// a versioned record) and a newly resolved folder id. Best-effort: the upload
// already succeeded.
func (u *Uploader) persistRefreshedState(ctx context.Context, settings *models.OwnerSettings, session CloudSession, changed bool) {
	refreshed := session.Credentials()
	if refreshed != nil && refreshed.Version != settings.CloudCredentials.Version {
		settings.CloudCredentials = refreshed
		changed = true
	}
	if !changed {
		return
	}
	if err := u.records.SaveSettings(ctx, settings); err != nil {
		u.logger.Warnf("Could not persist refreshed cloud state for owner %d: %v", settings.OwnerID, err)
	}
}
