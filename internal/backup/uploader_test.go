package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backup-service/internal/models"
)

func writeArtifactPair(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	pdf := filepath.Join(dir, "deals_2026_03_01_02_00_00.pdf")
	csv := filepath.Join(dir, "deals_2026_03_01_02_00_00.csv")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(csv, []byte("name\nAcme\n"), 0o644))
	return pdf, csv
}

func linkedRecordStore(ownerID int64) *fakeRecordStore {
	records := newFakeRecordStore()
	records.settings[ownerID] = &models.OwnerSettings{
		OwnerID:     ownerID,
		DataTypes:   models.AllEntityTypes(),
		Frequency:   models.FrequencyWeekly,
		BackupHour:  DefaultBackupHour,
		CloudLinked: true,
		CloudCredentials: &models.CloudCredentials{
			AccessToken: "token", RefreshToken: "refresh", Version: 1,
		},
		CloudFolderID: "folder-1",
	}
	return records
}

func uploadTestConfig(t *testing.T) *Config {
	config := testConfig(t.TempDir())
	config.UploadBackoff = time.Millisecond
	config.UploadWorkers = 1
	return config
}

func runUploadTask(t *testing.T, u *Uploader, task UploadTask) UploadEvent {
	t.Helper()
	events := make(chan UploadEvent, 1)
	u.SetEventHandler(func(e UploadEvent) { events <- e })
	u.Start()
	defer u.Close()

	u.Enqueue(task)
	u.Wait()

	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no upload event received")
		return UploadEvent{}
	}
}

func TestUploadSucceedsFirstAttempt(t *testing.T) {
	pdf, csv := writeArtifactPair(t)
	records := linkedRecordStore(10)
	cloud := newFakeCloudClient()
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{BackupID: "b1", OwnerID: 10, PDFPath: pdf, CSVPath: csv})

	assert.NoError(t, event.Err)
	assert.Equal(t, 1, event.Attempts)
	assert.Len(t, cloud.session.uploads, 2)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	pdf, csv := writeArtifactPair(t)
	records := linkedRecordStore(10)
	cloud := newFakeCloudClient()
	// First two attempts die on the PDF upload with a transient failure.
	cloud.session.uploadErrs = []error{
		NewNetworkError("connection reset", nil),
		NewNetworkError("connection reset", nil),
	}
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{BackupID: "b1", OwnerID: 10, PDFPath: pdf, CSVPath: csv})

	assert.NoError(t, event.Err)
	assert.Equal(t, 3, event.Attempts)
	assert.Len(t, cloud.session.uploads, 2)
}

func TestUploadGivesUpAfterAttemptLimit(t *testing.T) {
	pdf, csv := writeArtifactPair(t)
	records := linkedRecordStore(10)
	cloud := newFakeCloudClient()
	cloud.session.uploadErrs = []error{
		NewNetworkError("connection reset", nil),
		NewNetworkError("connection reset", nil),
		NewNetworkError("connection reset", nil),
	}
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{BackupID: "b1", OwnerID: 10, PDFPath: pdf, CSVPath: csv})

	require.Error(t, event.Err)
	assert.Equal(t, 3, event.Attempts)
	assert.True(t, IsRetryable(event.Err))
}

func TestUploadDoesNotRetryPermanentFailures(t *testing.T) {
	pdf, csv := writeArtifactPair(t)
	records := linkedRecordStore(10)
	cloud := newFakeCloudClient()
	cloud.session.uploadErrs = []error{
		NewCloudError("storage quota exceeded", nil),
	}
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{BackupID: "b1", OwnerID: 10, PDFPath: pdf, CSVPath: csv})

	require.Error(t, event.Err)
	assert.Equal(t, 1, event.Attempts)
	assert.True(t, IsPermanent(event.Err))
}

func TestUploadFailsWithoutCloudLink(t *testing.T) {
	pdf, csv := writeArtifactPair(t)
	records := newFakeRecordStore() // owner has no settings at all
	cloud := newFakeCloudClient()
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{BackupID: "b1", OwnerID: 99, PDFPath: pdf, CSVPath: csv})

	require.Error(t, event.Err)
	assert.Equal(t, 1, event.Attempts)

	var perr *PipelineError
	require.ErrorAs(t, event.Err, &perr)
	assert.Equal(t, ErrorTypeConfiguration, perr.Type)
}

func TestUploadMissingArtifactIsNotRetried(t *testing.T) {
	records := linkedRecordStore(10)
	cloud := newFakeCloudClient()
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{
		BackupID: "b1",
		OwnerID:  10,
		PDFPath:  "/nonexistent/file.pdf",
		CSVPath:  "/nonexistent/file.csv",
	})

	require.Error(t, event.Err)
	assert.Equal(t, 1, event.Attempts)
	assert.False(t, IsRetryable(event.Err))
}

func TestUploadResolvesFolderWhenMissing(t *testing.T) {
	pdf, csv := writeArtifactPair(t)
	records := linkedRecordStore(10)

	// Simulate a link established before the folder id was recorded.
	settings := records.settings[10]
	settings.CloudFolderID = ""

	cloud := newFakeCloudClient()
	u := NewUploader(cloud, records, uploadTestConfig(t), nil)

	event := runUploadTask(t, u, UploadTask{BackupID: "b1", OwnerID: 10, PDFPath: pdf, CSVPath: csv})
	require.NoError(t, event.Err)

	assert.Equal(t, 1, cloud.session.folderCalls)

	// The resolved folder id is persisted for the next run.
	stored, err := records.GetSettings(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "folder-1", stored.CloudFolderID)
}
