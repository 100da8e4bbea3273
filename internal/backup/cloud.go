package backup

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"crm-backup-service/internal/models"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// DriveClient implements CloudClient against Google Drive.
type DriveClient struct {
	oauth *oauth2.Config
}

// NewDriveClient creates a Drive client from the application's OAuth2
// credentials. Per-owner tokens are supplied per call.
func NewDriveClient(cfg CloudConfig) *DriveClient {
	return &DriveClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{drive.DriveFileScope},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the consent URL that starts the link flow. Offline access
// is requested so a refresh token is issued.
func (c *DriveClient) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token pair.
func (c *DriveClient) Exchange(ctx context.Context, code string) (*models.CloudCredentials, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, wrapDriveError("authorization code exchange", err)
	}
	return &models.CloudCredentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Version:      1,
	}, nil
}

// Session builds an authenticated Drive session. The underlying token source
// refreshes expired access tokens transparently; Credentials exposes the
// refreshed pair for atomic persistence.
func (c *DriveClient) Session(ctx context.Context, creds *models.CloudCredentials) (CloudSession, error) {
	if creds == nil {
		return nil, NewConfigurationError("cloud credentials are required", nil)
	}
	ts := c.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	})
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, wrapDriveError("building drive client", err)
	}
	return &driveSession{svc: svc, tokens: ts, creds: creds}, nil
}

type driveSession struct {
	svc    *drive.Service
	tokens oauth2.TokenSource
	creds  *models.CloudCredentials
}

// AccountEmail resolves the linked account's display email.
func (s *driveSession) AccountEmail(ctx context.Context) (string, error) {
	about, err := s.svc.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		return "", wrapDriveError("resolving account email", err)
	}
	return about.User.EmailAddress, nil
}

// EnsureFolder returns the id of the named folder, creating it when absent.
func (s *driveSession) EnsureFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name), driveFolderMimeType)
	list, err := s.svc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", wrapDriveError("listing folders", err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: driveFolderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", wrapDriveError("creating folder", err)
	}
	return folder.Id, nil
}

// Upload writes one artifact into the folder. A file with the same name is
// overwritten in place so retried attempts stay idempotent.
func (s *driveSession) Upload(ctx context.Context, folderID, name, mimeType string, data io.Reader) error {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeDriveQuery(name), folderID)
	list, err := s.svc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return wrapDriveError("listing files before upload", err)
	}

	if len(list.Files) > 0 {
		_, err = s.svc.Files.Update(list.Files[0].Id, &drive.File{}).
			Media(data, googleapi.ContentType(mimeType)).Context(ctx).Do()
		if err != nil {
			return wrapDriveError("updating file "+name, err)
		}
		return nil
	}

	_, err = s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}).Media(data, googleapi.ContentType(mimeType)).Context(ctx).Do()
	if err != nil {
		return wrapDriveError("uploading file "+name, err)
	}
	return nil
}

// Credentials returns the current token pair. A refreshed access token yields
// a new versioned record; the stored record is never partially mutated.
func (s *driveSession) Credentials() *models.CloudCredentials {
	tok, err := s.tokens.Token()
	if err != nil || tok.AccessToken == s.creds.AccessToken {
		return s.creds
	}
	return &models.CloudCredentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshTokenOr(tok.RefreshToken, s.creds.RefreshToken),
		Expiry:       tok.Expiry,
		Version:      s.creds.Version + 1,
	}
}

func refreshTokenOr(fresh, stored string) string {
	if fresh != "" {
		return fresh
	}
	return stored
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// wrapDriveError classifies a provider failure. API rejections (auth, quota,
// malformed request) are permanent CLOUD_ERRORs; transport-level failures
// (handshake errors, truncated streams, resets) are retryable NETWORK_ERRORs.
func wrapDriveError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return NewCloudError(op+" rejected by provider", err).
			WithContext("status", apiErr.Code)
	}
	if isTransportError(err) {
		return NewNetworkError(op+" hit a transient transport failure", err)
	}
	return NewCloudError(op+" failed", err)
}

func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isTransportError(urlErr.Err) || urlErr.Timeout() || urlErr.Temporary()
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	return false
}
