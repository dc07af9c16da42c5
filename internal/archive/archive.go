// Package archive keeps a copy of inbound voice notes in Google Cloud Storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// Uploader writes a local file to a bucket object.
type Uploader interface {
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

// GCSUploader is the Uploader backed by Google Cloud Storage.
// It assumes Application Default Credentials are configured.
type GCSUploader struct {
	client *storage.Client
}

// NewGCSUploader creates a storage client shared by all uploads.
func NewGCSUploader(ctx context.Context) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSUploader: create storage client: %w", err)
	}
	return &GCSUploader{client: client}, nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// UploadFile uploads a local file to a GCS bucket under the given object name.
func (u *GCSUploader) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := u.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "audio/ogg"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	return nil
}

// VoiceArchive stores voice notes under voice/<user>/<yyyy>/<mm>/<dd>/<file>.ogg.
type VoiceArchive struct {
	uploader Uploader
	bucket   string
	now      func() time.Time
}

// NewVoiceArchive creates an archive writing to bucket.
func NewVoiceArchive(uploader Uploader, bucket string) *VoiceArchive {
	return &VoiceArchive{uploader: uploader, bucket: bucket, now: time.Now}
}

// WithClock overrides time.Now.
func (a *VoiceArchive) WithClock(now func() time.Time) *VoiceArchive {
	a.now = now
	return a
}

// ObjectName returns the object path used for a voice note.
func (a *VoiceArchive) ObjectName(userID, fileID string) string {
	day := a.now().UTC()
	return path.Join("voice", sanitize(userID), day.Format("2006/01/02"), sanitize(fileID)+".ogg")
}

// Archive uploads the voice note at filePath and returns its gs:// URI.
func (a *VoiceArchive) Archive(ctx context.Context, userID, fileID, filePath string) (string, error) {
	object := a.ObjectName(userID, fileID)
	if err := a.uploader.UploadFile(ctx, a.bucket, object, filePath); err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}
	return "gs://" + a.bucket + "/" + object, nil
}

// sanitize keeps object path segments free of separators.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
