package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUploader struct {
	UploadFileFunc func(ctx context.Context, bucketName, objectName, filePath string) error
}

func (m *mockUploader) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
	}
	return nil
}

var fixedNow = time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)

func TestVoiceArchive_Archive(t *testing.T) {
	up := &mockUploader{UploadFileFunc: func(ctx context.Context, bucketName, objectName, filePath string) error {
		assert.Equal(t, "voice-bucket", bucketName)
		assert.Equal(t, "voice/user-1/2024/05/01/AwACAgI.ogg", objectName)
		assert.Equal(t, "/tmp/voice-123.ogg", filePath)
		return nil
	}}

	uri, err := NewVoiceArchive(up, "voice-bucket").WithClock(func() time.Time { return fixedNow }).
		Archive(context.Background(), "user-1", "AwACAgI", "/tmp/voice-123.ogg")
	require.NoError(t, err)
	assert.Equal(t, "gs://voice-bucket/voice/user-1/2024/05/01/AwACAgI.ogg", uri)
}

func TestVoiceArchive_UploadError(t *testing.T) {
	up := &mockUploader{UploadFileFunc: func(context.Context, string, string, string) error {
		return errors.New("403 forbidden")
	}}

	_, err := NewVoiceArchive(up, "b").Archive(context.Background(), "u", "f", "/tmp/x")
	assert.ErrorContains(t, err, "403 forbidden")
}

func TestVoiceArchive_ObjectNameSanitized(t *testing.T) {
	a := NewVoiceArchive(&mockUploader{}, "b").WithClock(func() time.Time { return fixedNow })

	assert.Equal(t, "voice/a_b/2024/05/01/__x.ogg", a.ObjectName("a/b", "../x"))
	assert.Equal(t, "voice/unknown/2024/05/01/unknown.ogg", a.ObjectName(" ", ""))
}
