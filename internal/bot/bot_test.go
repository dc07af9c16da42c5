package bot

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/dvloznov/finance-capture/internal/capture"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/jobs"
	"github.com/dvloznov/finance-capture/internal/linking"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	linkedTelegramID   int64 = 1001
	unlinkedTelegramID int64 = 2002
	chatID             int64 = 77
)

type mockProfiles struct {
	FindUserByTelegramIDFunc func(ctx context.Context, telegramID int64) (*domain.Profile, error)
}

func (m *mockProfiles) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.Profile, error) {
	if m.FindUserByTelegramIDFunc != nil {
		return m.FindUserByTelegramIDFunc(ctx, telegramID)
	}
	if telegramID == linkedTelegramID {
		id := telegramID
		return &domain.Profile{UserID: "user-1", TelegramID: &id}, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockProfiles) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	return nil
}

type mockCapturer struct {
	CaptureFunc func(ctx context.Context, req capture.Request) capture.Result
	requests    []capture.Request
}

func (m *mockCapturer) Capture(ctx context.Context, req capture.Request) capture.Result {
	m.requests = append(m.requests, req)
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, req)
	}
	return capture.Result{Reply: "Saved ✅ expense ₹20.", Outcome: capture.OutcomeSaved}
}

type mockLinker struct {
	RedeemFunc func(ctx context.Context, code string, telegramID int64) (string, error)
}

func (m *mockLinker) Redeem(ctx context.Context, code string, telegramID int64) (string, error) {
	if m.RedeemFunc != nil {
		return m.RedeemFunc(ctx, code, telegramID)
	}
	return "user-1", nil
}

type mockReplier struct {
	err     error
	replies []string
}

func (m *mockReplier) Reply(ctx context.Context, chat int64, text string) error {
	m.replies = append(m.replies, text)
	return m.err
}

type mockTranscriber struct {
	TranscribeFunc func(ctx context.Context, path string) (string, error)
	calls          int
}

func (m *mockTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	m.calls++
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, path)
	}
	return "chai 20", nil
}

type mockFetcher struct {
	FetchFileFunc func(ctx context.Context, fileID string, w io.Writer) error
	calls         int
	paths         []string
}

func (m *mockFetcher) FetchFile(ctx context.Context, fileID string, w io.Writer) error {
	m.calls++
	if f, ok := w.(*os.File); ok {
		m.paths = append(m.paths, f.Name())
	}
	if m.FetchFileFunc != nil {
		return m.FetchFileFunc(ctx, fileID, w)
	}
	_, err := io.WriteString(w, "OggS")
	return err
}

type mockQuota struct {
	allow bool
	calls int
}

func (m *mockQuota) CheckAndIncrement(ctx context.Context, userID string) bool {
	m.calls++
	return m.allow
}

type mockArchive struct {
	err   error
	calls int
}

func (m *mockArchive) Archive(ctx context.Context, userID, fileID, path string) (string, error) {
	m.calls++
	return "gs://b/" + fileID, m.err
}

type fixture struct {
	capturer    *mockCapturer
	linker      *mockLinker
	replier     *mockReplier
	transcriber *mockTranscriber
	fetcher     *mockFetcher
	quota       *mockQuota
	tempDir     string
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		capturer:    &mockCapturer{},
		linker:      &mockLinker{},
		replier:     &mockReplier{},
		transcriber: &mockTranscriber{},
		fetcher:     &mockFetcher{},
		quota:       &mockQuota{allow: true},
		tempDir:     t.TempDir(),
	}
}

func (f *fixture) handler(opts ...Option) *Handler {
	base := []Option{
		WithVoice(f.transcriber, f.fetcher, f.quota),
		WithMaxVoiceSeconds(30),
		WithTempDir(f.tempDir),
	}
	return NewHandler(&mockProfiles{}, f.capturer, f.linker, f.replier, zerolog.New(io.Discard), append(base, opts...)...)
}

func (f *fixture) send(t *testing.T, h *Handler, msg *jobs.MessageJob) string {
	t.Helper()
	msg.ChatID = chatID
	require.NoError(t, h.HandleMessage(context.Background(), msg))
	require.Len(t, f.replier.replies, 1)
	return f.replier.replies[0]
}

func voiceMsg(duration int) *jobs.MessageJob {
	return &jobs.MessageJob{TelegramUserID: linkedTelegramID, Voice: &jobs.Voice{FileID: "AwACAgI", DurationSeconds: duration}}
}

func TestHandler_StartAndHelp(t *testing.T) {
	for _, text := range []string{"/start", "/help", "/start@finance_bot", "/unknown"} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			reply := f.send(t, f.handler(), &jobs.MessageJob{TelegramUserID: unlinkedTelegramID, Text: text})
			assert.Equal(t, ReplyStart, reply)
			assert.Empty(t, f.capturer.requests)
		})
	}
}

func TestHandler_LinkCommand(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		err   error
		reply string
	}{
		{"missing code", "/link", nil, ReplyLinkUsage},
		{"success", "/link 123456", nil, ReplyLinked},
		{"invalid", "/link 000000", linking.ErrInvalidCode, ReplyInvalidCode},
		{"used", "/link 123456", linking.ErrCodeUsed, ReplyCodeUsed},
		{"expired", "/link 123456", linking.ErrCodeExpired, ReplyCodeExpired},
		{"store failure", "/link 123456", linking.ErrLinkFailed, ReplyLinkFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.linker.RedeemFunc = func(ctx context.Context, code string, telegramID int64) (string, error) {
				assert.Equal(t, strings.Fields(tt.text)[1], code)
				assert.Equal(t, unlinkedTelegramID, telegramID)
				return "user-9", tt.err
			}

			reply := f.send(t, f.handler(), &jobs.MessageJob{TelegramUserID: unlinkedTelegramID, Text: tt.text})
			assert.Equal(t, tt.reply, reply)
		})
	}
}

func TestHandler_TextCapture(t *testing.T) {
	f := newFixture(t)
	reply := f.send(t, f.handler(), &jobs.MessageJob{TelegramUserID: linkedTelegramID, Text: "  chai 20 "})

	assert.Equal(t, "Saved ✅ expense ₹20.", reply)
	require.Len(t, f.capturer.requests, 1)
	assert.Equal(t, capture.Request{UserID: "user-1", Transcript: "chai 20", Source: domain.SourceTelegramText}, f.capturer.requests[0])
}

func TestHandler_UnlinkedUser(t *testing.T) {
	for name, msg := range map[string]*jobs.MessageJob{
		"text":  {TelegramUserID: unlinkedTelegramID, Text: "chai 20"},
		"voice": {TelegramUserID: unlinkedTelegramID, Voice: &jobs.Voice{FileID: "f", DurationSeconds: 3}},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			reply := f.send(t, f.handler(), msg)

			assert.Equal(t, ReplyNotLinked, reply)
			assert.Empty(t, f.capturer.requests)
			assert.Zero(t, f.quota.calls)
			assert.Zero(t, f.fetcher.calls)
		})
	}
}

func TestHandler_ProfileLookupErrorTreatedAsUnlinked(t *testing.T) {
	f := newFixture(t)
	profiles := &mockProfiles{FindUserByTelegramIDFunc: func(context.Context, int64) (*domain.Profile, error) {
		return nil, errors.New("connection reset")
	}}
	h := NewHandler(profiles, f.capturer, f.linker, f.replier, zerolog.New(io.Discard))

	reply := f.send(t, h, &jobs.MessageJob{TelegramUserID: linkedTelegramID, Text: "chai 20"})
	assert.Equal(t, ReplyNotLinked, reply)
}

func TestHandler_VoiceCapture(t *testing.T) {
	f := newFixture(t)
	archive := &mockArchive{}
	f.transcriber.TranscribeFunc = func(ctx context.Context, path string) (string, error) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "OggS", string(data))
		return " paid 450 groceries via UPI HDFC ", nil
	}
	f.capturer.CaptureFunc = func(context.Context, capture.Request) capture.Result {
		return capture.Result{Reply: "Saved ✅ expense ₹450."}
	}

	reply := f.send(t, f.handler(WithArchive(archive)), voiceMsg(12))

	assert.Equal(t, "Heard: \"paid 450 groceries via UPI HDFC\"\nSaved ✅ expense ₹450.", reply)
	require.Len(t, f.capturer.requests, 1)
	assert.Equal(t, domain.SourceTelegramVoice, f.capturer.requests[0].Source)
	assert.Equal(t, "paid 450 groceries via UPI HDFC", f.capturer.requests[0].Transcript)
	assert.Equal(t, 1, f.quota.calls)
	assert.Equal(t, 1, archive.calls)
}

func TestHandler_VoiceQuotaExhausted(t *testing.T) {
	f := newFixture(t)
	f.quota.allow = false

	reply := f.send(t, f.handler(), voiceMsg(5))

	assert.Equal(t, ReplyQuotaReached, reply)
	assert.Zero(t, f.fetcher.calls, "no download when quota is exhausted")
	assert.Zero(t, f.transcriber.calls, "no transcription when quota is exhausted")
	assert.Empty(t, f.capturer.requests)
}

func TestHandler_VoiceTooLong(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, f.handler(), voiceMsg(45))

	assert.Equal(t, "Voice too long (45s). Max is 30s. Please resend shorter or use text.", reply)
	assert.Zero(t, f.quota.calls, "oversize voice must not consume quota")
	assert.Zero(t, f.fetcher.calls)
	assert.Zero(t, f.transcriber.calls)
}

func TestHandler_VoiceAtLimitAccepted(t *testing.T) {
	f := newFixture(t)
	reply := f.send(t, f.handler(), voiceMsg(30))
	assert.True(t, strings.HasPrefix(reply, "Heard: "))
}

func TestHandler_VoiceDownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.FetchFileFunc = func(context.Context, string, io.Writer) error { return errors.New("404") }

	reply := f.send(t, f.handler(), voiceMsg(5))

	assert.Equal(t, ReplyDownloadFailed, reply)
	assert.Zero(t, f.transcriber.calls)
	assertTempDirEmpty(t, f.tempDir)
}

func TestHandler_VoiceTranscriptionFailure(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, string) (string, error)
	}{
		{"error", func(context.Context, string) (string, error) { return "", errors.New("503") }},
		{"empty", func(context.Context, string) (string, error) { return "  ", nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.transcriber.TranscribeFunc = tt.fn

			reply := f.send(t, f.handler(), voiceMsg(5))

			assert.Equal(t, ReplyTranscribeFail, reply)
			assert.Empty(t, f.capturer.requests)
			assertTempDirEmpty(t, f.tempDir)
		})
	}
}

func TestHandler_VoiceTempFileRemoved(t *testing.T) {
	f := newFixture(t)
	var seen string
	f.transcriber.TranscribeFunc = func(ctx context.Context, path string) (string, error) {
		seen = path
		_, err := os.Stat(path)
		require.NoError(t, err, "temp file must exist during transcription")
		return "chai 20", nil
	}

	f.send(t, f.handler(), voiceMsg(5))

	require.NotEmpty(t, seen)
	_, err := os.Stat(seen)
	assert.True(t, os.IsNotExist(err))
	assertTempDirEmpty(t, f.tempDir)
}

func TestHandler_VoiceArchiveFailureIgnored(t *testing.T) {
	f := newFixture(t)
	reply := f.send(t, f.handler(WithArchive(&mockArchive{err: errors.New("403")})), voiceMsg(5))

	assert.True(t, strings.HasPrefix(reply, "Heard: \"chai 20\""))
}

func TestHandler_VoiceDisabled(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(&mockProfiles{}, f.capturer, f.linker, f.replier, zerolog.New(io.Discard))

	reply := f.send(t, h, voiceMsg(5))
	assert.Equal(t, ReplyVoiceDisabled, reply)
}

func TestHandler_EmptyMessageNoReply(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler().HandleMessage(context.Background(), &jobs.MessageJob{TelegramUserID: linkedTelegramID, Text: "  "}))
	assert.Empty(t, f.replier.replies)
}

func TestHandler_ReplyErrorReturned(t *testing.T) {
	f := newFixture(t)
	f.replier.err = errors.New("telegram: 429")

	err := f.handler().HandleJob(context.Background(), &jobs.MessageJob{TelegramUserID: linkedTelegramID, Text: "chai 20"})
	assert.ErrorContains(t, err, "429")
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
