// Package bot implements the conversational Telegram front-end: account
// linking, text capture and voice capture behind a daily quota.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-capture/internal/capture"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/jobs"
	"github.com/dvloznov/finance-capture/internal/linking"
	"github.com/dvloznov/finance-capture/internal/logger"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/rs/zerolog"
)

// Reply texts.
const (
	ReplyStart = "Hi! First, login on the web dashboard and generate a link code.\n" +
		"Then send: /link 123456\n\n" +
		"After linking, send voice like:\n" +
		"“paid 450 groceries via UPI HDFC”."
	ReplyLinkUsage       = "Usage: /link <6-digit-code>"
	ReplyInvalidCode     = "Invalid code."
	ReplyCodeUsed        = "That code is already used."
	ReplyCodeExpired     = "Code expired. Generate a new one on the web."
	ReplyLinkFailed      = "Could not link. Try again."
	ReplyLinked          = "Linked ✅ Now send a voice note or text transaction."
	ReplyNotLinked       = "Please link first: go to web → Link Telegram → /link <code>."
	ReplyQuotaReached    = "Daily voice limit reached. Send as text today or try tomorrow."
	ReplyDownloadFailed  = "Could not download your voice note. Please try again."
	ReplyTranscribeFail  = "Could not transcribe. Try again with clearer audio."
	ReplyVoiceDisabled   = "Voice notes are not enabled. Please send the transaction as text."
	replyVoiceTooLongFmt = "Voice too long (%ds). Max is %ds. Please resend shorter or use text."
	replyHeardFmt        = "Heard: \"%s\"\n%s"
)

// Default limits.
const (
	DefaultMaxVoiceSeconds      = 30
	DefaultDownloadTimeout      = 20 * time.Second
	DefaultTranscriptionTimeout = 30 * time.Second
)

// Transcriber turns a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// FileFetcher downloads a Telegram file into w.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string, w io.Writer) error
}

// Replier sends a text message to a chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
}

// Archiver keeps a copy of a voice note and returns its location.
type Archiver interface {
	Archive(ctx context.Context, userID, fileID, path string) (string, error)
}

// Capturer turns an utterance into a saved transaction or a question.
type Capturer interface {
	Capture(ctx context.Context, req capture.Request) capture.Result
}

// Linker redeems one-time link codes.
type Linker interface {
	Redeem(ctx context.Context, code string, telegramID int64) (string, error)
}

// QuotaChecker admits or rejects a rate-limited action.
type QuotaChecker interface {
	CheckAndIncrement(ctx context.Context, userID string) bool
}

// Handler routes inbound messages. It is safe for concurrent use.
type Handler struct {
	profiles store.ProfileStore
	capturer Capturer
	linker   Linker
	replier  Replier

	transcriber Transcriber
	files       FileFetcher
	quota       QuotaChecker
	archive     Archiver

	maxVoiceSeconds      int
	downloadTimeout      time.Duration
	transcriptionTimeout time.Duration
	tempDir              string

	log zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithVoice enables voice capture.
func WithVoice(t Transcriber, files FileFetcher, quota QuotaChecker) Option {
	return func(h *Handler) {
		h.transcriber = t
		h.files = files
		h.quota = quota
	}
}

// WithMaxVoiceSeconds sets the longest accepted voice note.
func WithMaxVoiceSeconds(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxVoiceSeconds = n
		}
	}
}

// WithTimeouts overrides the download and transcription timeouts. Zero keeps the default.
func WithTimeouts(download, transcription time.Duration) Option {
	return func(h *Handler) {
		if download > 0 {
			h.downloadTimeout = download
		}
		if transcription > 0 {
			h.transcriptionTimeout = transcription
		}
	}
}

// WithArchive stores a copy of every downloaded voice note.
func WithArchive(a Archiver) Option {
	return func(h *Handler) { h.archive = a }
}

// WithTempDir sets where voice notes are downloaded. Empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(h *Handler) { h.tempDir = dir }
}

// NewHandler creates a Handler. Voice notes are rejected unless WithVoice is given.
func NewHandler(profiles store.ProfileStore, capturer Capturer, linker Linker, replier Replier, log zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		profiles:             profiles,
		capturer:             capturer,
		linker:               linker,
		replier:              replier,
		maxVoiceSeconds:      DefaultMaxVoiceSeconds,
		downloadTimeout:      DefaultDownloadTimeout,
		transcriptionTimeout: DefaultTranscriptionTimeout,
		log:                  log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleJob implements jobs.JobHandler. The returned error only reports a
// failure to deliver the reply.
func (h *Handler) HandleJob(ctx context.Context, job jobs.Job) error {
	msg, ok := job.(*jobs.MessageJob)
	if !ok {
		return fmt.Errorf("HandleJob: unexpected job type %q", job.GetType())
	}
	return h.HandleMessage(ctx, msg)
}

// HandleMessage routes one message and sends exactly one reply, if any.
func (h *Handler) HandleMessage(ctx context.Context, msg *jobs.MessageJob) error {
	reply := h.route(ctx, msg)
	if reply == "" {
		return nil
	}
	if err := h.replier.Reply(ctx, msg.ChatID, reply); err != nil {
		return fmt.Errorf("HandleMessage: reply: %w", err)
	}
	return nil
}

func (h *Handler) route(ctx context.Context, msg *jobs.MessageJob) string {
	if msg.Voice != nil {
		return h.handleVoice(ctx, msg)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return ""
	}

	if cmd, args, ok := parseCommand(text); ok {
		switch cmd {
		case "start", "help":
			return ReplyStart
		case "link":
			return h.handleLink(ctx, msg.TelegramUserID, args)
		default:
			return ReplyStart
		}
	}

	return h.handleText(ctx, msg.TelegramUserID, text)
}

// parseCommand splits "/cmd@bot arg1 arg2" into ("cmd", ["arg1","arg2"]).
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:], true
}

func (h *Handler) handleLink(ctx context.Context, telegramID int64, args []string) string {
	if len(args) == 0 {
		return ReplyLinkUsage
	}

	userID, err := h.linker.Redeem(ctx, args[0], telegramID)
	switch {
	case err == nil:
		h.log.Info().Str("user_id", userID).Int64("telegram_id", telegramID).Msg("Telegram account linked")
		return ReplyLinked
	case errors.Is(err, linking.ErrInvalidCode):
		return ReplyInvalidCode
	case errors.Is(err, linking.ErrCodeUsed):
		return ReplyCodeUsed
	case errors.Is(err, linking.ErrCodeExpired):
		return ReplyCodeExpired
	default:
		return ReplyLinkFailed
	}
}

// linkedUser returns the profile's user id, or "" when the sender is not linked.
func (h *Handler) linkedUser(ctx context.Context, telegramID int64) string {
	profile, err := h.profiles.FindUserByTelegramID(ctx, telegramID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Int64("telegram_id", telegramID).Msg("Failed to look up profile")
		}
		return ""
	}
	return profile.UserID
}

func (h *Handler) handleText(ctx context.Context, telegramID int64, text string) string {
	userID := h.linkedUser(ctx, telegramID)
	if userID == "" {
		return ReplyNotLinked
	}

	res := h.capturer.Capture(ctx, capture.Request{
		UserID:     userID,
		Transcript: text,
		Source:     domain.SourceTelegramText,
	})
	return res.Reply
}

func (h *Handler) handleVoice(ctx context.Context, msg *jobs.MessageJob) string {
	userID := h.linkedUser(ctx, msg.TelegramUserID)
	if userID == "" {
		return ReplyNotLinked
	}
	if h.transcriber == nil || h.files == nil {
		return ReplyVoiceDisabled
	}

	log := logger.ForUser(h.log, userID, string(domain.SourceTelegramVoice))
	voice := msg.Voice

	if voice.DurationSeconds > h.maxVoiceSeconds {
		log.Info().Int("duration", voice.DurationSeconds).Msg("Voice note rejected: too long")
		return fmt.Sprintf(replyVoiceTooLongFmt, voice.DurationSeconds, h.maxVoiceSeconds)
	}

	if h.quota != nil && !h.quota.CheckAndIncrement(ctx, userID) {
		log.Info().Msg("Voice note rejected: daily quota reached")
		return ReplyQuotaReached
	}

	path, cleanup, err := h.download(ctx, voice.FileID)
	defer cleanup()
	if err != nil {
		log.Error().Err(err).Msg("Failed to download voice note")
		return ReplyDownloadFailed
	}

	if h.archive != nil {
		if uri, err := h.archive.Archive(ctx, userID, voice.FileID, path); err != nil {
			log.Warn().Err(err).Msg("Failed to archive voice note")
		} else {
			log.Debug().Str("uri", uri).Msg("Voice note archived")
		}
	}

	transcript, err := h.transcribe(ctx, path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to transcribe voice note")
		return ReplyTranscribeFail
	}

	res := h.capturer.Capture(ctx, capture.Request{
		UserID:     userID,
		Transcript: transcript,
		Source:     domain.SourceTelegramVoice,
	})
	return fmt.Sprintf(replyHeardFmt, transcript, res.Reply)
}

// download writes the file to a fresh temp file. cleanup is always non-nil
// and removes the file.
func (h *Handler) download(ctx context.Context, fileID string) (string, func(), error) {
	f, err := os.CreateTemp(h.tempDir, "voice-*.ogg")
	if err != nil {
		return "", func() {}, fmt.Errorf("download: create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	ctx, cancel := context.WithTimeout(ctx, h.downloadTimeout)
	defer cancel()

	if err := h.files.FetchFile(ctx, fileID, f); err != nil {
		_ = f.Close()
		return path, cleanup, fmt.Errorf("download: fetch %s: %w", fileID, err)
	}
	if err := f.Close(); err != nil {
		return path, cleanup, fmt.Errorf("download: close: %w", err)
	}
	return path, cleanup, nil
}

func (h *Handler) transcribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.transcriptionTimeout)
	defer cancel()

	text, err := h.transcriber.Transcribe(ctx, path)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("transcribe: empty transcript")
	}
	return text, nil
}
