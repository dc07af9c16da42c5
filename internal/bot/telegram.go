package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-capture/internal/jobs"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// pollTimeout is the long-polling timeout in seconds.
const pollTimeout = 60

// Telegram adapts the Bot API to Replier and FileFetcher and feeds inbound
// updates into a job queue.
type Telegram struct {
	api          *tgbotapi.BotAPI
	httpClient   *http.Client
	fileEndpoint string
	log          zerolog.Logger
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, log zerolog.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, tgbotapi.FileEndpoint, http.DefaultClient, log)
}

// NewTelegramWithEndpoint connects to a Bot API server at the given endpoints.
// Both endpoints are format strings taking the token and the method or path.
func NewTelegramWithEndpoint(token, apiEndpoint, fileEndpoint string, client *http.Client, log zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("NewTelegram: connect: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("Connected to Telegram")

	return &Telegram{
		api:          api,
		httpClient:   client,
		fileEndpoint: fileEndpoint,
		log:          log,
	}, nil
}

// Reply implements Replier.
func (t *Telegram) Reply(ctx context.Context, chatID int64, text string) error {
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("Reply: send: %w", err)
	}
	return nil
}

// FetchFile implements FileFetcher.
func (t *Telegram) FetchFile(ctx context.Context, fileID string, w io.Writer) error {
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("FetchFile: get file: %w", err)
	}

	url := fmt.Sprintf(t.fileEndpoint, t.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("FetchFile: build request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("FetchFile: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FetchFile: download: status %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("FetchFile: copy: %w", err)
	}
	return nil
}

// Poll long-polls for updates and publishes each message until ctx is done.
func (t *Telegram) Poll(ctx context.Context, publisher jobs.Publisher) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			job := MessageFromUpdate(update)
			if job == nil {
				continue
			}
			if err := publisher.PublishMessage(ctx, job); err != nil {
				t.log.Error().Err(err).Int("update_id", update.UpdateID).Msg("Failed to enqueue update")
			}
		}
	}
}

// MessageFromUpdate converts an update into a job. It returns nil for
// updates that carry neither text nor a voice note.
func MessageFromUpdate(update tgbotapi.Update) *jobs.MessageJob {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}

	job := &jobs.MessageJob{
		JobID:          "tg-" + strconv.Itoa(update.UpdateID),
		ChatID:         msg.Chat.ID,
		TelegramUserID: msg.From.ID,
		Text:           msg.Text,
	}
	if msg.Voice != nil {
		job.Voice = &jobs.Voice{FileID: msg.Voice.FileID, DurationSeconds: msg.Voice.Duration}
	}
	if job.Text == "" && job.Voice == nil {
		return nil
	}
	return job
}
