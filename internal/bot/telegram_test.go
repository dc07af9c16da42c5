package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFromUpdate(t *testing.T) {
	tests := []struct {
		name   string
		update tgbotapi.Update
		want   bool
	}{
		{"no message", tgbotapi.Update{UpdateID: 1}, false},
		{"text", tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 7}, Text: "chai 20",
		}}, true},
		{"voice", tgbotapi.Update{UpdateID: 3, Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 7}, Voice: &tgbotapi.Voice{FileID: "f1", Duration: 9},
		}}, true},
		{"sticker only", tgbotapi.Update{UpdateID: 4, Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 7},
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := MessageFromUpdate(tt.update)
			if !tt.want {
				assert.Nil(t, job)
				return
			}
			require.NotNil(t, job)
			assert.Equal(t, int64(42), job.TelegramUserID)
			assert.Equal(t, int64(7), job.ChatID)
			assert.NotEmpty(t, job.JobID)
		})
	}

	voice := MessageFromUpdate(tests[2].update)
	require.NotNil(t, voice.Voice)
	assert.Equal(t, "f1", voice.Voice.FileID)
	assert.Equal(t, 9, voice.Voice.DurationSeconds)
}

// fakeBotAPI serves the few Bot API methods the adapter uses.
func fakeBotAPI(t *testing.T, sent *[]string) *httptest.Server {
	t.Helper()
	ok := func(w http.ResponseWriter, result any) {
		b, _ := json.Marshal(map[string]any{"ok": true, "result": result})
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			ok(w, map[string]any{"id": 1, "is_bot": true, "first_name": "Finance", "username": "finance_bot"})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			*sent = append(*sent, r.FormValue("text"))
			ok(w, map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 7, "type": "private"}})
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			ok(w, map[string]any{"file_id": "f1", "file_unique_id": "u1", "file_path": "voice/file_1.oga"})
		case strings.HasPrefix(r.URL.Path, "/file/"):
			assert.Equal(t, "/file/bottoken/voice/file_1.oga", r.URL.Path)
			io.WriteString(w, "OggS-bytes")
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestTelegram_ReplyAndFetch(t *testing.T) {
	var sent []string
	srv := fakeBotAPI(t, &sent)
	defer srv.Close()

	tg, err := NewTelegramWithEndpoint("token", srv.URL+"/bot%s/%s", srv.URL+"/file/bot%s/%s", srv.Client(), zerolog.New(io.Discard))
	require.NoError(t, err)

	require.NoError(t, tg.Reply(context.Background(), 7, ReplyLinked))
	assert.Equal(t, []string{ReplyLinked}, sent)

	var buf bytes.Buffer
	require.NoError(t, tg.FetchFile(context.Background(), "f1", &buf))
	assert.Equal(t, "OggS-bytes", buf.String())
}
