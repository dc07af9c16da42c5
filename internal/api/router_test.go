package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/finance-capture/internal/api/handlers"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type memTxs struct{ rows []*domain.Transaction }

func (m *memTxs) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	m.rows = append(m.rows, tx)
	return nil
}

func (m *memTxs) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	return m.rows, nil
}

func newTestRouter(txs *memTxs) http.Handler {
	log := zerolog.New(io.Discard)
	return NewRouter(Routes{
		Shortcut:     handlers.NewShortcutHandler(txs, nil, "s3cret", log),
		Transactions: handlers.NewTransactionsHandler(txs, log),
		APIToken:     "t0k",
	}, log)
}

func TestRouter(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header map[string]string
		want   int
	}{
		{"health open", http.MethodGet, "/health", "", nil, http.StatusOK},
		{"shortcut bypasses bearer auth", http.MethodPost, "/api/shortcut", `{"user_id":"u","text":"paid 20 chai"}`, map[string]string{"X-Shortcut-Secret": "s3cret"}, http.StatusOK},
		{"shortcut wrong method", http.MethodGet, "/api/shortcut", "", nil, http.StatusMethodNotAllowed},
		{"transactions need token", http.MethodGet, "/api/transactions?user_id=u", "", nil, http.StatusUnauthorized},
		{"transactions with token", http.MethodGet, "/api/transactions?user_id=u", "", map[string]string{"Authorization": "Bearer t0k"}, http.StatusOK},
		{"unmounted route", http.MethodPost, "/api/link-codes", `{}`, map[string]string{"Authorization": "Bearer t0k"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			newTestRouter(&memTxs{}).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}
