package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-capture/internal/api/middleware"
	"github.com/dvloznov/finance-capture/internal/capture"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/jobs"
	"github.com/dvloznov/finance-capture/internal/parser"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Shortcut reply texts.
const (
	ErrMsgUnauthorized   = "Unauthorized"
	ErrMsgMissingUserID  = "Missing user_id"
	ErrMsgMissingText    = "Missing text"
	ErrMsgMissingAmount  = "Could not find amount. Say: 'spent 250 groceries'."
	ErrMsgSaveFailed     = "Could not save right now. Please retry."
	maxShortcutBodyBytes = 64 << 10
)

// Transaction listing limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ShortcutHandler handles the quick-capture webhook used by phone shortcuts.
type ShortcutHandler struct {
	txs    store.TransactionStore
	mirror capture.Mirror
	secret string
	now    func() time.Time
	log    zerolog.Logger
}

// NewShortcutHandler creates a new shortcut handler. mirror may be nil.
func NewShortcutHandler(txs store.TransactionStore, mirror capture.Mirror, secret string, log zerolog.Logger) *ShortcutHandler {
	return &ShortcutHandler{
		txs:    txs,
		mirror: mirror,
		secret: secret,
		now:    time.Now,
		log:    log,
	}
}

// WithClock overrides time.Now.
func (h *ShortcutHandler) WithClock(now func() time.Time) *ShortcutHandler {
	h.now = now
	return h
}

type shortcutRequest struct {
	Secret string `json:"secret"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type shortcutSaved struct {
	ID        string           `json:"id"`
	Direction domain.Direction `json:"direction"`
	Amount    string           `json:"amount"`
	Note      string           `json:"note"`
	Category  *string          `json:"category,omitempty"`
}

type shortcutResponse struct {
	OK    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Saved *shortcutSaved `json:"saved,omitempty"`
}

// Capture handles POST /api/shortcut
func (h *ShortcutHandler) Capture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// A malformed body is treated as empty so the secret check still runs first.
	var req shortcutRequest
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxShortcutBodyBytes))
	_ = json.Unmarshal(body, &req)

	secret := r.Header.Get("X-Shortcut-Secret")
	if secret == "" {
		secret = req.Secret
	}
	if h.secret == "" || secret == "" || !middleware.SecretEqual(secret, h.secret) {
		middleware.WriteJSON(w, http.StatusUnauthorized, shortcutResponse{Error: ErrMsgUnauthorized})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, shortcutResponse{Error: ErrMsgMissingUserID})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, shortcutResponse{Error: ErrMsgMissingText})
		return
	}

	parsed := parser.Parse(req.Text)
	if !parsed.Amount.Valid || parsed.Amount.Decimal.IsZero() {
		middleware.WriteJSON(w, http.StatusBadRequest, shortcutResponse{Error: ErrMsgMissingAmount})
		return
	}

	now := h.now()
	tx := &domain.Transaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		Direction:  parsed.Direction,
		Amount:     parsed.Amount,
		Note:       strings.TrimSpace(domain.TruncateNote(parsed.Note)),
		Category:   parsed.Category,
		OccurredAt: now,
		Source:     domain.SourceShortcut,
		CreatedAt:  now,
	}

	log := h.log.With().
		Str("request_id", middleware.RequestIDFromContext(ctx)).
		Str("user_id", userID).
		Str("source", string(domain.SourceShortcut)).
		Logger()

	if err := h.txs.InsertTransaction(ctx, tx); err != nil {
		log.Error().Err(err).Msg("Failed to save shortcut transaction")
		middleware.WriteJSON(w, http.StatusInternalServerError, shortcutResponse{Error: ErrMsgSaveFailed})
		return
	}

	if h.mirror != nil {
		if err := h.mirror.MirrorTransaction(ctx, tx); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to mirror transaction")
		}
	}

	log.Info().Str("transaction_id", tx.ID).Msg("Shortcut transaction saved")

	middleware.WriteJSON(w, http.StatusOK, shortcutResponse{
		OK: true,
		Saved: &shortcutSaved{
			ID:        tx.ID,
			Direction: tx.Direction,
			Amount:    tx.Amount.Decimal.String(),
			Note:      tx.Note,
			Category:  tx.Category,
		},
	})
}

// LinkCodeGenerator issues one-time Telegram link codes.
type LinkCodeGenerator interface {
	Generate(ctx context.Context, userID string) (*domain.LinkCode, error)
}

// LinkCodesHandler handles link-code endpoints.
type LinkCodesHandler struct {
	linker LinkCodeGenerator
	log    zerolog.Logger
}

// NewLinkCodesHandler creates a new link codes handler.
func NewLinkCodesHandler(linker LinkCodeGenerator, log zerolog.Logger) *LinkCodesHandler {
	return &LinkCodesHandler{linker: linker, log: log}
}

// CreateLinkCode handles POST /api/link-codes
func (h *LinkCodesHandler) CreateLinkCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	code, err := h.linker.Generate(r.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to generate link code")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate link code")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"code":       code.Code,
		"expires_at": code.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	txs store.TransactionStore
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(txs store.TransactionStore, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{txs: txs, log: log}
}

// ListTransactions handles GET /api/transactions?user_id=&limit=
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userID := strings.TrimSpace(query.Get("user_id"))
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := DefaultListLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, MaxListLimit)
	}

	transactions, err := h.txs.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if idStr := query.Get("telegram_user_id"); idStr != "" {
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			filter.TelegramUserID = id
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
