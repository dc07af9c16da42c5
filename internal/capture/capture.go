// Package capture turns a user utterance into a saved transaction or a
// clarification question, and composes the reply sent back to the user.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/logger"
	"github.com/dvloznov/finance-capture/internal/parser"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reply texts.
const (
	ReplyFallback    = "Saved ✅ (fallback). I couldn't extract all fields yet. Send amount/account if needed."
	ReplyStoreFailed = "Could not save right now. Please retry."
)

// Outcome is the terminal state of a single capture.
type Outcome string

const (
	OutcomeClarification Outcome = "clarification"
	OutcomeSaved         Outcome = "saved"
	OutcomeFallback      Outcome = "fallback"
	OutcomeStoreFailed   Outcome = "store_failed"
)

// DraftExtractor produces a structured draft from a transcript, or nil when
// structured extraction is unavailable.
type DraftExtractor interface {
	Extract(ctx context.Context, transcript, userID string) *domain.TransactionDraft
}

// Mirror receives every saved transaction after it is persisted.
type Mirror interface {
	MirrorTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Request is a single capture attempt.
type Request struct {
	UserID     string
	Transcript string
	Source     domain.Source
}

// Result carries the reply text and, for saves, the stored transaction.
type Result struct {
	Reply       string
	Outcome     Outcome
	Transaction *domain.Transaction
}

// Service runs the capture workflow.
type Service struct {
	extractor DraftExtractor
	txs       store.TransactionStore
	mirror    Mirror
	now       func() time.Time
	loc       *time.Location
	symbol    string
	log       zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMirror sets a best-effort mirror called after each successful save.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone used for occurred_at values without an offset.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCurrencySymbol sets the symbol printed before amounts in replies.
func WithCurrencySymbol(symbol string) Option {
	return func(s *Service) { s.symbol = symbol }
}

// NewService creates a new capture Service. extractor may be nil, in which
// case every capture takes the fallback path.
func NewService(extractor DraftExtractor, txs store.TransactionStore, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		extractor: extractor,
		txs:       txs,
		now:       time.Now,
		loc:       time.UTC,
		symbol:    "₹",
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture runs extraction and persists the result. It never returns an
// error: every failure maps to an Outcome with a user-facing reply.
func (s *Service) Capture(ctx context.Context, req Request) Result {
	log := logger.ForUser(s.log, req.UserID, string(req.Source))

	var draft *domain.TransactionDraft
	if s.extractor != nil {
		draft = s.extractor.Extract(ctx, req.Transcript, req.UserID)
	}

	if draft == nil {
		return s.saveFallback(ctx, req, log)
	}

	if c := draft.NeedsClarification; c != nil {
		log.Info().Str("field", string(c.Field)).Msg("Capture needs clarification")
		return Result{Reply: c.Question, Outcome: OutcomeClarification}
	}

	now := s.now()
	tx := &domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Direction:     draft.Direction,
		Amount:        draft.Amount,
		Note:          draft.Note,
		OccurredAt:    s.occurredAt(draft.OccurredAt, now, log),
		Category:      draft.Category,
		PaymentMethod: draft.PaymentMethod,
		AccountHint:   draft.AccountHint,
		Merchant:      draft.Merchant,
		Source:        req.Source,
		CreatedAt:     now,
	}

	if err := s.txs.InsertTransaction(ctx, tx); err != nil {
		log.Error().Err(err).Msg("Failed to save transaction")
		return Result{Reply: ReplyStoreFailed, Outcome: OutcomeStoreFailed}
	}

	s.mirrorTransaction(ctx, tx, log)
	log.Info().Str("transaction_id", tx.ID).Str("outcome", string(OutcomeSaved)).Msg("Transaction captured")

	return Result{Reply: s.savedReply(tx), Outcome: OutcomeSaved, Transaction: tx}
}

func (s *Service) saveFallback(ctx context.Context, req Request, log zerolog.Logger) Result {
	now := s.now()
	direction := parser.InferDirection(req.Transcript)
	tx := &domain.Transaction{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Direction:  direction,
		Note:       fallbackNote(req.Transcript, direction),
		OccurredAt: now,
		Source:     req.Source,
		CreatedAt:  now,
	}

	if err := s.txs.InsertTransaction(ctx, tx); err != nil {
		log.Error().Err(err).Msg("Failed to save fallback transaction")
		return Result{Reply: ReplyStoreFailed, Outcome: OutcomeStoreFailed}
	}

	s.mirrorTransaction(ctx, tx, log)
	log.Info().Str("transaction_id", tx.ID).Str("outcome", string(OutcomeFallback)).Msg("Transaction captured")

	return Result{Reply: ReplyFallback, Outcome: OutcomeFallback, Transaction: tx}
}

// fallbackNote is the trimmed transcript cut to the note limit, or the
// direction when nothing is left.
func fallbackNote(transcript string, direction domain.Direction) string {
	note := strings.TrimSpace(domain.TruncateNote(strings.TrimSpace(transcript)))
	if note == "" {
		return string(direction)
	}
	return note
}

func (s *Service) mirrorTransaction(ctx context.Context, tx *domain.Transaction, log zerolog.Logger) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.MirrorTransaction(ctx, tx); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to mirror transaction")
	}
}

func (s *Service) savedReply(tx *domain.Transaction) string {
	if !tx.Amount.Valid {
		return fmt.Sprintf("Saved ✅ %s amount pending.", tx.Direction)
	}
	return fmt.Sprintf("Saved ✅ %s %s%s.", tx.Direction, s.symbol, tx.Amount.Decimal.String())
}

// occurredAtLayouts are tried in order; all but RFC 3339 are read in the
// service location.
var occurredAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// occurredAt resolves the model's timestamp. Missing or unparseable values
// become now; the latter is logged.
func (s *Service) occurredAt(raw *string, now time.Time, log zerolog.Logger) time.Time {
	if raw == nil {
		return now
	}
	if t, ok := ParseOccurredAt(*raw, s.loc); ok {
		return t
	}
	log.Warn().Str("occurred_at", *raw).Msg("Discarding unparseable occurred_at")
	return now
}

// ParseOccurredAt parses an ISO-8601 style timestamp. Values without an
// offset are interpreted in loc.
func ParseOccurredAt(raw string, loc *time.Location) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, true
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range occurredAtLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
