// Package linking binds Telegram identities to user accounts through
// short-lived one-time codes.
package linking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/rs/zerolog"
)

const (
	// CodeTTL is how long a generated code stays redeemable.
	CodeTTL = 10 * time.Minute

	codeDigits = 6
)

var (
	ErrInvalidCode = errors.New("linking: invalid code")
	ErrCodeUsed    = errors.New("linking: code already used")
	ErrCodeExpired = errors.New("linking: code expired")
	ErrLinkFailed  = errors.New("linking: could not link")
)

var codeRe = regexp.MustCompile(`^\d{6}$`)

// Store is the subset of persistence the linking service needs.
type Store interface {
	store.LinkCodeStore
	store.ProfileStore
}

// Service generates and redeems link codes.
type Service struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewService creates a new linking Service.
func NewService(s Store, log zerolog.Logger) *Service {
	return &Service{store: s, now: time.Now, log: log}
}

// WithClock returns a copy of the service that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// Generate creates and stores a fresh code for userID.
func (s *Service) Generate(ctx context.Context, userID string) (*domain.LinkCode, error) {
	if userID == "" {
		return nil, fmt.Errorf("Generate: empty user id")
	}

	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("Generate: %w", err)
	}

	lc := &domain.LinkCode{
		Code:      code,
		UserID:    userID,
		ExpiresAt: s.now().Add(CodeTTL).UTC(),
	}
	if err := s.store.InsertLinkCode(ctx, lc); err != nil {
		return nil, fmt.Errorf("Generate: insert: %w", err)
	}

	s.log.Info().Str("user_id", userID).Time("expires_at", lc.ExpiresAt).Msg("Link code generated")
	return lc, nil
}

// Redeem validates code and links telegramID to the code's owner. It returns
// the linked user id or one of the package errors.
func (s *Service) Redeem(ctx context.Context, code string, telegramID int64) (string, error) {
	if !codeRe.MatchString(code) {
		return "", ErrInvalidCode
	}

	lc, err := s.store.GetLinkCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCode
		}
		s.log.Error().Err(err).Msg("Failed to read link code")
		return "", ErrLinkFailed
	}

	if lc.UsedAt != nil {
		return "", ErrCodeUsed
	}

	now := s.now()
	if now.After(lc.ExpiresAt) {
		return "", ErrCodeExpired
	}

	// Claim the code before linking so concurrent redeems of the same code
	// link at most once. A failed link leaves the code spent.
	if err := s.store.MarkLinkCodeUsed(ctx, code, now.UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrCodeUsed
		}
		s.log.Error().Err(err).Str("user_id", lc.UserID).Msg("Failed to claim link code")
		return "", ErrLinkFailed
	}

	if err := s.store.LinkTelegram(ctx, lc.UserID, telegramID); err != nil {
		s.log.Error().Err(err).Str("user_id", lc.UserID).Msg("Failed to link telegram id")
		return "", ErrLinkFailed
	}

	s.log.Info().Str("user_id", lc.UserID).Int64("telegram_id", telegramID).Msg("Telegram account linked")
	return lc.UserID, nil
}

func randomCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("randomCode: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
