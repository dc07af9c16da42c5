package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrTableNotFound is returned when the backing table does not exist.
	// It lets callers degrade optional lookups instead of failing.
	ErrTableNotFound = errors.New("store: table not found")
)

// TransactionStore provides an interface for transaction persistence.
type TransactionStore interface {
	// InsertTransaction persists a single captured transaction.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error

	// ListTransactions returns the most recent transactions of a user, newest first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}

// AccountLabelLister reads the user-configured account labels.
type AccountLabelLister interface {
	// ListAccountLabels returns up to limit labels for the user.
	// Returns ErrTableNotFound when the accounts table is missing.
	ListAccountLabels(ctx context.Context, userID string, limit int) ([]domain.AccountLabel, error)
}

// UsageStore reads and writes per-day usage counters.
type UsageStore interface {
	// GetVoiceCount returns the voice counter for (userID, day), or 0 when no row exists.
	GetVoiceCount(ctx context.Context, userID, day string) (int, error)

	// UpsertVoiceCount writes the voice counter for (userID, day).
	UpsertVoiceCount(ctx context.Context, userID, day string, count int) error
}

// ProfileStore resolves and links user profiles.
type ProfileStore interface {
	// FindUserByTelegramID returns the profile linked to a Telegram id, or ErrNotFound.
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.Profile, error)

	// LinkTelegram stores the Telegram id on the user's profile, creating the profile if needed.
	LinkTelegram(ctx context.Context, userID string, telegramID int64) error
}

// LinkCodeStore persists one-time link codes.
type LinkCodeStore interface {
	// InsertLinkCode stores a freshly generated code.
	InsertLinkCode(ctx context.Context, code *domain.LinkCode) error

	// GetLinkCode returns the code row, or ErrNotFound.
	GetLinkCode(ctx context.Context, code string) (*domain.LinkCode, error)

	// MarkLinkCodeUsed sets used_at on the code if it is still unused.
	// Returns ErrNotFound when no unused code matched, so at most one
	// caller can claim a code.
	MarkLinkCodeUsed(ctx context.Context, code string, usedAt time.Time) error
}

// Store is the full set of operations a backend must provide.
type Store interface {
	TransactionStore
	AccountLabelLister
	UsageStore
	ProfileStore
	LinkCodeStore

	// Close releases the backend's resources.
	Close() error
}
