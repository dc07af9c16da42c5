// Package sqlite implements the capture store on SQLite using the pure-Go
// modernc.org/sqlite driver. The schema is created on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/shopspring/decimal"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// timeLayout has fixed-width fractions so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps a sql.DB connection.
type Store struct {
	conn *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path and runs migrations. Use ":memory:" for
// a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			telegram_id INTEGER UNIQUE,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			direction TEXT NOT NULL CHECK (direction IN ('expense', 'income')),
			amount TEXT,
			note TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			category TEXT,
			payment_method TEXT,
			account_hint TEXT,
			merchant TEXT,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS usage_daily (
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			voice_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			label TEXT,
			name TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS telegram_link_codes (
			code TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			used_at TEXT
		)`,
	}

	for _, m := range migrations {
		if _, err := s.conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// InsertTransaction persists a captured transaction.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO transactions (
			id, user_id, direction, amount, note, occurred_at,
			category, payment_method, account_hint, merchant, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, string(tx.Direction), amountValue(tx.Amount), tx.Note, formatTime(tx.OccurredAt),
		nullString(tx.Category), nullPaymentMethod(tx.PaymentMethod), nullString(tx.AccountHint), nullString(tx.Merchant),
		string(tx.Source), formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", mapError(err))
	}
	return nil
}

// ListTransactions returns the user's latest transactions, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, direction, amount, note, occurred_at,
			category, payment_method, account_hint, merchant, source, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", mapError(err))
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var (
			tx                                       domain.Transaction
			direction, source, occurredAt, createdAt string
			category, payment, accountHint, merchant sql.NullString
		)
		if err := rows.Scan(
			&tx.ID, &tx.UserID, &direction, &tx.Amount, &tx.Note, &occurredAt,
			&category, &payment, &accountHint, &merchant, &source, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}

		tx.Direction = domain.Direction(direction)
		tx.Source = domain.Source(source)
		tx.Category = stringPtr(category)
		tx.AccountHint = stringPtr(accountHint)
		tx.Merchant = stringPtr(merchant)
		if payment.Valid {
			tx.PaymentMethod, _ = domain.ParsePaymentMethod(payment.String)
		}
		if tx.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("ListTransactions: occurred_at: %w", err)
		}
		if tx.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("ListTransactions: created_at: %w", err)
		}
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: rows: %w", err)
	}
	return txs, nil
}

// AddAccountLabel registers an account label for a user.
func (s *Store) AddAccountLabel(ctx context.Context, userID string, label domain.AccountLabel) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO accounts (user_id, label, name, created_at) VALUES (?, ?, ?, ?)`,
		userID, emptyToNull(label.Label), emptyToNull(label.Name), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("AddAccountLabel: %w", mapError(err))
	}
	return nil
}

// ListAccountLabels returns up to limit account labels for the user.
func (s *Store) ListAccountLabels(ctx context.Context, userID string, limit int) ([]domain.AccountLabel, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT label, name FROM accounts WHERE user_id = ? ORDER BY id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAccountLabels: query: %w", mapError(err))
	}
	defer rows.Close()

	var labels []domain.AccountLabel
	for rows.Next() {
		var label, name sql.NullString
		if err := rows.Scan(&label, &name); err != nil {
			return nil, fmt.Errorf("ListAccountLabels: scan: %w", err)
		}
		labels = append(labels, domain.AccountLabel{Label: label.String, Name: name.String})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAccountLabels: rows: %w", err)
	}
	return labels, nil
}

// GetVoiceCount returns the voice counter for the day, or 0 when unset.
func (s *Store) GetVoiceCount(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT voice_count FROM usage_daily WHERE user_id = ? AND day = ?`,
		userID, day,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("GetVoiceCount: %w", mapError(err))
	}
	return count, nil
}

// UpsertVoiceCount writes the voice counter for the day.
func (s *Store) UpsertVoiceCount(ctx context.Context, userID, day string, count int) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO usage_daily (user_id, day, voice_count) VALUES (?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET voice_count = excluded.voice_count`,
		userID, day, count,
	)
	if err != nil {
		return fmt.Errorf("UpsertVoiceCount: %w", mapError(err))
	}
	return nil
}

// FindUserByTelegramID returns the profile linked to telegramID, or store.ErrNotFound.
func (s *Store) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.Profile, error) {
	var p domain.Profile
	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id FROM profiles WHERE telegram_id = ?`,
		telegramID,
	).Scan(&p.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindUserByTelegramID: %w", mapError(err))
	}
	p.TelegramID = &telegramID
	return &p, nil
}

// LinkTelegram attaches telegramID to the user's profile, detaching it from
// any other profile first.
func (s *Store) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("LinkTelegram: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET telegram_id = NULL WHERE telegram_id = ? AND user_id <> ?`,
		telegramID, userID,
	); err != nil {
		return fmt.Errorf("LinkTelegram: detach: %w", mapError(err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, telegram_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET telegram_id = excluded.telegram_id`,
		userID, telegramID, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("LinkTelegram: upsert: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("LinkTelegram: commit: %w", err)
	}
	return nil
}

// InsertLinkCode stores a freshly generated code.
func (s *Store) InsertLinkCode(ctx context.Context, code *domain.LinkCode) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO telegram_link_codes (code, user_id, expires_at, used_at) VALUES (?, ?, ?, ?)`,
		code.Code, code.UserID, formatTime(code.ExpiresAt), nullTime(code.UsedAt),
	)
	if err != nil {
		return fmt.Errorf("InsertLinkCode: %w", mapError(err))
	}
	return nil
}

// GetLinkCode returns the code row, or store.ErrNotFound.
func (s *Store) GetLinkCode(ctx context.Context, code string) (*domain.LinkCode, error) {
	var (
		lc        domain.LinkCode
		expiresAt string
		usedAt    sql.NullString
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT code, user_id, expires_at, used_at FROM telegram_link_codes WHERE code = ?`,
		code,
	).Scan(&lc.Code, &lc.UserID, &expiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetLinkCode: %w", mapError(err))
	}

	if lc.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("GetLinkCode: expires_at: %w", err)
	}
	if usedAt.Valid {
		t, err := parseTime(usedAt.String)
		if err != nil {
			return nil, fmt.Errorf("GetLinkCode: used_at: %w", err)
		}
		lc.UsedAt = &t
	}
	return &lc, nil
}

// MarkLinkCodeUsed claims the code by setting used_at, or returns
// store.ErrNotFound when it is unknown or already used.
func (s *Store) MarkLinkCodeUsed(ctx context.Context, code string, usedAt time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE telegram_link_codes SET used_at = ? WHERE code = ? AND used_at IS NULL`,
		formatTime(usedAt), code,
	)
	if err != nil {
		return fmt.Errorf("MarkLinkCodeUsed: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkLinkCodeUsed: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("MarkLinkCodeUsed: %w", store.ErrNotFound)
	}
	return nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", store.ErrTableNotFound, err)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullPaymentMethod(pm domain.PaymentMethod) any {
	return emptyToNull(string(pm))
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// amountValue stores amounts as exact decimal strings.
func amountValue(a decimal.NullDecimal) any {
	if !a.Valid {
		return nil
	}
	return a.Decimal.String()
}
