package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the number of fractional digits a NUMERIC column keeps.
const numericScale = 9

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	Direction string   `bigquery:"direction"` // REQUIRED: expense | income
	Amount    *big.Rat `bigquery:"amount"`    // NULLABLE NUMERIC, NULL for fallback saves
	Note      string   `bigquery:"note"`      // REQUIRED

	OccurredTS time.Time `bigquery:"occurred_ts"` // REQUIRED

	Category      bigquery.NullString `bigquery:"category"`       // NULLABLE
	PaymentMethod bigquery.NullString `bigquery:"payment_method"` // NULLABLE
	AccountHint   bigquery.NullString `bigquery:"account_hint"`   // NULLABLE
	Merchant      bigquery.NullString `bigquery:"merchant"`       // NULLABLE

	Source    string    `bigquery:"source"`     // REQUIRED
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type AccountRow struct {
	UserID string              `bigquery:"user_id"`
	Label  bigquery.NullString `bigquery:"label"`
	Name   bigquery.NullString `bigquery:"name"`
}

type ProfileRow struct {
	UserID     string             `bigquery:"user_id"`
	TelegramID bigquery.NullInt64 `bigquery:"telegram_id"`
}

type LinkCodeRow struct {
	Code      string                 `bigquery:"code"`
	UserID    string                 `bigquery:"user_id"`
	ExpiresTS time.Time              `bigquery:"expires_ts"`
	UsedTS    bigquery.NullTimestamp `bigquery:"used_ts"`
}

// toTransactionRow converts a domain transaction into its table row.
func toTransactionRow(tx *domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Direction:     string(tx.Direction),
		Note:          tx.Note,
		OccurredTS:    tx.OccurredAt.UTC(),
		Category:      nullString(tx.Category),
		AccountHint:   nullString(tx.AccountHint),
		Merchant:      nullString(tx.Merchant),
		Source:        string(tx.Source),
		CreatedTS:     tx.CreatedAt.UTC(),
	}
	if tx.Amount.Valid {
		row.Amount = tx.Amount.Decimal.Rat()
	}
	if tx.PaymentMethod != "" {
		row.PaymentMethod = bigquery.NullString{StringVal: string(tx.PaymentMethod), Valid: true}
	}
	return row
}

// toTransaction converts a table row back into a domain transaction.
func (r *TransactionRow) toTransaction() (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		Direction:   domain.Direction(r.Direction),
		Note:        r.Note,
		OccurredAt:  r.OccurredTS,
		Category:    stringPtr(r.Category),
		AccountHint: stringPtr(r.AccountHint),
		Merchant:    stringPtr(r.Merchant),
		Source:      domain.Source(r.Source),
		CreatedAt:   r.CreatedTS,
	}
	if r.Amount != nil {
		d, err := decimal.NewFromString(r.Amount.FloatString(numericScale))
		if err != nil {
			return nil, fmt.Errorf("toTransaction: amount: %w", err)
		}
		tx.Amount = decimal.NewNullDecimal(d)
	}
	if r.PaymentMethod.Valid {
		tx.PaymentMethod, _ = domain.ParsePaymentMethod(r.PaymentMethod.StringVal)
	}
	return tx, nil
}

func (r *LinkCodeRow) toLinkCode() *domain.LinkCode {
	lc := &domain.LinkCode{
		Code:      r.Code,
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresTS,
	}
	if r.UsedTS.Valid {
		t := r.UsedTS.Timestamp
		lc.UsedAt = &t
	}
	return lc
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func stringPtr(ns bigquery.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.StringVal
	return &s
}
