package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// NoteMaxLen is the maximum number of characters kept in a transaction note.
const NoteMaxLen = 80

// Direction tells whether money left or entered the user's pocket.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// ParseDirection accepts only the exact wire values "expense" and "income".
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionExpense, DirectionIncome:
		return Direction(s), true
	}
	return "", false
}

// PaymentMethod is a closed set of instruments. The zero value means "unknown".
type PaymentMethod string

const (
	PaymentUPI          PaymentMethod = "upi"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentNetbanking   PaymentMethod = "netbanking"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCash         PaymentMethod = "cash"
	PaymentOther        PaymentMethod = "other"
)

var paymentMethods = map[PaymentMethod]struct{}{
	PaymentUPI:          {},
	PaymentCreditCard:   {},
	PaymentDebitCard:    {},
	PaymentNetbanking:   {},
	PaymentBankTransfer: {},
	PaymentCash:         {},
	PaymentOther:        {},
}

// ParsePaymentMethod returns the matching method, or ("", false) for anything
// outside the allowlist. Callers treat a miss as "absent", not as an error.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	pm := PaymentMethod(s)
	if _, ok := paymentMethods[pm]; ok {
		return pm, true
	}
	return "", false
}

// ClarificationField names the draft field the model could not settle.
type ClarificationField string

const (
	ClarifyAmount    ClarificationField = "amount"
	ClarifyDirection ClarificationField = "direction"
	ClarifyAccount   ClarificationField = "account"
)

// ParseClarificationField accepts only amount, direction or account.
func ParseClarificationField(s string) (ClarificationField, bool) {
	switch ClarificationField(s) {
	case ClarifyAmount, ClarifyDirection, ClarifyAccount:
		return ClarificationField(s), true
	}
	return "", false
}

// Clarification is a question to send back instead of saving.
type Clarification struct {
	Field    ClarificationField `json:"field"`
	Question string             `json:"question"`
}

// TransactionDraft is a candidate transaction that has not been persisted.
// A draft carrying NeedsClarification must never be saved.
type TransactionDraft struct {
	Direction          Direction
	Amount             decimal.NullDecimal
	Note               string
	Category           *string
	PaymentMethod      PaymentMethod
	AccountHint        *string
	Merchant           *string
	OccurredAt         *string // as produced by the model; validated at save time
	NeedsClarification *Clarification
}

// MarshalJSON renders the draft in the same shape the extraction model is
// asked to produce, so a draft can be fed back through normalization.
func (d TransactionDraft) MarshalJSON() ([]byte, error) {
	var amount any
	if d.Amount.Valid {
		amount = json.Number(d.Amount.Decimal.String())
	}
	var pm any
	if d.PaymentMethod != "" {
		pm = string(d.PaymentMethod)
	}
	return json.Marshal(struct {
		Direction          Direction      `json:"direction"`
		Amount             any            `json:"amount"`
		Note               string         `json:"note"`
		Category           *string        `json:"category"`
		PaymentMethod      any            `json:"payment_method"`
		AccountHint        *string        `json:"account_hint"`
		Merchant           *string        `json:"merchant"`
		OccurredAt         *string        `json:"occurred_at"`
		NeedsClarification *Clarification `json:"needs_clarification"`
	}{
		Direction:          d.Direction,
		Amount:             amount,
		Note:               d.Note,
		Category:           d.Category,
		PaymentMethod:      pm,
		AccountHint:        d.AccountHint,
		Merchant:           d.Merchant,
		OccurredAt:         d.OccurredAt,
		NeedsClarification: d.NeedsClarification,
	})
}

// Source records which front-end captured a transaction.
type Source string

const (
	SourceTelegramText  Source = "telegram_text"
	SourceTelegramVoice Source = "telegram_voice"
	SourceShortcut      Source = "shortcut"
	SourceCLI           Source = "cli"
)

// Transaction is a persisted capture. Amount is null for fallback saves the
// user is expected to complete later.
type Transaction struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Direction     Direction           `json:"direction"`
	Amount        decimal.NullDecimal `json:"amount"`
	Note          string              `json:"note"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Category      *string             `json:"category,omitempty"`
	PaymentMethod PaymentMethod       `json:"payment_method,omitempty"`
	AccountHint   *string             `json:"account_hint,omitempty"`
	Merchant      *string             `json:"merchant,omitempty"`
	Source        Source              `json:"source"`
	CreatedAt     time.Time           `json:"created_at"`
}

// TruncateNote cuts s to NoteMaxLen runes.
func TruncateNote(s string) string {
	return Truncate(s, NoteMaxLen)
}

// Truncate cuts s to at most n runes without splitting a multi-byte character.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
