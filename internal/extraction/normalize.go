package extraction

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/parser"
	"github.com/shopspring/decimal"
)

// defaultNote is used when neither the model nor the transcript yields a note.
const defaultNote = "transaction"

// Normalize coerces untrusted model output into a TransactionDraft.
// It returns nil when raw is not a JSON object. Invalid fields become nil or
// fall back to values derived from the transcript; it never panics.
func Normalize(raw any, transcript string) *domain.TransactionDraft {
	obj, ok := raw.(map[string]any)
	if !ok || obj == nil {
		return nil
	}

	draft := &domain.TransactionDraft{
		Direction:          coerceDirection(obj["direction"], transcript),
		Amount:             coerceAmount(obj["amount"]),
		Note:               coerceNote(obj["note"], transcript),
		Category:           optionalString(obj["category"]),
		PaymentMethod:      coercePaymentMethod(obj["payment_method"]),
		AccountHint:        optionalString(obj["account_hint"]),
		Merchant:           optionalString(obj["merchant"]),
		OccurredAt:         optionalString(obj["occurred_at"]),
		NeedsClarification: coerceClarification(obj["needs_clarification"]),
	}

	return draft
}

func coerceDirection(v any, transcript string) domain.Direction {
	if s, ok := v.(string); ok {
		if d, ok := domain.ParseDirection(s); ok {
			return d
		}
	}
	return parser.InferDirection(transcript)
}

// coerceAmount accepts finite non-negative numbers, or strings holding one
// once thousands separators are removed. Everything else is null.
func coerceAmount(v any) decimal.NullDecimal {
	var (
		d  decimal.Decimal
		ok bool
	)

	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.NullDecimal{}
		}
		d = decimal.NewFromFloat(val)
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.NullDecimal{}
		}
		d = decimal.NewFromFloat32(val)
	case int, int8, int16, int32, int64:
		d = decimal.NewFromInt(reflect.ValueOf(val).Int())
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(val).Uint()
		if u > math.MaxInt64 {
			return decimal.NullDecimal{}
		}
		d = decimal.NewFromInt(int64(u))
	case json.Number:
		d, ok = parseFiniteAmount(val.String())
		if !ok {
			return decimal.NullDecimal{}
		}
	case string:
		d, ok = parseFiniteAmount(strings.TrimSpace(strings.ReplaceAll(val, ",", "")))
		if !ok {
			return decimal.NullDecimal{}
		}
	default:
		return decimal.NullDecimal{}
	}

	if d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// maxAmountExponent bounds the decimal exponent kept from textual amounts.
// Values outside it are rebuilt from their float64 form so that formatting
// stays proportional to float64 precision.
const maxAmountExponent = 32

// parseFiniteAmount parses s as a decimal that is finite as a float64.
// "1e400", "Infinity" and "NaN" are rejected.
func parseFiniteAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		d = decimal.NewFromFloat(f)
	}
	return d, true
}

func coerceNote(v any, transcript string) string {
	note := ""
	if s, ok := v.(string); ok {
		note = strings.TrimSpace(s)
	}
	if note == "" {
		note = strings.TrimSpace(transcript)
	}
	if note == "" {
		note = defaultNote
	}
	// Trim again so a cut landing on a space keeps normalization idempotent.
	return strings.TrimSpace(domain.TruncateNote(note))
}

func coercePaymentMethod(v any) domain.PaymentMethod {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	pm, _ := domain.ParsePaymentMethod(s)
	return pm
}

func coerceClarification(v any) *domain.Clarification {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	fieldRaw, _ := obj["field"].(string)
	field, ok := domain.ParseClarificationField(fieldRaw)
	if !ok {
		return nil
	}

	question, _ := obj["question"].(string)
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}

	return &domain.Clarification{Field: field, Question: question}
}

// optionalString returns a trimmed copy of v when it is a non-blank string.
func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
