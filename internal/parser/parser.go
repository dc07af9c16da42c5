// Package parser turns terse free text such as "spent 250 groceries" into a
// direction, an amount and a note using keyword and regex heuristics only.
package parser

import (
	"regexp"
	"strings"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/shopspring/decimal"
)

// Result is the heuristic reading of a piece of text.
type Result struct {
	Direction domain.Direction
	Amount    decimal.NullDecimal
	Note      string
	Category  *string
}

var (
	amountRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	tagRe         = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
	leadingVerbRe = regexp.MustCompile(`(?i)^(spent|paid|expense|income|earned|received)\s*`)
)

var incomePrefixes = []string{"income", "earned", "received"}

// InferDirection returns income when the text starts with an income keyword,
// expense otherwise. Only the start of the text is considered.
func InferDirection(text string) domain.Direction {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range incomePrefixes {
		if strings.HasPrefix(lower, p) {
			return domain.DirectionIncome
		}
	}
	return domain.DirectionExpense
}

// Parse reads direction, amount, note and an optional #tag category from text.
func Parse(text string) Result {
	text = strings.TrimSpace(text)
	res := Result{Direction: InferDirection(text)}

	note := text
	if loc := amountRe.FindStringIndex(text); loc != nil {
		if d, err := decimal.NewFromString(text[loc[0]:loc[1]]); err == nil {
			res.Amount = decimal.NewNullDecimal(d)
		}
		note = text[:loc[0]] + text[loc[1]:]
	}

	if m := tagRe.FindStringSubmatchIndex(note); m != nil {
		tag := note[m[2]:m[3]]
		res.Category = &tag
		note = note[:m[0]] + note[m[1]:]
	}

	note = leadingVerbRe.ReplaceAllString(strings.TrimSpace(note), "")
	note = strings.Join(strings.Fields(note), " ")
	if note == "" {
		note = string(res.Direction)
	}
	res.Note = note

	return res
}
