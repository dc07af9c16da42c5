package parser

import (
	"testing"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDirection(t *testing.T) {
	tests := []struct {
		text string
		want domain.Direction
	}{
		{"income 5000 freelance", domain.DirectionIncome},
		{"Earned 1200 tutoring", domain.DirectionIncome},
		{"RECEIVED 300 from mom", domain.DirectionIncome},
		{"  received 10", domain.DirectionIncome},
		{"paid 450 groceries", domain.DirectionExpense},
		{"refund received 200", domain.DirectionExpense}, // prefix only
		{"chai 20", domain.DirectionExpense},
		{"", domain.DirectionExpense},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, InferDirection(tt.text))
			assert.Equal(t, tt.want, Parse(tt.text).Direction)
		})
	}
}

func TestParse_Amount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string // empty means no amount
	}{
		{"leading", "450 groceries", "450"},
		{"middle", "paid 450 groceries", "450"},
		{"trailing", "groceries 450", "450"},
		{"fractional", "coffee 120.50", "120.5"},
		{"first number wins", "paid 450 then 20", "450"},
		{"no digits", "spent something at the store", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.text)
			if tt.want == "" {
				assert.False(t, res.Amount.Valid)
				return
			}
			require.True(t, res.Amount.Valid)
			assert.True(t, res.Amount.Decimal.Equal(decimal.RequireFromString(tt.want)), "got %s", res.Amount.Decimal)
		})
	}
}

func TestParse_Note(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"spent 250 groceries", "groceries"},
		{"paid 450 groceries via UPI HDFC", "groceries via UPI HDFC"},
		{"Paid 100", "expense"},
		{"income 5000", "income"},
		{"earned 1200 tutoring", "tutoring"},
		{"chai 20", "chai"},
		{"lunch 250 with team", "lunch with team"},
		{"450 spent food", "food"},
		{"  paid   300  rent ", "rent"},
		{"groceries spent 200", "groceries spent"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text).Note)
		})
	}
}

func TestParse_CategoryTag(t *testing.T) {
	res := Parse("spent 300 dinner #food with friends")
	require.NotNil(t, res.Category)
	assert.Equal(t, "food", *res.Category)
	assert.Equal(t, "dinner with friends", res.Note)

	res = Parse("spent 300 dinner")
	assert.Nil(t, res.Category)
}

func TestParse_Deterministic(t *testing.T) {
	a := Parse("received 999.99 bonus #salary")
	b := Parse("received 999.99 bonus #salary")
	assert.Equal(t, a, b)
	assert.Equal(t, domain.DirectionIncome, a.Direction)
	assert.Equal(t, "bonus", a.Note)
}
