package notionsync

import (
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Notion transactions database.
const (
	PropNote          = "Note"
	PropTransactionID = "Transaction ID"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropCurrency      = "Currency"
	PropDirection     = "Direction"
	PropCategory      = "Category"
	PropPaymentMethod = "Payment Method"
	PropAccount       = "Account"
	PropMerchant      = "Merchant"
	PropSource        = "Source"
	PropUserID        = "User ID"
	PropCapturedAt    = "Captured At"
	PropAmountPending = "Amount Pending"
)

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func selectOption(s string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: s}}
}

func date(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
}

// TransactionToNotionProperties converts a captured transaction to Notion
// properties. Optional fields are only set when present.
func TransactionToNotionProperties(tx *domain.Transaction, currency string) notionapi.Properties {
	props := notionapi.Properties{
		PropNote: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: tx.Note}},
			},
		},
		PropTransactionID: richText(tx.ID),
		PropUserID:        richText(tx.UserID),
		PropDate:          date(tx.OccurredAt),
		PropCapturedAt:    date(tx.CreatedAt),
		PropDirection:     selectOption(string(tx.Direction)),
		PropAmountPending: notionapi.CheckboxProperty{Checkbox: !tx.Amount.Valid},
	}

	if tx.Amount.Valid {
		f, _ := tx.Amount.Decimal.Float64()
		props[PropAmount] = notionapi.NumberProperty{Number: f}
	}

	if currency != "" {
		props[PropCurrency] = selectOption(currency)
	}

	if tx.Category != nil && *tx.Category != "" {
		props[PropCategory] = selectOption(*tx.Category)
	}

	if tx.PaymentMethod != "" {
		props[PropPaymentMethod] = selectOption(string(tx.PaymentMethod))
	}

	if tx.AccountHint != nil && *tx.AccountHint != "" {
		props[PropAccount] = richText(*tx.AccountHint)
	}

	if tx.Merchant != nil && *tx.Merchant != "" {
		props[PropMerchant] = richText(*tx.Merchant)
	}

	if tx.Source != "" {
		props[PropSource] = selectOption(string(tx.Source))
	}

	return props
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropTransactionID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
