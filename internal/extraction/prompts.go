package extraction

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PromptOptions carries the locale assumptions baked into the prompt.
type PromptOptions struct {
	Currency string // e.g. "INR"
	Timezone string // IANA name used for occurred_at, e.g. "Asia/Kolkata"
}

const extractionPromptTemplate = `You are a transaction extraction engine for a personal finance app.
Return ONLY valid JSON. No markdown. No extra keys.

Rules:
- Currency is {CURRENCY}.
- If direction is unclear, infer it from verbs:
  - expense: paid, spent, bought, ordered, recharge, sent
  - income: received, got salary, refund received, credited
- If the amount is ambiguous, set amount=null and ask for it in "needs_clarification".
- If the account is unclear, set account_hint=null.
- occurred_at: if the user mentions a date or time, convert it to ISO-8601 in {TIMEZONE}; otherwise null.
- Keep note short (max 80 chars). category may be null.
- NEVER fabricate bank names or merchants.

Transcript:
{TRANSCRIPT_JSON}

Known user accounts (user-configured labels):
{ACCOUNTS_JSON}

Return this JSON schema exactly:
{
  "direction": "expense|income",
  "amount": number|null,
  "note": string,
  "category": string|null,
  "payment_method": "upi|credit_card|debit_card|netbanking|bank_transfer|cash|other|null",
  "account_hint": string|null,
  "merchant": string|null,
  "occurred_at": string|null,
  "needs_clarification": null|{ "field": "amount|direction|account", "question": string }
}`

// buildExtractionPrompt embeds the transcript and account labels, both
// JSON-escaped, into the fixed instruction template.
func buildExtractionPrompt(transcript string, accountLabels []string, opts PromptOptions) string {
	if accountLabels == nil {
		accountLabels = []string{}
	}

	r := strings.NewReplacer(
		"{CURRENCY}", opts.Currency,
		"{TIMEZONE}", opts.Timezone,
		"{TRANSCRIPT_JSON}", jsonString(transcript),
		"{ACCOUNTS_JSON}", jsonString(accountLabels),
	)
	return r.Replace(extractionPromptTemplate)
}

// jsonString encodes v without HTML escaping so the model sees the text as typed.
func jsonString(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSpace(buf.String())
}
