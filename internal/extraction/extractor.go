package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/rs/zerolog"
)

const (
	// MaxAccountLabels caps how many account labels are embedded in the prompt.
	MaxAccountLabels = 20

	// DefaultTimeout bounds a single call to the extraction model.
	DefaultTimeout = 8 * time.Second
)

// ErrEmptyCompletion is returned by a Completer when the model produced no content.
var ErrEmptyCompletion = errors.New("extraction: empty completion")

// Completer provides an interface for the external text-to-JSON capability.
// Implementations send exactly one user message with deterministic sampling
// and ask for a JSON-only answer, returning the first choice's content.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Availability tracks optional lookups that were found to be permanently
// unavailable. Flags only ever go from available to unavailable.
type Availability struct {
	accountsMissing atomic.Bool
}

// NewAvailability returns an Availability with every lookup enabled.
func NewAvailability() *Availability {
	return &Availability{}
}

// AccountLabels reports whether the account label lookup should be attempted.
func (a *Availability) AccountLabels() bool {
	return !a.accountsMissing.Load()
}

// DisableAccountLabels turns the account label lookup off for the rest of the process.
func (a *Availability) DisableAccountLabels() {
	a.accountsMissing.Store(true)
}

// Extractor turns a transcript into a TransactionDraft using the extraction model.
type Extractor struct {
	completer    Completer
	accounts     store.AccountLabelLister
	availability *Availability
	prompt       PromptOptions
	timeout      time.Duration
	log          zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout overrides DefaultTimeout for model calls.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPromptOptions sets the currency and timezone stated in the prompt.
func WithPromptOptions(opts PromptOptions) Option {
	return func(e *Extractor) {
		e.prompt = opts
	}
}

// NewExtractor creates a new Extractor. availability may be shared between
// extractors; a nil value gets a fresh one.
func NewExtractor(completer Completer, accounts store.AccountLabelLister, availability *Availability, log zerolog.Logger, opts ...Option) *Extractor {
	if availability == nil {
		availability = NewAvailability()
	}
	e := &Extractor{
		completer:    completer,
		accounts:     accounts,
		availability: availability,
		prompt:       PromptOptions{Currency: "INR", Timezone: "Asia/Kolkata"},
		timeout:      DefaultTimeout,
		log:          log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns a normalized draft, or nil when extraction is unavailable
// or failed. Failures are logged and never returned to the caller.
func (e *Extractor) Extract(ctx context.Context, transcript, userID string) (draft *domain.TransactionDraft) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Str("user_id", userID).
				Msg("Transaction extraction panicked")
			draft = nil
		}
	}()

	draft, err := e.extract(ctx, transcript, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("Transaction extraction failed")
		return nil
	}
	return draft
}

func (e *Extractor) extract(ctx context.Context, transcript, userID string) (*domain.TransactionDraft, error) {
	labels := e.accountLabels(ctx, userID)
	prompt := buildExtractionPrompt(transcript, labels, e.prompt)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	content, err := e.completer.Complete(callCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: complete: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("extract: %w", ErrEmptyCompletion)
	}

	parsed, err := decodeModelJSON(content)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	draft := Normalize(parsed, transcript)
	if draft == nil {
		return nil, fmt.Errorf("extract: model output is %T, want object", parsed)
	}
	return draft, nil
}

// accountLabels is a best-effort lookup: errors yield an empty list, and a
// missing table disables the lookup for good.
func (e *Extractor) accountLabels(ctx context.Context, userID string) []string {
	if e.accounts == nil || !e.availability.AccountLabels() {
		return []string{}
	}

	rows, err := e.accounts.ListAccountLabels(ctx, userID, MaxAccountLabels)
	if err != nil {
		if errors.Is(err, store.ErrTableNotFound) {
			e.availability.DisableAccountLabels()
			e.log.Warn().Msg("Accounts table not found, account label lookup disabled")
		} else {
			e.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to list account labels")
		}
		return []string{}
	}

	seen := make(map[string]bool)
	labels := make([]string, 0, len(rows))
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		labels = append(labels, s)
	}
	for _, row := range rows {
		add(row.Label)
		add(row.Name)
	}

	return labels
}
