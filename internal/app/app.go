// Package app assembles the capture pipeline from configuration. The
// binaries under cmd/ share it so they wire the same stack.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-capture/internal/capture"
	"github.com/dvloznov/finance-capture/internal/config"
	"github.com/dvloznov/finance-capture/internal/extraction"
	infraBQ "github.com/dvloznov/finance-capture/internal/infra/bigquery"
	"github.com/dvloznov/finance-capture/internal/infra/sqlite"
	"github.com/dvloznov/finance-capture/internal/llm"
	"github.com/dvloznov/finance-capture/internal/notionsync"
	"github.com/dvloznov/finance-capture/internal/store"
)

// OpenStore opens the backend named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite, "":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return s, nil
	case config.BackendBigQuery:
		s, err := infraBQ.NewBigQueryStore(ctx, infraBQ.Dataset{
			ProjectID: cfg.BQProject,
			DatasetID: cfg.BQDataset,
		})
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("OpenStore: unknown backend %q", cfg.StoreBackend)
}

// NewMirror returns the Notion mirror, or nil when Notion is not configured.
func NewMirror(cfg *config.Config) *notionsync.Mirror {
	if !cfg.NotionEnabled() {
		return nil
	}
	return notionsync.NewMirror(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID, cfg.Currency)
}

// NewCaptureService builds the extraction orchestrator and the capture
// workflow on top of s. With no extraction provider every capture takes
// the fallback path.
func NewCaptureService(ctx context.Context, cfg *config.Config, s store.Store, log zerolog.Logger) (*capture.Service, error) {
	completer, err := llm.NewCompleter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewCaptureService: %w", err)
	}

	opts := []capture.Option{
		capture.WithLocation(cfg.PromptLocation()),
		capture.WithCurrencySymbol(cfg.CurrencySymbol),
	}
	if mirror := NewMirror(cfg); mirror != nil {
		opts = append(opts, capture.WithMirror(mirror))
	}

	if completer == nil {
		log.Warn().Msg("No extraction provider configured; captures will be saved as pending")
		return capture.NewService(nil, s, log, opts...), nil
	}

	extractor := extraction.NewExtractor(completer, s, extraction.NewAvailability(), log,
		extraction.WithTimeout(cfg.ExtractionTimeout),
		extraction.WithPromptOptions(extraction.PromptOptions{
			Currency: cfg.Currency,
			Timezone: cfg.PromptTimezone,
		}),
	)
	return capture.NewService(extractor, s, log, opts...), nil
}
