package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/logger"
	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/jomei/notionapi"
)

// queryPageSize is the Notion maximum page size.
const queryPageSize = 100

// Mirror copies every saved transaction into a Notion database.
type Mirror struct {
	client     NotionService
	databaseID string
	currency   string
}

// NewMirror creates a Mirror writing to databaseID.
func NewMirror(client NotionService, databaseID, currency string) *Mirror {
	return &Mirror{client: client, databaseID: databaseID, currency: currency}
}

// MirrorTransaction creates one Notion page for tx.
func (m *Mirror) MirrorTransaction(ctx context.Context, tx *domain.Transaction) error {
	if _, err := m.client.CreatePage(ctx, m.databaseID, TransactionToNotionProperties(tx, m.currency)); err != nil {
		return fmt.Errorf("MirrorTransaction: %w", err)
	}
	return nil
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Total   int
	Created int
	Skipped int
	Failed  int
}

// Backfill mirrors the user's most recent transactions that are not yet in
// the Notion database. Pages are matched on the Transaction ID property.
func (m *Mirror) Backfill(ctx context.Context, txs store.TransactionStore, userID string, limit int, dryRun bool) (BackfillResult, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Bool("dry_run", dryRun).Logger()

	transactions, err := txs.ListTransactions(ctx, userID, limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("Backfill: list transactions: %w", err)
	}

	pages, err := queryAllNotionPages(ctx, m.client, m.databaseID)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("Backfill: %w", err)
	}

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractTransactionID(page); id != "" {
			existing[id] = true
		}
	}

	res := BackfillResult{Total: len(transactions)}
	for _, tx := range transactions {
		if existing[tx.ID] {
			res.Skipped++
			continue
		}

		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
			res.Created++
			continue
		}

		if err := m.MirrorTransaction(ctx, tx); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		res.Created++
	}

	log.Info().
		Int("total", res.Total).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Notion backfill completed")

	return res, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: queryPageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
