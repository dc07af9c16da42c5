// Package bigquery implements the capture store on BigQuery. Tables are
// created by cmd/migrate from migrations/bigquery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/store"
	"google.golang.org/api/googleapi"
)

const (
	transactionsTable = "transactions"
	accountsTable     = "accounts"
	usageTable        = "usage_daily"
	profilesTable     = "profiles"
	linkCodesTable    = "telegram_link_codes"
)

// Dataset names the BigQuery dataset holding the capture tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// table returns the fully qualified, backtick-quoted name of a table.
func (d Dataset) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// BigQueryStore is the concrete implementation of store.Store backed by
// BigQuery. It holds a shared client for all operations.
type BigQueryStore struct {
	client *bigquery.Client
	ds     Dataset
}

var _ store.Store = (*BigQueryStore)(nil)

// NewBigQueryStore creates a new BigQueryStore with its own client.
func NewBigQueryStore(ctx context.Context, ds Dataset) (*BigQueryStore, error) {
	if ds.ProjectID == "" || ds.DatasetID == "" {
		return nil, fmt.Errorf("NewBigQueryStore: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryStore: creating client: %w", err)
	}
	return &BigQueryStore{client: client, ds: ds}, nil
}

// Close closes the BigQuery client connection.
func (s *BigQueryStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// InsertTransaction delegates to InsertTransactionWithClient with the shared client.
func (s *BigQueryStore) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	return InsertTransactionWithClient(ctx, s.client, s.ds, tx)
}

// ListTransactions delegates to ListTransactionsWithClient with the shared client.
func (s *BigQueryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	return ListTransactionsWithClient(ctx, s.client, s.ds, userID, limit)
}

// ListAccountLabels delegates to ListAccountLabelsWithClient with the shared client.
func (s *BigQueryStore) ListAccountLabels(ctx context.Context, userID string, limit int) ([]domain.AccountLabel, error) {
	return ListAccountLabelsWithClient(ctx, s.client, s.ds, userID, limit)
}

// GetVoiceCount delegates to GetVoiceCountWithClient with the shared client.
func (s *BigQueryStore) GetVoiceCount(ctx context.Context, userID, day string) (int, error) {
	return GetVoiceCountWithClient(ctx, s.client, s.ds, userID, day)
}

// UpsertVoiceCount delegates to UpsertVoiceCountWithClient with the shared client.
func (s *BigQueryStore) UpsertVoiceCount(ctx context.Context, userID, day string, count int) error {
	return UpsertVoiceCountWithClient(ctx, s.client, s.ds, userID, day, count)
}

// FindUserByTelegramID delegates to FindUserByTelegramIDWithClient with the shared client.
func (s *BigQueryStore) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.Profile, error) {
	return FindUserByTelegramIDWithClient(ctx, s.client, s.ds, telegramID)
}

// LinkTelegram delegates to LinkTelegramWithClient with the shared client.
func (s *BigQueryStore) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	return LinkTelegramWithClient(ctx, s.client, s.ds, userID, telegramID)
}

// InsertLinkCode delegates to InsertLinkCodeWithClient with the shared client.
func (s *BigQueryStore) InsertLinkCode(ctx context.Context, code *domain.LinkCode) error {
	return InsertLinkCodeWithClient(ctx, s.client, s.ds, code)
}

// GetLinkCode delegates to GetLinkCodeWithClient with the shared client.
func (s *BigQueryStore) GetLinkCode(ctx context.Context, code string) (*domain.LinkCode, error) {
	return GetLinkCodeWithClient(ctx, s.client, s.ds, code)
}

// MarkLinkCodeUsed delegates to MarkLinkCodeUsedWithClient with the shared client.
func (s *BigQueryStore) MarkLinkCodeUsed(ctx context.Context, code string, usedAt time.Time) error {
	return MarkLinkCodeUsedWithClient(ctx, s.client, s.ds, code, usedAt)
}

// runDML runs a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", mapError(err))
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", mapError(err))
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", mapError(err))
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// mapError turns BigQuery "not found" responses into store.ErrTableNotFound.
// Queries report it as an HTTP 404, job statuses as a notFound reason.
func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", store.ErrTableNotFound, err)
	}
	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) && bqErr.Reason == "notFound" {
		return fmt.Errorf("%w: %v", store.ErrTableNotFound, err)
	}
	return err
}
