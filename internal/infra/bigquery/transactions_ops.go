package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-capture/internal/domain"
	"google.golang.org/api/iterator"
)

// InsertTransactionWithClient streams a single transaction into the
// transactions table. Captured transactions are append-only.
func InsertTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, tx *domain.Transaction) error {
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, toTransactionRow(tx)); err != nil {
		return fmt.Errorf("InsertTransaction: inserting row: %w", mapError(err))
	}
	return nil
}

// ListTransactionsWithClient returns the user's latest transactions, newest first.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string, limit int) ([]*domain.Transaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			direction,
			amount,
			note,
			occurred_ts,
			category,
			payment_method,
			account_hint,
			merchant,
			source,
			created_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`, ds.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", mapError(err))
	}

	var txs []*domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iterating rows: %w", err)
		}
		tx, err := r.toTransaction()
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}
