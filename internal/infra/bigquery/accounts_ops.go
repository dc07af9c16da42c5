package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-capture/internal/domain"
	"google.golang.org/api/iterator"
)

// ListAccountLabelsWithClient returns up to limit account labels for the
// user. A missing accounts table is reported as store.ErrTableNotFound.
func ListAccountLabelsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string, limit int) ([]domain.AccountLabel, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, label, name
		FROM %s
		WHERE user_id = @user_id
		LIMIT @limit
	`, ds.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccountLabels: reading query: %w", mapError(err))
	}

	var labels []domain.AccountLabel
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccountLabels: iterating: %w", err)
		}
		labels = append(labels, domain.AccountLabel{Label: row.Label.StringVal, Name: row.Name.StringVal})
	}

	return labels, nil
}
