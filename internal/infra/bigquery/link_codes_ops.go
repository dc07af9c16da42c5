package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/dvloznov/finance-capture/internal/store"
	"google.golang.org/api/iterator"
)

// InsertLinkCodeWithClient stores a link code. Uses DML INSERT so the row
// can be updated right away, which streaming inserts do not allow.
func InsertLinkCodeWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, code *domain.LinkCode) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (code, user_id, expires_ts, used_ts)
		VALUES (@code, @user_id, @expires_ts, NULL)
	`, ds.table(linkCodesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "code", Value: code.Code},
		{Name: "user_id", Value: code.UserID},
		{Name: "expires_ts", Value: code.ExpiresAt.UTC()},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertLinkCode: %w", err)
	}
	return nil
}

// GetLinkCodeWithClient returns the code row, or store.ErrNotFound.
func GetLinkCodeWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, code string) (*domain.LinkCode, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT code, user_id, expires_ts, used_ts
		FROM %s
		WHERE code = @code
		ORDER BY expires_ts DESC
		LIMIT 1
	`, ds.table(linkCodesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "code", Value: code},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetLinkCode: reading query: %w", mapError(err))
	}

	var row LinkCodeRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetLinkCode: iterating: %w", err)
	}

	return row.toLinkCode(), nil
}

// MarkLinkCodeUsedWithClient claims the code by setting used_ts. Returns
// store.ErrNotFound when the code is unknown or already used.
func MarkLinkCodeUsedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, code string, usedAt time.Time) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET used_ts = @used_ts
		WHERE code = @code AND used_ts IS NULL
	`, ds.table(linkCodesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "used_ts", Value: usedAt.UTC()},
		{Name: "code", Value: code},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("MarkLinkCodeUsed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("MarkLinkCodeUsed: %w", store.ErrNotFound)
	}
	return nil
}
