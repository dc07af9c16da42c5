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

// FindUserByTelegramIDWithClient returns the profile linked to telegramID,
// or store.ErrNotFound.
func FindUserByTelegramIDWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, telegramID int64) (*domain.Profile, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, telegram_id
		FROM %s
		WHERE telegram_id = @telegram_id
		LIMIT 1
	`, ds.table(profilesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "telegram_id", Value: telegramID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindUserByTelegramID: reading query: %w", mapError(err))
	}

	var row ProfileRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindUserByTelegramID: iterating: %w", err)
	}

	p := &domain.Profile{UserID: row.UserID}
	if row.TelegramID.Valid {
		id := row.TelegramID.Int64
		p.TelegramID = &id
	}
	return p, nil
}

// LinkTelegramWithClient attaches telegramID to the user's profile, creating
// the profile when needed and detaching the id from any other profile.
func LinkTelegramWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string, telegramID int64) error {
	detach := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET telegram_id = NULL
		WHERE telegram_id = @telegram_id AND user_id != @user_id
	`, ds.table(profilesTable)))
	detach.Parameters = []bigquery.QueryParameter{
		{Name: "telegram_id", Value: telegramID},
		{Name: "user_id", Value: userID},
	}
	if _, err := runDML(ctx, detach); err != nil {
		return fmt.Errorf("LinkTelegram: detaching: %w", err)
	}

	merge := client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @user_id AS user_id, @telegram_id AS telegram_id) S
		ON T.user_id = S.user_id
		WHEN MATCHED THEN
			UPDATE SET telegram_id = S.telegram_id
		WHEN NOT MATCHED THEN
			INSERT (user_id, telegram_id, created_ts) VALUES (S.user_id, S.telegram_id, @created_ts)
	`, ds.table(profilesTable)))
	merge.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "telegram_id", Value: telegramID},
		{Name: "created_ts", Value: time.Now().UTC()},
	}
	if _, err := runDML(ctx, merge); err != nil {
		return fmt.Errorf("LinkTelegram: merging: %w", err)
	}

	return nil
}
