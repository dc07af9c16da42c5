package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// GetVoiceCountWithClient returns the voice counter for (userID, day), or 0.
func GetVoiceCountWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID, day string) (int, error) {
	date, err := civil.ParseDate(day)
	if err != nil {
		return 0, fmt.Errorf("GetVoiceCount: parsing day: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		SELECT voice_count
		FROM %s
		WHERE user_id = @user_id AND day = @day
		LIMIT 1
	`, ds.table(usageTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "day", Value: date},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("GetVoiceCount: reading query: %w", mapError(err))
	}

	var row struct {
		VoiceCount int64 `bigquery:"voice_count"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("GetVoiceCount: iterating: %w", err)
	}

	return int(row.VoiceCount), nil
}

// UpsertVoiceCountWithClient writes the voice counter for (userID, day).
func UpsertVoiceCountWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID, day string, count int) error {
	date, err := civil.ParseDate(day)
	if err != nil {
		return fmt.Errorf("UpsertVoiceCount: parsing day: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @user_id AS user_id, @day AS day, @voice_count AS voice_count) S
		ON T.user_id = S.user_id AND T.day = S.day
		WHEN MATCHED THEN
			UPDATE SET voice_count = S.voice_count
		WHEN NOT MATCHED THEN
			INSERT (user_id, day, voice_count) VALUES (S.user_id, S.day, S.voice_count)
	`, ds.table(usageTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "day", Value: date},
		{Name: "voice_count", Value: int64(count)},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertVoiceCount: %w", err)
	}
	return nil
}
