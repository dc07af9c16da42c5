package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-capture/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNotion struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	created           []notionapi.Properties
}

func (m *mockNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		if _, err := m.CreatePageFunc(ctx, databaseID, properties); err != nil {
			return nil, err
		}
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: "page-1"}, nil
}

func (m *mockNotion) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, filter)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

type mockTxs struct {
	rows []*domain.Transaction
}

func (m *mockTxs) InsertTransaction(ctx context.Context, tx *domain.Transaction) error { return nil }

func (m *mockTxs) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	return m.rows, nil
}

func strPtr(s string) *string { return &s }

var capturedAt = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func sampleTx(id string) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		UserID:        "user-1",
		Direction:     domain.DirectionExpense,
		Amount:        decimal.NewNullDecimal(decimal.NewFromInt(450)),
		Note:          "groceries",
		PaymentMethod: domain.PaymentUPI,
		AccountHint:   strPtr("HDFC"),
		Source:        domain.SourceTelegramVoice,
		OccurredAt:    capturedAt,
		CreatedAt:     capturedAt,
	}
}

func pageWithID(id string) notionapi.Page {
	return notionapi.Page{Properties: notionapi.Properties{
		PropTransactionID: &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: id}}},
	}}
}

func TestTransactionToNotionProperties(t *testing.T) {
	props := TransactionToNotionProperties(sampleTx("tx-1"), "INR")

	title := props[PropNote].(notionapi.TitleProperty)
	assert.Equal(t, "groceries", title.Title[0].Text.Content)
	assert.Equal(t, 450.0, props[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "INR", props[PropCurrency].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "expense", props[PropDirection].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "upi", props[PropPaymentMethod].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "HDFC", props[PropAccount].(notionapi.RichTextProperty).RichText[0].Text.Content)
	assert.Equal(t, "telegram_voice", props[PropSource].(notionapi.SelectProperty).Select.Name)
	assert.False(t, props[PropAmountPending].(notionapi.CheckboxProperty).Checkbox)
	assert.NotContains(t, props, PropCategory)
	assert.NotContains(t, props, PropMerchant)
}

func TestTransactionToNotionProperties_AmountPending(t *testing.T) {
	tx := sampleTx("tx-2")
	tx.Amount = decimal.NullDecimal{}
	tx.PaymentMethod = ""

	props := TransactionToNotionProperties(tx, "")

	assert.NotContains(t, props, PropAmount)
	assert.NotContains(t, props, PropCurrency)
	assert.NotContains(t, props, PropPaymentMethod)
	assert.True(t, props[PropAmountPending].(notionapi.CheckboxProperty).Checkbox)
}

func TestMirror_MirrorTransaction(t *testing.T) {
	client := &mockNotion{CreatePageFunc: func(ctx context.Context, databaseID string, _ notionapi.Properties) (*notionapi.Page, error) {
		assert.Equal(t, "db-1", databaseID)
		return nil, nil
	}}

	require.NoError(t, NewMirror(client, "db-1", "INR").MirrorTransaction(context.Background(), sampleTx("tx-1")))
	assert.Len(t, client.created, 1)

	client.CreatePageFunc = func(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
		return nil, errors.New("rate limited")
	}
	assert.ErrorContains(t, NewMirror(client, "db-1", "INR").MirrorTransaction(context.Background(), sampleTx("tx-1")), "rate limited")
}

func TestMirror_Backfill(t *testing.T) {
	calls := 0
	client := &mockNotion{QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		calls++
		if calls == 1 {
			assert.Empty(t, filter.StartCursor)
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageWithID("tx-1")}, HasMore: true, NextCursor: "c2"}, nil
		}
		assert.Equal(t, notionapi.Cursor("c2"), filter.StartCursor)
		return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageWithID("tx-2")}}, nil
	}}
	txs := &mockTxs{rows: []*domain.Transaction{sampleTx("tx-1"), sampleTx("tx-2"), sampleTx("tx-3")}}

	res, err := NewMirror(client, "db", "INR").Backfill(context.Background(), txs, "user-1", 50, false)
	require.NoError(t, err)

	assert.Equal(t, BackfillResult{Total: 3, Created: 1, Skipped: 2}, res)
	assert.Equal(t, 2, calls)
	require.Len(t, client.created, 1)
	assert.Equal(t, "tx-3", client.created[0][PropTransactionID].(notionapi.RichTextProperty).RichText[0].Text.Content)
}

func TestMirror_BackfillDryRun(t *testing.T) {
	client := &mockNotion{}
	txs := &mockTxs{rows: []*domain.Transaction{sampleTx("tx-1")}}

	res, err := NewMirror(client, "db", "INR").Backfill(context.Background(), txs, "user-1", 50, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Empty(t, client.created)
}

func TestMirror_BackfillQueryError(t *testing.T) {
	client := &mockNotion{QueryDatabaseFunc: func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return nil, errors.New("unauthorized")
	}}

	_, err := NewMirror(client, "db", "INR").Backfill(context.Background(), &mockTxs{}, "u", 10, false)
	assert.ErrorContains(t, err, "unauthorized")
}
