package dynamostore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonanatree/visapay/internal/dynamostore"
	"github.com/jonanatree/visapay/visa"
	"github.com/jonanatree/visapay/visa/models"
)

var (
	_ visa.Store      = (*dynamostore.Store)(nil)
	_ visa.CardLoader = (*dynamostore.Store)(nil)
)

var card = &models.Card{
	Number:     "1111 2222 3333 4444",
	HolderName: "Jose Moreno Locke",
	Expiry:     "04/28",
	AuthCode:   "729",
}

// newStore skips unless VISA_TEST_DYNAMODB_ENDPOINT points at DynamoDB Local.
func newStore(t *testing.T) *dynamostore.Store {
	t.Helper()
	endpoint := os.Getenv("VISA_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("VISA_TEST_DYNAMODB_ENDPOINT not set; skipping dynamodb integration test")
	}
	ctx := context.Background()
	store, err := dynamostore.New(ctx, dynamostore.Config{
		Region:   "us-east-1",
		Table:    fmt.Sprintf("visa-test-%d", time.Now().UnixNano()),
		Endpoint: endpoint,
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureTable(ctx))
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.UpsertCard(ctx, card))
	return store
}

func payment(merchant, txn string) models.CreatePayment {
	return models.CreatePayment{
		PaymentFields: models.PaymentFields{MerchantID: merchant, TransactionID: txn, Amount: 50.25},
		CardNumber:    card.Number,
	}
}

func TestStore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	t.Run("find card", func(t *testing.T) {
		for q, want := range map[models.CardQuery]bool{
			{Number: card.Number}:                          true,
			{Number: card.Number, AuthCode: card.AuthCode}: true,
			{HolderName: card.HolderName}:                  true,
			{Number: card.Number, AuthCode: "000"}:         false,
			{Number: "9999"}:                               false,
			{}:                                             false,
		} {
			found, err := store.FindCard(ctx, q)
			require.NoError(t, err)
			require.Equal(t, want, found, "%+v", q)
		}
	})

	t.Run("payments", func(t *testing.T) {
		first, err := store.CreatePayment(ctx, payment("M1", "T1"))
		require.NoError(t, err)
		require.Equal(t, models.ResponseCodeOK, first.ResponseCode)
		require.Equal(t, 50.25, first.Amount)

		second, err := store.CreatePayment(ctx, payment("M1", "T2"))
		require.NoError(t, err)
		require.Greater(t, second.ID, first.ID)

		_, err = store.CreatePayment(ctx, payment("M1", "T1"))
		require.True(t, errors.Is(err, models.ErrConflict), "got %v", err)

		// "M1#T" / "1" must not collide with "M1" / "T1".
		_, err = store.CreatePayment(ctx, payment("M1#T", "1"))
		require.NoError(t, err)

		unknown := payment("M1", "T3")
		unknown.CardNumber = "0000"
		_, err = store.CreatePayment(ctx, unknown)
		require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

		list, err := store.ListPayments(ctx, "M1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, first.ID, list[0].ID)
		require.Equal(t, second.ID, list[1].ID)

		require.NoError(t, store.DeletePayment(ctx, first.ID))
		require.True(t, errors.Is(store.DeletePayment(ctx, first.ID), models.ErrNotFound))

		// the pair is free again once deleted
		_, err = store.CreatePayment(ctx, payment("M1", "T1"))
		require.NoError(t, err)

		empty, err := store.ListPayments(ctx, "nobody")
		require.NoError(t, err)
		require.NotNil(t, empty)
		require.Empty(t, empty)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		found, err := store.FindCard(ctx, models.CardQuery{Number: card.Number})
		require.NoError(t, err)
		require.False(t, found)

		list, err := store.ListPayments(ctx, "M1")
		require.NoError(t, err)
		require.Empty(t, list)
	})
}
