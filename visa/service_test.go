package visa

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonanatree/visapay/internal/metrics"
	"github.com/jonanatree/visapay/visa/models"
)

var testCard = &models.Card{
	Number:     "1111 2222 3333 4444",
	HolderName: "Jose Moreno Locke",
	Expiry:     "04/28",
	AuthCode:   "729",
}

func testPayment(merchant, txn string) models.CreatePayment {
	return models.CreatePayment{
		PaymentFields: models.PaymentFields{
			MerchantID:    merchant,
			TransactionID: txn,
			Amount:        123.0,
		},
		CardNumber: testCard.Number,
	}
}

func newTestService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	repo := NewRepository()
	require.NoError(t, repo.UpsertCard(context.Background(), testCard))
	return NewService(repo, nil, metrics.New()), repo
}

// countingStore records calls that reach storage.
type countingStore struct {
	Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) FindCard(ctx context.Context, q models.CardQuery) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Store.FindCard(ctx, q)
}

func (c *countingStore) ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Store.ListPayments(ctx, merchantID)
}

func TestServiceVerifyCard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	found, err := svc.VerifyCard(ctx, models.CardQuery{
		Number:     testCard.Number,
		HolderName: testCard.HolderName,
		Expiry:     testCard.Expiry,
		AuthCode:   testCard.AuthCode,
	})
	require.NoError(t, err)
	require.True(t, found)

	found, err = svc.VerifyCard(ctx, models.CardQuery{Number: testCard.Number})
	require.NoError(t, err)
	require.True(t, found)

	mismatches := []models.CardQuery{
		{Number: "1111222233334444"},
		{Number: testCard.Number, HolderName: "Jose Moreno"},
		{Number: testCard.Number, Expiry: "05/28"},
		{Number: testCard.Number, AuthCode: "000"},
	}
	for _, q := range mismatches {
		found, err := svc.VerifyCard(ctx, q)
		require.NoError(t, err)
		require.False(t, found, "query %+v", q)
	}
}

func TestServiceVerifyCardEmptyQuery(t *testing.T) {
	store := &countingStore{Store: NewRepository()}
	svc := NewService(store, nil, nil)

	found, err := svc.VerifyCard(context.Background(), models.CardQuery{})
	require.NoError(t, err)
	require.False(t, found)
	require.Zero(t, store.calls)
}

func TestServiceRegisterPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and rejects the duplicate", func(t *testing.T) {
		svc, repo := newTestService(t)

		payment, err := svc.RegisterPayment(ctx, testPayment("IDC123", "IDT123"))
		require.NoError(t, err)
		require.NotZero(t, payment.ID)
		require.Equal(t, models.ResponseCodeOK, payment.ResponseCode)
		require.Equal(t, 123.0, payment.Amount)
		require.False(t, payment.CreatedAt.IsZero())

		_, err = svc.RegisterPayment(ctx, testPayment("IDC123", "IDT123"))
		require.ErrorIs(t, err, models.ErrConflict)
		require.Len(t, repo.Payments, 1)

		// same transaction id under another merchant is a different payment
		_, err = svc.RegisterPayment(ctx, testPayment("IDC456", "IDT123"))
		require.NoError(t, err)
	})

	t.Run("unknown card", func(t *testing.T) {
		svc, repo := newTestService(t)
		p := testPayment("IDC123", "IDT123")
		p.CardNumber = "9999"

		_, err := svc.RegisterPayment(ctx, p)
		require.ErrorIs(t, err, models.ErrNotFound)
		require.Empty(t, repo.Payments)
	})

	t.Run("validation", func(t *testing.T) {
		svc, repo := newTestService(t)

		for _, p := range []models.CreatePayment{
			testPayment("", "IDT123"),
			testPayment("IDC123", ""),
			testPayment("IDC123", "IDT12345678901234"),
			{PaymentFields: models.PaymentFields{MerchantID: "IDC123", TransactionID: "IDT123"}},
		} {
			_, err := svc.RegisterPayment(ctx, p)
			require.ErrorIs(t, err, models.ErrValidation)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
		}
		require.Empty(t, repo.Payments)
	})

	t.Run("concurrent registrations of the same pair", func(t *testing.T) {
		svc, repo := newTestService(t)

		const n = 20
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.RegisterPayment(ctx, testPayment("IDC123", "IDT123"))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var ok, conflicts int
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case err != nil:
				require.ErrorIs(t, err, models.ErrConflict)
				conflicts++
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, n-1, conflicts)
		require.Len(t, repo.Payments, 1)
	})
}

func TestServiceDeletePayment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	err := svc.DeletePayment(ctx, 999999)
	require.ErrorIs(t, err, models.ErrNotFound)

	payment, err := svc.RegisterPayment(ctx, testPayment("IDC123", "IDT123"))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePayment(ctx, payment.ID))
	require.ErrorIs(t, svc.DeletePayment(ctx, payment.ID), models.ErrNotFound)

	// the pair is free again once deleted
	_, err = svc.RegisterPayment(ctx, testPayment("IDC123", "IDT123"))
	require.NoError(t, err)
}

func TestServiceListPayments(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.RegisterPayment(ctx, testPayment("IDC123", fmt.Sprintf("T%d", i)))
		require.NoError(t, err)
	}
	_, err := svc.RegisterPayment(ctx, testPayment("OTHER", "T0"))
	require.NoError(t, err)

	payments, err := svc.ListPayments(ctx, "IDC123")
	require.NoError(t, err)
	require.Len(t, payments, 3)
	for i, p := range payments {
		require.Equal(t, "IDC123", p.MerchantID)
		require.Equal(t, fmt.Sprintf("T%d", i), p.TransactionID)
	}

	payments, err = svc.ListPayments(ctx, "NOBODY")
	require.NoError(t, err)
	require.NotNil(t, payments)
	require.Empty(t, payments)

	store := &countingStore{Store: NewRepository()}
	payments, err = NewService(store, nil, nil).ListPayments(ctx, "")
	require.NoError(t, err)
	require.Empty(t, payments)
	require.Zero(t, store.calls)
}

func TestRepositoryDeleteCardCascades(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	_, err := svc.RegisterPayment(ctx, testPayment("IDC123", "IDT123"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteCard(ctx, testCard.Number))
	require.Empty(t, repo.Payments)
	require.ErrorIs(t, repo.DeleteCard(ctx, testCard.Number), models.ErrNotFound)
}
