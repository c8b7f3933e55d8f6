package iso8583_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/jonanatree/visapay/internal/metrics"
	"github.com/jonanatree/visapay/visa"
	"github.com/jonanatree/visapay/visa/iso8583"
	"github.com/jonanatree/visapay/visa/models"
)

func TestServer(t *testing.T) {
	repo := visa.NewRepository()
	card := &models.Card{
		Number:     "1111 2222 3333 4444",
		HolderName: "Jose Moreno Locke",
		Expiry:     "04/28",
		AuthCode:   "729",
	}
	require.NoError(t, repo.UpsertCard(context.Background(), card))
	wf := visa.NewWorkflow(visa.NewService(repo, nil, nil), nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := iso8583.NewServer(logger, "127.0.0.1:0", wf)
	require.NoError(t, server.Start())
	defer server.Close()

	client, err := iso8583.Dial(server.Addr)
	require.NoError(t, err)
	defer client.Close()

	query := models.CardQuery{
		Number:     card.Number,
		HolderName: card.HolderName,
		Expiry:     card.Expiry,
		AuthCode:   card.AuthCode,
	}
	fields := models.PaymentFields{MerchantID: "IDC123", TransactionID: "IDT123", Amount: 123.0}

	t.Run("echo", func(t *testing.T) {
		require.NoError(t, client.Echo())
	})

	t.Run("authorization registers the payment", func(t *testing.T) {
		res, err := client.Authorize(query, fields)
		require.NoError(t, err)
		require.Equal(t, models.ResponseCodeOK, res.ResponseCode)
		require.Equal(t, metrics.OutcomeOK, res.Outcome)
		require.NotZero(t, res.PaymentID)

		payments, err := repo.ListPayments(context.Background(), "IDC123")
		require.NoError(t, err)
		require.Len(t, payments, 1)
		require.Equal(t, res.PaymentID, payments[0].ID)
		require.Equal(t, 123.0, payments[0].Amount)
	})

	t.Run("duplicate transaction", func(t *testing.T) {
		res, err := client.Authorize(query, fields)
		require.NoError(t, err)
		require.Equal(t, models.ResponseCodeError, res.ResponseCode)
		require.Equal(t, metrics.OutcomeConflict, res.Outcome)
		require.Zero(t, res.PaymentID)
	})

	t.Run("unknown card", func(t *testing.T) {
		q := query
		q.AuthCode = "000"
		res, err := client.Authorize(q, models.PaymentFields{MerchantID: "IDC123", TransactionID: "IDT124", Amount: 1})
		require.NoError(t, err)
		require.Equal(t, models.ResponseCodeError, res.ResponseCode)
		require.Equal(t, metrics.OutcomeNotFound, res.Outcome)
	})

	t.Run("number only", func(t *testing.T) {
		res, err := client.Authorize(models.CardQuery{Number: card.Number}, models.PaymentFields{MerchantID: "IDC123", TransactionID: "IDT125", Amount: 0.1})
		require.NoError(t, err)
		require.Equal(t, models.ResponseCodeOK, res.ResponseCode)
	})
}

func TestMinorUnits(t *testing.T) {
	minor, err := iso8583.ToMinorUnits(123.0)
	require.NoError(t, err)
	require.Equal(t, int64(12300), minor)

	minor, err = iso8583.ToMinorUnits(0.1 + 0.2)
	require.NoError(t, err)
	require.Equal(t, int64(30), minor)

	minor, err = iso8583.ToMinorUnits(10.005)
	require.NoError(t, err)
	require.Equal(t, int64(1001), minor)

	_, err = iso8583.ToMinorUnits(-1)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = iso8583.ToMinorUnits(1e13)
	require.ErrorIs(t, err, models.ErrValidation)

	require.Equal(t, 123.45, iso8583.FromMinorUnits(12345))
	require.Equal(t, 0.0, iso8583.FromMinorUnits(0))
}
