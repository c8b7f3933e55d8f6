package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCardQueryMatches(t *testing.T) {
	card := &Card{Number: "1111 2222 3333 4444", HolderName: "Jose Moreno Locke", Expiry: "04/28", AuthCode: "729"}

	require.True(t, CardQuery{Number: card.Number}.Matches(card))
	require.True(t, CardQuery{HolderName: card.HolderName, AuthCode: "729"}.Matches(card))
	require.False(t, CardQuery{Number: "1111222233334444"}.Matches(card))
	require.False(t, CardQuery{Number: card.Number, Expiry: "05/28"}.Matches(card))
	require.False(t, CardQuery{}.Matches(card))
	require.False(t, CardQuery{Number: card.Number}.Matches(nil))
}

func TestCreatePaymentValidate(t *testing.T) {
	valid := CreatePayment{
		PaymentFields: PaymentFields{MerchantID: "IDC123", TransactionID: "IDT123", Amount: 0},
		CardNumber:    "1111 2222 3333 4444",
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*CreatePayment){
		"idComercio":    func(p *CreatePayment) { p.MerchantID = "" },
		"idTransaccion": func(p *CreatePayment) { p.TransactionID = strings.Repeat("x", MaxTransactionIDLen+1) },
		"tarjeta_id":    func(p *CreatePayment) { p.CardNumber = "" },
	} {
		p := valid
		mutate(&p)
		err := p.Validate()

		var verr *ValidationError
		require.True(t, errors.As(err, &verr), name)
		require.Equal(t, name, verr.Field)
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestCardValidate(t *testing.T) {
	require.NoError(t, (&Card{Number: "1", HolderName: "Ñandú Peña", Expiry: "04/28", AuthCode: "729"}).Validate())
	require.ErrorIs(t, (&Card{}).Validate(), ErrValidation)
	require.ErrorIs(t, (&Card{Number: strings.Repeat("1", MaxCardNumberLen+1)}).Validate(), ErrValidation)
	require.ErrorIs(t, (&Card{Number: "1", Expiry: "04/2028"}).Validate(), ErrValidation)
}
