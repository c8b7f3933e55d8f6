package models

import "time"

type ResponseCode string

const (
	ResponseCodeOK    ResponseCode = "000"
	ResponseCodeError ResponseCode = "ERR"
)

func (c ResponseCode) Valid() bool {
	return c == ResponseCodeOK || c == ResponseCodeError
}

const (
	MaxMerchantIDLen    = 16
	MaxTransactionIDLen = 16
)

// Payment is a recorded transaction against a card. (MerchantID, TransactionID)
// is unique across all payments.
type Payment struct {
	ID            int64        `json:"id"`
	MerchantID    string       `json:"idComercio"`
	TransactionID string       `json:"idTransaccion"`
	Amount        float64      `json:"importe"`
	CardNumber    string       `json:"tarjeta_id"`
	CreatedAt     time.Time    `json:"marcaTiempo"`
	ResponseCode  ResponseCode `json:"codigoRespuesta"`
}

// PaymentFields are the payment values a caller submits. The card number is
// supplied separately, either directly or through a verification token.
type PaymentFields struct {
	MerchantID    string  `json:"idComercio"`
	TransactionID string  `json:"idTransaccion"`
	Amount        float64 `json:"importe"`
}

// CreatePayment is the input of the registration operation.
type CreatePayment struct {
	PaymentFields
	CardNumber string `json:"tarjeta_id"`
}

// Validate rejects missing or oversized fields. A zero amount is accepted, it
// is a value the caller sent.
func (p CreatePayment) Validate() error {
	if p.MerchantID == "" {
		return missing("idComercio")
	}
	if p.TransactionID == "" {
		return missing("idTransaccion")
	}
	if p.CardNumber == "" {
		return missing("tarjeta_id")
	}
	if err := maxLen("idComercio", p.MerchantID, MaxMerchantIDLen); err != nil {
		return err
	}
	if err := maxLen("idTransaccion", p.TransactionID, MaxTransactionIDLen); err != nil {
		return err
	}
	return maxLen("tarjeta_id", p.CardNumber, MaxCardNumberLen)
}
