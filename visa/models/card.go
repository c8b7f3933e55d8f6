package models

// Card is a card identity record. Number is the primary key and is compared
// byte for byte: "1111 2222 3333 4444" and "1111222233334444" are different cards.
type Card struct {
	Number     string `json:"numero"`
	HolderName string `json:"nombre"`
	Expiry     string `json:"fechaCaducidad"`
	AuthCode   string `json:"codigoAutorizacion"`
}

const (
	MaxCardNumberLen = 19
	MaxHolderNameLen = 128
	MaxExpiryLen     = 5
	MaxAuthCodeLen   = 3
)

// CardQuery holds the card fields submitted for verification. Empty fields are
// not part of the match.
type CardQuery struct {
	Number     string `json:"numero,omitempty"`
	HolderName string `json:"nombre,omitempty"`
	Expiry     string `json:"fechaCaducidad,omitempty"`
	AuthCode   string `json:"codigoAutorizacion,omitempty"`
}

// IsEmpty reports whether no field was supplied.
func (q CardQuery) IsEmpty() bool {
	return q.Number == "" && q.HolderName == "" && q.Expiry == "" && q.AuthCode == ""
}

// Matches reports whether every supplied field equals the card's field.
func (q CardQuery) Matches(c *Card) bool {
	if q.IsEmpty() || c == nil {
		return false
	}
	if q.Number != "" && q.Number != c.Number {
		return false
	}
	if q.HolderName != "" && q.HolderName != c.HolderName {
		return false
	}
	if q.Expiry != "" && q.Expiry != c.Expiry {
		return false
	}
	if q.AuthCode != "" && q.AuthCode != c.AuthCode {
		return false
	}
	return true
}

// Validate checks the column limits of a card about to be stored.
func (c *Card) Validate() error {
	if c.Number == "" {
		return missing("numero")
	}
	if err := maxLen("numero", c.Number, MaxCardNumberLen); err != nil {
		return err
	}
	if err := maxLen("nombre", c.HolderName, MaxHolderNameLen); err != nil {
		return err
	}
	if err := maxLen("fechaCaducidad", c.Expiry, MaxExpiryLen); err != nil {
		return err
	}
	return maxLen("codigoAutorizacion", c.AuthCode, MaxAuthCodeLen)
}
