// Package authcode derives the three digit authorization code printed on
// demo cards. It is an HMAC truncation, not a real card verification value.
package authcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/jonanatree/visapay/internal/cardgen"
)

const domain = "visapay-authcode-v1"

var ErrKeyMissing = errors.New("authorization code key is empty")

type Deriver struct {
	key []byte
}

func New(key []byte) (*Deriver, error) {
	if len(key) == 0 {
		return nil, ErrKeyMissing
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Deriver{key: k}, nil
}

// Derive returns the code for a card number and its MM/YY expiry. Separators
// in the number do not change the result.
func (d *Deriver) Derive(pan, cardFace string) string {
	msg := []byte(cardgen.NormalizePAN(pan) + "|" + cardFace + "|" + domain)
	return truncatedDecimal(d.key, msg)
}

// Wipe zeroes the key. The Deriver is unusable afterwards.
func (d *Deriver) Wipe() {
	for i := range d.key {
		d.key[i] = 0
	}
	d.key = nil
}

func truncatedDecimal(key, msg []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	sum := h.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[off])&0x7f)<<24 |
		uint32(sum[off+1])<<16 |
		uint32(sum[off+2])<<8 |
		uint32(sum[off+3])
	return fmt.Sprintf("%03d", code%1000)
}
