package iso8583

import (
	"io"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/network"
	"github.com/moov-io/iso8583/padding"
	"github.com/moov-io/iso8583/prefix"
)

const (
	MTIAuthorizationRequest  = "0100"
	MTIAuthorizationResponse = "0110"
	MTINetworkRequest        = "0800"
	MTINetworkResponse       = "0810"
)

// Spec is the ASCII message spec spoken on the listener. Field sizes follow
// the card and payment column limits rather than the standard where the two
// disagree.
var Spec = &iso8583.MessageSpec{
	Name: "visapay ISO 8583",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		2: field.NewString(&field.Spec{
			Length:      19,
			Description: "Primary Account Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		4: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Transaction Amount (minor units)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		7: field.NewString(&field.Spec{
			Length:      10,
			Description: "Transmission Date & Time",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		11: field.NewString(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number (STAN)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		14: field.NewString(&field.Spec{
			Length:      5,
			Description: "Expiration Date (card face)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		37: field.NewString(&field.Spec{
			Length:      16,
			Description: "Transaction ID",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		39: field.NewString(&field.Spec{
			Length:      3,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		42: field.NewString(&field.Spec{
			Length:      16,
			Description: "Merchant ID",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		44: field.NewString(&field.Spec{
			Length:      25,
			Description: "Additional Response Data",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		48: field.NewString(&field.Spec{
			Length:      128,
			Description: "Cardholder Name",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		61: field.NewString(&field.Spec{
			Length:      3,
			Description: "Authorization Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		62: field.NewString(&field.Spec{
			Length:      19,
			Description: "Payment ID",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
	},
}

// AuthorizationRequest is the 0100 message: card fields plus payment fields.
type AuthorizationRequest struct {
	MTI            *field.String  `index:"0"`
	CardNumber     *field.String  `index:"2"`
	Amount         *field.Numeric `index:"4"`
	TransmissionAt *field.String  `index:"7"`
	STAN           *field.String  `index:"11"`
	Expiry         *field.String  `index:"14"`
	TransactionID  *field.String  `index:"37"`
	MerchantID     *field.String  `index:"42"`
	HolderName     *field.String  `index:"48"`
	AuthCode       *field.String  `index:"61"`
}

// AuthorizationResponse is the 0110 message.
type AuthorizationResponse struct {
	MTI            *field.String  `index:"0"`
	CardNumber     *field.String  `index:"2"`
	Amount         *field.Numeric `index:"4"`
	TransmissionAt *field.String  `index:"7"`
	STAN           *field.String  `index:"11"`
	TransactionID  *field.String  `index:"37"`
	ResponseCode   *field.String  `index:"39"`
	MerchantID     *field.String  `index:"42"`
	Outcome        *field.String  `index:"44"`
	PaymentID      *field.String  `index:"62"`
}

// NetworkMessage is the 0800 echo and its 0810 reply.
type NetworkMessage struct {
	MTI            *field.String `index:"0"`
	TransmissionAt *field.String `index:"7"`
	STAN           *field.String `index:"11"`
	ResponseCode   *field.String `index:"39"`
}

func readMessageLength(r io.Reader) (int, error) {
	header := network.NewBinary2BytesHeader()
	n, err := header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	return header.Length(), nil
}

func writeMessageLength(w io.Writer, length int) (int, error) {
	header := network.NewBinary2BytesHeader()
	header.SetLength(length)
	return header.WriteTo(w)
}

func stringValue(f *field.String) string {
	if f == nil {
		return ""
	}
	return f.Value()
}
