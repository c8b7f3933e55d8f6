package iso8583

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/moov-io/iso8583/field"

	"github.com/jonanatree/visapay/visa/models"
)

// Client sends authorization and echo messages to a Server.
type Client struct {
	conn *connection.Connection
	stan uint32
}

func Dial(addr string) (*Client, error) {
	conn, err := connection.New(addr, Spec, readMessageLength, writeMessageLength)
	if err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// AuthorizationResult is the decoded 0110 reply.
type AuthorizationResult struct {
	ResponseCode models.ResponseCode
	// Outcome names the error kind, "ok" on success.
	Outcome   string
	PaymentID int64
}

func (c *Client) Authorize(card models.CardQuery, fields models.PaymentFields) (*AuthorizationResult, error) {
	minor, err := ToMinorUnits(fields.Amount)
	if err != nil {
		return nil, err
	}

	req := &AuthorizationRequest{
		MTI:            field.NewStringValue(MTIAuthorizationRequest),
		CardNumber:     field.NewStringValue(card.Number),
		Amount:         field.NewNumericValue(minor),
		TransmissionAt: field.NewStringValue(transmissionTime()),
		STAN:           field.NewStringValue(c.nextSTAN()),
		TransactionID:  field.NewStringValue(fields.TransactionID),
		MerchantID:     field.NewStringValue(fields.MerchantID),
	}
	// optional card fields are left out of the bitmap when empty
	if card.Expiry != "" {
		req.Expiry = field.NewStringValue(card.Expiry)
	}
	if card.HolderName != "" {
		req.HolderName = field.NewStringValue(card.HolderName)
	}
	if card.AuthCode != "" {
		req.AuthCode = field.NewStringValue(card.AuthCode)
	}

	msg := iso8583.NewMessage(Spec)
	if err := msg.Marshal(req); err != nil {
		return nil, fmt.Errorf("marshaling authorization request: %w", err)
	}

	reply, err := c.conn.Send(msg)
	if err != nil {
		return nil, fmt.Errorf("sending authorization request: %w", err)
	}

	resp := &AuthorizationResponse{}
	if err := reply.Unmarshal(resp); err != nil {
		return nil, fmt.Errorf("unmarshaling authorization response: %w", err)
	}

	result := &AuthorizationResult{
		ResponseCode: models.ResponseCode(stringValue(resp.ResponseCode)),
		Outcome:      stringValue(resp.Outcome),
	}
	if id := stringValue(resp.PaymentID); id != "" {
		result.PaymentID, err = strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing payment id %q: %w", id, err)
		}
	}
	return result, nil
}

// Echo sends a network management message and checks the reply.
func (c *Client) Echo() error {
	msg := iso8583.NewMessage(Spec)
	err := msg.Marshal(&NetworkMessage{
		MTI:            field.NewStringValue(MTINetworkRequest),
		TransmissionAt: field.NewStringValue(transmissionTime()),
		STAN:           field.NewStringValue(c.nextSTAN()),
	})
	if err != nil {
		return fmt.Errorf("marshaling echo: %w", err)
	}

	reply, err := c.conn.Send(msg)
	if err != nil {
		return fmt.Errorf("sending echo: %w", err)
	}

	resp := &NetworkMessage{}
	if err := reply.Unmarshal(resp); err != nil {
		return fmt.Errorf("unmarshaling echo: %w", err)
	}
	if code := stringValue(resp.ResponseCode); code != string(models.ResponseCodeOK) {
		return errors.New("echo rejected with response code " + code)
	}
	return nil
}

func (c *Client) nextSTAN() string {
	n := atomic.AddUint32(&c.stan, 1)
	return fmt.Sprintf("%06d", n%1_000_000)
}

func transmissionTime() string {
	return time.Now().UTC().Format("0102150405")
}
