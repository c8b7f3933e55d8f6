// Package visaclient talks to a remote payment service over its REST or
// JSON-RPC interface. Both clients expose the same operations as the local
// service, so a front end can run without its own database.
package visaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonanatree/visapay/visa/models"
)

const defaultTimeout = 10 * time.Second

// REST calls the /api routes.
type REST struct {
	Base string
	HTTP *http.Client
}

func NewREST(base string, hc *http.Client) *REST {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &REST{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

type restMessage struct {
	Message string `json:"message"`
}

// VerifyCard posts the query to /api/tarjeta. The remote side requires a
// card number and answers 400 without one.
func (c *REST) VerifyCard(ctx context.Context, q models.CardQuery) (bool, error) {
	if q.IsEmpty() {
		return false, nil
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/tarjeta", q)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("verify card", status, body)
	}
}

func (c *REST) RegisterPayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/api/pago", p)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("register payment", status, body)
	}

	var payment models.Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	return &payment, nil
}

func (c *REST) DeletePayment(ctx context.Context, id int64) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/api/pago/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError("delete payment", status, body)
	}
	return nil
}

func (c *REST) ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error) {
	if merchantID == "" {
		return []*models.Payment{}, nil
	}
	status, body, err := c.do(ctx, http.MethodGet, "/api/comercio/"+url.PathEscape(merchantID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("list payments", status, body)
	}

	payments := []*models.Payment{}
	if err := json.Unmarshal(body, &payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return payments, nil
}

func (c *REST) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// statusError turns a non-2xx answer into an error wrapping the matching
// operation error kind.
func statusError(op string, status int, body []byte) error {
	var msg restMessage
	if json.Unmarshal(body, &msg) != nil || msg.Message == "" {
		msg.Message = strings.TrimSpace(string(body))
	}

	var kind error
	switch status {
	case http.StatusBadRequest:
		kind = models.ErrValidation
	case http.StatusNotFound:
		kind = models.ErrNotFound
	case http.StatusConflict:
		kind = models.ErrConflict
	case http.StatusPreconditionRequired:
		kind = models.ErrSequence
	default:
		return fmt.Errorf("%s status=%d body=%s", op, status, msg.Message)
	}
	return fmt.Errorf("%s: %w: %s", op, kind, msg.Message)
}
