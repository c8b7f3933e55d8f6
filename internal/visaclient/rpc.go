package visaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/jonanatree/visapay/visa/models"
)

// RPC calls the JSON-RPC endpoint with named params.
type RPC struct {
	URL  string
	HTTP *http.Client

	nextID atomic.Int64
}

// NewRPC takes the service base URL; requests go to <base>/rpc.
func NewRPC(base string, hc *http.Client) *RPC {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &RPC{URL: strings.TrimRight(base, "/") + "/rpc", HTTP: hc}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// RemoteError is a JSON-RPC error object. It unwraps to the operation error
// kind its code stands for, if any.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case -32001:
		return models.ErrValidation
	case -32002:
		return models.ErrNotFound
	case -32003:
		return models.ErrConflict
	case -32004:
		return models.ErrSequence
	default:
		return nil
	}
}

// Call invokes method and decodes its result into out.
func (c *RPC) Call(ctx context.Context, method string, params, out any) error {
	b, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if payload.Error != nil {
		return fmt.Errorf("%s: %w", method, payload.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *RPC) VerifyCard(ctx context.Context, q models.CardQuery) (bool, error) {
	var found bool
	err := c.Call(ctx, "verificar_tarjeta", map[string]any{"tarjeta_data": q}, &found)
	return found, err
}

// RequestVerification asks the remote side for a single-use payment token.
func (c *RPC) RequestVerification(ctx context.Context, q models.CardQuery) (string, error) {
	var token string
	err := c.Call(ctx, "solicitar_verificacion", map[string]any{"tarjeta_data": q}, &token)
	return token, err
}

func (c *RPC) RegisterPayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error) {
	var payment models.Payment
	if err := c.Call(ctx, "registrar_pago", map[string]any{"pago_dict": p}, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// PayWithVerification registers a payment against a token from
// RequestVerification.
func (c *RPC) PayWithVerification(ctx context.Context, token string, fields models.PaymentFields) (*models.Payment, error) {
	params := map[string]any{"pago_dict": struct {
		models.PaymentFields
		Verification string `json:"verificacion"`
	}{fields, token}}

	var payment models.Payment
	if err := c.Call(ctx, "registrar_pago", params, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// DeletePayment reports a false result as models.ErrNotFound.
func (c *RPC) DeletePayment(ctx context.Context, id int64) error {
	var deleted bool
	if err := c.Call(ctx, "eliminar_pago", map[string]any{"idPago": id}, &deleted); err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("payment %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (c *RPC) ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error) {
	payments := []*models.Payment{}
	if err := c.Call(ctx, "get_pagos_from_db", map[string]any{"idComercio": merchantID}, &payments); err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}

func (c *RPC) VerifyAndPay(ctx context.Context, q models.CardQuery, fields models.PaymentFields) (*models.Payment, error) {
	var payment models.Payment
	params := map[string]any{"tarjeta_data": q, "pago_dict": fields}
	if err := c.Call(ctx, "verificar_y_registrar", params, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}
