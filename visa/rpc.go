package visa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jonanatree/visapay/visa/models"
)

// JSON-RPC 2.0 error codes. The -3200x range carries the operation error
// kinds.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeValidation = -32001
	CodeNotFound   = -32002
	CodeConflict   = -32003
	CodeSequence   = -32004
)

// Method names.
const (
	MethodVerifyCard          = "verificar_tarjeta"
	MethodRequestVerification = "solicitar_verificacion"
	MethodRegisterPayment     = "registrar_pago"
	MethodDeletePayment       = "eliminar_pago"
	MethodListPayments        = "get_pagos_from_db"
	MethodVerifyAndPay        = "verificar_y_registrar"
)

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPC serves the JSON-RPC interface on a single endpoint.
type RPC struct {
	workflow *Workflow
}

func NewRPC(workflow *Workflow) *RPC {
	return &RPC{workflow: workflow}
}

func (h *RPC) AppendRoutes(r chi.Router) {
	r.Post("/rpc", h.ServeHTTP)
}

func (h *RPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeRPCError(w, CodeParseError, "Parse error")
		return
	}
	// batches are not supported
	var req RPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeRPCError(w, CodeInvalidRequest, "Invalid Request")
		return
	}

	resp := h.handle(r.Context(), &req)
	if len(req.ID) == 0 {
		// notification
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeRPCError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, http.StatusOK, RPCResponse{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &RPCError{Code: code, Message: msg},
	})
}

func (h *RPC) handle(ctx context.Context, req *RPCRequest) RPCResponse {
	resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = &RPCError{Code: CodeInvalidRequest, Message: "Invalid Request"}
		return resp
	}

	result, err := h.call(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = toRPCError(err)
		return resp
	}
	resp.Result = result
	return resp
}

func (h *RPC) call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	ops := h.workflow.Operations()

	switch method {
	case MethodVerifyCard:
		var q models.CardQuery
		if err := bindParams(params, []string{"tarjeta_data"}, &q); err != nil {
			return nil, err
		}
		return ops.VerifyCard(ctx, q)

	case MethodRequestVerification:
		var q models.CardQuery
		if err := bindParams(params, []string{"tarjeta_data"}, &q); err != nil {
			return nil, err
		}
		return h.workflow.Verify(ctx, q)

	case MethodRegisterPayment:
		var p PaymentRequest
		if err := bindParams(params, []string{"pago_dict"}, &p); err != nil {
			return nil, err
		}
		fields, err := p.Fields()
		if err != nil {
			return nil, err
		}
		if p.Verification != "" {
			return h.workflow.Pay(ctx, p.Verification, fields)
		}
		if p.CardNumber == "" {
			return nil, models.ErrSequence
		}
		return ops.RegisterPayment(ctx, models.CreatePayment{PaymentFields: fields, CardNumber: p.CardNumber})

	case MethodDeletePayment:
		var id int64
		if err := bindParams(params, []string{"idPago"}, &id); err != nil {
			return nil, err
		}
		err := ops.DeletePayment(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return nil, err
		}
		return true, nil

	case MethodListPayments:
		var merchantID string
		if err := bindParams(params, []string{"idComercio"}, &merchantID); err != nil {
			return nil, err
		}
		return ops.ListPayments(ctx, merchantID)

	case MethodVerifyAndPay:
		var (
			q models.CardQuery
			p PaymentRequest
		)
		if err := bindParams(params, []string{"tarjeta_data", "pago_dict"}, &q, &p); err != nil {
			return nil, err
		}
		fields, err := p.Fields()
		if err != nil {
			return nil, err
		}
		return h.workflow.VerifyAndPay(ctx, q, fields)

	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "Method not found"}
	}
}

// bindParams decodes positional (array) or named (object) params into
// targets, in the order given by names.
func bindParams(raw json.RawMessage, names []string, targets ...any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return invalidParams("missing params")
	}

	values := make([]json.RawMessage, len(names))
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return invalidParams(err.Error())
		}
		if len(list) != len(names) {
			return invalidParams(fmt.Sprintf("expected %d params, got %d", len(names), len(list)))
		}
		copy(values, list)
	case '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(raw, &named); err != nil {
			return invalidParams(err.Error())
		}
		for i, name := range names {
			v, ok := named[name]
			if !ok {
				return invalidParams("missing param " + name)
			}
			values[i] = v
		}
	default:
		return invalidParams("params must be an array or an object")
	}

	for i, v := range values {
		if err := json.Unmarshal(v, targets[i]); err != nil {
			return invalidParams(fmt.Sprintf("%s: %v", names[i], err))
		}
	}
	return nil
}

func invalidParams(msg string) error {
	return &RPCError{Code: CodeInvalidParams, Message: "Invalid params: " + msg}
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &RPCError{Code: CodeFor(err), Message: err.Error()}
}

// CodeFor maps an operation error to its JSON-RPC error code.
func CodeFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return CodeValidation
	case errors.Is(err, models.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, models.ErrConflict):
		return CodeConflict
	case errors.Is(err, models.ErrSequence):
		return CodeSequence
	default:
		return CodeInternalError
	}
}
