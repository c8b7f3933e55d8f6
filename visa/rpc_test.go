package visa_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/jonanatree/visapay/visa"
	"github.com/jonanatree/visapay/visa/models"
)

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *visa.RPCError  `json:"error"`
}

func callRPC(t *testing.T, router http.Handler, body string) rpcResponse {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestRPC(t *testing.T) {
	repo := visa.NewRepository()
	require.NoError(t, repo.UpsertCard(context.Background(), apiCard))
	wf := visa.NewWorkflow(visa.NewService(repo, nil, nil), nil)
	router := chi.NewRouter()
	visa.NewRPC(wf).AppendRoutes(router)

	cardJSON, _ := json.Marshal(apiCard)

	t.Run("verificar_tarjeta", func(t *testing.T) {
		resp := callRPC(t, router, `{"jsonrpc":"2.0","id":2,"method":"verificar_tarjeta","params":{"tarjeta_data":`+string(cardJSON)+`}}`)
		require.Nil(t, resp.Error)
		require.JSONEq(t, `true`, string(resp.Result))
		require.JSONEq(t, `2`, string(resp.ID))

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":3,"method":"verificar_tarjeta","params":[{"numero":"1234"}]}`)
		require.Nil(t, resp.Error)
		require.JSONEq(t, `false`, string(resp.Result))

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":4,"method":"verificar_tarjeta","params":[{}]}`)
		require.Nil(t, resp.Error)
		require.JSONEq(t, `false`, string(resp.Result))
	})

	t.Run("registrar_pago", func(t *testing.T) {
		resp := callRPC(t, router, `{"jsonrpc":"2.0","id":2,"method":"registrar_pago","params":{"pago_dict":{"idComercio":"COM123","idTransaccion":"TR123","importe":23.0,"tarjeta_id":"1111 2222 3333 4444"}}}`)
		require.Nil(t, resp.Error)

		var payment models.Payment
		require.NoError(t, json.Unmarshal(resp.Result, &payment))
		require.Equal(t, "COM123", payment.MerchantID)
		require.Equal(t, "TR123", payment.TransactionID)
		require.Equal(t, 23.0, payment.Amount)
		require.Equal(t, models.ResponseCodeOK, payment.ResponseCode)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":2,"method":"registrar_pago","params":{"pago_dict":{"idComercio":"COM123","idTransaccion":"TR123","importe":23.0,"tarjeta_id":"1111 2222 3333 4444"}}}`)
		require.NotNil(t, resp.Error)
		require.Equal(t, visa.CodeConflict, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":2,"method":"registrar_pago","params":[{"idComercio":"COM123","idTransaccion":"TR124","importe":1,"tarjeta_id":"0000"}]}`)
		require.Equal(t, visa.CodeNotFound, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":2,"method":"registrar_pago","params":[{"idComercio":"COM123","importe":1,"tarjeta_id":"1111 2222 3333 4444"}]}`)
		require.Equal(t, visa.CodeValidation, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":2,"method":"registrar_pago","params":[{"idComercio":"COM123","idTransaccion":"TR125","importe":1}]}`)
		require.Equal(t, visa.CodeSequence, resp.Error.Code)
	})

	t.Run("verification token", func(t *testing.T) {
		resp := callRPC(t, router, `{"jsonrpc":"2.0","id":5,"method":"solicitar_verificacion","params":[`+string(cardJSON)+`]}`)
		require.Nil(t, resp.Error)

		var token string
		require.NoError(t, json.Unmarshal(resp.Result, &token))
		require.NotEmpty(t, token)

		body := `{"jsonrpc":"2.0","id":6,"method":"registrar_pago","params":[{"idComercio":"COM999","idTransaccion":"TR1","importe":5,"verificacion":"` + token + `"}]}`
		resp = callRPC(t, router, body)
		require.Nil(t, resp.Error)

		resp = callRPC(t, router, body)
		require.Equal(t, visa.CodeSequence, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":7,"method":"solicitar_verificacion","params":[{"numero":"0000"}]}`)
		require.Equal(t, visa.CodeNotFound, resp.Error.Code)
	})

	t.Run("verificar_y_registrar", func(t *testing.T) {
		resp := callRPC(t, router, `{"jsonrpc":"2.0","id":8,"method":"verificar_y_registrar","params":{"tarjeta_data":`+string(cardJSON)+`,"pago_dict":{"idComercio":"COM777","idTransaccion":"TR1","importe":7.5}}}`)
		require.Nil(t, resp.Error)

		var payment models.Payment
		require.NoError(t, json.Unmarshal(resp.Result, &payment))
		require.Equal(t, apiCard.Number, payment.CardNumber)
	})

	t.Run("missing importe", func(t *testing.T) {
		resp := callRPC(t, router, `{"jsonrpc":"2.0","id":13,"method":"registrar_pago","params":[{"idComercio":"COM888","idTransaccion":"TR1","tarjeta_id":"1111 2222 3333 4444"}]}`)
		require.Equal(t, visa.CodeValidation, resp.Error.Code)
		require.Contains(t, resp.Error.Message, "importe")

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":14,"method":"verificar_y_registrar","params":{"tarjeta_data":`+string(cardJSON)+`,"pago_dict":{"idComercio":"COM888","idTransaccion":"TR2"}}}`)
		require.Equal(t, visa.CodeValidation, resp.Error.Code)

		payments, err := repo.ListPayments(context.Background(), "COM888")
		require.NoError(t, err)
		require.Empty(t, payments)
	})

	t.Run("get_pagos_from_db and eliminar_pago", func(t *testing.T) {
		resp := callRPC(t, router, `{"jsonrpc":"2.0","id":9,"method":"get_pagos_from_db","params":["COM123"]}`)
		require.Nil(t, resp.Error)

		var payments []models.Payment
		require.NoError(t, json.Unmarshal(resp.Result, &payments))
		require.Len(t, payments, 1)

		id, _ := json.Marshal(payments[0].ID)
		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":10,"method":"eliminar_pago","params":[`+string(id)+`]}`)
		require.Nil(t, resp.Error)
		require.JSONEq(t, `true`, string(resp.Result))

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":11,"method":"eliminar_pago","params":{"idPago":`+string(id)+`}}`)
		require.Nil(t, resp.Error)
		require.JSONEq(t, `false`, string(resp.Result))

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":12,"method":"get_pagos_from_db","params":["COM123"]}`)
		require.JSONEq(t, `[]`, string(resp.Result))
	})

	t.Run("protocol errors", func(t *testing.T) {
		resp := callRPC(t, router, `{not json`)
		require.Equal(t, visa.CodeParseError, resp.Error.Code)
		require.JSONEq(t, `null`, string(resp.ID))

		resp = callRPC(t, router, `[{"jsonrpc":"2.0","id":1,"method":"verificar_tarjeta","params":[{}]}]`)
		require.Equal(t, visa.CodeInvalidRequest, resp.Error.Code)
		require.JSONEq(t, `null`, string(resp.ID))

		resp = callRPC(t, router, `"verificar_tarjeta"`)
		require.Equal(t, visa.CodeInvalidRequest, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":1,"method":"test_add","params":[5,9]}`)
		require.Equal(t, visa.CodeMethodNotFound, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"1.0","id":1,"method":"verificar_tarjeta","params":[{}]}`)
		require.Equal(t, visa.CodeInvalidRequest, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":1,"method":"eliminar_pago","params":["abc"]}`)
		require.Equal(t, visa.CodeInvalidParams, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":1,"method":"eliminar_pago","params":[1,2]}`)
		require.Equal(t, visa.CodeInvalidParams, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":1,"method":"eliminar_pago","params":{"id":1}}`)
		require.Equal(t, visa.CodeInvalidParams, resp.Error.Code)

		resp = callRPC(t, router, `{"jsonrpc":"2.0","id":1,"method":"eliminar_pago"}`)
		require.Equal(t, visa.CodeInvalidParams, resp.Error.Code)
	})

	t.Run("notification gets no body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"verificar_tarjeta","params":[{}]}`))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Empty(t, w.Body.String())
	})
}
