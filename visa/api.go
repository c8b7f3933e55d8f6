package visa

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jonanatree/visapay/visa/models"
)

const (
	msgCardFound       = "Datos encontrados en la base de datos"
	msgCardNotFound    = "Datos no encontrados en la base de datos"
	msgPaymentDeleted  = "Pago eliminado correctamente"
	msgPaymentNotFound = "Pago no encontrado"
)

// API is the REST interface of the payment service.
type API struct {
	workflow *Workflow
}

func NewAPI(workflow *Workflow) *API {
	return &API{
		workflow: workflow,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/tarjeta", a.verifyCard)
		r.Post("/pago", a.registerPayment)
		r.Delete("/pago/{paymentID}", a.deletePayment)
		r.Get("/comercio/{merchantID}", a.listPayments)
	})
}

type messageResponse struct {
	Message      string `json:"message"`
	Verification string `json:"verificacion,omitempty"`
}

// PaymentRequest is the pago payload of POST /api/pago and of the JSON-RPC
// registrar_pago method. Either CardNumber or Verification must be set;
// Verification wins when both are. Amount is a pointer so that a missing
// importe is rejected rather than stored as 0.
type PaymentRequest struct {
	MerchantID    string   `json:"idComercio"`
	TransactionID string   `json:"idTransaccion"`
	Amount        *float64 `json:"importe"`
	CardNumber    string   `json:"tarjeta_id,omitempty"`
	Verification  string   `json:"verificacion,omitempty"`
}

// Fields returns the payment values, or a ValidationError when importe was
// not sent.
func (p PaymentRequest) Fields() (models.PaymentFields, error) {
	if p.Amount == nil {
		return models.PaymentFields{}, &models.ValidationError{Field: "importe", Reason: "is required"}
	}
	return models.PaymentFields{
		MerchantID:    p.MerchantID,
		TransactionID: p.TransactionID,
		Amount:        *p.Amount,
	}, nil
}

func (a *API) verifyCard(w http.ResponseWriter, r *http.Request) {
	q := models.CardQuery{}
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}

	token, err := a.workflow.Verify(r.Context(), q)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: msgCardNotFound})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgCardFound, Verification: token})
}

func (a *API) registerPayment(w http.ResponseWriter, r *http.Request) {
	req := PaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}

	fields, err := req.Fields()
	if err != nil {
		writeError(w, err)
		return
	}

	var payment *models.Payment
	switch {
	case req.Verification != "":
		payment, err = a.workflow.Pay(r.Context(), req.Verification, fields)
	case req.CardNumber != "":
		payment, err = a.workflow.Operations().RegisterPayment(r.Context(), models.CreatePayment{
			PaymentFields: fields,
			CardNumber:    req.CardNumber,
		})
	default:
		err = models.ErrSequence
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

func (a *API) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid payment id"})
		return
	}

	err = a.workflow.Operations().DeletePayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: msgPaymentNotFound})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgPaymentDeleted})
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	merchantID := chi.URLParam(r, "merchantID")
	if r.URL.RawPath != "" {
		// chi routes on the escaped path, so an id holding "/" arrives as %2F
		unescaped, err := url.PathUnescape(merchantID)
		if err != nil {
			writeError(w, &models.ValidationError{Field: "idComercio", Reason: err.Error()})
			return
		}
		merchantID = unescaped
	}

	payments, err := a.workflow.Operations().ListPayments(r.Context(), merchantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payments)
}

// StatusFor maps an operation error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrSequence):
		return http.StatusPreconditionRequired
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), messageResponse{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
