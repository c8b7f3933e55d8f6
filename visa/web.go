package visa

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"github.com/jonanatree/visapay/visa/models"
)

const (
	siteTitle = "(visaSite)"

	// VerificationCookie carries the verification token between the card
	// and payment pages.
	VerificationCookie = "visa_verificacion"
)

// Messages shown by the form pages.
const (
	MsgCardNotRegistered = "¡Error: Tarjeta no registrada!"
	MsgNoCardInSession   = "¡Error: numero tarjeta no encontrado en la sesión!"
	MsgPaymentFailed     = "¡Error: al registrar pago!"
	MsgPaymentDeleted    = "¡Pago eliminado correctamente!"
	MsgDeleteFailed      = "¡Error: al eliminar pago!"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageData struct {
	Title      string
	Message    string
	Payment    *models.Payment
	Payments   []*models.Payment
	MerchantID string
}

// Web serves the server-rendered form pages.
type Web struct {
	workflow *Workflow
	logger   *slog.Logger
	pages    map[string]*template.Template
}

func NewWeb(workflow *Workflow, logger *slog.Logger) *Web {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"tarjeta", "pago", "testbd", "mensaje", "exito", "pagos"} {
		pages[name] = template.Must(template.ParseFS(templateFS,
			"templates/layout.html",
			"templates/fields.html",
			"templates/"+name+".html",
		))
	}
	return &Web{
		workflow: workflow,
		logger:   logger,
		pages:    pages,
	}
}

func (web *Web) AppendRoutes(r chi.Router) {
	r.Get("/", web.cardForm)
	r.Get("/tarjeta", web.cardForm)
	r.Post("/tarjeta", web.verifyCard)
	r.Get("/pago", web.paymentForm)
	r.Post("/pago", web.registerPayment)
	r.Get("/testbd", web.testForm)
	r.Post("/testbd", web.verifyAndPay)
	r.Post("/testbd/delpago", web.deletePayment)
	r.Post("/testbd/getpagos", web.listPayments)
}

func (web *Web) cardForm(w http.ResponseWriter, r *http.Request) {
	web.render(w, http.StatusOK, "tarjeta", pageData{})
}

func (web *Web) paymentForm(w http.ResponseWriter, r *http.Request) {
	web.render(w, http.StatusOK, "pago", pageData{})
}

func (web *Web) testForm(w http.ResponseWriter, r *http.Request) {
	web.render(w, http.StatusOK, "testbd", pageData{})
}

func (web *Web) verifyCard(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		web.message(w, http.StatusBadRequest, MsgCardNotRegistered)
		return
	}

	token, err := web.workflow.Verify(r.Context(), cardFromForm(r))
	if err != nil {
		web.message(w, StatusFor(err), MsgCardNotRegistered)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     VerificationCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/pago", http.StatusSeeOther)
}

func (web *Web) registerPayment(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(VerificationCookie); err == nil {
		token = c.Value
	}
	// the token is spent whatever happens next
	http.SetCookie(w, &http.Cookie{Name: VerificationCookie, Path: "/", MaxAge: -1, HttpOnly: true})

	if err := r.ParseForm(); err != nil {
		web.message(w, http.StatusBadRequest, MsgPaymentFailed)
		return
	}
	fields, err := paymentFromForm(r)
	if err != nil {
		web.message(w, http.StatusBadRequest, MsgPaymentFailed)
		return
	}

	payment, err := web.workflow.Pay(r.Context(), token, fields)
	if err != nil {
		if errors.Is(err, models.ErrSequence) {
			web.message(w, StatusFor(err), MsgNoCardInSession)
			return
		}
		web.message(w, StatusFor(err), MsgPaymentFailed)
		return
	}

	web.render(w, http.StatusOK, "exito", pageData{Payment: payment})
}

func (web *Web) verifyAndPay(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		web.message(w, http.StatusBadRequest, MsgPaymentFailed)
		return
	}
	fields, err := paymentFromForm(r)
	if err != nil {
		web.message(w, http.StatusBadRequest, MsgPaymentFailed)
		return
	}

	payment, err := web.workflow.VerifyAndPay(r.Context(), cardFromForm(r), fields)
	if err != nil {
		var verr *models.ValidationError
		if errors.Is(err, ErrCardRejected) || (errors.As(err, &verr) && verr.Field == "numero") {
			web.message(w, StatusFor(err), MsgCardNotRegistered)
			return
		}
		web.message(w, StatusFor(err), MsgPaymentFailed)
		return
	}

	web.render(w, http.StatusOK, "exito", pageData{Payment: payment})
}

func (web *Web) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue("id")), 10, 64)
	if err != nil {
		web.message(w, http.StatusBadRequest, MsgDeleteFailed)
		return
	}

	if err := web.workflow.Operations().DeletePayment(r.Context(), id); err != nil {
		web.message(w, StatusFor(err), MsgDeleteFailed)
		return
	}

	web.message(w, http.StatusOK, MsgPaymentDeleted)
}

func (web *Web) listPayments(w http.ResponseWriter, r *http.Request) {
	merchantID := strings.TrimSpace(r.PostFormValue("idComercio"))

	payments, err := web.workflow.Operations().ListPayments(r.Context(), merchantID)
	if err != nil {
		web.message(w, StatusFor(err), err.Error())
		return
	}

	web.render(w, http.StatusOK, "pagos", pageData{MerchantID: merchantID, Payments: payments})
}

func (web *Web) message(w http.ResponseWriter, status int, msg string) {
	web.render(w, status, "mensaje", pageData{Message: msg})
}

func (web *Web) render(w http.ResponseWriter, status int, page string, data pageData) {
	data.Title = siteTitle
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := web.pages[page].ExecuteTemplate(w, "layout", data); err != nil && web.logger != nil {
		web.logger.Error("rendering page", slog.String("page", page), slog.Any("err", err))
	}
}

func cardFromForm(r *http.Request) models.CardQuery {
	return models.CardQuery{
		Number:     strings.TrimSpace(r.PostFormValue("numero")),
		HolderName: strings.TrimSpace(r.PostFormValue("nombre")),
		Expiry:     strings.TrimSpace(r.PostFormValue("fechaCaducidad")),
		AuthCode:   strings.TrimSpace(r.PostFormValue("codigoAutorizacion")),
	}
}

func paymentFromForm(r *http.Request) (models.PaymentFields, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(r.PostFormValue("importe")), 64)
	if err != nil {
		return models.PaymentFields{}, &models.ValidationError{Field: "importe", Reason: "must be a number"}
	}
	return models.PaymentFields{
		MerchantID:    strings.TrimSpace(r.PostFormValue("idComercio")),
		TransactionID: strings.TrimSpace(r.PostFormValue("idTransaccion")),
		Amount:        amount,
	}, nil
}
