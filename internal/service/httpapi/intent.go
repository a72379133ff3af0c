package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/service/intent"
)

// IntentHandler обслуживает checkout-страницу.
type IntentHandler struct {
	svc    IntentService
	logger *log.Entry
}

// NewIntentHandler создаёт обработчик платёжных намерений.
func NewIntentHandler(svc IntentService, logger *log.Entry) *IntentHandler {
	return &IntentHandler{svc: svc, logger: logger}
}

type createIntentRequest struct {
	OrderCode         string `json:"orderCode"`
	PaymentMethodCode string `json:"paymentMethodCode"`
	RedirectURL       string `json:"redirectUrl,omitempty"`
	ProviderMethod    string `json:"molliePaymentMethodCode,omitempty"`
	Locale            string `json:"locale,omitempty"`
}

type createIntentResponse struct {
	URL     string `json:"url"`
	Settled bool   `json:"settled,omitempty"`
}

// CreatePaymentIntent — POST /api/payment-intents.
// Ошибки ввода возвращаются с 422 и кодом, сбои провайдера и хранилища: 500.
func (h *IntentHandler) CreatePaymentIntent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createIntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}

		res, err := h.svc.CreatePaymentIntent(r.Context(), intent.Input{
			OrderCode:         req.OrderCode,
			PaymentMethodCode: req.PaymentMethodCode,
			RedirectURL:       req.RedirectURL,
			ProviderMethod:    req.ProviderMethod,
			Locale:            req.Locale,
		})
		if err != nil {
			h.logger.WithError(err).WithField("order_code", req.OrderCode).Error("create payment intent failed")
			writeError(w, http.StatusInternalServerError, "internal", "payment provider is unavailable")
			return
		}
		if res.Error != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:   res.Error.Code,
				Message: res.Error.Message,
				Field:   res.Error.Field,
			})
			return
		}
		writeJSON(w, http.StatusOK, createIntentResponse{URL: res.CheckoutURL, Settled: res.Settled})
	}
}

type providerMethodResponse struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	MinAmount   *domain.Money `json:"minimumAmount,omitempty"`
	MaxAmount   *domain.Money `json:"maximumAmount,omitempty"`
	Image       string        `json:"image,omitempty"`
}

// ListProviderMethods — GET /api/payment-methods/{code}/provider-methods.
func (h *IntentHandler) ListProviderMethods() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		orderCode := r.URL.Query().Get("orderCode")
		if orderCode == "" {
			writeError(w, http.StatusBadRequest, "missing_order_code", "orderCode query parameter is required")
			return
		}

		methods, err := h.svc.ListProviderMethods(r.Context(), code, orderCode, r.URL.Query().Get("locale"))
		switch {
		case errors.Is(err, domain.ErrPaymentMethodNotFound), errors.Is(err, domain.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		case err != nil:
			h.logger.WithError(err).WithField("payment_method_code", code).Error("list provider methods failed")
			writeError(w, http.StatusInternalServerError, "internal", "payment provider is unavailable")
			return
		}

		resp := make([]providerMethodResponse, 0, len(methods))
		for _, m := range methods {
			resp = append(resp, providerMethodResponse{
				ID:          m.ID,
				Description: m.Description,
				MinAmount:   m.MinAmount,
				MaxAmount:   m.MaxAmount,
				Image:       m.ImageURL,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
