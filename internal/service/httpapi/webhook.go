package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

// WebhookHandler принимает уведомления Mollie.
type WebhookHandler struct {
	reconciler Reconciler
	logger     *log.Entry
}

// NewWebhookHandler создаёт обработчик webhook.
// 200: уведомление обработано или намеренно проигнорировано;
// 400: в форме нет id заказа провайдера;
// 500: сверка не удалась, Mollie повторит доставку.
func NewWebhookHandler(reconciler Reconciler, logger *log.Entry) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// MollieWebhook обрабатывает POST /payments/mollie/{paymentMethodID}.
func (h *WebhookHandler) MollieWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methodID := chi.URLParam(r, "paymentMethodID")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		externalID := strings.TrimSpace(r.PostForm.Get("id"))
		if externalID == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}

		err := h.reconciler.Reconcile(r.Context(), reconcile.Notification{
			PaymentMethodID: methodID,
			ExternalOrderID: externalID,
		})
		if err != nil {
			h.logger.WithError(err).WithFields(log.Fields{
				"payment_method_id": methodID,
				"external_order_id": externalID,
			}).Error("mollie webhook failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
