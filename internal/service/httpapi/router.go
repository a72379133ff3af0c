package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/service/intent"
	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

// Reconciler обрабатывает уведомления провайдера.
type Reconciler interface {
	Reconcile(ctx context.Context, n reconcile.Notification) error
}

// IntentService создаёт платёжные намерения.
type IntentService interface {
	CreatePaymentIntent(ctx context.Context, in intent.Input) (intent.Result, error)
	ListProviderMethods(ctx context.Context, paymentMethodCode, orderCode, locale string) ([]domain.ProviderMethod, error)
}

// PromotionService управляет промоакциями.
type PromotionService interface {
	Create(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
	Update(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Promotion, error)
	List(ctx context.Context) ([]domain.Promotion, error)
	Active(ctx context.Context) ([]domain.Promotion, error)
}

// TimelineReader читает историю заказа.
type TimelineReader interface {
	List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// Deps — зависимости HTTP API. Nil-сервис отключает его маршруты.
type Deps struct {
	Reconciler Reconciler
	Intents    IntentService
	Promotions PromotionService
	Timeline   TimelineReader
	Logger     *log.Entry
}

// NewRouter собирает публичный HTTP API.
//
//	POST   /payments/mollie/{paymentMethodID}       webhook провайдера (form: id)
//	POST   /api/payment-intents                     создать намерение
//	GET    /api/payment-methods/{code}/provider-methods?orderCode=&locale=
//	GET    /api/promotions, /api/promotions/active
//	POST   /api/promotions
//	GET    /api/promotions/{id}, PUT, DELETE
//	GET    /api/orders/{orderID}/timeline
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(Logging(logger))

	if deps.Reconciler != nil {
		webhook := NewWebhookHandler(deps.Reconciler, logger)
		router.Post("/payments/mollie/{paymentMethodID}", webhook.MollieWebhook())
	}

	if deps.Intents != nil {
		intents := NewIntentHandler(deps.Intents, logger)
		router.Post("/api/payment-intents", intents.CreatePaymentIntent())
		router.Get("/api/payment-methods/{code}/provider-methods", intents.ListProviderMethods())
	}

	if deps.Promotions != nil {
		promotions := NewPromotionHandler(deps.Promotions, logger)
		router.Route("/api/promotions", func(r chi.Router) {
			r.Get("/", promotions.List())
			r.Post("/", promotions.Create())
			r.Get("/active", promotions.Active())
			r.Get("/{id}", promotions.Get())
			r.Put("/{id}", promotions.Update())
			r.Delete("/{id}", promotions.Delete())
		})
	}

	if deps.Timeline != nil {
		router.Get("/api/orders/{orderID}/timeline", orderTimeline(deps.Timeline, logger))
	}

	return router
}

// Logging пишет в лог каждый запрос с кодом ответа и длительностью.
func Logging(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
