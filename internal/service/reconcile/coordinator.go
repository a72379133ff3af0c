package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/metrics"
)

// Notification — асинхронное уведомление провайдера об изменении его заказа.
type Notification struct {
	// PaymentMethodID указывает, с каким API-ключом читать заказ провайдера.
	PaymentMethodID string
	ExternalOrderID string
}

// Исходы обработки уведомления (метка метрики payrecon_reconcile_total).
const (
	outcomeUnknownMethod  = "ignored_unknown_method"
	outcomeIgnoredStatus  = "ignored_status"
	outcomeIgnoredState   = "ignored_state"
	outcomeDoublePayment  = "double_payment"
	outcomePaymentAdded   = "payment_added"
	outcomePaymentSettled = "payment_settled"
	outcomeAlreadyApplied = "already_applied"
	outcomeAutoCaptured   = "auto_captured"
	outcomeError          = "error"
)

// Coordinator сверяет статус заказа провайдера с локальным заказом и его платежами.
// Состояния между вызовами не хранит: согласованность обеспечивает транзакция хранилища.
type Coordinator struct {
	methods   domain.PaymentMethodRepository
	providers domain.ProviderFactory
	txm       domain.Transactor
	logger    *log.Entry
	metrics   *metrics.ReconcileMetrics
	now       func() time.Time
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics включает метрики Prometheus.
func WithMetrics(m *metrics.ReconcileMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock подменяет источник времени для событий.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator создаёт координатор сверки.
func NewCoordinator(
	methods domain.PaymentMethodRepository,
	providers domain.ProviderFactory,
	txm domain.Transactor,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		methods:   methods,
		providers: providers,
		txm:       txm,
		logger:    log.New().WithField("component", "reconcile"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reconcile обрабатывает уведомление. Безопасен для повторной доставки.
//
// nil возвращается и для намеренных no-op: неизвестный способ оплаты, незначимый статус,
// финализированный заказ, повторная оплата. Ошибка означает, что уведомление нужно
// доставить повторно или разобрать вручную.
func (c *Coordinator) Reconcile(ctx context.Context, n Notification) error {
	start := time.Now()
	outcome := outcomeError
	if c.metrics != nil {
		c.metrics.RecordStarted()
		defer func() { c.metrics.RecordFinished(outcome, time.Since(start)) }()
	}

	logger := c.logger.WithFields(log.Fields{
		"payment_method_id": n.PaymentMethodID,
		"external_order_id": n.ExternalOrderID,
	})

	method, err := c.methods.Get(ctx, n.PaymentMethodID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentMethodNotFound) {
			// Вызывающему не сообщаем, что способа оплаты нет.
			logger.Warn("notification for unknown payment method ignored")
			outcome = outcomeUnknownMethod
			return nil
		}
		logger.WithError(err).Error("resolve payment method failed")
		return fmt.Errorf("resolve payment method %s: %w", n.PaymentMethodID, err)
	}

	client := c.providers.ForAPIKey(method.APIKey)
	fetchStart := time.Now()
	external, err := client.FetchOrder(ctx, n.ExternalOrderID)
	if c.metrics != nil {
		c.metrics.RecordProviderCall("fetch_order", err, time.Since(fetchStart))
	}
	if err != nil {
		logger.WithError(err).Error("fetch provider order failed")
		return &domain.ProviderFetchError{ExternalOrderID: n.ExternalOrderID, Err: err}
	}

	// Побочные эффекты должны идти на языке исходного заказа.
	if lang, ok := external.LanguageCode(); ok {
		ctx = domain.WithLanguage(ctx, lang)
	}

	logger = logger.WithFields(log.Fields{
		"order_code":      external.OrderNumber,
		"provider_status": external.Status,
	})

	run := &reconcileRun{
		c:        c,
		client:   client,
		method:   method,
		external: external,
		logger:   logger,
	}
	err = c.txm.WithinTx(ctx, func(ctx context.Context, tx domain.TxStores) error {
		run.tx = tx
		run.events = run.events[:0]
		result, err := run.apply(ctx)
		outcome = result
		return err
	})
	if err != nil {
		outcome = outcomeError
		run.logger.WithError(err).Error("reconcile provider notification failed")
		return err
	}
	run.recordEvents()
	return nil
}

// reconcileRun: состояние одного вызова Reconcile внутри транзакции.
type reconcileRun struct {
	c        *Coordinator
	tx       domain.TxStores
	client   domain.ProviderClient
	method   domain.PaymentMethod
	external domain.ExternalOrder
	logger   *log.Entry
	// events: сколько событий поставлено в outbox, для метрик после коммита.
	events []string
}

func (r *reconcileRun) apply(ctx context.Context) (string, error) {
	order, err := r.tx.Orders.FindByCode(ctx, r.external.OrderNumber)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return outcomeError, &domain.OrderNotFoundError{
				OrderCode:       r.external.OrderNumber,
				ExternalOrderID: r.external.ID,
			}
		}
		return outcomeError, fmt.Errorf("find order %s: %w", r.external.OrderNumber, err)
	}
	r.logger = r.logger.WithField("order_state", order.State)

	if !r.external.Status.Actionable() {
		r.logger.Info("provider status requires no action")
		return outcomeIgnoredStatus, nil
	}

	attached, hasPayment := order.PaymentByTransactionID(r.external.ID)
	if order.Placed() && !hasPayment {
		// Заказ уже оплачен другой транзакцией. Возврат не делаем: нужен ручной разбор.
		r.logger.WithField("amount", r.external.Amount.String()+" "+r.external.Amount.Currency).
			Error("order already placed, received second payment: manual refund required")
		if r.c.metrics != nil {
			r.c.metrics.RecordDoublePayment()
		}
		if err := r.emit(ctx, order, domain.EventDoublePaymentDetected, map[string]any{
			"amount_minor": r.external.Amount.MinorUnits(),
			"currency":     r.external.Amount.Currency,
			"reason":       "payment received for already placed order",
		}); err != nil {
			return outcomeError, err
		}
		return outcomeDoublePayment, nil
	}

	if !order.State.ReconciliationEligible() {
		r.logger.Info("order state is not eligible for reconciliation")
		return outcomeIgnoredState, nil
	}

	var attachedStatus domain.PaymentStatus
	if hasPayment {
		attachedStatus = attached.Status
	}

	act := decide(r.external.Status, order.State, r.method.AutoCapture, attachedStatus)
	r.logger.WithField("action", act.String()).Debug("reconcile decision")

	switch act {
	case actionAddSettled:
		if _, err := r.addPayment(ctx, order, domain.PaymentStatusSettled); err != nil {
			return outcomeError, err
		}
		return outcomePaymentAdded, nil

	case actionAddAuthorized, actionAddAuthorizedAndSettle:
		updated, err := r.addPayment(ctx, order, domain.PaymentStatusAuthorized)
		if err != nil {
			return outcomeError, err
		}
		if act == actionAddAuthorized {
			return outcomePaymentAdded, nil
		}
		if err := r.settleExistingPayment(ctx, updated); err != nil {
			return outcomeError, err
		}
		return outcomePaymentSettled, nil

	case actionSettleExisting:
		if err := r.settleExistingPayment(ctx, order); err != nil {
			return outcomeError, err
		}
		return outcomePaymentSettled, nil

	case actionCapturedByAutoCapture:
		return outcomeAutoCaptured, nil

	case actionAlreadyApplied:
		r.logger.Info("notification already applied")
		return outcomeAlreadyApplied, nil

	default:
		return outcomeError, &domain.UnhandledTransitionError{
			OrderCode:       order.Code,
			ExternalOrderID: r.external.ID,
			ProviderStatus:  r.external.Status,
			OrderState:      order.State,
		}
	}
}

func (r *reconcileRun) recordEvents() {
	if r.c.metrics == nil {
		return
	}
	for range r.events {
		r.c.metrics.RecordOutboxEvent()
		r.c.metrics.RecordTimelineEvent()
	}
}
