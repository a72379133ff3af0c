package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics содержит метрики сверки платежей и создания платёжных намерений.
type ReconcileMetrics struct {
	// Исходы сверки: payment_added, ignored_status, error и т.д.
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge

	doublePayments prometheus.Counter

	// Вызовы провайдера по операциям и результату.
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	intents *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewReconcileMetrics регистрирует метрики в глобальном реестре.
func NewReconcileMetrics() *ReconcileMetrics {
	return NewReconcileMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewReconcileMetricsWithRegisterer регистрирует метрики в указанном реестре (изолированные тесты).
func NewReconcileMetricsWithRegisterer(registerer prometheus.Registerer) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconcileMetrics{
		outcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "payrecon_reconcile_total",
			Help: "Total number of processed provider notifications by outcome",
		}, []string{"outcome"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "payrecon_reconcile_duration_seconds",
			Help:    "Duration of provider notification reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "payrecon_reconcile_in_flight",
			Help: "Number of notifications currently being reconciled",
		}),
		doublePayments: registerCounter(registerer, prometheus.CounterOpts{
			Name: "payrecon_double_payments_total",
			Help: "Total number of payments received for already placed orders",
		}),
		providerCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "payrecon_provider_requests_total",
			Help: "Total number of payment provider API calls",
		}, []string{"operation", "result"}),
		providerDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "payrecon_provider_request_duration_seconds",
			Help:    "Duration of payment provider API calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"}),
		intents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "payrecon_payment_intents_total",
			Help: "Total number of payment intent requests by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "payrecon_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "payrecon_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordStarted отмечает начало обработки уведомления.
func (m *ReconcileMetrics) RecordStarted() {
	m.inFlight.Inc()
}

// RecordFinished фиксирует исход и длительность обработки.
func (m *ReconcileMetrics) RecordFinished(outcome string, duration time.Duration) {
	m.inFlight.Dec()
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.Observe(duration.Seconds())
}

// RecordDoublePayment увеличивает счётчик повторных оплат.
func (m *ReconcileMetrics) RecordDoublePayment() {
	m.doublePayments.Inc()
}

// RecordProviderCall фиксирует вызов API провайдера.
func (m *ReconcileMetrics) RecordProviderCall(operation string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerCalls.WithLabelValues(operation, result).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordIntent фиксирует результат создания платёжного намерения.
func (m *ReconcileMetrics) RecordIntent(result string) {
	m.intents.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ReconcileMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ReconcileMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// Outcomes возвращает счётчик исходов сверки (для проверки в тестах и экспорта в отдельный реестр).
func (m *ReconcileMetrics) Outcomes() prometheus.Collector {
	return m.outcomes
}
