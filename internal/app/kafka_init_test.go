package app

import (
	"context"
	"testing"

	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

type syncReconciler struct{ calls int }

func (r *syncReconciler) Reconcile(context.Context, reconcile.Notification) error {
	r.calls++
	return nil
}

func kafkaTestLogger() *log.Entry { return log.WithField("component", "kafka-init-test") }

func TestKafkaInit_DisabledWithoutBrokers(t *testing.T) {
	for _, brokers := range []string{"", " , ", ","} {
		producer, err := initKafkaProducer(brokers, kafkaTestLogger())
		require.NoError(t, err, brokers)
		assert.Nil(t, producer, brokers)

		consumer, err := initNotificationConsumer(brokers, "payrecon", &syncReconciler{}, nil, kafkaTestLogger())
		require.NoError(t, err, brokers)
		assert.Nil(t, consumer, brokers)
	}
}

func TestKafkaInit_UnreachableBrokers(t *testing.T) {
	producer, err := initKafkaProducer("kafka-down-1:9999, kafka-down-2:9999", kafkaTestLogger())
	assert.Error(t, err)
	assert.Nil(t, producer)

	consumer, err := initNotificationConsumer("kafka-down-1:9999", "payrecon", &syncReconciler{}, nil, kafkaTestLogger())
	assert.Error(t, err)
	assert.Nil(t, consumer)
}

func TestWebhookReconciler_FallsBackToSync(t *testing.T) {
	coordinator := &syncReconciler{}
	producer := kafka.NewProducerFromSync(mocks.NewSyncProducer(t, nil), kafkaTestLogger())
	t.Cleanup(func() { _ = producer.Close() })

	tests := []struct {
		name     string
		async    bool
		producer *kafka.Producer
	}{
		{name: "async disabled", async: false, producer: producer},
		{name: "no producer", async: true, producer: nil},
		{name: "no consumer", async: true, producer: producer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.KafkaAsyncWebhooks = tt.async
			got := webhookReconciler(cfg, coordinator, tt.producer, nil, kafkaTestLogger())
			assert.Same(t, coordinator, got)
		})
	}
}

func TestKafkaCloseHelpers_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		closeKafkaProducer(nil, kafkaTestLogger())
		stopKafkaConsumer(nil, kafkaTestLogger())
	})
}
