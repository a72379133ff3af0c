package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/payrecon/internal/service/httpapi"
)

// splitBrokers разбирает список брокеров через запятую.
func splitBrokers(brokers string) []string {
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return list
}

// initKafkaProducer создаёт producer, если брокеры заданы. Пустой список: nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initNotificationConsumer подписывается на уведомления Mollie из брокера.
func initNotificationConsumer(brokers, groupID string, reconciler kafka.Reconciler, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	consumer, err := kafka.NewConsumer(
		brokerList,
		groupID,
		[]string{kafka.TopicMollieNotifications},
		kafka.NotificationHandler(reconciler),
		kafka.WithRetryProducer(producer),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, notifications are accepted over HTTP only")
		return nil, err
	}
	return consumer, nil
}

// webhookReconciler выбирает обработчик webhook: асинхронный через Kafka
// работает только при живых producer и consumer, иначе сверка синхронная.
func webhookReconciler(cfg Config, coordinator httpapi.Reconciler, producer *kafka.Producer, consumer *kafka.Consumer, logger *log.Entry) httpapi.Reconciler {
	if !cfg.KafkaAsyncWebhooks {
		return coordinator
	}
	if producer == nil || consumer == nil {
		logger.Warn("async webhooks need kafka producer and consumer, reconciling synchronously")
		return coordinator
	}
	logger.Info("webhook notifications are forwarded to kafka")
	return kafka.NewNotificationForwarder(producer)
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
