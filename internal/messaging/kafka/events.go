package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Topics для Kafka
const (
	// TopicMollieNotifications: уведомления Mollie, принятые edge-шлюзом и переданные через брокер.
	TopicMollieNotifications = "payrecon.mollie.notifications"
	// TopicPaymentEvents: события платежей из transactional outbox.
	TopicPaymentEvents = "payrecon.payment.events"
	// TopicDeadLetterQueue: сообщения, которые не удалось обработать или опубликовать.
	TopicDeadLetterQueue = "payrecon.dlq"
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
)

// NotificationMessage — уведомление Mollie о заказе.
type NotificationMessage struct {
	PaymentMethodID string    `json:"payment_method_id"`
	ExternalOrderID string    `json:"external_order_id"`
	ReceivedAt      time.Time `json:"received_at,omitempty"`
}

// PaymentEventEnvelope — формат события в TopicPaymentEvents.
type PaymentEventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter — сообщение, отправленное консьюмером в DLQ.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key,omitempty"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	RetryCount        int       `json:"retry_count"`
	FailedAt          time.Time `json:"failed_at"`
}

var errEmptyNotificationField = errors.New("notification field is empty")

// ParseNotification разбирает уведомление и проверяет обязательные поля.
func ParseNotification(message *sarama.ConsumerMessage) (NotificationMessage, error) {
	var n NotificationMessage
	if err := json.Unmarshal(message.Value, &n); err != nil {
		return NotificationMessage{}, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	n.PaymentMethodID = strings.TrimSpace(n.PaymentMethodID)
	n.ExternalOrderID = strings.TrimSpace(n.ExternalOrderID)
	if n.PaymentMethodID == "" {
		return NotificationMessage{}, fmt.Errorf("payment_method_id: %w", errEmptyNotificationField)
	}
	if n.ExternalOrderID == "" {
		return NotificationMessage{}, fmt.Errorf("external_order_id: %w", errEmptyNotificationField)
	}
	return n, nil
}

func jsonMarshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kafka message: %w", err)
	}
	return data, nil
}
