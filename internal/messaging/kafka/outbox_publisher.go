package kafka

import (
	"errors"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// OutboxTopicPublisher отдаёт события outbox в один топик. Ключ: id заказа,
// поэтому события одного заказа попадают в одну партицию и сохраняют порядок.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher; пустой topic означает TopicPaymentEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicPaymentEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish оборачивает событие в PaymentEventEnvelope.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.Join(domain.ErrOutboxPublish, errProducerClosed)
	}

	value, err := jsonMarshal(PaymentEventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       jsonRaw(event.Payload),
		PublishedAt:   p.now(),
	})
	if err != nil {
		return err
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.Send(p.topic, key, value, []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
		{Key: []byte(HeaderOutboxID), Value: []byte(event.ID)},
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
