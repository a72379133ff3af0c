package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

func TestOutboxPublisher_Envelope(t *testing.T) {
	t.Parallel()

	publishedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got PaymentEventEnvelope
	var headers []sarama.RecordHeader

	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPaymentEvents || keyOf(msg) != "order-123" {
			return fmt.Errorf("unexpected message %s/%s", msg.Topic, keyOf(msg))
		}
		headers = msg.Headers
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &got)
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mp, testLogger()), "")
	publisher.now = func() time.Time { return publishedAt }
	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     domain.EventPaymentSettled,
		Payload:       []byte(`{"order_code":"ORD-1"}`),
	}))
	require.NoError(t, mp.Close())

	require.Equal(t, domain.EventPaymentSettled, headerValue(headers, HeaderEventType))
	require.Equal(t, "outbox-1", headerValue(headers, HeaderOutboxID))
	require.Equal(t, "outbox-1", got.ID)
	require.Equal(t, "order", got.AggregateType)
	require.JSONEq(t, `{"order_code":"ORD-1"}`, string(got.Payload))
	require.True(t, got.PublishedAt.Equal(publishedAt))
}

func TestOutboxPublisher_KeyAndPayloadFallbacks(t *testing.T) {
	t.Parallel()

	var payload json.RawMessage
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "custom-topic" || keyOf(msg) != "outbox-9" {
			return fmt.Errorf("unexpected message %s/%s", msg.Topic, keyOf(msg))
		}
		raw, _ := msg.Value.Encode()
		var envelope PaymentEventEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		payload = envelope.Payload
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mp, testLogger()), "custom-topic")
	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:        "outbox-9",
		EventType: domain.EventPaymentAdded,
		Payload:   []byte("not json"),
	}))
	require.NoError(t, mp.Close())
	require.Equal(t, "null", string(payload))
}

func TestOutboxPublisher_Errors(t *testing.T) {
	t.Parallel()

	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	publisher := NewOutboxPublisher(NewProducerFromSync(mp, testLogger()), TopicPaymentEvents)
	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", AggregateID: "order-234", EventType: domain.EventPaymentAdded})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mp.Close())

	err = NewOutboxPublisher(nil, TopicPaymentEvents).Publish(domain.OutboxMessage{ID: "outbox-3"})
	require.ErrorIs(t, err, domain.ErrOutboxPublish)
	require.ErrorIs(t, err, errProducerClosed)
}
