package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

func keyOf(msg *sarama.ProducerMessage) string {
	if msg.Key == nil {
		return ""
	}
	raw, _ := msg.Key.Encode()
	return string(raw)
}

func TestProducerConfig(t *testing.T) {
	cfg := producerConfig(WithProducerRetries(2), WithCompression(sarama.CompressionZSTD))

	require.Equal(t, clientID, cfg.ClientID)
	require.True(t, cfg.Producer.Idempotent)
	require.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	require.Equal(t, 1, cfg.Net.MaxOpenRequests)
	require.Equal(t, 2, cfg.Producer.Retry.Max)
	require.Equal(t, sarama.CompressionZSTD, cfg.Producer.Compression)
	require.NoError(t, cfg.Validate())
}

func TestProducer_Send(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if keyOf(msg) != "order-7" || msg.Topic != TopicPaymentEvents {
			return fmt.Errorf("unexpected message %s/%s", msg.Topic, keyOf(msg))
		}
		return nil
	})
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Key != nil {
			return errors.New("empty key must leave partitioning to sarama")
		}
		return nil
	})

	producer := NewProducerFromSync(mp, testLogger())
	require.NoError(t, producer.Send(TopicPaymentEvents, "order-7", []byte(`{}`), nil))
	require.NoError(t, producer.Send(TopicPaymentEvents, "", []byte(`{}`), nil))
	require.NoError(t, producer.Close())
}

func TestProducer_Errors(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFromSync(mp, testLogger())
	err := producer.PublishEvent(TopicPaymentEvents, "order-1", map[string]string{"a": "b"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.Error(t, producer.PublishEvent(TopicPaymentEvents, "order-1", make(chan int)), "unmarshalable event")
	require.NoError(t, producer.Close())

	var nilProducer *Producer
	require.ErrorIs(t, nilProducer.Send("t", "k", nil, nil), errProducerClosed)
	require.NoError(t, nilProducer.Close())
}

func TestNotificationForwarder(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicMollieNotifications || keyOf(msg) != "ord_kEn1PlbGa" {
			return fmt.Errorf("unexpected message %s/%s", msg.Topic, keyOf(msg))
		}
		raw, _ := msg.Value.Encode()
		var n NotificationMessage
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		if n.PaymentMethodID != "mollie-eur" || n.ReceivedAt.IsZero() {
			return fmt.Errorf("unexpected notification %+v", n)
		}
		return nil
	})

	forwarder := NewNotificationForwarder(NewProducerFromSync(mp, testLogger()))
	forwarder.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, forwarder.Reconcile(context.Background(), reconcile.Notification{
		PaymentMethodID: "mollie-eur",
		ExternalOrderID: "ord_kEn1PlbGa",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, forwarder.Reconcile(ctx, reconcile.Notification{}), context.Canceled)
	require.NoError(t, mp.Close())
}
