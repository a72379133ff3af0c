package kafka

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

// NotificationForwarder ставит уведомление Mollie в TopicMollieNotifications вместо
// синхронной сверки. Сверку выполняет Consumer с повторами и DLQ.
type NotificationForwarder struct {
	producer *Producer
	now      func() time.Time
}

// NewNotificationForwarder создаёт forwarder поверх producer.
func NewNotificationForwarder(producer *Producer) *NotificationForwarder {
	return &NotificationForwarder{producer: producer, now: func() time.Time { return time.Now().UTC() }}
}

// Reconcile публикует уведомление с ключом external_order_id: повторы одного заказа идут по порядку.
func (f *NotificationForwarder) Reconcile(ctx context.Context, n reconcile.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.producer.PublishEvent(TopicMollieNotifications, n.ExternalOrderID, NotificationMessage{
		PaymentMethodID: n.PaymentMethodID,
		ExternalOrderID: n.ExternalOrderID,
		ReceivedAt:      f.now(),
	})
}

var _ Reconciler = (*NotificationForwarder)(nil)
