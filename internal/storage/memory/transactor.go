package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type transactor struct {
	orders   *OrderStore
	outbox   domain.OutboxWriter
	timeline domain.TimelineWriter
}

// NewTransactor связывает хранилище заказов с outbox и timeline в одну транзакцию.
// События, записанные внутри WithinTx, попадают в репозитории только после успешного fn.
// Внутри fn нужно пользоваться только переданными хранилищами: прямое обращение к OrderStore заблокируется.
func NewTransactor(orders *OrderStore, outbox domain.OutboxWriter, timeline domain.TimelineWriter) domain.Transactor {
	return &transactor{orders: orders, outbox: outbox, timeline: timeline}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.TxStores) error) error {
	var (
		outbox   = &bufferedOutbox{}
		timeline = &bufferedTimeline{}
	)

	err := t.orders.locked(func(store domain.OrderStore) error {
		return fn(ctx, domain.TxStores{Orders: store, Outbox: outbox, Timeline: timeline})
	})
	if err != nil {
		return err
	}

	// Изменения заказа уже применены: отмена ctx не должна терять события.
	flushCtx := context.WithoutCancel(ctx)
	for _, msg := range outbox.messages {
		if t.outbox == nil {
			break
		}
		if _, err := t.outbox.Enqueue(flushCtx, msg); err != nil {
			return fmt.Errorf("flush outbox message %s: %w", msg.ID, err)
		}
	}
	for _, event := range timeline.events {
		if t.timeline == nil {
			break
		}
		if err := t.timeline.Append(flushCtx, event); err != nil {
			return fmt.Errorf("flush timeline event for order %s: %w", event.OrderID, err)
		}
	}
	return nil
}

// bufferedOutbox копит сообщения до фиксации транзакции.
type bufferedOutbox struct {
	messages []domain.OutboxMessage
}

func (b *bufferedOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	b.messages = append(b.messages, msg)
	return msg, nil
}

// bufferedTimeline копит события до фиксации транзакции.
type bufferedTimeline struct {
	events []domain.TimelineEvent
}

func (b *bufferedTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	b.events = append(b.events, event)
	return nil
}

var _ domain.Transactor = (*transactor)(nil)
