package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// timelineRepository пишет в timeline_events. Внутри WithinTx q: транзакция,
// и событие фиксируется вместе с изменением заказа.
type timelineRepository struct {
	q querier
}

// NewTimelineRepository создаёт историю заказов вне транзакции.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{q: store.DB()}
}

const insertTimelineEvent = `
INSERT INTO timeline_events (order_id, type, reason, external_order_id, occurred)
VALUES ($1, $2, $3, $4, $5)`

// id BIGSERIAL сохраняет порядок записи при одинаковом occurred.
const selectTimelineEvents = `
SELECT order_id, type, reason, external_order_id, occurred
FROM timeline_events
WHERE order_id = $1
ORDER BY occurred, id`

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now()
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.q.ExecContext(opCtx, insertTimelineEvent,
		event.OrderID, event.Type, event.Reason, event.ExternalOrderID, occurred.UTC(),
	); err != nil {
		return fmt.Errorf("timeline %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(opCtx, selectTimelineEvents, orderID)
	if err != nil {
		return nil, fmt.Errorf("timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	history := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(&event.OrderID, &event.Type, &event.Reason, &event.ExternalOrderID, &event.Occurred); err != nil {
			return nil, fmt.Errorf("timeline of order %s: %w", orderID, err)
		}
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline of order %s: %w", orderID, err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
