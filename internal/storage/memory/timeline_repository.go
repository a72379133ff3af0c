package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

// TimelineRepository хранит историю заказов в памяти, упорядоченную по Occurred.
type TimelineRepository struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
	now     func() time.Time
}

// NewTimelineRepository создаёт in-memory историю заказов.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{
		byOrder: make(map[string][]domain.TimelineEvent),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append вставляет событие по времени; при равном Occurred новое встаёт после уже записанных.
func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.byOrder[event.OrderID]
	pos := len(history)
	for pos > 0 && history[pos-1].Occurred.After(event.Occurred) {
		pos--
	}
	r.byOrder[event.OrderID] = slices.Insert(history, pos, event)
	return nil
}

// List возвращает копию истории; для неизвестного заказа: пустой результат без ошибки.
func (r *TimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
