package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; повтор того же события допустим.
	Publish(event OutboxMessage) error
}

// OutboxWriter ставит событие в очередь на публикацию.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository — очередь событий для outbox worker.
// MarkSent и MarkFailed переводят только pending-событие, иначе ошибка оборачивает ErrOutboxPublish.
type OutboxRepository interface {
	OutboxWriter
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineWriter добавляет событие в историю заказа.
type TimelineWriter interface {
	Append(ctx context.Context, event TimelineEvent) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	TimelineWriter
	// List возвращает историю по возрастанию Occurred; для неизвестного заказа: пустой список.
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит результаты запросов по (scope, key).
type IdempotencyRepository interface {
	// Reserve создаёт запись processing. Если ключ занят, возвращает существующую запись и
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch для другого тела запроса.
	Reserve(ctx context.Context, scope, key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, scope, key string) (IdempotencyRecord, error)
	Complete(ctx context.Context, scope, key string, response []byte) error
	Fail(ctx context.Context, scope, key string, response []byte, statusCode uint32) error
	// DeleteExpired удаляет не больше limit записей с ExpiresAt <= before; limit <= 0: без ограничения.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы событий, которые сверка пишет в outbox и timeline.
const (
	EventPaymentAdded          = "PaymentAdded"
	EventPaymentSettled        = "PaymentSettled"
	EventOrderStateChanged     = "OrderStateChanged"
	EventDoublePaymentDetected = "DoublePaymentDetected"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
