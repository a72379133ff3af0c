package domain

import "time"

// IdempotencyStatus — стадия обработки запроса с idempotency-key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord — сохранённый результат запроса.
// Ключ уникален в пределах Scope: один и тот же idempotency-key в разных методах не конфликтует.
type IdempotencyRecord struct {
	Scope       string
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	// Response: сериализованный ответ (done) или описание ошибки (failed).
	Response []byte
	// StatusCode: gRPC-код ошибки для failed, 0 для done.
	StatusCode uint32
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, что запись можно удалить и ключ снова свободен.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
