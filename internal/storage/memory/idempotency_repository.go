package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

type idempotencyKey struct {
	scope string
	key   string
}

type idempotencyRepositoryInMemory struct {
	mu    sync.Mutex
	items map[idempotencyKey]domain.IdempotencyRecord
	now   func() time.Time
}

// NewIdempotencyRepository создаёт in-memory хранилище ключей идемпотентности.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		items: make(map[idempotencyKey]domain.IdempotencyRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func normalizeIdempotencyKey(scope, key string) (idempotencyKey, error) {
	k := idempotencyKey{scope: strings.TrimSpace(scope), key: strings.TrimSpace(key)}
	if k.scope == "" {
		return k, domain.ErrIdempotencyScopeRequired
	}
	if k.key == "" {
		return k, domain.ErrIdempotencyKeyRequired
	}
	return k, nil
}

func (r *idempotencyRepositoryInMemory) Reserve(_ context.Context, scope, key, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	k, err := normalizeIdempotencyKey(scope, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultIdempotencyTTL)
	}

	// Просроченная запись, которую ещё не убрал cleanup, ключ не держит.
	if existing, ok := r.items[k]; ok && !existing.Expired(now) {
		if existing.RequestHash != requestHash {
			return cloneIdempotencyRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return cloneIdempotencyRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Scope:       k.scope,
		Key:         k.key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[k] = record
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Get(_ context.Context, scope, key string) (domain.IdempotencyRecord, error) {
	k, err := normalizeIdempotencyKey(scope, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[k]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Complete(_ context.Context, scope, key string, response []byte) error {
	return r.finish(scope, key, domain.IdempotencyStatusDone, response, 0)
}

func (r *idempotencyRepositoryInMemory) Fail(_ context.Context, scope, key string, response []byte, statusCode uint32) error {
	return r.finish(scope, key, domain.IdempotencyStatusFailed, response, statusCode)
}

func (r *idempotencyRepositoryInMemory) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if before.IsZero() {
		before = r.now()
	}

	removed := 0
	for k, record := range r.items {
		if limit > 0 && removed >= limit {
			break
		}
		if record.Expired(before) {
			delete(r.items, k)
			removed++
		}
	}
	return removed, nil
}

func (r *idempotencyRepositoryInMemory) finish(scope, key string, status domain.IdempotencyStatus, response []byte, statusCode uint32) error {
	k, err := normalizeIdempotencyKey(scope, key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[k]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.Response = append([]byte(nil), response...)
	record.StatusCode = statusCode
	record.UpdatedAt = r.now()
	r.items[k] = record
	return nil
}

func cloneIdempotencyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.Response = append([]byte(nil), src.Response...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
