package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт хранилище ключей идемпотентности gRPC-методов.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

func idempotencyIdentity(scope, key string) (string, string, error) {
	scope, key = strings.TrimSpace(scope), strings.TrimSpace(key)
	if scope == "" {
		return "", "", domain.ErrIdempotencyScopeRequired
	}
	if key == "" {
		return "", "", domain.ErrIdempotencyKeyRequired
	}
	return scope, key, nil
}

// Reserve занимает ключ одним запросом. Просроченная запись перезаписывается,
// живая остаётся, и тогда RETURNING ничего не вернёт.
func (r *idempotencyRepository) Reserve(ctx context.Context, scope, key, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	scope, key, err := idempotencyIdentity(scope, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultIdempotencyTTL)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(opCtx, `
		INSERT INTO idempotency_keys (scope, key, request_hash, status, response, status_code, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, 0, $5, $6, $6)
		ON CONFLICT (scope, key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    status = EXCLUDED.status,
		    response = NULL,
		    status_code = 0,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING scope, key, request_hash, status, response, status_code, expires_at, created_at, updated_at
	`, scope, key, requestHash, string(domain.IdempotencyStatusProcessing), expiresAt.UTC(), now))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key %s: %w", key, err)
	}

	existing, err := r.Get(ctx, scope, key)
	if err != nil {
		// Запись успели удалить между INSERT и SELECT: ключ всё равно считаем занятым.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(ctx context.Context, scope, key string) (domain.IdempotencyRecord, error) {
	scope, key, err := idempotencyIdentity(scope, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(opCtx, `
		SELECT scope, key, request_hash, status, response, status_code, expires_at, created_at, updated_at
		FROM idempotency_keys
		WHERE scope = $1 AND key = $2
	`, scope, key))
	if err != nil && !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key %s: %w", key, err)
	}
	return record, err
}

func (r *idempotencyRepository) Complete(ctx context.Context, scope, key string, response []byte) error {
	return r.finish(ctx, scope, key, domain.IdempotencyStatusDone, response, 0)
}

func (r *idempotencyRepository) Fail(ctx context.Context, scope, key string, response []byte, statusCode uint32) error {
	return r.finish(ctx, scope, key, domain.IdempotencyStatusFailed, response, statusCode)
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// LIMIT NULL в PostgreSQL означает отсутствие ограничения.
	var batch sql.NullInt64
	if limit > 0 {
		batch = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	res, err := r.db.ExecContext(opCtx, `
		DELETE FROM idempotency_keys
		WHERE (scope, key) IN (
			SELECT scope, key
			FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before.UTC(), batch)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return int(affected), nil
}

func (r *idempotencyRepository) finish(ctx context.Context, scope, key string, status domain.IdempotencyStatus, response []byte, statusCode uint32) error {
	scope, key, err := idempotencyIdentity(scope, key)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(opCtx, `
		UPDATE idempotency_keys
		SET status = $3, response = $4, status_code = $5, updated_at = $6
		WHERE scope = $1 AND key = $2
	`, scope, key, string(status), response, int64(statusCode), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark idempotency key %s %s: %w", key, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark idempotency key %s %s: %w", key, status, err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func scanIdempotencyRecord(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		statusCode int64
	)
	err := row.Scan(
		&record.Scope,
		&record.Key,
		&record.RequestHash,
		&status,
		&record.Response,
		&statusCode,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency status %q", status)
	}
	record.StatusCode = uint32(statusCode)
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
