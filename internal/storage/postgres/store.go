package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolConfig — параметры пула database/sql поверх pgx.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultPoolConfig рассчитан на один инстанс сервиса сверки.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Option меняет PoolConfig при открытии Store.
type Option func(*PoolConfig)

// WithMaxOpenConns ограничивает число соединений.
func WithMaxOpenConns(n int) Option {
	return func(c *PoolConfig) {
		if n > 0 {
			c.MaxOpenConns = n
			c.MaxIdleConns = min(c.MaxIdleConns, n)
		}
	}
}

// WithPingTimeout задаёт таймаут проверки доступности.
func WithPingTimeout(timeout time.Duration) Option {
	return func(c *PoolConfig) {
		if timeout > 0 {
			c.PingTimeout = timeout
		}
	}
}

// Store владеет пулом соединений к базе заказов.
type Store struct {
	db  *sql.DB
	cfg PoolConfig
}

// Open открывает пул и сразу проверяет соединение.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := DefaultPoolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &Store{db: db, cfg: cfg}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул репозиториям пакета и тестам.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-проверкой readiness.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	timeout := s.cfg.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPoolConfig().PingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул. Повторный вызов и nil-Store безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
