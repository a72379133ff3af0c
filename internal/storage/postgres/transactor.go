package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

type transactor struct {
	db *sql.DB
}

// NewTransactor создаёт границу транзакции для заказа, outbox и timeline.
// Заказы, прочитанные внутри fn, блокируются через SELECT ... FOR UPDATE до COMMIT.
func NewTransactor(store *Store) domain.Transactor {
	return &transactor{db: store.DB()}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.TxStores) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	stores := domain.TxStores{
		Orders:   &orderStore{db: t.db, q: tx, forUpdate: true},
		Outbox:   &outboxRepository{q: tx},
		Timeline: &timelineRepository{q: tx},
	}
	if err := fn(ctx, stores); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.Transactor = (*transactor)(nil)
