package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
)

func TestOutboxRepository_PendingLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(newTestStore(t))

	added, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     domain.EventPaymentAdded,
		Payload:       []byte(`{"order_code":"ORD-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	settled, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "settled-ORD-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     domain.EventPaymentSettled,
	})
	require.NoError(t, err)
	require.Equal(t, "settled-ORD-1", settled.ID)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, added.ID, pending[0].ID)
	require.JSONEq(t, `{"order_code":"ORD-1"}`, string(pending[0].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, added.ID))
	require.NoError(t, repo.MarkFailed(ctx, settled.ID))
	require.ErrorIs(t, repo.MarkSent(ctx, settled.ID), domain.ErrOutboxPublish, "finished message cannot be marked again")
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)

	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_EnqueueInsideTransaction(t *testing.T) {
	store := newTestStore(t)
	txm := NewTransactor(store)
	orders := NewOrderStore(store)
	ctx := context.Background()

	order := sampleOrder("outbox-order", "OB-1", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, orders.Create(ctx, order))

	err := txm.WithinTx(ctx, func(ctx context.Context, tx domain.TxStores) error {
		_, err := tx.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: order.ID, EventType: domain.EventOrderStateChanged})
		require.NoError(t, err)
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	stats, err := NewOutboxRepository(store).Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount, "rolled back outbox message must not be visible")
}
