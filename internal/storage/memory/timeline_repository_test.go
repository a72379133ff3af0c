package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	"github.com/vladislavdragonenkov/payrecon/internal/storage/memory"
)

func TestTimelineRepository_OrdersByOccurred(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	for _, e := range []domain.TimelineEvent{
		{OrderID: "order-1", Type: domain.EventPaymentSettled, Occurred: base.Add(2 * time.Minute)},
		{OrderID: "order-1", Type: domain.EventPaymentAdded, ExternalOrderID: "ord_1", Occurred: base},
		{OrderID: "order-1", Type: domain.EventOrderStateChanged, Reason: "paid", Occurred: base.Add(2 * time.Minute)},
		{OrderID: "order-2", Type: domain.EventPaymentAdded, Occurred: base},
	} {
		require.NoError(t, repo.Append(ctx, e))
	}

	events, err := repo.List(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventPaymentAdded, events[0].Type)
	assert.Equal(t, "ord_1", events[0].ExternalOrderID)
	// Равное время: порядок записи сохраняется.
	assert.Equal(t, domain.EventPaymentSettled, events[1].Type)
	assert.Equal(t, domain.EventOrderStateChanged, events[2].Type)

	events[0].Type = "mutated"
	again, err := repo.List(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventPaymentAdded, again[0].Type)
}

func TestTimelineRepository_UnknownOrderAndDefaults(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()

	events, err := repo.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, events)

	before := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "order-3", Type: domain.EventPaymentAdded}))
	events, err = repo.List(ctx, "order-3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Occurred.Before(before), "zero Occurred is filled with current time")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, repo.Append(cancelled, domain.TimelineEvent{OrderID: "order-3"}), context.Canceled)
}

func TestTimelineRepository_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Append(ctx, domain.TimelineEvent{OrderID: "order-4", Type: domain.EventPaymentAdded, Occurred: base.Add(time.Duration(50-i) * time.Second)})
		}()
	}
	wg.Wait()

	events, err := repo.List(ctx, "order-4")
	require.NoError(t, err)
	require.Len(t, events, 50)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Occurred.Before(events[i-1].Occurred))
	}
}
