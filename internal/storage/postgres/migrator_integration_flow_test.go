package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireMigrationStatus(t *testing.T, store *Store, wantVersion int64, wantCount int) {
	t.Helper()
	version, count, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, wantVersion, version, "version")
	require.Equal(t, wantCount, count, "applied count")
}

func TestMigrator_UpDownCycle(t *testing.T) {
	store := connectTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateDown(ctx, 100))
	requireMigrationStatus(t, store, 0, 0)

	require.NoError(t, store.MigrateUp(ctx, 1))
	requireMigrationStatus(t, store, 1, 1)

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireMigrationStatus(t, store, 2, 2)

	// Повторный up ничего не меняет.
	require.NoError(t, store.MigrateUp(ctx, 0))
	requireMigrationStatus(t, store, 2, 2)

	require.NoError(t, store.MigrateDown(ctx, 0))
	requireMigrationStatus(t, store, 1, 1)

	require.NoError(t, store.MigrateDown(ctx, 5))
	requireMigrationStatus(t, store, 0, 0)

	require.NoError(t, store.MigrateDown(ctx, 1), "down on empty schema is a no-op")
	require.NoError(t, store.MigrateUp(ctx, 0))
}
