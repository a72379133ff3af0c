package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Интеграционные тесты идут только при заданном PAYRECON_POSTGRES_TEST_DSN.
const testDSNEnv = "PAYRECON_POSTGRES_TEST_DSN"

var integrationTables = []string{
	"idempotency_keys",
	"outbox_messages",
	"timeline_events",
	"promotions",
	"payment_methods",
	"payments",
	"order_lines",
	"orders",
}

// connectTestStore открывает базу без миграций.
func connectTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(testDSNEnv))
	if dsn == "" {
		t.Skipf("%s is not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := Open(ctx, dsn, WithMaxOpenConns(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestStore мигрирует схему до последней версии и очищает все таблицы.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := connectTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err := store.DB().ExecContext(ctx,
		"TRUNCATE TABLE "+strings.Join(integrationTables, ", ")+" RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return store
}
