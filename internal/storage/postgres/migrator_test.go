package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestParseMigrations_SortedPairs(t *testing.T) {
	t.Parallel()

	migrations, err := parseMigrations(migrationFS(map[string]string{
		"010_refunds.up.sql":   "CREATE TABLE refunds (id TEXT);",
		"010_refunds.down.sql": "DROP TABLE refunds;",
		"002_orders.up.sql":    "CREATE TABLE orders (id TEXT);",
		"002_orders.down.sql":  "DROP TABLE orders;",
	}))
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "2_orders", migrations[0].String())
	require.Equal(t, int64(10), migrations[1].Version)
	require.Equal(t, "DROP TABLE refunds;", migrations[1].Down)
}

func TestParseMigrations_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "missing down",
			files: map[string]string{"001_init.up.sql": "SELECT 1;"},
			want:  "needs both up and down",
		},
		{
			name:  "bad file name",
			files: map[string]string{"init.sql": "SELECT 1;"},
			want:  "unexpected migration file",
		},
		{
			name: "empty script",
			files: map[string]string{
				"001_init.up.sql":   " \n",
				"001_init.down.sql": "SELECT 1;",
			},
			want: "is empty",
		},
		{
			name: "name mismatch",
			files: map[string]string{
				"001_init.up.sql":     "SELECT 1;",
				"001_orders.down.sql": "SELECT 1;",
			},
			want: "has two names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseMigrations(migrationFS(tt.files))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseMigrations_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := parseMigrations(embeddedMigrations)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "promotions", migrations[1].Name)
	require.Contains(t, migrations[0].Up, "idempotency_keys")
}
