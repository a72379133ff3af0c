// Команда migrate применяет и откатывает миграции схемы payrecon в PostgreSQL.
//
//	migrate -direction up
//	migrate -direction down -steps 2 -dsn postgres://...
//	migrate -direction status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/storage/postgres"
	"github.com/vladislavdragonenkov/payrecon/internal/version"
)

const envPostgresDSN = "PAYRECON_POSTGRES_DSN"

// migrator: операции схемы, которые нужны CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
}

type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

var errNoDSN = errors.New(envPostgresDSN + " (or -dsn) is required")

// parseOptions разбирает флаги; DSN без флага берётся из окружения.
func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts options
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply or roll back (0 = all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	if opts.dsn = strings.TrimSpace(opts.dsn); opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if opts.dsn == "" {
		return options{}, errNoDSN
	}
	if opts.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be > 0, got %s", opts.timeout)
	}
	return opts, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithFields(log.Fields{"component": "migrate", "version": version.GetVersion()})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		logger.WithError(err).Fatal("invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		logger.WithError(err).Fatal("open postgres store")
	}
	defer store.Close()

	if err := run(ctx, store, opts.direction, opts.steps, os.Stdout); err != nil {
		logger.WithError(err).Error("migration failed")
		_ = store.Close()
		os.Exit(1)
	}
}

// run выполняет шаг миграции и печатает итоговое состояние схемы.
func run(ctx context.Context, m migrator, direction string, steps int, out io.Writer) error {
	var err error
	switch direction {
	case "up":
		err = m.MigrateUp(ctx, steps)
	case "down":
		err = m.MigrateDown(ctx, max(steps, 1))
	case "status":
	default:
		return fmt.Errorf("unsupported direction %q (use up|down|status)", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	current, applied, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d\n", direction, current, applied)
	return nil
}
