package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/payrecon/internal/health"
	"github.com/vladislavdragonenkov/payrecon/internal/storage/memory"
	"github.com/vladislavdragonenkov/payrecon/internal/storage/postgres"
)

// runtimeDependencies: хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	orders          domain.OrderStore
	txm             domain.Transactor
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	methods         domain.PaymentMethodRepository
	promotions      domain.PromotionRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var seed []domain.PaymentMethod
	if path := strings.TrimSpace(cfg.PaymentMethodsFile); path != "" {
		methods, err := memory.LoadPaymentMethods(path)
		if err != nil {
			return nil, err
		}
		seed = methods
	}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		orders := memory.NewOrderStore()
		outbox := memory.NewOutboxRepository()
		timeline := memory.NewTimelineRepository()
		logger.WithField("payment_methods", len(seed)).Info("using in-memory storage")
		return &runtimeDependencies{
			orders:          orders,
			txm:             memory.NewTransactor(orders, outbox, timeline),
			outboxRepo:      outbox,
			timelineRepo:    timeline,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			methods:         memory.NewPaymentMethodRepository(seed...),
			promotions:      memory.NewPromotionRepository(),
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
		}

		methods := postgres.NewPaymentMethodRepository(store)
		for _, m := range seed {
			if err := methods.Upsert(ctx, m); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("seed payment method %s: %w", m.ID, err)
			}
		}
		logger.WithField("payment_methods", len(seed)).Info("using postgres storage")

		return &runtimeDependencies{
			orders:          postgres.NewOrderStore(store),
			txm:             postgres.NewTransactor(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			timelineRepo:    postgres.NewTimelineRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			methods:         methods,
			promotions:      postgres.NewPromotionRepository(store),
			storageChecker:  healthcheck.NewPingChecker("postgres", store.Ping),
			closeFn:         store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
