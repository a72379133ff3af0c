package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/payrecon/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/payrecon/internal/health"
	"github.com/vladislavdragonenkov/payrecon/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/payrecon/internal/metrics"
	"github.com/vladislavdragonenkov/payrecon/internal/mollie"
	grpcsvc "github.com/vladislavdragonenkov/payrecon/internal/service/grpc"
	"github.com/vladislavdragonenkov/payrecon/internal/service/httpapi"
	"github.com/vladislavdragonenkov/payrecon/internal/service/idempotency"
	"github.com/vladislavdragonenkov/payrecon/internal/service/intent"
	"github.com/vladislavdragonenkov/payrecon/internal/service/outbox"
	"github.com/vladislavdragonenkov/payrecon/internal/service/promotion"
	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
	"github.com/vladislavdragonenkov/payrecon/internal/version"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	shutdownTimeout = 5 * time.Second
	// outboxStaleAfter: возраст самого старого pending-события, после которого outbox считается отстающим.
	outboxStaleAfter = 5 * time.Minute
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// PaymentMethodsFile: YAML со способами оплаты, загружается при старте.
	PaymentMethodsFile string
	// PublicBaseURL: внешний адрес сервиса для webhook Mollie.
	PublicBaseURL string
	MollieBaseURL string

	// KafkaBrokers задаются через запятую, пустая строка отключает Kafka.
	KafkaBrokers string
	KafkaGroupID string
	// KafkaAsyncWebhooks: webhook только ставит уведомление в топик, сверку делает consumer.
	KafkaAsyncWebhooks bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PublicBaseURL:               "http://localhost:8080",
		MollieBaseURL:               mollie.DefaultBaseURL,
		KafkaGroupID:                "payrecon",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate собирает все ошибки настроек сразу, чтобы не чинить их по одной.
func (c Config) Validate() error {
	var errs []error
	for _, addr := range [...]struct{ name, value string }{
		{"http", c.HTTPAddr},
		{"grpc", c.GRPCAddr},
		{"metrics", c.MetricsAddr},
	} {
		if strings.TrimSpace(addr.value) == "" {
			errs = append(errs, fmt.Errorf("%s address is empty", addr.name))
		}
	}
	switch c.StorageDriver {
	case "", StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if u, err := url.Parse(c.MollieBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid mollie base url %q", c.MollieBaseURL))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval and batch size must be positive"))
	}
	return errors.Join(errs...)
}

// Run поднимает HTTP API, gRPC, метрики и фоновые воркеры и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	reconcileMetrics := metrics.NewReconcileMetrics()
	providers := mollie.NewFactory(mollie.WithBaseURL(cfg.MollieBaseURL))

	coordinator := reconcile.NewCoordinator(deps.methods, providers, deps.txm,
		reconcile.WithLogger(log.WithField("component", "reconcile")),
		reconcile.WithMetrics(reconcileMetrics),
	)
	intents := intent.NewService(deps.orders, deps.txm, deps.methods, providers, cfg.PublicBaseURL,
		intent.WithLogger(log.WithField("component", "intent")),
		intent.WithMetrics(reconcileMetrics),
	)
	promotions := promotion.NewService(deps.promotions, log.WithField("component", "promotion"))

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if kafkaProducer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", outboxBacklogCheck(deps.outboxRepo, outboxStaleAfter, time.Now)))
	}

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	outboxDone := startOutboxWorker(workersCtx, cfg, deps, kafkaProducer, logger)
	cleanupDone := startCleanupWorker(workersCtx, cfg, deps)
	defer shutdownWorkers(stopWorkers, logger, outboxDone, cleanupDone)

	consumer, _ := initNotificationConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, coordinator, kafkaProducer, logger)
	if consumer != nil {
		if err := consumer.Start(workersCtx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
			consumer = nil
		}
	}
	defer stopKafkaConsumer(consumer, logger)

	webhookReconciler := webhookReconciler(cfg, coordinator, kafkaProducer, consumer, logger)

	grpcServer, healthServer := newGRPCServer(grpcsvc.NewPaymentService(
		coordinator, intents, deps.idempotencyRepo, logger.WithField("layer", "grpc"),
	), logger)

	apiSrv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Deps{
			Reconciler: webhookReconciler,
			Intents:    intents,
			Promotions: promotions,
			Timeline:   deps.timelineRepo,
			Logger:     log.WithField("component", "http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newGRPCServer(paymentService *grpcsvc.PaymentService, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterPaymentServiceServer(grpcServer, paymentService)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.PaymentServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.Shutdown()
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startOutboxWorker запускает публикацию outbox в Kafka. Без producer события копятся в outbox.
func startOutboxWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	if producer == nil {
		logger.Warn("kafka is not configured, outbox events stay pending")
		return nil
	}

	worker := outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, kafka.TopicPaymentEvents),
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(nil)),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	return runInBackground(ctx, worker.Run)
}

func startCleanupWorker(ctx context.Context, cfg Config, deps *runtimeDependencies) <-chan struct{} {
	worker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(nil)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	return runInBackground(ctx, worker.Run)
}

func runInBackground(ctx context.Context, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return done
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения не дольше shutdownTimeout.
func shutdownWorkers(cancel context.CancelFunc, logger *log.Entry, done ...<-chan struct{}) {
	if cancel != nil {
		cancel()
	}
	timeout := time.After(shutdownTimeout)
	for _, ch := range done {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-timeout:
			logger.Warn("background workers did not stop in time")
			return
		}
	}
}

// outboxBacklogCheck сообщает об ошибке, если публикация outbox отстаёт больше чем на staleAfter.
func outboxBacklogCheck(repo domain.OutboxRepository, staleAfter time.Duration, now func() time.Time) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := repo.Stats(ctx)
		if err != nil {
			return fmt.Errorf("outbox stats: %w", err)
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
			return nil
		}
		if lag := now().Sub(stats.OldestPendingAt); lag > staleAfter {
			return fmt.Errorf("%d pending events, oldest is %s old", stats.PendingCount, lag.Truncate(time.Second))
		}
		return nil
	}
}

func metricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", healthHandler)
	mux.HandleFunc("GET /livez", healthcheck.LivenessHandler)
	mux.HandleFunc("GET /readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer запускает /metrics и health-эндпоинты до отмены ctx.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: metricsMux(healthHandler), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
