package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/app"
	"github.com/vladislavdragonenkov/payrecon/internal/version"
)

const (
	envHTTPAddr                    = "PAYRECON_HTTP_ADDR"
	envGRPCAddr                    = "PAYRECON_GRPC_ADDR"
	envMetricsAddr                 = "PAYRECON_METRICS_ADDR"
	envStorageDriver               = "PAYRECON_STORAGE_DRIVER"
	envPostgresDSN                 = "PAYRECON_POSTGRES_DSN"
	envPostgresAutoMigrate         = "PAYRECON_POSTGRES_AUTO_MIGRATE"
	envPaymentMethodsFile          = "PAYRECON_PAYMENT_METHODS_FILE"
	envPublicBaseURL               = "PAYRECON_PUBLIC_BASE_URL"
	envMollieBaseURL               = "PAYRECON_MOLLIE_BASE_URL"
	envKafkaBrokers                = "PAYRECON_KAFKA_BROKERS"
	envKafkaGroupID                = "PAYRECON_KAFKA_GROUP_ID"
	envKafkaAsyncWebhooks          = "PAYRECON_KAFKA_ASYNC_WEBHOOKS"
	envOutboxPollInterval          = "PAYRECON_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "PAYRECON_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "PAYRECON_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "PAYRECON_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "PAYRECON_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "PAYRECON_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envLogFormat                   = "PAYRECON_LOG_FORMAT"
	envLogLevel                    = "PAYRECON_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования: text по умолчанию, json по PAYRECON_LOG_FORMAT.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if v, ok := lookup(envLogFormat); ok && strings.EqualFold(strings.TrimSpace(v), "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	log.SetLevel(log.InfoLevel)
	if v, ok := lookup(envLogLevel); ok && strings.TrimSpace(v) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(v))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envLogLevel, err))
		} else {
			log.SetLevel(level)
		}
	}
	return warnings
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректное значение не останавливает запуск: остаётся значение по умолчанию и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envPaymentMethodsFile, &cfg.PaymentMethodsFile)
	str(envPublicBaseURL, &cfg.PublicBaseURL)
	str(envMollieBaseURL, &cfg.MollieBaseURL)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaGroupID, &cfg.KafkaGroupID)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	boolVar := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	boolVar(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolVar(envKafkaAsyncWebhooks, &cfg.KafkaAsyncWebhooks)

	positive := func(v int) bool { return v > 0 }
	intVar := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, positive, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	intVar(envOutboxBatchSize, &cfg.OutboxBatchSize)
	intVar(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	intVar(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	durationVar := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	durationVar(envOutboxPollInterval, &cfg.OutboxPollInterval, func(d time.Duration) bool { return d > 0 }, "must be > 0")
	durationVar(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(d time.Duration) bool { return d >= 0 }, "must be >= 0")
	durationVar(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, func(d time.Duration) bool { return d > 0 }, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(v) {
		return 0, fmt.Errorf("value %d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(v) {
		return 0, fmt.Errorf("value %s %s", v, rule)
	}
	return v, nil
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Println(version.String())
		return
	}

	warnings := setupLogger(os.LookupEnv)
	cfg, cfgWarnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range append(warnings, cfgWarnings...) {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaBrokers != "",
		"version":        version.GetVersion(),
		"commit":         version.GetCommit(),
	}).Info("запускаем payrecon")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("payrecon остановлен")
}
