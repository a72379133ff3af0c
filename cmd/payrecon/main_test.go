package main

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payrecon/internal/app"
)

func env(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestReadConfigFromEnv_Empty(t *testing.T) {
	cfg, warnings := readConfigFromEnv(env(nil))
	assert.Empty(t, warnings)
	assert.Equal(t, app.DefaultConfig(), cfg)
}

func TestReadConfigFromEnv_Overrides(t *testing.T) {
	cfg, warnings := readConfigFromEnv(env(map[string]string{
		envHTTPAddr:                    "0.0.0.0:8081",
		envGRPCAddr:                    "0.0.0.0:50052",
		envMetricsAddr:                 "0.0.0.0:9100",
		envStorageDriver:               " Postgres ",
		envPostgresDSN:                 " postgres://payrecon@db:5432/payrecon ",
		envPostgresAutoMigrate:         "no",
		envPaymentMethodsFile:          "/etc/payrecon/methods.yaml",
		envPublicBaseURL:               "https://shop.example.nl",
		envMollieBaseURL:               "http://mollie-stub:8080/v2",
		envKafkaBrokers:                "kafka-1:9092,kafka-2:9092",
		envKafkaGroupID:                "payrecon-nl",
		envKafkaAsyncWebhooks:          "true",
		envOutboxPollInterval:          "250ms",
		envOutboxBatchSize:             "20",
		envOutboxMaxAttempts:           "5",
		envOutboxRetryDelay:            "0s",
		envIdempotencyCleanupInterval:  "1h",
		envIdempotencyCleanupBatchSize: "50",
		envHTTPAddr + "_UNUSED":        "ignored",
	}))
	require.Empty(t, warnings)

	want := app.Config{
		HTTPAddr:                    "0.0.0.0:8081",
		GRPCAddr:                    "0.0.0.0:50052",
		MetricsAddr:                 "0.0.0.0:9100",
		StorageDriver:               app.StorageDriverPostgres,
		PostgresDSN:                 "postgres://payrecon@db:5432/payrecon",
		PostgresAutoMigrate:         false,
		PaymentMethodsFile:          "/etc/payrecon/methods.yaml",
		PublicBaseURL:               "https://shop.example.nl",
		MollieBaseURL:               "http://mollie-stub:8080/v2",
		KafkaBrokers:                "kafka-1:9092,kafka-2:9092",
		KafkaGroupID:                "payrecon-nl",
		KafkaAsyncWebhooks:          true,
		OutboxPollInterval:          250 * time.Millisecond,
		OutboxBatchSize:             20,
		OutboxMaxAttempts:           5,
		OutboxRetryDelay:            0,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 50,
	}
	assert.Equal(t, want, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestReadConfigFromEnv_BadValuesKeepDefaults(t *testing.T) {
	cfg, warnings := readConfigFromEnv(env(map[string]string{
		envPostgresAutoMigrate:         "maybe",
		envKafkaAsyncWebhooks:          "later",
		envOutboxPollInterval:          "0s",
		envOutboxBatchSize:             "-5",
		envOutboxMaxAttempts:           "three",
		envOutboxRetryDelay:            "-1ms",
		envIdempotencyCleanupInterval:  "soon",
		envIdempotencyCleanupBatchSize: "0",
		envHTTPAddr:                    "   ",
	}))

	assert.Len(t, warnings, 8)
	assert.Equal(t, app.DefaultConfig(), cfg)
	for _, w := range warnings {
		assert.Contains(t, w, "PAYRECON_")
	}
}

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		log.SetLevel(log.InfoLevel)
	})

	require.Empty(t, setupLogger(env(map[string]string{envLogFormat: " json ", envLogLevel: "warn"})))
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	assert.Equal(t, log.WarnLevel, log.GetLevel())

	warnings := setupLogger(env(map[string]string{envLogLevel: "verbose"}))
	assert.Len(t, warnings, 1)
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestParseBool(t *testing.T) {
	for raw, want := range map[string]bool{"1": true, " Yes ": true, "on": true, "0": false, "FALSE": false, "off": false} {
		got, err := parseBool(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseBool("sometimes")
	assert.Error(t, err)
}

func TestParseIntAndDuration(t *testing.T) {
	positive := func(v int) bool { return v > 0 }

	n, err := parseInt(" 12 ", positive, "must be > 0")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	_, err = parseInt("0", positive, "must be > 0")
	assert.ErrorContains(t, err, "must be > 0")
	_, err = parseInt("1.5", positive, "must be > 0")
	assert.Error(t, err)

	nonNegative := func(d time.Duration) bool { return d >= 0 }
	d, err := parseDuration(" 1m30s ", nonNegative, "must be >= 0")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
	_, err = parseDuration("-1s", nonNegative, "must be >= 0")
	assert.ErrorContains(t, err, "must be >= 0")
}
