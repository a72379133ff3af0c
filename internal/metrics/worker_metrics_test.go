package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("failed to write counter: %v", err)
	}
	return m.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return m.Gauge.GetValue()
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.RecordAttempt("sent")
	m.RecordAttempt("sent")
	m.RecordAttempt("failed")
	m.SetBacklog(3, -time.Second)

	if got := counterValue(t, m.attempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("expected 2 sent attempts, got %v", got)
	}
	if got := gaugeValue(t, m.pending); got != 3 {
		t.Fatalf("expected pending 3, got %v", got)
	}
	if got := gaugeValue(t, m.oldestPending); got != 0 {
		t.Fatalf("negative age must clamp to 0, got %v", got)
	}

	again := NewOutboxMetrics(reg)
	again.RecordAttempt("sent")
	if got := counterValue(t, m.attempts.WithLabelValues("sent")); got != 3 {
		t.Fatalf("second instance must share collectors, got %v", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.RecordAttempt("sent")
	nilMetrics.SetBacklog(1, time.Second)
}

func TestCleanupMetrics(t *testing.T) {
	m := NewCleanupMetrics(prometheus.NewRegistry())

	m.RecordRun(5, nil)
	m.RecordRun(2, nil)
	m.RecordRun(0, errors.New("db down"))

	if got := counterValue(t, m.deleted); got != 7 {
		t.Fatalf("expected 7 deleted, got %v", got)
	}
	if got := gaugeValue(t, m.lastDeleted); got != 2 {
		t.Fatalf("expected last deleted 2, got %v", got)
	}
	if got := counterValue(t, m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
}
