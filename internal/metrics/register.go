package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// register возвращает уже зарегистрированный коллектор с тем же описанием, если он есть.
// gRPC и HTTP слои создают метрики независимо и делят одни серии.
func register[C prometheus.Collector](reg prometheus.Registerer, name string, collector C) C {
	err := reg.Register(collector)
	if err == nil {
		return collector
	}
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		panic(fmt.Sprintf("metrics: register %s: %v", name, err))
	}
	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("metrics: %s is registered as %T", name, dup.ExistingCollector))
	}
	return existing
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register[prometheus.Counter](reg, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(reg, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(reg prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register[prometheus.Gauge](reg, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(reg prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register[prometheus.Histogram](reg, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(reg prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(reg, opts.Name, prometheus.NewHistogramVec(opts, labels))
}
