// Package prometheus exports proc-macro client metrics to Prometheus.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/proc-macro-client-go/internal/config"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts the client's Metrics to Prometheus collectors.
type MetricsExporter struct {
	callDurationSeconds *prom.HistogramVec
	callsTotal          *prom.CounterVec
	restartsTotal       *prom.CounterVec
}

var _ config.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers the collectors. Registering twice
// on the same registry reuses the existing collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "procmacro"
	}

	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Proc-macro server call duration in seconds, including queueing.",
		Buckets:   buckets,
	}, []string{"kind", "outcome"})
	callsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "calls_total",
		Help:      "Total number of proc-macro server calls.",
	}, []string{"kind", "outcome"})
	restartsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "restarts_total",
		Help:      "Total number of proc-macro server restart attempts.",
	}, []string{"result"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}

	if callsVec, err = registerCollector(reg, callsVec); err != nil {
		return nil, err
	}

	if restartsVec, err = registerCollector(reg, restartsVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		callDurationSeconds: durationVec,
		callsTotal:          callsVec,
		restartsTotal:       restartsVec,
	}, nil
}

// RecordCall implements config.Metrics.
func (m *MetricsExporter) RecordCall(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	kind = normalizeLabel(kind, "unknown")
	outcome = normalizeLabel(outcome, "unknown")

	m.callDurationSeconds.WithLabelValues(kind, outcome).Observe(duration.Seconds())
	m.callsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRestart implements config.Metrics.
func (m *MetricsExporter) RecordRestart(ok bool) {
	if m == nil {
		return
	}

	result := "failed"
	if ok {
		result = "ok"
	}

	m.restartsTotal.WithLabelValues(result).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	if alreadyRegisteredErr, ok := errors.AsType[prom.AlreadyRegisteredError](err); ok {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}

		return existing, nil
	}

	return collector, err
}
