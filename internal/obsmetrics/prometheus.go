// Package obsmetrics wraps the transaction tailing daemon's Prometheus
// collectors, following the teacher's own metrics/prometheus.go
// (package-level registry, lazy nil-check recorders, promhttp handler).
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the collectors this daemon reports.
type Metrics struct {
	registry *prometheus.Registry

	resyncSlot        *prometheus.GaugeVec
	transactionsTotal *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	skippedTotal      *prometheus.CounterVec
	registryWriteFail *prometheus.CounterVec
	liveReconnects    *prometheus.CounterVec
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var metrics *Metrics

// Init initializes the Prometheus metrics subsystem under namespace.
func Init(namespace string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		resyncSlot: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resync_slot",
				Help:      "Highest slot observed by the resync task's most recent get_slot call, by program id",
			},
			[]string{"program_id"},
		),

		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total transactions processed, by program id, source and outcome",
			},
			[]string{"program_id", "source", "outcome"},
		),

		processDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_process_duration_milliseconds",
				Help:      "Duration of fetch+bind+reconstruct+join for one transaction, in milliseconds",
				Buckets:   defaultBuckets,
			},
			[]string{"program_id", "source"},
		),

		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_skipped_total",
				Help:      "Transactions skipped before joining, by program id and reason",
			},
			[]string{"program_id", "reason"},
		),

		registryWriteFail: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_write_failures_total",
				Help:      "Registry write failures (register/cursor/rollback), by program id and operation",
			},
			[]string{"program_id", "operation"},
		),

		liveReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_reconnects_total",
				Help:      "Live task subscription reconnects, by program id",
			},
			[]string{"program_id"},
		),
	}

	registry.MustRegister(
		m.resyncSlot,
		m.transactionsTotal,
		m.processDuration,
		m.skippedTotal,
		m.registryWriteFail,
		m.liveReconnects,
	)

	metrics = m
}

// SetResyncSlot records the resync task's most recently observed slot.
func SetResyncSlot(programID string, slot uint64) {
	if metrics == nil {
		return
	}
	metrics.resyncSlot.WithLabelValues(programID).Set(float64(slot))
}

// RecordTransaction records a processed transaction's outcome.
func RecordTransaction(programID, source, outcome string, durationMs int64) {
	if metrics == nil {
		return
	}
	metrics.transactionsTotal.WithLabelValues(programID, source, outcome).Inc()
	metrics.processDuration.WithLabelValues(programID, source).Observe(float64(durationMs))
}

// RecordSkipped records a transaction skipped before joining, e.g. a
// malformed log line or an unsupported parsed inner instruction.
func RecordSkipped(programID, reason string) {
	if metrics == nil {
		return
	}
	metrics.skippedTotal.WithLabelValues(programID, reason).Inc()
}

// RecordRegistryWriteFailure records a failed write against the registry.
func RecordRegistryWriteFailure(programID, operation string) {
	if metrics == nil {
		return
	}
	metrics.registryWriteFail.WithLabelValues(programID, operation).Inc()
}

// RecordLiveReconnect records the live task re-establishing its subscription.
func RecordLiveReconnect(programID string) {
	if metrics == nil {
		return
	}
	metrics.liveReconnects.WithLabelValues(programID).Inc()
}

// Handler returns an HTTP handler for Prometheus scraping.
func Handler() http.Handler {
	if metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}
