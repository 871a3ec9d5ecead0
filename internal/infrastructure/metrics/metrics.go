// Package metrics exposes Prometheus collectors for the ledger.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"stockledger/internal/domain/projection"
	"stockledger/internal/domain/registers/stock"
)

// Metrics implements stock.Metrics and projection.Metrics.
type Metrics struct {
	shortages     *prometheus.CounterVec
	compensations *prometheus.CounterVec
	compensated   *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	syncRuns      *prometheus.CounterVec
	deadLetters   *prometheus.CounterVec
}

var (
	_ stock.Metrics      = (*Metrics)(nil)
	_ projection.Metrics = (*Metrics)(nil)
)

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// New registers the collectors against registerer. When registerer is nil
// the default Prometheus registerer is used.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = build(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return build(registerer)
}

func build(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		shortages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_shortage_rejections_total",
			Help: "Operations rejected for insufficient stock.",
		}, []string{"op"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_compensations_total",
			Help: "Failed operations undone by compensation without a transaction.",
		}, []string{"op"}),
		compensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_compensated_steps_total",
			Help: "Individual writes reverted by compensation.",
		}, []string{"op"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_lookup_cache_total",
			Help: "Barcode and SKU lookups by cache result.",
		}, []string{"result"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_projection_sync_total",
			Help: "Projection sync attempts by source and status.",
		}, []string{"source", "status"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_projection_dead_letters_total",
			Help: "Projection syncs abandoned after the last retry.",
		}, []string{"source"}),
	}
	registerer.MustRegister(m.shortages, m.compensations, m.compensated, m.lookups, m.syncRuns, m.deadLetters)
	return m
}

// ShortageRejected implements stock.Metrics.
func (m *Metrics) ShortageRejected(op string) {
	m.shortages.WithLabelValues(op).Inc()
}

// Compensated implements stock.Metrics.
func (m *Metrics) Compensated(op string, steps int) {
	m.compensations.WithLabelValues(op).Inc()
	if steps > 0 {
		m.compensated.WithLabelValues(op).Add(float64(steps))
	}
}

// LookupCache implements stock.Metrics.
func (m *Metrics) LookupCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(result).Inc()
}

// SyncRun implements projection.Metrics.
func (m *Metrics) SyncRun(source string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.syncRuns.WithLabelValues(source, status).Inc()
}

// DeadLetter implements projection.Metrics.
func (m *Metrics) DeadLetter(source string) {
	m.deadLetters.WithLabelValues(source).Inc()
}
