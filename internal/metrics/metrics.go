// Package metrics holds the Prometheus collectors of the service.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests and in the CLI.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dormitory"

// Allocation modes.
const (
	ModeManual    = "manual"
	ModeAutomatic = "automatic"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	allocations     *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	autoSkipped     prometheus.Counter
	reconciliations *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Applications bound to a room, by mode",
		}, []string{"mode"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_conflicts_total",
			Help:      "Allocation attempts refused with a conflict, by mode",
		}, []string{"mode"}),
		autoSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_allocation_skipped_total",
			Help:      "Approved applications left without a room by automatic allocation",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_notices_total",
			Help:      "Allocations released by structure imports, by reason",
		}, []string{"reason"}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.requestTotal,
		m.cacheLookups,
		m.allocations,
		m.conflicts,
		m.autoSkipped,
		m.reconciliations,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAllocation(mode string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordConflict(mode string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordAutoSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoSkipped.Add(float64(n))
}

func (m *Metrics) RecordReconciliation(reason string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(reason).Inc()
}
