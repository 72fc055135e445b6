// Package metrics owns the Prometheus collectors exposed on /metrics. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gagyebu"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	recordMutations *prometheus.CounterVec
	brokerRefreshes *prometheus.CounterVec
	brokerDuration  prometheus.Histogram
	eventsPublished *prometheus.CounterVec
	stateCache      *prometheus.CounterVec
	invitations     *prometheus.CounterVec
	exports         *prometheus.CounterVec
	snapshots       *prometheus.CounterVec
	suspicious      *prometheus.CounterVec
}

// New builds collectors on a private registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		recordMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "record_mutations_total",
			Help: "Confirmed record mutations by kind and operation.",
		}, []string{"kind", "op"}),
		brokerRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broker", Name: "refreshes_total",
			Help: "Broker holdings refreshes by result.",
		}, []string{"result"}),
		brokerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "broker", Name: "refresh_duration_seconds",
			Help:    "Latency of broker holdings refreshes.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "amqp", Name: "events_published_total",
			Help: "AMQP events by type and result.",
		}, []string{"type", "result"}),
		stateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "state_cache", Name: "lookups_total",
			Help: "Household state cache lookups by result.",
		}, []string{"result"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "invitations_total",
			Help: "Invitation transitions by operation.",
		}, []string{"op"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sheets", Name: "exports_total",
			Help: "Summary rows written to the spreadsheet by result.",
		}, []string{"result"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_total",
			Help: "Investment snapshots saved by trigger.",
		}, []string{"trigger"}),
		suspicious: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "security", Name: "suspicious_requests_total",
			Help: "Requests flagged by the detector, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.recordMutations, m.brokerRefreshes,
		m.brokerDuration, m.eventsPublished, m.stateCache, m.invitations,
		m.exports, m.snapshots, m.suspicious,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordMutation(kind, op string) {
	if m == nil {
		return
	}
	m.recordMutations.WithLabelValues(kind, op).Inc()
}

func (m *Metrics) BrokerRefresh(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.brokerRefreshes.WithLabelValues(result(err)).Inc()
	m.brokerDuration.Observe(d.Seconds())
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, result(err)).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.stateCache.WithLabelValues(label).Inc()
}

func (m *Metrics) Invitation(op string) {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues(op).Inc()
}

func (m *Metrics) Export(err error) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Snapshot(trigger string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Suspicious(reason string) {
	if m == nil {
		return
	}
	m.suspicious.WithLabelValues(reason).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
