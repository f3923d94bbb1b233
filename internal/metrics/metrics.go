// Package metrics provides Prometheus metrics for the parenting plan API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. Each instance owns its registry so tests can
// build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	VersionsRecordedTotal *prometheus.CounterVec
	GuardRejectionsTotal  *prometheus.CounterVec
	DraftsStartedTotal    prometheus.Counter
	DraftsCancelledTotal  prometheus.Counter
	ActiveSessions        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coparent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coparent_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		VersionsRecordedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coparent_versions_recorded_total",
				Help: "Ledger entries recorded, by kind",
			},
			[]string{"kind"},
		),
		GuardRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coparent_guard_rejections_total",
				Help: "Operations refused because a proposal was pending",
			},
			[]string{"operation"},
		),
		DraftsStartedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coparent_drafts_started_total",
			Help: "Drafting tasks started",
		}),
		DraftsCancelledTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coparent_drafts_cancelled_total",
			Help: "Drafting tasks cancelled before acceptance",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coparent_active_sessions",
			Help: "Workflow sessions currently held in memory",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordHTTPRequest(route string, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordVersion(kind string) {
	m.VersionsRecordedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordGuardRejection(operation string) {
	m.GuardRejectionsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordDraftStarted() {
	m.DraftsStartedTotal.Inc()
}

func (m *Metrics) RecordDraftCancelled() {
	m.DraftsCancelledTotal.Inc()
}
