// Package metrics exposes operational counters for the scheduling core in
// Prometheus exposition format.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a private registry so tests can create
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	scheduleBuilds     prometheus.Counter
	scheduleBuildTime  prometheus.Histogram
	intakeToggles      *prometheus.CounterVec
	alarmsFired        prometheus.Counter
	alarmsArmed        prometheus.Counter
	notificationsShown *prometheus.CounterVec
	cleanupDeleted     *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtab_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medtab_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		scheduleBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtab_schedule_builds_total",
			Help: "Daily schedule computations.",
		}),
		scheduleBuildTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medtab_schedule_build_duration_seconds",
			Help:    "Daily schedule computation latency.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		}),
		intakeToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtab_intake_toggles_total",
			Help: "Intake state changes by resulting status.",
		}, []string{"status"}),
		alarmsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtab_alarms_fired_total",
			Help: "Device alarms delivered to the handler.",
		}),
		alarmsArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtab_alarms_armed_total",
			Help: "Alarm arm operations, including idempotent replaces.",
		}),
		notificationsShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtab_notifications_shown_total",
			Help: "Notifications shown by kind.",
		}, []string{"kind"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtab_cleanup_deleted_total",
			Help: "Rows removed by retention cleanup, by entity.",
		}, []string{"entity"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.scheduleBuilds,
		m.scheduleBuildTime,
		m.intakeToggles,
		m.alarmsFired,
		m.alarmsArmed,
		m.notificationsShown,
		m.cleanupDeleted,
	)
	return m
}

// Handler serves the exposition endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordScheduleBuild(elapsed time.Duration) {
	m.scheduleBuilds.Inc()
	m.scheduleBuildTime.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordIntakeToggle(status string) {
	m.intakeToggles.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAlarmFired() {
	m.alarmsFired.Inc()
}

func (m *Metrics) RecordAlarmArmed() {
	m.alarmsArmed.Inc()
}

func (m *Metrics) RecordNotification(kind string) {
	m.notificationsShown.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCleanup(entity string, n int64) {
	m.cleanupDeleted.WithLabelValues(entity).Add(float64(n))
}
