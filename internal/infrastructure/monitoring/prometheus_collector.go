package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"catalogsync/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

type PrometheusCollector struct {
	registry *prometheus.Registry

	// Gateway
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authExpired     prometheus.Counter

	// Event channel
	eventConnected  prometheus.Gauge
	eventReconnects prometheus.Counter
	eventMessages   *prometheus.CounterVec

	// Views, queue, reactions
	viewFetches       *prometheus.CounterVec
	viewFetchDuration *prometheus.HistogramVec
	notificationQueue prometheus.Gauge
	reactions         *prometheus.CounterVec
	externalCatalog   *prometheus.CounterVec
}

// NewPrometheusCollector registers all metrics on a private registry so several
// clients can live in one process (and in tests) without collisions.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogsync_backend_requests_total",
			Help: "Total number of backend requests by method, route and status",
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalogsync_backend_request_duration_seconds",
			Help:    "Duration of backend requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"method", "route"}),

		authExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalogsync_session_expired_total",
			Help: "Number of session invalidations triggered by 401 responses",
		}),

		eventConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "catalogsync_event_channel_connected",
			Help: "1 when the event channel transport is connected",
		}),

		eventReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalogsync_event_channel_reconnects_total",
			Help: "Number of event channel reconnect attempts",
		}),

		eventMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogsync_event_messages_total",
			Help: "Messages delivered by the event channel",
		}, []string{"topic"}),

		viewFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogsync_view_fetches_total",
			Help: "Page fetches by view and outcome (committed, discarded, failed)",
		}, []string{"view", "outcome"}),

		viewFetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalogsync_view_fetch_duration_seconds",
			Help:    "Duration of page fetches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"view"}),

		notificationQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "catalogsync_notification_queue_size",
			Help: "Number of visible notifications",
		}),

		reactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogsync_reactions_total",
			Help: "Reactions by outcome (confirmed, rolled_back, reconciled, kept, superseded)",
		}, []string{"outcome"}),

		externalCatalog: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogsync_external_catalog_requests_total",
			Help: "External catalog section fetches by section and result",
		}, []string{"section", "result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for tests.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusCollector) RecordRequest(method, route string, status int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordAuthExpired() {
	p.authExpired.Inc()
}

func (p *PrometheusCollector) RecordEventConnected(connected bool) {
	if connected {
		p.eventConnected.Set(1)
		return
	}
	p.eventConnected.Set(0)
}

func (p *PrometheusCollector) RecordEventReconnect() {
	p.eventReconnects.Inc()
}

func (p *PrometheusCollector) RecordEventMessage(topic string) {
	p.eventMessages.WithLabelValues(topic).Inc()
}

func (p *PrometheusCollector) RecordViewFetch(view string, outcome string, duration time.Duration) {
	p.viewFetches.WithLabelValues(view, outcome).Inc()
	p.viewFetchDuration.WithLabelValues(view).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordNotificationQueue(size int) {
	p.notificationQueue.Set(float64(size))
}

func (p *PrometheusCollector) RecordReaction(outcome string) {
	p.reactions.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) RecordExternalCatalog(section string, ok bool) {
	result := "ok"
	if !ok {
		result = "degraded"
	}
	p.externalCatalog.WithLabelValues(section, result).Inc()
}

// NopCollector discards every measurement.
type NopCollector struct{}

func (NopCollector) RecordRequest(string, string, int, time.Duration) {}
func (NopCollector) RecordAuthExpired() {}
func (NopCollector) RecordEventConnected(bool) {}
func (NopCollector) RecordEventReconnect() {}
func (NopCollector) RecordEventMessage(string) {}
func (NopCollector) RecordViewFetch(string, string, time.Duration) {}
func (NopCollector) RecordNotificationQueue(int) {}
func (NopCollector) RecordReaction(string) {}
func (NopCollector) RecordExternalCatalog(string, bool) {}
