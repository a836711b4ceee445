// Package metrics exposes Prometheus collectors for the API, plus a JSON
// summary endpoint for the admin dashboard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics, labeled by RPC action.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics.
	AuthSuccessesTotal *prometheus.CounterVec
	AuthFailuresTotal  *prometheus.CounterVec

	// Domain counters.
	InviteSendsTotal          prometheus.Counter
	EmailChangeRequestsTotal  prometheus.Counter
	EmailChangeDecisionsTotal *prometheus.CounterVec
	MediaItemsTotal           *prometheus.CounterVec
	RateLimitRejectionsTotal  *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slapshot_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"action", "method", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slapshot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action", "method"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slapshot_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slapshot_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		InviteSendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slapshot_invite_sends_total",
			Help: "Total number of invite emails sent.",
		}),

		EmailChangeRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slapshot_email_change_requests_total",
			Help: "Total number of email change requests opened.",
		}),

		EmailChangeDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slapshot_email_change_decisions_total",
			Help: "Total number of settled email change requests.",
		}, []string{"status"}),

		MediaItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slapshot_media_items_total",
			Help: "Total number of media items added.",
		}, []string{"media_type", "storage_type"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slapshot_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"kind"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slapshot_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthSuccessesTotal,
		m.AuthFailuresTotal,
		m.InviteSendsTotal,
		m.EmailChangeRequestsTotal,
		m.EmailChangeDecisionsTotal,
		m.MediaItemsTotal,
		m.RateLimitRejectionsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncEmailChangeDecision records a settled email change request.
func (m *Metrics) IncEmailChangeDecision(status string) {
	m.EmailChangeDecisionsTotal.WithLabelValues(status).Inc()
}

// IncMediaItem records an added media item.
func (m *Metrics) IncMediaItem(mediaType, storageType string) {
	m.MediaItemsTotal.WithLabelValues(mediaType, storageType).Inc()
}

// IncRateLimitRejection increments the rejection counter for a limiter kind.
func (m *Metrics) IncRateLimitRejection(kind string) {
	m.RateLimitRejectionsTotal.WithLabelValues(kind).Inc()
}
