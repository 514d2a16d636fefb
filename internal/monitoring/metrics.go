package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Webhook ingestion metrics
	WebhookEventsTotal  *prometheus.CounterVec
	DuplicateDeliveries prometheus.Counter
	ResolutionsTotal    *prometheus.CounterVec

	// CRM sync metrics
	SyncFailures     prometheus.Counter
	DealsTouched     prometheus.Counter
	ActivitiesLogged prometheus.Counter

	// Enrichment metrics
	EnrichmentRuns *prometheus.CounterVec

	// Dedup cache metrics
	DedupCacheHits   prometheus.Counter
	DedupCacheMisses prometheus.Counter

	// Notification sink circuit breaker state (0=closed, 1=open, 0.5=half-open)
	SinkBreakerState prometheus.Gauge
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		WebhookEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Total number of inbound provider events by type and disposition",
			},
			[]string{"event_type", "status"},
		),
		DuplicateDeliveries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_duplicate_deliveries_total",
				Help: "Total number of redelivered events short-circuited by the ledger",
			},
		),
		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entity_resolutions_total",
				Help: "Total number of entity resolutions by link method",
			},
			[]string{"method"},
		),

		SyncFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_sync_failures_total",
				Help: "Total number of best-effort CRM cascades that failed",
			},
		),
		DealsTouched: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_deals_touched_total",
				Help: "Total number of deals updated by call sync",
			},
		),
		ActivitiesLogged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_activities_logged_total",
				Help: "Total number of sales activities appended by call sync",
			},
		),

		EnrichmentRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrichment_runs_total",
				Help: "Total number of enrichment runs by result",
			},
			[]string{"result"},
		),

		DedupCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dedup_cache_hits_total",
				Help: "Total number of already-processed events served from the redis fast path",
			},
		),
		DedupCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dedup_cache_misses_total",
				Help: "Total number of dedup cache lookups that fell through to the ledger",
			},
		),

		SinkBreakerState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "audit_sink_breaker_state",
				Help: "Audit sink circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordWebhookEvent records an inbound event disposition
func RecordWebhookEvent(eventType, status string) {
	Get().WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

// RecordDuplicateDelivery records a short-circuited redelivery
func RecordDuplicateDelivery() {
	Get().DuplicateDeliveries.Inc()
}

// RecordResolution records an entity resolution by link method
func RecordResolution(method string) {
	Get().ResolutionsTotal.WithLabelValues(method).Inc()
}

// RecordSyncFailure records a failed best-effort CRM cascade
func RecordSyncFailure() {
	Get().SyncFailures.Inc()
}

// RecordSyncReport records the sizes of a successful CRM cascade
func RecordSyncReport(dealsTouched, activitiesCreated int) {
	Get().DealsTouched.Add(float64(dealsTouched))
	Get().ActivitiesLogged.Add(float64(activitiesCreated))
}

// RecordEnrichmentRun records one enrichment run by result
func RecordEnrichmentRun(result string) {
	Get().EnrichmentRuns.WithLabelValues(result).Inc()
}

// RecordDedupCacheHit records an already-processed fast-path hit
func RecordDedupCacheHit() {
	Get().DedupCacheHits.Inc()
}

// RecordDedupCacheMiss records a dedup cache fall-through
func RecordDedupCacheMiss() {
	Get().DedupCacheMisses.Inc()
}

// SetSinkBreakerState sets the audit sink circuit breaker state
func SetSinkBreakerState(state float64) {
	Get().SinkBreakerState.Set(state)
}
