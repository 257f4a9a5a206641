package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "symbol_tracker"

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Node transport metrics
	TransportAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "attempts_total",
			Help:      "Total number of node requests by transport and operation",
		},
		[]string{"transport", "operation", "result"},
	)

	TransportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "duration_seconds",
			Help:      "Node request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"transport", "operation"},
	)

	HTTPSCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "https_cache_lookups_total",
			Help:      "HTTPS capability cache lookups by backend and result",
		},
		[]string{"backend", "result"},
	)

	// Crawl metrics
	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "duration_seconds",
			Help:      "Crawl phase duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	CrawlEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "entries",
			Help:      "Entries produced by the last crawl phase",
		},
		[]string{"phase"},
	)

	CrawlTaskFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "task_failures_total",
			Help:      "Crawl tasks that failed or panicked",
		},
		[]string{"phase"},
	)

	// Registry metrics
	RegistryWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "writes_total",
			Help:      "Registry writes by aspect and result",
		},
		[]string{"aspect", "result"},
	)

	ActiveNodesCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "available_nodes",
			Help:      "Number of nodes available per aspect",
		},
		[]string{"aspect"},
	)

	// Scheduler metrics
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Total number of scheduled jobs executed",
		},
		[]string{"job_name", "status"},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"job_name"},
	)

	LastSchedulerJobTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_job_timestamp",
			Help:      "Unix timestamp of last job execution",
		},
		[]string{"job_name"},
	)

	// Rate limiter metrics
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rate_limiter",
			Name:      "requests_total",
			Help:      "Total number of rate-limited requests",
		},
		[]string{"allowed"},
	)
)

// Metrics provides convenience methods for recording metrics
type Metrics struct{}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HttpRequestsTotal.WithLabelValues(method, endpoint, http.StatusText(statusCode)).Inc()
	HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTransport records one node request, e.g. ("socket", "/node/info")
func (m *Metrics) RecordTransport(transport, operation string, success bool, duration time.Duration) {
	TransportAttemptsTotal.WithLabelValues(transport, operation, result(success)).Inc()
	TransportDuration.WithLabelValues(transport, operation).Observe(duration.Seconds())
}

// RecordHTTPSCacheLookup records a capability cache hit or miss
func (m *Metrics) RecordHTTPSCacheLookup(backend string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	HTTPSCacheLookupsTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordCrawl records a finished crawl phase
func (m *Metrics) RecordCrawl(phase string, entries int, duration time.Duration) {
	CrawlDuration.WithLabelValues(phase).Observe(duration.Seconds())
	CrawlEntries.WithLabelValues(phase).Set(float64(entries))
}

// RecordCrawlTaskFailure counts a failed or panicked crawl task
func (m *Metrics) RecordCrawlTaskFailure(phase string) {
	CrawlTaskFailuresTotal.WithLabelValues(phase).Inc()
}

// RecordRegistryWrite records a registry write; result is "created",
// "updated", "conflict" or "error"
func (m *Metrics) RecordRegistryWrite(aspect, result string) {
	RegistryWritesTotal.WithLabelValues(aspect, result).Inc()
}

// UpdateActiveNodesCount updates the count of available nodes for an aspect
func (m *Metrics) UpdateActiveNodesCount(aspect string, count int64) {
	ActiveNodesCount.WithLabelValues(aspect).Set(float64(count))
}

// RecordSchedulerJob records a scheduler job execution
func (m *Metrics) RecordSchedulerJob(jobName string, success bool, duration time.Duration) {
	SchedulerJobsTotal.WithLabelValues(jobName, result(success)).Inc()
	SchedulerJobDuration.WithLabelValues(jobName).Observe(duration.Seconds())
	LastSchedulerJobTime.WithLabelValues(jobName).SetToCurrentTime()
}

// RecordRateLimit records whether a request passed the rate limiter
func (m *Metrics) RecordRateLimit(allowed bool) {
	if allowed {
		RateLimitRequestsTotal.WithLabelValues("true").Inc()
		return
	}
	RateLimitRequestsTotal.WithLabelValues("false").Inc()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
