package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Analysis metrics
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropview_analyses_total",
			Help: "Total number of field image analyses",
		},
		[]string{"channels", "status"},
	)

	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropview_analysis_duration_seconds",
			Help:    "Analysis pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"channels"},
	)

	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropview_classifications_total",
			Help: "Total number of health classifications by category",
		},
		[]string{"category", "analysis_type"},
	)

	classifierFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cropview_classifier_fallbacks_total",
			Help: "Total number of model failures recovered by the rule-based classifier",
		},
	)

	// Worker metrics
	workerJobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cropview_worker_jobs_queued",
			Help: "Number of claimed images awaiting analysis",
		},
	)

	workerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropview_worker_jobs_total",
			Help: "Total number of worker jobs processed",
		},
		[]string{"status"},
	)

	// Storage metrics
	overlayUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropview_overlay_uploads_total",
			Help: "Total number of overlay uploads",
		},
		[]string{"backend", "status"},
	)
)

// RecordHTTPRequest records an HTTP request, folding the status code into
// its class to keep cardinality down
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	statusClass := "unknown"
	if status >= 200 && status < 300 {
		statusClass = "2xx"
	} else if status >= 300 && status < 400 {
		statusClass = "3xx"
	} else if status >= 400 && status < 500 {
		statusClass = "4xx"
	} else if status >= 500 {
		statusClass = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, statusClass).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAnalysis records one pipeline run
func RecordAnalysis(channels, status string, duration time.Duration) {
	analysesTotal.WithLabelValues(channels, status).Inc()
	analysisDuration.WithLabelValues(channels).Observe(duration.Seconds())
}

// RecordClassification records the category a run produced
func RecordClassification(category, analysisType string) {
	classificationsTotal.WithLabelValues(category, analysisType).Inc()
}

// RecordClassifierFallback records a model failure recovered by rules
func RecordClassifierFallback() {
	classifierFallbacksTotal.Inc()
}

// RecordWorkerJobQueued records an image claimed for processing
func RecordWorkerJobQueued() {
	workerJobsQueued.Inc()
}

// RecordWorkerJobProcessed records a claimed image leaving the queue
func RecordWorkerJobProcessed(status string) {
	workerJobsTotal.WithLabelValues(status).Inc()
	workerJobsQueued.Dec()
}

// RecordOverlayUpload records an overlay store write
func RecordOverlayUpload(backend, status string) {
	overlayUploadsTotal.WithLabelValues(backend, status).Inc()
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
