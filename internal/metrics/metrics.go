// Package metrics provides Prometheus metrics for ocrdesk.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend request metrics
	backendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrdesk_backend_requests_total",
			Help: "Total number of OCR backend requests",
		},
		[]string{"endpoint", "outcome"},
	)

	backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrdesk_backend_request_duration_seconds",
			Help:    "OCR backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Job polling metrics
	pollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrdesk_poll_ticks_total",
			Help: "Total job progress polls",
		},
		[]string{"result"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrdesk_jobs_total",
			Help: "Total parse jobs by final outcome",
		},
		[]string{"outcome"},
	)

	activePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrdesk_active_pollers",
			Help: "Number of live job pollers",
		},
	)

	// Download-all metrics
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrdesk_downloads_total",
			Help: "Total result files saved by download-all",
		},
		[]string{"status"},
	)

	downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrdesk_download_bytes_total",
			Help: "Total bytes written by download-all",
		},
	)

	// Blob store metrics
	blobsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrdesk_blobs_live",
			Help: "Number of unrevoked blob references",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrdesk_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrdesk_sse_events_total",
			Help: "Total SSE events forwarded to browsers",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBackendRequest records one backend call and its outcome label.
func RecordBackendRequest(endpoint, outcome string, duration time.Duration) {
	backendRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	backendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordPollTick records one progress poll.
func RecordPollTick(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	pollTicksTotal.WithLabelValues(result).Inc()
}

// RecordJob records how a job ended: "finished", "start_failed", "result_failed" or "canceled".
func RecordJob(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

// PollerStarted increments the live poller gauge.
func PollerStarted() { activePollers.Inc() }

// PollerStopped decrements the live poller gauge.
func PollerStopped() { activePollers.Dec() }

// RecordDownload records one download-all file.
func RecordDownload(bytes int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	downloadsTotal.WithLabelValues(status).Inc()
	if success {
		downloadBytes.Add(float64(bytes))
	}
}

// SetBlobsLive sets the number of live blob references.
func SetBlobsLive(count int) {
	blobsLive.Set(float64(count))
}

// SSEConnected increments the active SSE connection gauge.
func SSEConnected() { sseConnectionsActive.Inc() }

// SSEDisconnected decrements the active SSE connection gauge.
func SSEDisconnected() { sseConnectionsActive.Dec() }

// RecordSSEEvent records one forwarded event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}
