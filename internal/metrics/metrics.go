// Package metrics provides Prometheus metrics for monitoring the upload
// pipeline, the job poller and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_uploads_enqueued_total",
			Help: "Total number of files enqueued for upload",
		},
		[]string{"destination"},
	)
	UploadsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_uploads_completed_total",
			Help: "Total number of uploads that completed successfully",
		},
		[]string{"destination"},
	)
	UploadsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_uploads_failed_total",
			Help: "Total number of uploads that failed",
		},
		[]string{"destination"},
	)
	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conveyor_upload_duration_seconds",
			Help:    "File transfer duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"destination", "status"},
	)
	UploadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conveyor_uploads_in_flight",
			Help: "Current number of uploads in the uploading state",
		},
	)
	JobsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_jobs_tracked_total",
			Help: "Total number of backend jobs registered with the poller",
		},
		[]string{"destination"},
	)
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conveyor_jobs_active",
			Help: "Current number of tracked jobs the backend is working on",
		},
	)
	Polls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conveyor_polls_total",
			Help: "Total number of job listing polls issued",
		},
	)
	PollFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conveyor_poll_failures_total",
			Help: "Total number of job listing polls that failed",
		},
	)
	OutstandingWork = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conveyor_outstanding_work",
			Help: "Active jobs plus queued and in-flight uploads",
		},
	)
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conveyor_aggregation_duration_seconds",
			Help:    "Insights aggregation duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conveyor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordUploadEnqueued(destination string) {
	UploadsEnqueued.WithLabelValues(destination).Inc()
}

func RecordUploadCompleted(destination string, duration time.Duration) {
	UploadsCompleted.WithLabelValues(destination).Inc()
	UploadDuration.WithLabelValues(destination, "completed").Observe(duration.Seconds())
}

func RecordUploadFailed(destination string, duration time.Duration) {
	UploadsFailed.WithLabelValues(destination).Inc()
	UploadDuration.WithLabelValues(destination, "failed").Observe(duration.Seconds())
}

func UpdateUploadsInFlight(count int) {
	UploadsInFlight.Set(float64(count))
}

func RecordJobTracked(destination string) {
	JobsTracked.WithLabelValues(destination).Inc()
}

func UpdateActiveJobs(count int) {
	JobsActive.Set(float64(count))
}

func RecordPoll() {
	Polls.Inc()
}

func RecordPollFailure() {
	PollFailures.Inc()
}

func UpdateOutstandingWork(count int) {
	OutstandingWork.Set(float64(count))
}

func RecordAggregation(duration time.Duration) {
	AggregationDuration.Observe(duration.Seconds())
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
