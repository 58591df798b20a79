package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pictor",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages (decode, inference, transform, encode)",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pictor",
		Name:      "faces_detected_total",
		Help:      "Total number of faces found, by operation",
	}, []string{"operation"})

	ObjectsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pictor",
		Name:      "objects_detected_total",
		Help:      "Total number of objects detected, by class label",
	}, []string{"label"})

	FiltersApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pictor",
		Name:      "filters_applied_total",
		Help:      "Total number of filter applications, by kind",
	}, []string{"kind"})

	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pictor",
		Name:      "pipeline_errors_total",
		Help:      "Pipeline failures and soft failures, by operation and error code",
	}, []string{"operation", "code"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pictor",
		Name:      "jobs_processed_total",
		Help:      "Asynchronous jobs processed by workers",
	}, []string{"operation", "status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pictor",
		Name:      "queue_depth",
		Help:      "Number of pending jobs in the queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pictor",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pictor",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
