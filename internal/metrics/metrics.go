// Package metrics provides Prometheus metrics for the sales analytics service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sales_analytics"

// Prediction outcomes.
const (
	OutcomeOK               = "ok"
	OutcomeCached           = "cached"
	OutcomeMissingFields    = "missing_fields"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeError            = "error"
)

var (
	// HTTPRequestsTotal counts handled requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration measures request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// PredictionsTotal counts prediction attempts by outcome.
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of prediction requests by outcome",
		},
		[]string{"outcome"},
	)

	DatasetRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_records",
			Help:      "Number of sales records loaded at startup (0 when degraded)",
		},
	)

	ModelReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "Whether the regression model is trained (1 = ready, 0 = unavailable)",
		},
	)

	ModelTrainingSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_training_seconds",
			Help:      "Wall time spent fitting or loading the model at startup",
		},
	)
)

func RecordRequest(route, method string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

func RecordPrediction(outcome string) {
	PredictionsTotal.WithLabelValues(outcome).Inc()
}

func SetDatasetRecords(n int) {
	DatasetRecords.Set(float64(n))
}

func SetModelReady(ready bool, trainingSeconds float64) {
	if ready {
		ModelReady.Set(1)
	} else {
		ModelReady.Set(0)
	}
	ModelTrainingSeconds.Set(trainingSeconds)
}
