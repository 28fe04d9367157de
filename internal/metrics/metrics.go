package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detection outcomes.
const (
	OutcomeRecorded   = "recorded"
	OutcomeNotFound   = "not_found"
	OutcomeInvalid    = "invalid"
	OutcomeMisconfig  = "misconfigured"
	OutcomeStoreError = "error"
)

// Metrics groups the service's Prometheus collectors.
type Metrics struct {
	Detections      *prometheus.CounterVec
	Expired         prometheus.Counter
	SweepFailures   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "detections_total",
			Help:      "Device detections by outcome.",
		}, []string{"outcome"}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "verifications_expired_total",
			Help:      "Pending verifications transitioned to expired.",
		}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "sweep_failures_total",
			Help:      "Expiry sweeps that failed.",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
