package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports gate activity as Prometheus metrics.
type PrometheusRecorder struct {
	verifications *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the gate collectors on reg and returns
// the recorder.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	verifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainpass",
			Name:      "verifications_total",
			Help:      "Payment verification outcomes by verdict status",
		},
		[]string{"status", "network"},
	)

	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainpass",
			Name:      "operation_latency_seconds",
			Help:      "Latency of gate operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	reg.MustRegister(verifications, latency)

	return &PrometheusRecorder{
		verifications: verifications,
		latency:       latency,
	}
}

func (p *PrometheusRecorder) IncVerification(status, network string) {
	p.verifications.WithLabelValues(status, network).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(operation string, d time.Duration, network string) {
	p.latency.WithLabelValues(operation, network).Observe(d.Seconds())
}
