package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued             prometheus.Counter
	Validations        *prometheus.CounterVec
	ValidationDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keystone_otp_issued_total",
			Help: "Total number of one-time passwords issued",
		}),
		Validations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_otp_validations_total",
			Help: "Total number of OTP validation attempts by outcome",
		}, []string{"outcome"}),
		ValidationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_otp_validation_duration_seconds",
			Help:    "Duration of OTP validation operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.Issued.Inc()
}

func (m *Metrics) IncrementValidation(outcome string) {
	m.Validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveValidation(start time.Time) {
	m.ValidationDuration.Observe(time.Since(start).Seconds())
}
