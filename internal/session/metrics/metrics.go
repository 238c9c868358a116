package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SignIns       *prometheus.CounterVec
	Renewals      *prometheus.CounterVec
	SignOuts      prometheus.Counter
	RenewDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		SignIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_sessions_signed_in_total",
			Help: "Total number of sessions started by persistence mode",
		}, []string{"persistent"}),
		Renewals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_session_renewals_total",
			Help: "Total number of session renewals by outcome",
		}, []string{"outcome"}),
		SignOuts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keystone_sessions_signed_out_total",
			Help: "Total number of sessions signed out",
		}),
		RenewDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_session_renew_duration_seconds",
			Help:    "Duration of refresh token rotation (token refresh hot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementSignIn(persistent bool) {
	label := "false"
	if persistent {
		label = "true"
	}
	m.SignIns.WithLabelValues(label).Inc()
}

func (m *Metrics) IncrementRenewal(outcome string) {
	m.Renewals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementSignOut() {
	m.SignOuts.Inc()
}

func (m *Metrics) ObserveRenew(start time.Time) {
	m.RenewDuration.Observe(time.Since(start).Seconds())
}
