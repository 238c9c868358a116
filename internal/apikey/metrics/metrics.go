package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Created              prometheus.Counter
	Authentications      *prometheus.CounterVec
	AuthenticateDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keystone_apikeys_created_total",
			Help: "Total number of API keys created",
		}),
		Authentications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_apikey_authentications_total",
			Help: "Total number of API key authentications by outcome",
		}, []string{"outcome"}),
		AuthenticateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_apikey_authenticate_duration_seconds",
			Help:    "Duration of API key authentication (request hot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.Created.Inc()
}

func (m *Metrics) IncrementAuthentication(outcome string) {
	m.Authentications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAuthenticate(start time.Time) {
	m.AuthenticateDuration.Observe(time.Since(start).Seconds())
}
