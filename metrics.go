package auth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chassis_auth"

// Filter outcomes reported by the request auth filter
const (
	FilterOutcomeAnonymous     = "anonymous"
	FilterOutcomeAuthenticated = "authenticated"
	FilterOutcomeExpired       = "expired"
	FilterOutcomeInvalid       = "invalid"
	FilterOutcomeError         = "error"
)

// Metrics turns activity events and filter outcomes into prometheus
// series. It is an ActivitySink so it can be chained with other sinks.
type Metrics struct {
	logins   *prometheus.CounterVec
	events   *prometheus.CounterVec
	requests *prometheus.CounterVec
	sessions prometheus.Gauge
}

var _ ActivitySink = (*Metrics)(nil)

// NewMetrics registers the auth series with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Account and session activity events by type.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "filter_requests_total",
			Help:      "Requests seen by the auth filter by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_purged_last",
			Help:      "Sessions removed by the last janitor run.",
		}),
	}

	for _, c := range []prometheus.Collector{m.logins, m.events, m.requests, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, wrapInternal(err, "failed to register metrics")
		}
	}

	return m, nil
}

func (m *Metrics) Record(_ context.Context, event ActivityEvent) error {
	m.events.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case ActivityEventLoginSuccess:
		m.logins.WithLabelValues("success").Inc()
	case ActivityEventLoginFailure:
		m.logins.WithLabelValues("failure").Inc()
	case ActivityEventSessionLimitReached:
		m.logins.WithLabelValues("session_limit").Inc()
	}
	return nil
}

// ObserveFilter counts one request auth filter outcome
func (m *Metrics) ObserveFilter(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

// ObservePurge records the result of a janitor run
func (m *Metrics) ObservePurge(n int) {
	m.sessions.Set(float64(n))
}
