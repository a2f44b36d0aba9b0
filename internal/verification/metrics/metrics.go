package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eudi-storefront/internal/verification/models"
)

// Metrics holds Prometheus collectors for verification attempts.
type Metrics struct {
	AttemptsStarted     *prometheus.CounterVec
	Outcomes            *prometheus.CounterVec
	AuthorizerLatency   *prometheus.HistogramVec
	StaleResultsDropped *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	StreamSubscribers   prometheus.Gauge
	EventParseErrors    *prometheus.CounterVec
	StoredStates        *prometheus.GaugeVec
}

// New registers and returns verification metrics collectors.
func New() *Metrics {
	return &Metrics{
		AttemptsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_verification_attempts_started_total",
			Help: "Total number of verification attempts started, labeled by mode and flow",
		}, []string{"mode", "flow"}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_verification_outcomes_total",
			Help: "Total number of settled attempts, labeled by final lifecycle",
		}, []string{"lifecycle"}),
		AuthorizerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_authorizer_call_latency_seconds",
			Help:    "Latency of Authorizer calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
		StaleResultsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_stale_results_dropped_total",
			Help: "Total number of results discarded because their attempt was superseded",
		}, []string{"stage"}),
		TransitionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_transitions_rejected_total",
			Help: "Total number of lifecycle transitions refused by the transition table",
		}, []string{"from", "to"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_event_stream_subscribers",
			Help: "Current number of open event stream subscriptions",
		}),
		EventParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_event_parse_errors_total",
			Help: "Total number of stream events that failed schema validation, labeled by event type",
		}, []string{"type"}),
		StoredStates: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storefront_verification_states",
			Help: "Number of stored verification states, labeled by lifecycle",
		}, []string{"lifecycle"}),
	}
}

func (m *Metrics) IncrementAttemptsStarted(mode, flow string) {
	m.AttemptsStarted.WithLabelValues(mode, flow).Inc()
}

func (m *Metrics) IncrementOutcome(lifecycle string) {
	m.Outcomes.WithLabelValues(lifecycle).Inc()
}

// ObserveAuthorizerCall implements authorizer.Observer.
func (m *Metrics) ObserveAuthorizerCall(operation, outcome string, seconds float64) {
	m.AuthorizerLatency.WithLabelValues(operation, outcome).Observe(seconds)
}

func (m *Metrics) IncrementStaleDropped(stage string) {
	m.StaleResultsDropped.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncrementTransitionRejected(from, to string) {
	m.TransitionsRejected.WithLabelValues(from, to).Inc()
}

// AddStreamSubscribers moves the subscriber gauge; it fits events.WithSubscriberGauge.
func (m *Metrics) AddStreamSubscribers(delta float64) {
	m.StreamSubscribers.Add(delta)
}

func (m *Metrics) IncrementEventParseErrors(eventType string) {
	m.EventParseErrors.WithLabelValues(eventType).Inc()
}

// SetStoredStates replaces the per-lifecycle state counts. Lifecycles
// missing from counts are reported as zero.
func (m *Metrics) SetStoredStates(counts map[models.Lifecycle]int) {
	for _, lc := range models.AllLifecycles() {
		m.StoredStates.WithLabelValues(lc.String()).Set(float64(counts[lc]))
	}
}
