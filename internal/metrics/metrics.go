package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream event results
const (
	StreamMerged    = "merged"
	StreamDropped   = "dropped"
	StreamDuplicate = "duplicate"
)

// Poll tick results
const (
	PollRan     = "ran"
	PollSkipped = "skipped"
)

// Metrics holds the console's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	APICalls     *prometheus.CounterVec
	APILatency   *prometheus.HistogramVec
	Rollbacks    *prometheus.CounterVec
	StreamEvents *prometheus.CounterVec
	PollTicks    *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		APICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wafconsole_api_calls_total",
			Help: "Gateway API calls by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wafconsole_api_call_duration_seconds",
			Help:    "Gateway API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wafconsole_optimistic_rollbacks_total",
			Help: "Optimistic mutations reverted after a failed call",
		}, []string{"field"}),

		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wafconsole_stream_events_total",
			Help: "Live log events by merge result",
		}, []string{"result"}),

		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wafconsole_poll_ticks_total",
			Help: "Scheduler ticks by poller and result",
		}, []string{"poller", "result"}),
	}

	m.registry.MustRegister(
		m.APICalls, m.APILatency, m.Rollbacks, m.StreamEvents, m.PollTicks,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveCall(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.APICalls.WithLabelValues(endpoint, outcome).Inc()
	m.APILatency.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) Rollback(field string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(field).Inc()
}

func (m *Metrics) StreamEvent(result string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) PollTick(poller, result string) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(poller, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
