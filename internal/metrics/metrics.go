// Package metrics records fixture API traffic and scenario outcomes for a
// run. Metrics live in a private registry and are exported once, at the end
// of the run, as a node-exporter textfile.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the run's collectors. The zero value is not usable; call New.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scenariosTotal  *prometheus.CounterVec
	scenarioSeconds *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	fixturesDeleted prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcheck_fixture_requests_total",
				Help: "Total number of fixture API requests",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upcheck_fixture_request_duration_seconds",
				Help:    "Fixture API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		scenariosTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcheck_scenarios_total",
				Help: "Total number of scenarios finished",
			},
			[]string{"suite", "check_type", "status"},
		),
		scenarioSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upcheck_scenario_duration_seconds",
				Help:    "Scenario wall time in seconds, all attempts included",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"suite"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcheck_scenario_attempts_total",
				Help: "Total number of scenario attempts, retries included",
			},
			[]string{"suite"},
		),
		fixturesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "upcheck_fixtures_deleted_total",
				Help: "Total number of checks deleted during setup and teardown",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest implements fixture.Observer.
func (r *Recorder) ObserveRequest(method string, status int, elapsed time.Duration) {
	r.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordScenario counts one finished scenario.
func (r *Recorder) RecordScenario(suite, checkType, status string, attempts int, elapsed time.Duration) {
	r.scenariosTotal.WithLabelValues(suite, checkType, status).Inc()
	r.scenarioSeconds.WithLabelValues(suite).Observe(elapsed.Seconds())
	r.attemptsTotal.WithLabelValues(suite).Add(float64(attempts))
}

// RecordDeleted counts checks removed by a purge.
func (r *Recorder) RecordDeleted(n int) {
	if n > 0 {
		r.fixturesDeleted.Add(float64(n))
	}
}

// WriteTextfile writes every metric to path in the text exposition format.
// The write goes through a temporary file and a rename.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
