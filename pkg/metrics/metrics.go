// Package metrics holds the prometheus collectors exported on the progress
// API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vftune"

var (
	// Registry holds every vftune collector plus the process/go collectors.
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	// TestCycles counts finished test cycles by verdict kind.
	TestCycles = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "test_cycles_total",
		Help:      "Finished stability test cycles by verdict.",
	}, []string{"verdict"})

	// QueryFailures counts telemetry queries that failed during a test cycle.
	QueryFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_query_failures_total",
		Help:      "Telemetry queries that failed while a workload was running.",
	})

	// ThrottleObservations counts polls where the clock fell short of target.
	ThrottleObservations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttle_observations_total",
		Help:      "Polls where the clock was more than one step below target.",
	})

	// Points counts searched points by outcome (validated, skipped).
	Points = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_total",
		Help:      "Searched table points by outcome.",
	}, []string{"outcome"})

	// PointOffset is the best offset found per point index.
	PointOffset = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "point_offset_khz",
		Help:      "Best stable offset found per table index.",
	}, []string{"index"})

	// TestingIndex is the table index currently being searched, -1 when idle.
	TestingIndex = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "testing_index",
		Help:      "Table index currently under test, -1 when idle.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	TestingIndex.Set(-1)
}
