// Package diagnostics exposes prometheus-backed cyclic/DC/recovery metrics
// and a HIL conformance evaluator over the same KPIs (spec.md §4.10),
// grounded on the prometheus client library the rest of the retrieved pack
// carries for service instrumentation.
package diagnostics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a private prometheus registry and the gauges/counters the
// cyclic driver, DC driver, recovery engine and topology reconciler report
// into. Nil sinks are a no-op everywhere they are consulted (spec.md §4.11).
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal             prometheus.Counter
	CyclesFailed            prometheus.Counter
	WorkingCounterHist      prometheus.Histogram
	DcOffsetGauge           *prometheus.GaugeVec
	RecoveryEventsTotal     prometheus.Counter
	TopologyGenerationGauge prometheus.Gauge
}

// NewMetrics registers the module's metrics on registry. A nil registry
// gets a private one — this module never touches
// prometheus.DefaultRegisterer (spec.md §8).
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethercat_cycles_total",
			Help: "Total cyclic exchanges attempted.",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethercat_cycles_failed_total",
			Help: "Cyclic exchanges that returned an error or a working counter below expected.",
		}),
		WorkingCounterHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ethercat_working_counter",
			Help:    "Observed working counter per cyclic exchange.",
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		}),
		DcOffsetGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethercat_dc_offset_ns",
			Help: "Most recent raw distributed-clocks offset per slave position.",
		}, []string{"position"}),
		RecoveryEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethercat_recovery_events_total",
			Help: "Total recovery engine actions taken across all slaves.",
		}),
		TopologyGenerationGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ethercat_topology_generation",
			Help: "Current topology snapshot generation number.",
		}),
	}
	registry.MustRegister(
		m.CyclesTotal,
		m.CyclesFailed,
		m.WorkingCounterHist,
		m.DcOffsetGauge,
		m.RecoveryEventsTotal,
		m.TopologyGenerationGauge,
	)
	return m
}

// Registry returns the registry backing m, for exposition via an HTTP
// handler external to this module.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle records one cyclic exchange's outcome.
func (m *Metrics) ObserveCycle(ok bool, workingCounter uint16) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	if !ok {
		m.CyclesFailed.Inc()
	}
	m.WorkingCounterHist.Observe(float64(workingCounter))
}

// ObserveDcOffset records one slave's latest raw DC offset.
func (m *Metrics) ObserveDcOffset(position uint16, offsetNs int64) {
	if m == nil {
		return
	}
	m.DcOffsetGauge.WithLabelValues(strconv.Itoa(int(position))).Set(float64(offsetNs))
}

// ObserveRecoveryEvent increments the recovery action counter.
func (m *Metrics) ObserveRecoveryEvent() {
	if m == nil {
		return
	}
	m.RecoveryEventsTotal.Inc()
}

// ObserveTopologyGeneration records the current topology generation.
func (m *Metrics) ObserveTopologyGeneration(generation uint64) {
	if m == nil {
		return
	}
	m.TopologyGenerationGauge.Set(float64(generation))
}
