package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paketb0te/fritzbox-exporter/internal/errors"
	"github.com/paketb0te/fritzbox-exporter/internal/reconcile"
)

// Observation is the outcome of routing one raw sample into a metric.
type Observation struct {
	// Value is the gauge value set, or the counter increment added.
	Value float64
	// Wrapped reports that the device counter wrapped and the increment is
	// the reconciler's estimate.
	Wrapped bool
}

// sink routes a raw sample into the exported metric object. Exactly two
// implementations exist, one per Kind; the variant is fixed when the
// registry is built.
type sink interface {
	observe(raw float64) Observation
}

type gaugeSink struct {
	gauge prometheus.Gauge
}

func (s gaugeSink) observe(raw float64) Observation {
	s.gauge.Set(raw)
	return Observation{Value: raw}
}

type counterSink struct {
	counter prometheus.Counter
	state   *reconcile.State
}

func (s counterSink) observe(raw float64) Observation {
	// Device counters are unsigned totals. A negative raw value cannot come
	// from a healthy box; clamp it so reconciliation stays in the unsigned
	// domain.
	if raw < 0 {
		raw = 0
	}
	inc, wrapped := reconcile.Reconcile(s.state, uint64(raw))
	s.counter.Add(float64(inc))
	return Observation{Value: float64(inc), Wrapped: wrapped}
}

// Metric pairs a definition with its exported metric object.
type Metric struct {
	Def  Definition
	sink sink
}

// Observe routes one raw sample: gauges are set to it, counters receive the
// reconciled increment.
func (m *Metric) Observe(raw float64) Observation {
	return m.sink.observe(raw)
}

// Registry is the configured metric set, in definition order, with one
// registered Prometheus collector per metric.
type Registry struct {
	prom       prometheus.Registerer
	metrics    []*Metric
	collectors []prometheus.Collector
}

// New builds a Registry from definitions, creating and registering one
// gauge or counter per definition on prom. prior carries reconciliation
// state from a previous registry generation so counters keep their last
// observed raw value across a definitions reload; pass nil at startup.
func New(defs []Definition, prom prometheus.Registerer, prior map[string]*reconcile.State) (*Registry, error) {
	r := &Registry{prom: prom}

	for _, def := range defs {
		var (
			collector prometheus.Collector
			s         sink
		)

		switch def.Kind {
		case KindGauge:
			g := prometheus.NewGauge(prometheus.GaugeOpts{Name: def.Name, Help: def.Help()})
			collector, s = g, gaugeSink{gauge: g}
		case KindCounter:
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: def.Name, Help: def.Help()})
			state := prior[def.Name]
			if state == nil {
				state = &reconcile.State{}
			}
			collector, s = c, counterSink{counter: c, state: state}
		}

		if err := prom.Register(collector); err != nil {
			r.Close()
			return nil, errors.DefinitionError{Metric: def.Name, Field: "name", Value: def.Name, Reason: err.Error()}
		}

		r.metrics = append(r.metrics, &Metric{Def: def, sink: s})
		r.collectors = append(r.collectors, collector)
	}

	return r, nil
}

// Metrics returns the configured metrics in definition order.
func (r *Registry) Metrics() []*Metric {
	return r.metrics
}

// Len returns the number of configured metrics.
func (r *Registry) Len() int {
	return len(r.metrics)
}

// Definitions returns the definitions of the configured metrics, in order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.metrics))
	for i, m := range r.metrics {
		defs[i] = m.Def
	}
	return defs
}

// CounterStates returns the reconciliation state of every counter metric,
// keyed by metric name, for handover to a successor registry.
func (r *Registry) CounterStates() map[string]*reconcile.State {
	states := make(map[string]*reconcile.State)
	for _, m := range r.metrics {
		if cs, ok := m.sink.(counterSink); ok {
			states[m.Def.Name] = cs.state
		}
	}
	return states
}

// Close unregisters all collectors of this registry generation.
func (r *Registry) Close() {
	for _, c := range r.collectors {
		r.prom.Unregister(c)
	}
}
