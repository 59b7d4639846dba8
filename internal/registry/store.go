package registry

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	definitionReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fritzbox_exporter_definition_reloads_total",
		Help: "Number of metric definition reloads by outcome",
	}, []string{"status"})

	definitionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fritzbox_exporter_definitions",
		Help: "Number of currently configured metrics",
	})
)

// Store holds the active Registry and can replace it when the definitions
// file changes. The scheduler reads the current registry at the start of
// every polling round, so a reload takes effect on the next round without
// interrupting the one in flight.
type Store struct {
	path string
	prom prometheus.Registerer

	mu  sync.RWMutex
	cur *Registry
}

// NewStore loads the definitions file at path and builds the initial
// registry on prom. Any load or build error is fatal to the caller.
func NewStore(path string, prom prometheus.Registerer) (*Store, error) {
	defs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	reg, err := New(defs, prom, nil)
	if err != nil {
		return nil, err
	}
	definitionCount.Set(float64(reg.Len()))

	return &Store{path: path, prom: prom, cur: reg}, nil
}

// Current returns the active registry.
func (s *Store) Current() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload re-reads the definitions file and swaps in a new registry. Counter
// reconciliation state is carried over by metric name, so counters that
// survive the reload keep reconciling against their last observed raw
// value. On any error the previous registry stays active.
//
// The exported value of a surviving counter restarts at zero because its
// collector is recreated; Prometheus treats that as an ordinary counter
// reset.
func (s *Store) Reload() error {
	defs, err := LoadFile(s.path)
	if err != nil {
		definitionReloads.WithLabelValues("load_error").Inc()
		return err
	}

	// Dry run against a scratch registerer so the active set is only torn
	// down once the new definitions are known to be registrable.
	scratch, err := New(defs, prometheus.NewRegistry(), nil)
	if err != nil {
		definitionReloads.WithLabelValues("invalid").Inc()
		return err
	}
	scratch.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	states := s.cur.CounterStates()
	prevDefs := s.cur.Definitions()
	s.cur.Close()

	reg, err := New(defs, s.prom, states)
	if err != nil {
		// The dry run passed, so this is a collision with a collector
		// outside this store. Rebuild the previous generation so the
		// active set survives the failed reload.
		definitionReloads.WithLabelValues("register_error").Inc()
		prev, restoreErr := New(prevDefs, s.prom, states)
		if restoreErr != nil {
			slog.Error("restoring previous metric set failed",
				"path", s.path, "error", restoreErr)
			return err
		}
		s.cur = prev
		return err
	}

	s.cur = reg
	definitionCount.Set(float64(reg.Len()))
	definitionReloads.WithLabelValues("success").Inc()
	slog.Info("metric definitions reloaded", "path", s.path, "metrics", reg.Len())
	return nil
}
