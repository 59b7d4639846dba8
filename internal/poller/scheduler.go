package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/paketb0te/fritzbox-exporter/internal/errors"
	"github.com/paketb0te/fritzbox-exporter/internal/registry"
)

// RegistrySource yields the registry to poll. The store re-points it
// when the definition file is reloaded, so each round picks up the
// current metric set.
type RegistrySource interface {
	Current() *registry.Registry
}

// Scheduler polls every registered metric in rounds, pausing between
// samples so that a full round spreads over ten to twenty seconds.
type Scheduler struct {
	sampler  *Sampler
	source   RegistrySource
	maxStale time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	lastSuccess atomic.Int64
}

func NewScheduler(sampler *Sampler, source RegistrySource) *Scheduler {
	s := &Scheduler{
		sampler:  sampler,
		source:   source,
		maxStale: 2 * time.Minute,
		sleep:    sleepContext,
	}
	s.lastSuccess.Store(time.Now().UnixNano())
	return s
}

// Run polls until ctx is cancelled and returns the context's error.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("polling started", "metrics", s.source.Current().Len())
	for {
		start := time.Now()
		metrics := s.source.Current().Metrics()
		for _, m := range metrics {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.sampleOne(ctx, m)
			if err := s.sleep(ctx, jitteredPause(len(metrics))); err != nil {
				return err
			}
		}
		roundDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Scheduler) sampleOne(ctx context.Context, m *registry.Metric) {
	raw, err := s.sampler.Sample(ctx, m.Def)
	if err != nil {
		sampleErrors.WithLabelValues(m.Def.Name, errors.SampleStage(err)).Inc()
		slog.Warn("sample failed", "metric", m.Def.Name, "error", err)
		return
	}

	obs := m.Observe(raw)
	samplesTotal.WithLabelValues(m.Def.Name).Inc()
	now := time.Now()
	s.lastSuccess.Store(now.UnixNano())
	lastSampleTime.Set(float64(now.Unix()))

	if obs.Wrapped {
		counterWraps.WithLabelValues(m.Def.Name).Inc()
		slog.Debug("device counter wrapped, using estimated increment",
			"metric", m.Def.Name, "increment", obs.Value)
	}
	slog.Debug("metric updated", "metric", m.Def.Name, "kind", m.Def.Kind.String(), "value", obs.Value)
}

// LastSuccess reports when the scheduler last sampled a value.
func (s *Scheduler) LastSuccess() time.Time {
	return time.Unix(0, s.lastSuccess.Load())
}

// ComponentName implements health.ComponentChecker.
func (s *Scheduler) ComponentName() string { return "poller" }

// CheckHealth implements health.ComponentChecker. The poller is
// unhealthy once no sample has succeeded within the staleness bound.
func (s *Scheduler) CheckHealth(ctx context.Context) error {
	age := time.Since(s.LastSuccess())
	if age > s.maxStale {
		return fmt.Errorf("no successful sample for %s", age.Round(time.Second))
	}
	return nil
}

// jitteredPause spreads a whole round of n metrics over a randomized
// ten to twenty seconds.
func jitteredPause(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(10+rand.Intn(10)) * time.Second / time.Duration(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
