package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paketb0te/fritzbox-exporter/internal/errors"
	"github.com/paketb0te/fritzbox-exporter/internal/fritz"
	"github.com/paketb0te/fritzbox-exporter/internal/registry"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, serviceName, action string) (fritz.Values, error)
}

func (f *fakeCaller) Call(_ context.Context, serviceName, action string) (fritz.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	return f.fn(call, serviceName, action)
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSource struct {
	reg *registry.Registry
}

func (s staticSource) Current() *registry.Registry { return s.reg }

func counterDef(name string) registry.Definition {
	return registry.Definition{
		Name:    name,
		Service: "WANCommonIFC1",
		Action:  "GetAddonInfos",
		Param:   "NewTotalBytesReceived",
		Kind:    registry.KindCounter,
	}
}

func gaugeDef(name string) registry.Definition {
	return registry.Definition{
		Name:    name,
		Service: "WLANConfiguration1",
		Action:  "GetInfo",
		Param:   "NewX_AVM-DE_SignalStrength",
		Kind:    registry.KindGauge,
	}
}

func gatherValue(t *testing.T, prom *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := prom.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %q not exported", name)
	return 0
}

func TestSamplerStages(t *testing.T) {
	def := counterDef("fritz_wan_bytes_received")

	tests := []struct {
		name      string
		fn        func(call int, serviceName, action string) (fritz.Values, error)
		wantValue float64
		wantStage string
	}{
		{
			name: "success",
			fn: func(int, string, string) (fritz.Values, error) {
				return fritz.Values{"NewTotalBytesReceived": "1234"}, nil
			},
			wantValue: 1234,
		},
		{
			name: "call failure",
			fn: func(int, string, string) (fritz.Values, error) {
				return nil, fmt.Errorf("connection refused")
			},
			wantStage: errors.StageCall,
		},
		{
			name: "parameter absent",
			fn: func(int, string, string) (fritz.Values, error) {
				return fritz.Values{"NewTotalBytesSent": "9"}, nil
			},
			wantStage: errors.StageMissing,
		},
		{
			name: "unparseable value",
			fn: func(int, string, string) (fritz.Values, error) {
				return fritz.Values{"NewTotalBytesReceived": "lots"}, nil
			},
			wantStage: errors.StageParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := NewSampler(&fakeCaller{fn: tt.fn}, time.Second)
			got, err := sampler.Sample(context.Background(), def)
			if tt.wantStage == "" {
				if err != nil {
					t.Fatalf("Sample() error = %v", err)
				}
				if got != tt.wantValue {
					t.Errorf("Sample() = %v, want %v", got, tt.wantValue)
				}
				return
			}
			if err == nil {
				t.Fatal("Sample() expected error, got nil")
			}
			if stage := errors.SampleStage(err); stage != tt.wantStage {
				t.Errorf("SampleStage() = %q, want %q", stage, tt.wantStage)
			}
		})
	}
}

// runRounds drives the scheduler until the caller has served the given
// number of calls, with the inter-sample pauses stubbed out.
func runRounds(t *testing.T, sched *Scheduler, caller *fakeCaller, calls int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sched.sleep = func(ctx context.Context, _ time.Duration) error {
		if caller.count() >= calls {
			cancel()
		}
		return ctx.Err()
	}
	if err := sched.Run(ctx); err != context.Canceled && err != context.DeadlineExceeded {
		t.Fatalf("Run() error = %v", err)
	}
	if got := caller.count(); got < calls {
		t.Fatalf("caller served %d calls, want at least %d", got, calls)
	}
}

func TestSchedulerCounterSequence(t *testing.T) {
	// Raw samples 100, 140, 40, 90: the drop to 40 is a wrap, so the
	// exported total must be 100 + 40 + 80 + 50 = 270.
	raws := []string{"100", "140", "40", "90"}
	caller := &fakeCaller{fn: func(call int, _, _ string) (fritz.Values, error) {
		if call >= len(raws) {
			return nil, fmt.Errorf("sequence exhausted")
		}
		return fritz.Values{"NewTotalBytesReceived": raws[call]}, nil
	}}

	prom := prometheus.NewRegistry()
	reg, err := registry.New([]registry.Definition{counterDef("fritz_wan_bytes_received")}, prom, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sched := NewScheduler(NewSampler(caller, time.Second), staticSource{reg})
	runRounds(t, sched, caller, len(raws))

	if got := gatherValue(t, prom, "fritz_wan_bytes_received"); got != 270 {
		t.Errorf("exported counter = %v, want 270", got)
	}
}

func TestSchedulerGaugeSequence(t *testing.T) {
	raws := []string{"-70", "-65", "-80"}
	caller := &fakeCaller{fn: func(call int, _, _ string) (fritz.Values, error) {
		if call >= len(raws) {
			return nil, fmt.Errorf("sequence exhausted")
		}
		return fritz.Values{"NewX_AVM-DE_SignalStrength": raws[call]}, nil
	}}

	prom := prometheus.NewRegistry()
	reg, err := registry.New([]registry.Definition{gaugeDef("fritz_wifi_signal_dbm")}, prom, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sched := NewScheduler(NewSampler(caller, time.Second), staticSource{reg})
	runRounds(t, sched, caller, len(raws))

	if got := gatherValue(t, prom, "fritz_wifi_signal_dbm"); got != -80 {
		t.Errorf("exported gauge = %v, want -80", got)
	}
}

func TestSchedulerFailureContainment(t *testing.T) {
	// The first metric fails on every call; the second must still be
	// sampled and the round must complete.
	caller := &fakeCaller{fn: func(_ int, serviceName, _ string) (fritz.Values, error) {
		if serviceName == "WANCommonIFC1" {
			return nil, fmt.Errorf("device busy")
		}
		return fritz.Values{"NewX_AVM-DE_SignalStrength": "-55"}, nil
	}}

	prom := prometheus.NewRegistry()
	defs := []registry.Definition{
		counterDef("fritz_wan_bytes_received"),
		gaugeDef("fritz_wifi_signal_dbm"),
	}
	reg, err := registry.New(defs, prom, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sched := NewScheduler(NewSampler(caller, time.Second), staticSource{reg})
	runRounds(t, sched, caller, 2)

	if got := gatherValue(t, prom, "fritz_wifi_signal_dbm"); got != -55 {
		t.Errorf("exported gauge = %v, want -55", got)
	}
}

func TestSchedulerHealth(t *testing.T) {
	caller := &fakeCaller{fn: func(int, string, string) (fritz.Values, error) {
		return fritz.Values{"NewTotalBytesReceived": "1"}, nil
	}}
	prom := prometheus.NewRegistry()
	reg, err := registry.New([]registry.Definition{counterDef("fritz_wan_bytes_received")}, prom, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sched := NewScheduler(NewSampler(caller, time.Second), staticSource{reg})

	if err := sched.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() fresh scheduler = %v, want nil", err)
	}

	sched.lastSuccess.Store(time.Now().Add(-5 * time.Minute).UnixNano())
	if err := sched.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth() stale scheduler = nil, want error")
	}

	if got := sched.ComponentName(); got != "poller" {
		t.Errorf("ComponentName() = %q, want %q", got, "poller")
	}
}

func TestJitteredPause(t *testing.T) {
	for _, n := range []int{1, 4} {
		lo := 10 * time.Second / time.Duration(n)
		hi := 20 * time.Second / time.Duration(n)
		for i := 0; i < 200; i++ {
			d := jitteredPause(n)
			if d < lo || d >= hi {
				t.Fatalf("jitteredPause(%d) = %v, want in [%v, %v)", n, d, lo, hi)
			}
		}
	}
	if d := jitteredPause(0); d < 10*time.Second || d >= 20*time.Second {
		t.Errorf("jitteredPause(0) = %v, want in [10s, 20s)", d)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("sleepContext() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sleepContext() returned after %v, want immediately", elapsed)
	}
}
