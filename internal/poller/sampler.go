// Package poller drives the polling loop: it samples configured values
// from the device and feeds them into the metric registry.
package poller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/paketb0te/fritzbox-exporter/internal/errors"
	"github.com/paketb0te/fritzbox-exporter/internal/fritz"
	"github.com/paketb0te/fritzbox-exporter/internal/registry"
)

// Caller executes a TR-064 action and returns its output arguments.
type Caller interface {
	Call(ctx context.Context, serviceName, action string) (fritz.Values, error)
}

// Sampler fetches a single raw value for a metric definition.
type Sampler struct {
	caller  Caller
	timeout time.Duration
}

func NewSampler(caller Caller, timeout time.Duration) *Sampler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sampler{caller: caller, timeout: timeout}
}

// Sample calls the definition's service action and parses the named
// output parameter. Failures are wrapped in a SampleError carrying the
// stage at which the sample broke down.
func (s *Sampler) Sample(ctx context.Context, def registry.Definition) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values, err := s.caller.Call(ctx, def.Service, def.Action)
	if err != nil {
		return 0, errors.SampleError{
			Metric:     def.Name,
			Service:    def.Service,
			Action:     def.Action,
			Stage:      errors.StageCall,
			Underlying: err,
		}
	}

	raw, ok := values[def.Param]
	if !ok {
		return 0, errors.SampleError{
			Metric:     def.Name,
			Service:    def.Service,
			Action:     def.Action,
			Stage:      errors.StageMissing,
			Underlying: fmt.Errorf("parameter %q absent from response", def.Param),
		}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.SampleError{
			Metric:     def.Name,
			Service:    def.Service,
			Action:     def.Action,
			Stage:      errors.StageParse,
			Underlying: err,
		}
	}
	return value, nil
}
