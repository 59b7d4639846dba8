// Package errors provides error types and handling utilities for the
// FRITZ!Box exporter.
package errors

import (
	stderrors "errors"
	"fmt"
)

// DefinitionError reports an invalid metric definition. Definition errors
// are fatal at startup: the exporter must not begin polling with a broken
// metric set.
type DefinitionError struct {
	Metric string
	Field  string
	Value  string
	Reason string
}

func (e DefinitionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("metric %s: %s", e.Metric, e.Reason)
	}
	return fmt.Sprintf("metric %s: field %s (value: %q): %s", e.Metric, e.Field, e.Value, e.Reason)
}

// CallError represents a failed TR-064 remote call.
type CallError struct {
	Service    string
	Action     string
	StatusCode int
	Underlying error
}

func (e CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("call %s/%s (status %d): %v", e.Service, e.Action, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("call %s/%s: %v", e.Service, e.Action, e.Underlying)
}

func (e CallError) Unwrap() error {
	return e.Underlying
}

// Sample stages, used as the stage field of SampleError and as a label on
// the exporter's own sample_errors metric.
const (
	StageCall    = "call"
	StageMissing = "missing_param"
	StageParse   = "parse"
)

// SampleError reports a failed sample of one metric in one polling round.
// It is contained to that metric and round: the scheduler logs it and moves
// on, the metric is retried on the next round.
type SampleError struct {
	Metric     string
	Service    string
	Action     string
	Stage      string
	Underlying error
}

func (e SampleError) Error() string {
	return fmt.Sprintf("sample %s (%s/%s) %s: %v", e.Metric, e.Service, e.Action, e.Stage, e.Underlying)
}

func (e SampleError) Unwrap() error {
	return e.Underlying
}

// SampleStage extracts the stage of a SampleError anywhere in err's chain,
// or "unknown" if err carries no sample context.
func SampleStage(err error) string {
	var se SampleError
	if stderrors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}
