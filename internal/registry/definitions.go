// Package registry holds the configured metric set of the exporter: the
// immutable metric definitions read from the definitions file, and the
// Prometheus gauge or counter object created for each of them.
package registry

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paketb0te/fritzbox-exporter/internal/errors"
)

// Kind is the exported type of a metric, fixed at definition time.
type Kind int

const (
	// KindGauge exports the raw sample directly, last sample wins.
	KindGauge Kind = iota
	// KindCounter exports reconciled non-negative increments.
	KindCounter
)

func (k Kind) String() string {
	switch k {
	case KindGauge:
		return "gauge"
	case KindCounter:
		return "counter"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a metric type from the definitions file. Matching is
// case-insensitive; anything but gauge or counter is an error.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "gauge":
		return KindGauge, nil
	case "counter":
		return KindCounter, nil
	default:
		return 0, fmt.Errorf("unknown metric type %q", s)
	}
}

// Definition describes one configured metric: its exported name and the
// TR-064 coordinates of the value it samples. Immutable once loaded.
type Definition struct {
	Name    string
	Service string
	Action  string
	Param   string
	Kind    Kind
}

// Help returns the documentation string for the exported metric object,
// recording the source coordinates for operability.
func (d Definition) Help() string {
	return fmt.Sprintf("Service: %s, Action: %s, Parameter: %s", d.Service, d.Action, d.Param)
}

// rawDefinition mirrors one entry of the definitions file.
type rawDefinition struct {
	Service string `yaml:"service"`
	Action  string `yaml:"action"`
	Param   string `yaml:"param"`
	Type    string `yaml:"type"`
}

// Load parses the YAML definitions document: a mapping from metric name to
// {service, action, param, type}. Definition order is preserved, it drives
// the polling order of the scheduler. Missing fields, an unknown type, or a
// duplicate name yield a DefinitionError.
func Load(r io.Reader) ([]Definition, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("definitions document is empty")
		}
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}

	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("definitions document must be a mapping from metric name to definition")
	}
	mapping := doc.Content[0]

	defs := make([]Definition, 0, len(mapping.Content)/2)
	seen := make(map[string]struct{})

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		name := mapping.Content[i].Value
		if _, dup := seen[name]; dup {
			return nil, errors.DefinitionError{Metric: name, Reason: "duplicate metric name"}
		}
		seen[name] = struct{}{}

		var raw rawDefinition
		if err := mapping.Content[i+1].Decode(&raw); err != nil {
			return nil, errors.DefinitionError{Metric: name, Reason: fmt.Sprintf("invalid definition: %v", err)}
		}

		if err := requireFields(name, raw); err != nil {
			return nil, err
		}

		kind, err := ParseKind(raw.Type)
		if err != nil {
			return nil, errors.DefinitionError{Metric: name, Field: "type", Value: raw.Type, Reason: err.Error()}
		}

		defs = append(defs, Definition{
			Name:    name,
			Service: raw.Service,
			Action:  raw.Action,
			Param:   raw.Param,
			Kind:    kind,
		})
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("definitions document defines no metrics")
	}

	return defs, nil
}

// LoadFile reads and parses the definitions file at path.
func LoadFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening definitions file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

func requireFields(name string, raw rawDefinition) error {
	fields := []struct {
		field string
		value string
	}{
		{"service", raw.Service},
		{"action", raw.Action},
		{"param", raw.Param},
		{"type", raw.Type},
	}
	for _, f := range fields {
		if f.value == "" {
			return errors.DefinitionError{Metric: name, Field: f.field, Reason: "required field is missing"}
		}
	}
	return nil
}
