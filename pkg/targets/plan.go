package targets

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/grafana/netverify/pkg/probe"
)

// Spec is a single target in a YAML plan.
type Spec struct {
	Name      string           `yaml:"name,omitempty"`
	Kind      probe.Kind       `yaml:"kind"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Expect    probe.ExpectMode `yaml:"expect,omitempty"`
	Signature string           `yaml:"signature,omitempty"`
}

func (s Spec) Target() probe.Target {
	t := probe.Target{
		Kind:   s.Kind,
		Host:   s.Host,
		Port:   s.Port,
		Expect: probe.Expectation{Mode: s.Expect},
	}
	if s.Signature != "" {
		t.Expect = probe.Signature(s.Signature)
	}
	return t
}

// Plan is a named collection of targets.
type Plan struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Targets     []Spec `yaml:"targets"`
}

// ParsePlan reads YAML content and returns a Plan
func ParsePlan(reader io.Reader) (*Plan, error) {
	var plan struct {
		Plan Plan `yaml:"plan"`
	}
	if err := yaml.NewDecoder(reader, yaml.Strict()).Decode(&plan); err != nil {
		return nil, err
	}

	return &plan.Plan, nil
}

// Entries validates every target in the plan. Invalid ones are returned in
// skipped, the rest keep their order.
func (p *Plan) Entries() (entries []Entry, skipped []error) {
	for i, s := range p.Targets {
		t := s.Target()
		if err := t.Validate(); err != nil {
			skipped = append(skipped, fmt.Errorf("target %d: %w: %w", i, ErrMalformedRecord, err))
			continue
		}

		name := s.Name
		if name == "" {
			name = t.String()
		}
		entries = append(entries, Entry{Name: name, Line: i + 1, Target: t})
	}

	return entries, skipped
}

func init() {
	yaml.RegisterCustomUnmarshaler(yamlUnmarshalKind)
	yaml.RegisterCustomUnmarshaler(yamlUnmarshalExpectMode)
}

// ParseKind maps the record keywords onto target kinds.
func ParseKind(s string) (probe.Kind, error) {
	switch strings.ToLower(unquote(s)) {
	case "", "sidecar", "docker":
		return probe.KindSidecar, nil
	case "ip":
		return probe.KindExternalIP, nil
	case "url", "host":
		return probe.KindExternalURL, nil
	default:
		return probe.KindSidecar, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// yaml hands scalars over as written, quotes included, so both
// unmarshalers go through unquote.
func yamlUnmarshalKind(k *probe.Kind, b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func yamlUnmarshalExpectMode(m *probe.ExpectMode, b []byte) error {
	switch strings.ToLower(unquote(string(b))) {
	case "", "connect", "true":
		*m = probe.ExpectConnect
	case "block", "false":
		*m = probe.ExpectBlock
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExpectation, b)
	}
	return nil
}
