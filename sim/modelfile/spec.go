// Package modelfile reads material flow models from YAML definitions.
package modelfile

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/isr-ifi/dpmfa/sim/distribution"
)

// CurrentVersion is the model file format version written by this package.
const CurrentVersion = "1"

// ModelSpec is the top-level model definition.
// Loaded from YAML via LoadModelSpec(path).
type ModelSpec struct {
	Version      string            `yaml:"version"`
	Name         string            `yaml:"name"`
	Compartments []CompartmentSpec `yaml:"compartments"`
	Inflows      []InflowSpec      `yaml:"inflows"`

	// Fingerprint identifies the file content (xxhash64, hex). Not part of the YAML.
	Fingerprint string `yaml:"-"`
}

// CompartmentSpec defines one compartment and its outgoing transfers.
type CompartmentSpec struct {
	Name              string         `yaml:"name"`
	Kind              string         `yaml:"kind"`
	Categories        []string       `yaml:"categories,omitempty"`
	LogInflows        bool           `yaml:"log_inflows"`
	LogOutflows       bool           `yaml:"log_outflows"`
	LogImmediateFlows bool           `yaml:"log_immediate_flows,omitempty"`
	AdjustOutgoingTCs *bool          `yaml:"adjust_outgoing_tcs,omitempty"` // default true
	Transfers         []TransferSpec `yaml:"transfers,omitempty"`
	Release           *ReleaseSpec   `yaml:"release,omitempty"`
}

// CoefficientSpec describes where a transfer coefficient comes from.
// Exactly one field must be set.
type CoefficientSpec struct {
	Value                  *float64            `yaml:"value,omitempty"`
	Distribution           *distribution.Spec  `yaml:"distribution,omitempty"`
	Sample                 []float64           `yaml:"sample,omitempty"`
	Aggregate              *AggregateSpec      `yaml:"aggregate,omitempty"`
	PerPeriodDistributions []distribution.Spec `yaml:"per_period_distributions,omitempty"`
	PerPeriodValues        []float64           `yaml:"per_period_values,omitempty"`
}

// TransferSpec defines a transfer to another compartment.
type TransferSpec struct {
	Target          string `yaml:"target"`
	Priority        *int   `yaml:"priority,omitempty"` // default 1
	CoefficientSpec `yaml:",inline"`
}

// AggregateSpec combines several coefficient sources with optional weights.
type AggregateSpec struct {
	Parts   []CoefficientSpec `yaml:"parts"`
	Weights []float64         `yaml:"weights,omitempty"`
}

// ReleaseSpec defines how a stock releases stored material.
type ReleaseSpec struct {
	Type         string             `yaml:"type"`
	Rates        []float64          `yaml:"rates,omitempty"`        // list
	Rate         float64            `yaml:"rate,omitempty"`         // fixed_rate
	Distribution *distribution.Spec `yaml:"distribution,omitempty"` // lifetime
	Delay        int                `yaml:"delay,omitempty"`
}

// PeriodInflowSpec is the uncertain amount entering in one period.
// Exactly one field must be set.
type PeriodInflowSpec struct {
	Value        *float64           `yaml:"value,omitempty"`
	Distribution *distribution.Spec `yaml:"distribution,omitempty"`
	Sample       []float64          `yaml:"sample,omitempty"`
}

// GrowthSpec shapes a function inflow over time.
type GrowthSpec struct {
	Type  string  `yaml:"type"`
	Slope float64 `yaml:"slope,omitempty"` // linear: base + slope * k
	Rate  float64 `yaml:"rate,omitempty"`  // exponential: base * (1 + rate)^k
}

// InflowSpec defines an external source.
type InflowSpec struct {
	Target     string             `yaml:"target"`
	Type       string             `yaml:"type"` // list (default) or function
	Periods    []PeriodInflowSpec `yaml:"periods,omitempty"`
	Base       *PeriodInflowSpec  `yaml:"base,omitempty"`
	Growth     *GrowthSpec        `yaml:"growth,omitempty"`
	Derivation *distribution.Spec `yaml:"derivation,omitempty"`
	StartDelay int                `yaml:"start_delay,omitempty"`
}

// Valid value registries.
var (
	validKinds        = map[string]bool{"flow": true, "sink": true, "stock": true}
	validReleaseTypes = map[string]bool{"list": true, "fixed_rate": true, "lifetime": true}
	validInflowTypes  = map[string]bool{"": true, "list": true, "function": true}
	validGrowthTypes  = map[string]bool{"": true, "constant": true, "linear": true, "exponential": true}
)

// LoadModelSpec reads and parses a YAML model file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadModelSpec(path string) (*ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading model file")
	}
	spec, err := ParseModelSpec(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing model file %s", path)
	}
	return spec, nil
}

// ParseModelSpec parses a YAML model definition.
func ParseModelSpec(data []byte) (*ModelSpec, error) {
	var spec ModelSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Version == "" {
		logrus.Debugf("model %q has no version; assuming %s", spec.Name, CurrentVersion)
		spec.Version = CurrentVersion
	}
	spec.Fingerprint = fmt.Sprintf("%016x", xxhash.Sum64(data))
	return &spec, nil
}

// Validate checks the structure of the definition. Semantic checks that need the
// whole model (targets, transfers per kind) happen in Build.
func (s *ModelSpec) Validate() error {
	if s.Version != CurrentVersion {
		return errors.Errorf("unsupported model version %q; valid: %s", s.Version, CurrentVersion)
	}
	if s.Name == "" {
		return errors.New("model name is required")
	}
	if len(s.Compartments) == 0 {
		return errors.New("at least one compartment required")
	}
	for i := range s.Compartments {
		if err := validateCompartment(&s.Compartments[i], i); err != nil {
			return err
		}
	}
	for i := range s.Inflows {
		if err := validateInflow(&s.Inflows[i], i); err != nil {
			return err
		}
	}
	return nil
}

func validateCompartment(c *CompartmentSpec, idx int) error {
	prefix := fmt.Sprintf("compartments[%d]", idx)
	if c.Name == "" {
		return errors.Errorf("%s: name is required", prefix)
	}
	prefix = fmt.Sprintf("compartment %q", c.Name)
	if !validKinds[c.Kind] {
		return errors.Errorf("%s: unknown kind %q; valid: flow, sink, stock", prefix, c.Kind)
	}
	for i := range c.Transfers {
		t := &c.Transfers[i]
		tp := fmt.Sprintf("%s.transfers[%d]", prefix, i)
		if t.Target == "" {
			return errors.Errorf("%s: target is required", tp)
		}
		if err := validateCoefficient(tp, &t.CoefficientSpec); err != nil {
			return err
		}
	}
	if c.Release != nil {
		r := c.Release
		if !validReleaseTypes[r.Type] {
			return errors.Errorf("%s.release: unknown type %q; valid: list, fixed_rate, lifetime", prefix, r.Type)
		}
		if r.Type == "lifetime" && r.Distribution == nil {
			return errors.Errorf("%s.release: lifetime release requires a distribution", prefix)
		}
	}
	return nil
}

func validateCoefficient(prefix string, c *CoefficientSpec) error {
	set := 0
	if c.Value != nil {
		set++
		if err := validateFinite(prefix+".value", *c.Value); err != nil {
			return err
		}
	}
	if c.Distribution != nil {
		set++
	}
	if len(c.Sample) > 0 {
		set++
	}
	if c.Aggregate != nil {
		set++
		if len(c.Aggregate.Parts) == 0 {
			return errors.Errorf("%s.aggregate: at least one part required", prefix)
		}
		for i := range c.Aggregate.Parts {
			if err := validateCoefficient(fmt.Sprintf("%s.aggregate.parts[%d]", prefix, i), &c.Aggregate.Parts[i]); err != nil {
				return err
			}
		}
	}
	if len(c.PerPeriodDistributions) > 0 {
		set++
	}
	if len(c.PerPeriodValues) > 0 {
		set++
	}
	if set != 1 {
		return errors.Errorf("%s: exactly one of value, distribution, sample, aggregate, per_period_distributions, per_period_values required (got %d)", prefix, set)
	}
	return nil
}

func validatePeriodInflow(prefix string, p *PeriodInflowSpec) error {
	set := 0
	if p.Value != nil {
		set++
		if err := validateFinite(prefix+".value", *p.Value); err != nil {
			return err
		}
	}
	if p.Distribution != nil {
		set++
	}
	if len(p.Sample) > 0 {
		set++
	}
	if set != 1 {
		return errors.Errorf("%s: exactly one of value, distribution, sample required (got %d)", prefix, set)
	}
	return nil
}

func validateInflow(in *InflowSpec, idx int) error {
	prefix := fmt.Sprintf("inflows[%d]", idx)
	if in.Target == "" {
		return errors.Errorf("%s: target is required", prefix)
	}
	if !validInflowTypes[in.Type] {
		return errors.Errorf("%s: unknown type %q; valid: list, function", prefix, in.Type)
	}
	if in.StartDelay < 0 {
		return errors.Errorf("%s: start_delay must be non-negative, got %d", prefix, in.StartDelay)
	}
	if in.Type == "function" {
		if in.Base == nil {
			return errors.Errorf("%s: function inflow requires a base", prefix)
		}
		if len(in.Periods) > 0 {
			return errors.Errorf("%s: function inflow does not take periods", prefix)
		}
		if in.Growth != nil && !validGrowthTypes[in.Growth.Type] {
			return errors.Errorf("%s.growth: unknown type %q; valid: constant, linear, exponential", prefix, in.Growth.Type)
		}
		return validatePeriodInflow(prefix+".base", in.Base)
	}
	if len(in.Periods) == 0 {
		return errors.Errorf("%s: list inflow requires at least one period", prefix)
	}
	if in.Base != nil || in.Growth != nil {
		return errors.Errorf("%s: base and growth only apply to function inflows", prefix)
	}
	for i := range in.Periods {
		if err := validatePeriodInflow(fmt.Sprintf("%s.periods[%d]", prefix, i), &in.Periods[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateFinite(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return errors.Errorf("%s must be a finite number, got %f", name, val)
	}
	return nil
}
