// Package distribution provides the probability distributions used to express
// uncertain inflows, transfer coefficients and derivation factors.
package distribution

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws a single value from a probability distribution.
type Sampler interface {
	// Sample returns one draw. All randomness comes from rng.
	Sample(rng *rand.Rand) float64
}

// Spec parameterizes a distribution.
type Spec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
	Values []float64          `yaml:"values,omitempty"` // empirical samples
}

func (s Spec) String() string {
	if s.Type == "empirical" {
		return fmt.Sprintf("empirical(n=%d)", len(s.Values))
	}
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, s.Params[k]))
	}
	return fmt.Sprintf("%s(%s)", s.Type, strings.Join(parts, ", "))
}

// quantiler is satisfied by every gonum distuv distribution we use.
type quantiler interface {
	Quantile(p float64) float64
}

// InverseCDFSampler draws by feeding a uniform variate to a quantile function.
// Using the caller's rng keeps runs reproducible independently of gonum's own
// random sources.
type InverseCDFSampler struct {
	dist quantiler
	desc string
}

func (s *InverseCDFSampler) Sample(rng *rand.Rand) float64 {
	u := rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64 // Quantile(0) is -Inf for unbounded supports
	}
	return s.dist.Quantile(u)
}

func (s *InverseCDFSampler) String() string { return s.desc }

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value float64
}

// Constant returns a sampler that always yields v.
func Constant(v float64) *ConstantSampler { return &ConstantSampler{value: v} }

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 { return s.value }

func (s *ConstantSampler) String() string { return fmt.Sprintf("constant(%g)", s.value) }

// EmpiricalSampler picks one of the given values uniformly at random.
type EmpiricalSampler struct {
	values []float64
}

// Empirical returns a sampler drawing uniformly from values.
func Empirical(values []float64) *EmpiricalSampler {
	cp := make([]float64, len(values))
	copy(cp, values)
	return &EmpiricalSampler{values: cp}
}

func (s *EmpiricalSampler) Sample(rng *rand.Rand) float64 {
	if len(s.values) == 0 {
		return 0
	}
	return s.values[rng.Intn(len(s.values))]
}

func (s *EmpiricalSampler) String() string { return fmt.Sprintf("empirical(n=%d)", len(s.values)) }

// Triangular returns a triangular distribution on [min, max] with the given mode.
// A degenerate range yields the mode.
func Triangular(min, mode, max float64) (Sampler, error) {
	if min > mode || mode > max {
		return nil, fmt.Errorf("triangular requires min <= mode <= max, got %g, %g, %g", min, mode, max)
	}
	if min == max {
		return Constant(mode), nil
	}
	return &InverseCDFSampler{
		dist: distuv.NewTriangle(min, max, mode, nil),
		desc: fmt.Sprintf("triangular(%g, %g, %g)", min, mode, max),
	}, nil
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

func requirePositive(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if params[k] <= 0 {
			return fmt.Errorf("parameter %q must be positive, got %g", k, params[k])
		}
	}
	return nil
}

// ValidTypes lists the accepted Spec.Type values.
var ValidTypes = []string{
	"constant", "uniform", "triangular", "normal", "lognormal",
	"beta", "gamma", "weibull", "exponential", "empirical",
}

// NewSampler creates a Sampler from a Spec.
func NewSampler(spec Spec) (Sampler, error) {
	for name, val := range spec.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("parameter %q must be a finite number, got %f", name, val)
		}
	}
	p := spec.Params
	desc := spec.String()

	switch spec.Type {
	case "constant":
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		return Constant(p["value"]), nil

	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] > p["max"] {
			return nil, fmt.Errorf("uniform requires min <= max, got %g > %g", p["min"], p["max"])
		}
		if p["min"] == p["max"] {
			return Constant(p["min"]), nil
		}
		return &InverseCDFSampler{dist: distuv.Uniform{Min: p["min"], Max: p["max"]}, desc: desc}, nil

	case "triangular":
		if err := requireParam(p, "min", "mode", "max"); err != nil {
			return nil, err
		}
		return Triangular(p["min"], p["mode"], p["max"])

	case "normal":
		if err := requireParam(p, "mean", "std_dev"); err != nil {
			return nil, err
		}
		if p["std_dev"] < 0 {
			return nil, fmt.Errorf("normal std_dev must be non-negative, got %g", p["std_dev"])
		}
		if p["std_dev"] == 0 {
			return Constant(p["mean"]), nil
		}
		return &InverseCDFSampler{dist: distuv.Normal{Mu: p["mean"], Sigma: p["std_dev"]}, desc: desc}, nil

	case "lognormal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "sigma"); err != nil {
			return nil, err
		}
		return &InverseCDFSampler{dist: distuv.LogNormal{Mu: p["mu"], Sigma: p["sigma"]}, desc: desc}, nil

	case "beta":
		if err := requireParam(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		return &InverseCDFSampler{dist: distuv.Beta{Alpha: p["alpha"], Beta: p["beta"]}, desc: desc}, nil

	case "gamma":
		if err := requireParam(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		return &InverseCDFSampler{dist: distuv.Gamma{Alpha: p["alpha"], Beta: p["beta"]}, desc: desc}, nil

	case "weibull":
		if err := requireParam(p, "k", "lambda"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "k", "lambda"); err != nil {
			return nil, err
		}
		return &InverseCDFSampler{dist: distuv.Weibull{K: p["k"], Lambda: p["lambda"]}, desc: desc}, nil

	case "exponential":
		if err := requireParam(p, "rate"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "rate"); err != nil {
			return nil, err
		}
		return &InverseCDFSampler{dist: distuv.Exponential{Rate: p["rate"]}, desc: desc}, nil

	case "empirical":
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("empirical distribution requires at least one value")
		}
		for i, v := range spec.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("empirical value %d must be a finite number, got %f", i, v)
			}
		}
		return Empirical(spec.Values), nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q; valid: %s", spec.Type, strings.Join(ValidTypes, ", "))
	}
}
