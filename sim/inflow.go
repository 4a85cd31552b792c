package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/isr-ifi/dpmfa/sim/distribution"
)

// PeriodInflow is the uncertain amount entering the system in one period.
type PeriodInflow interface {
	// Draw returns the amount for one run.
	Draw(rng *rand.Rand) float64
	fmt.Stringer
}

// FixedValueInflow is a known amount.
type FixedValueInflow float64

func (v FixedValueInflow) Draw(_ *rand.Rand) float64 { return float64(v) }

func (v FixedValueInflow) String() string { return fmt.Sprintf("fixed(%g)", float64(v)) }

// StochasticInflow draws the amount from a probability distribution.
type StochasticInflow struct {
	Sampler distribution.Sampler
}

func (s StochasticInflow) Draw(rng *rand.Rand) float64 { return s.Sampler.Sample(rng) }

func (s StochasticInflow) String() string { return fmt.Sprintf("stochastic(%v)", s.Sampler) }

// RandomChoiceInflow draws the amount uniformly from a sample of plausible
// values.
type RandomChoiceInflow []float64

func (s RandomChoiceInflow) Draw(rng *rand.Rand) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[rng.Intn(len(s))]
}

func (s RandomChoiceInflow) String() string { return fmt.Sprintf("random choice(n=%d)", len(s)) }

// ExternalInflow is a source feeding material into a model compartment.
type ExternalInflow interface {
	// Target is the name of the receiving compartment.
	Target() string
	// Draw returns the inflow of every period for one run. Values are >= 0.
	Draw(rng *rand.Rand, periods int) []float64
	fmt.Stringer
}

// inflowBase holds what list and function inflows share: a target, a start
// delay and an optional per-run derivation factor that scales every period.
type inflowBase struct {
	target     string
	derivation distribution.Sampler
	startDelay int
}

func (b inflowBase) Target() string { return b.target }

func (b inflowBase) factor(rng *rand.Rand) float64 {
	if b.derivation == nil {
		return 1
	}
	return b.derivation.Sample(rng)
}

// InflowOption configures an external inflow.
type InflowOption func(*inflowBase)

// WithDerivation scales all periods of a run by one factor drawn from s.
func WithDerivation(s distribution.Sampler) InflowOption {
	return func(b *inflowBase) { b.derivation = s }
}

// WithStartDelay shifts the first inflow period.
func WithStartDelay(periods int) InflowOption {
	return func(b *inflowBase) { b.startDelay = periods }
}

// ListInflow supplies one PeriodInflow per period.
type ListInflow struct {
	inflowBase
	Periods []PeriodInflow
}

// ExternalListInflow builds a source from a per-period list of inflows.
func ExternalListInflow(target string, periods []PeriodInflow, opts ...InflowOption) *ListInflow {
	in := &ListInflow{inflowBase: inflowBase{target: target}, Periods: periods}
	for _, opt := range opts {
		opt(&in.inflowBase)
	}
	return in
}

func (in *ListInflow) Draw(rng *rand.Rand, periods int) []float64 {
	values := make([]float64, len(in.Periods))
	for i, p := range in.Periods {
		values[i] = p.Draw(rng)
	}
	f := in.factor(rng)

	out := make([]float64, periods)
	for p := range out {
		i := p - in.startDelay
		if i < 0 || i >= len(values) {
			continue
		}
		out[p] = math.Max(values[i]*f, 0)
	}
	return out
}

func (in *ListInflow) String() string {
	return fmt.Sprintf("ExternalListInflow (periods: %d, delay: %d)", len(in.Periods), in.startDelay)
}

// InflowFunction computes a period's inflow from the run's base value and
// the number of periods since the inflow started.
type InflowFunction func(base float64, period int) float64

// ConstantInflowFunction repeats the base value in every period.
func ConstantInflowFunction(base float64, _ int) float64 { return base }

// FunctionInflow derives every period from one uncertain base value.
type FunctionInflow struct {
	inflowBase
	Basic    PeriodInflow
	Function InflowFunction
}

// ExternalFunctionInflow builds a source whose inflow follows fn. A nil fn
// keeps the base value constant.
func ExternalFunctionInflow(target string, basic PeriodInflow, fn InflowFunction, opts ...InflowOption) *FunctionInflow {
	if fn == nil {
		fn = ConstantInflowFunction
	}
	in := &FunctionInflow{inflowBase: inflowBase{target: target}, Basic: basic, Function: fn}
	for _, opt := range opts {
		opt(&in.inflowBase)
	}
	return in
}

func (in *FunctionInflow) Draw(rng *rand.Rand, periods int) []float64 {
	base := in.Basic.Draw(rng)
	f := in.factor(rng)

	out := make([]float64, periods)
	for p := range out {
		k := p - in.startDelay
		if k < 0 {
			continue
		}
		out[p] = math.Max(in.Function(base, k)*f, 0)
	}
	return out
}

func (in *FunctionInflow) String() string {
	return fmt.Sprintf("ExternalFunctionInflow (base: %v, delay: %d)", in.Basic, in.startDelay)
}
