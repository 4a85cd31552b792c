package sim

import (
	"fmt"
	"math/rand"

	"github.com/isr-ifi/dpmfa/sim/distribution"
)

// DefaultPriority is the priority of transfers built without an explicit one.
const DefaultPriority = 1

// Coefficient produces the transfer coefficients (TCs) of one transfer for a
// single Monte-Carlo run.
type Coefficient interface {
	// Draw returns one TC per period. Constant-over-time sources repeat a
	// single draw.
	Draw(rng *rand.Rand, periods int) []float64
	fmt.Stringer
}

// periodChecker is implemented by coefficients whose validity depends on the
// simulated horizon.
type periodChecker interface {
	checkPeriods(periods int) error
}

// Transfer moves a share of the material in one compartment to a target
// compartment. Priority expresses the credibility of the TC: when outgoing
// TCs are adjusted, lower priorities are rescaled first.
type Transfer struct {
	Target      string
	Priority    int
	Coefficient Coefficient
}

func (t Transfer) String() string {
	return fmt.Sprintf("%s (priority: %d)", t.Coefficient, t.Priority)
}

// ConstTransfer is a transfer with a deterministic TC.
func ConstTransfer(value float64, target string, priority int) Transfer {
	return Transfer{Target: target, Priority: priority, Coefficient: ConstantTC(value)}
}

// StochasticTransfer draws its TC once per run from a distribution.
func StochasticTransfer(s distribution.Sampler, target string, priority int) Transfer {
	return Transfer{Target: target, Priority: priority, Coefficient: StochasticTC{Sampler: s}}
}

// RandomChoiceTransfer picks its TC once per run from a given sample.
func RandomChoiceTransfer(sample []float64, target string, priority int) Transfer {
	return Transfer{Target: target, Priority: priority, Coefficient: RandomChoiceTC(sample)}
}

// AggregatedTransfer combines several TC sources; each run picks one with
// probability proportional to its weight. Nil weights mean equal weights.
func AggregatedTransfer(parts []Coefficient, weights []float64, target string, priority int) Transfer {
	return Transfer{Target: target, Priority: priority, Coefficient: AggregatedTC{Parts: parts, Weights: weights}}
}

// TimeDependentDistributionTransfer draws a separate TC for every period.
func TimeDependentDistributionTransfer(perPeriod []distribution.Sampler, target string, priority int) Transfer {
	return Transfer{Target: target, Priority: priority, Coefficient: TimeDependentDistributionTC(perPeriod)}
}

// TimeDependentListTransfer uses a fixed TC for every period.
func TimeDependentListTransfer(perPeriod []float64, target string, priority int) Transfer {
	return Transfer{Target: target, Priority: priority, Coefficient: TimeDependentListTC(perPeriod)}
}

// ConstantTC is a deterministic coefficient.
type ConstantTC float64

func (c ConstantTC) Draw(_ *rand.Rand, periods int) []float64 {
	return repeat(float64(c), periods)
}

func (c ConstantTC) String() string { return fmt.Sprintf("ConstTransfer (value: %g)", float64(c)) }

// StochasticTC draws a coefficient from a probability distribution.
type StochasticTC struct {
	Sampler distribution.Sampler
}

func (c StochasticTC) Draw(rng *rand.Rand, periods int) []float64 {
	return repeat(c.Sampler.Sample(rng), periods)
}

func (c StochasticTC) String() string {
	return fmt.Sprintf("StochasticTransfer (function: %v)", c.Sampler)
}

// RandomChoiceTC draws a coefficient uniformly from a sample.
type RandomChoiceTC []float64

func (c RandomChoiceTC) Draw(rng *rand.Rand, periods int) []float64 {
	if len(c) == 0 {
		return repeat(0, periods)
	}
	return repeat(c[rng.Intn(len(c))], periods)
}

func (c RandomChoiceTC) String() string {
	return fmt.Sprintf("RandomChoiceTransfer (sample length: %d)", len(c))
}

func (c RandomChoiceTC) checkPeriods(int) error {
	if len(c) == 0 {
		return fmt.Errorf("random choice transfer has an empty sample")
	}
	return nil
}

// AggregatedTC selects one of several coefficient sources per run.
type AggregatedTC struct {
	Parts   []Coefficient
	Weights []float64
}

func (c AggregatedTC) weights() []float64 {
	if c.Weights != nil {
		return c.Weights
	}
	return repeat(1, len(c.Parts))
}

func (c AggregatedTC) Draw(rng *rand.Rand, periods int) []float64 {
	w := c.weights()
	total := 0.0
	for _, v := range w {
		total += v
	}
	u := rng.Float64() * total
	idx := 0
	cum := 0.0
	for i, v := range w {
		cum += v
		if cum > u {
			idx = i
			break
		}
		idx = i
	}
	return c.Parts[idx].Draw(rng, periods)
}

func (c AggregatedTC) String() string {
	return fmt.Sprintf("AggregatedTransfer (parts: %d)", len(c.Parts))
}

func (c AggregatedTC) checkPeriods(periods int) error {
	if len(c.Parts) == 0 {
		return fmt.Errorf("aggregated transfer has no parts")
	}
	w := c.weights()
	if len(w) != len(c.Parts) {
		return fmt.Errorf("aggregated transfer has %d parts but %d weights", len(c.Parts), len(w))
	}
	total := 0.0
	for i, v := range w {
		if v < 0 {
			return fmt.Errorf("aggregated transfer weight %d is negative (%g)", i, v)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("aggregated transfer weights sum to %g, want > 0", total)
	}
	for i, p := range c.Parts {
		if pc, ok := p.(periodChecker); ok {
			if err := pc.checkPeriods(periods); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
		}
	}
	return nil
}

// TimeDependentDistributionTC holds one distribution per period.
type TimeDependentDistributionTC []distribution.Sampler

func (c TimeDependentDistributionTC) Draw(rng *rand.Rand, periods int) []float64 {
	out := make([]float64, periods)
	for p := 0; p < periods && p < len(c); p++ {
		out[p] = c[p].Sample(rng)
	}
	return out
}

func (c TimeDependentDistributionTC) String() string {
	return fmt.Sprintf("TimeDependentDistributionTransfer (list length: %d)", len(c))
}

func (c TimeDependentDistributionTC) checkPeriods(periods int) error {
	if len(c) < periods {
		return fmt.Errorf("time-dependent transfer defines %d periods, simulation needs %d", len(c), periods)
	}
	return nil
}

// TimeDependentListTC holds one fixed coefficient per period.
type TimeDependentListTC []float64

func (c TimeDependentListTC) Draw(_ *rand.Rand, periods int) []float64 {
	out := make([]float64, periods)
	copy(out, c)
	return out
}

func (c TimeDependentListTC) String() string {
	return fmt.Sprintf("TimeDependentListTransfer (list length: %d)", len(c))
}

func (c TimeDependentListTC) checkPeriods(periods int) error {
	if len(c) < periods {
		return fmt.Errorf("time-dependent transfer defines %d periods, simulation needs %d", len(c), periods)
	}
	return nil
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
