package modelfile

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/isr-ifi/dpmfa/sim"
	"github.com/isr-ifi/dpmfa/sim/distribution"
)

// Build converts the definition into a simulation model and validates it.
func (s *ModelSpec) Build() (*sim.Model, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m := sim.NewModel(s.Name)

	for i := range s.Compartments {
		c, err := buildCompartment(&s.Compartments[i])
		if err != nil {
			return nil, err
		}
		if err := m.AddCompartment(c); err != nil {
			return nil, errors.Wrap(err, "adding compartment")
		}
	}
	for i := range s.Inflows {
		in, err := buildInflow(&s.Inflows[i])
		if err != nil {
			return nil, errors.Wrapf(err, "inflows[%d]", i)
		}
		m.AddInflow(in)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model %q", s.Name)
	}
	return m, nil
}

func buildCompartment(cs *CompartmentSpec) (*sim.Compartment, error) {
	var opts []sim.CompartmentOption
	if cs.LogInflows {
		opts = append(opts, sim.WithLogInflows())
	}
	if cs.LogOutflows {
		opts = append(opts, sim.WithLogOutflows())
	}
	if cs.LogImmediateFlows {
		opts = append(opts, sim.WithLogImmediateFlows())
	}
	if len(cs.Categories) > 0 {
		opts = append(opts, sim.WithCategories(cs.Categories...))
	}
	if cs.AdjustOutgoingTCs != nil && !*cs.AdjustOutgoingTCs {
		opts = append(opts, sim.WithoutTCAdjustment())
	}

	transfers := make([]sim.Transfer, 0, len(cs.Transfers))
	for i := range cs.Transfers {
		ts := &cs.Transfers[i]
		coef, err := buildCoefficient(&ts.CoefficientSpec)
		if err != nil {
			return nil, errors.Wrapf(err, "compartment %q: transfer to %q", cs.Name, ts.Target)
		}
		priority := sim.DefaultPriority
		if ts.Priority != nil {
			priority = *ts.Priority
		}
		transfers = append(transfers, sim.Transfer{Target: ts.Target, Priority: priority, Coefficient: coef})
	}
	if len(transfers) > 0 {
		opts = append(opts, sim.WithTransfers(transfers...))
	}

	if cs.Release != nil {
		r, err := buildRelease(cs.Release)
		if err != nil {
			return nil, errors.Wrapf(err, "compartment %q: release", cs.Name)
		}
		opts = append(opts, sim.WithRelease(r))
	}

	switch cs.Kind {
	case "flow":
		return sim.NewFlowCompartment(cs.Name, opts...), nil
	case "sink":
		return sim.NewSink(cs.Name, opts...), nil
	case "stock":
		return sim.NewStock(cs.Name, opts...), nil
	}
	return nil, errors.Errorf("compartment %q: unknown kind %q", cs.Name, cs.Kind)
}

func buildCoefficient(c *CoefficientSpec) (sim.Coefficient, error) {
	switch {
	case c.Value != nil:
		return sim.ConstantTC(*c.Value), nil
	case c.Distribution != nil:
		s, err := distribution.NewSampler(*c.Distribution)
		if err != nil {
			return nil, err
		}
		return sim.StochasticTC{Sampler: s}, nil
	case len(c.Sample) > 0:
		return sim.RandomChoiceTC(c.Sample), nil
	case c.Aggregate != nil:
		parts := make([]sim.Coefficient, len(c.Aggregate.Parts))
		for i := range c.Aggregate.Parts {
			p, err := buildCoefficient(&c.Aggregate.Parts[i])
			if err != nil {
				return nil, errors.Wrapf(err, "aggregate part %d", i)
			}
			parts[i] = p
		}
		return sim.AggregatedTC{Parts: parts, Weights: c.Aggregate.Weights}, nil
	case len(c.PerPeriodDistributions) > 0:
		samplers := make([]distribution.Sampler, len(c.PerPeriodDistributions))
		for i, ds := range c.PerPeriodDistributions {
			s, err := distribution.NewSampler(ds)
			if err != nil {
				return nil, errors.Wrapf(err, "period %d", i)
			}
			samplers[i] = s
		}
		return sim.TimeDependentDistributionTC(samplers), nil
	case len(c.PerPeriodValues) > 0:
		return sim.TimeDependentListTC(c.PerPeriodValues), nil
	}
	return nil, errors.New("no coefficient source")
}

func buildRelease(rs *ReleaseSpec) (*sim.Release, error) {
	switch rs.Type {
	case "list":
		return sim.ListRelease(rs.Rates, rs.Delay)
	case "fixed_rate":
		return sim.FixedRateRelease(rs.Rate, rs.Delay)
	case "lifetime":
		cdf, err := distribution.NewCDF(*rs.Distribution)
		if err != nil {
			return nil, err
		}
		return sim.FunctionRelease(func(k int) float64 {
			return math.Max(cdf.CDF(float64(k+1))-cdf.CDF(float64(k)), 0)
		}, rs.Delay)
	}
	return nil, errors.Errorf("unknown release type %q", rs.Type)
}

func buildPeriodInflow(p *PeriodInflowSpec) (sim.PeriodInflow, error) {
	switch {
	case p.Value != nil:
		return sim.FixedValueInflow(*p.Value), nil
	case p.Distribution != nil:
		s, err := distribution.NewSampler(*p.Distribution)
		if err != nil {
			return nil, err
		}
		return sim.StochasticInflow{Sampler: s}, nil
	case len(p.Sample) > 0:
		return sim.RandomChoiceInflow(p.Sample), nil
	}
	return nil, errors.New("no inflow source")
}

func buildInflow(in *InflowSpec) (sim.ExternalInflow, error) {
	var opts []sim.InflowOption
	if in.Derivation != nil {
		s, err := distribution.NewSampler(*in.Derivation)
		if err != nil {
			return nil, errors.Wrap(err, "derivation")
		}
		opts = append(opts, sim.WithDerivation(s))
	}
	if in.StartDelay > 0 {
		opts = append(opts, sim.WithStartDelay(in.StartDelay))
	}

	if in.Type == "function" {
		base, err := buildPeriodInflow(in.Base)
		if err != nil {
			return nil, errors.Wrap(err, "base")
		}
		return sim.ExternalFunctionInflow(in.Target, base, growthFunction(in.Growth), opts...), nil
	}

	periods := make([]sim.PeriodInflow, len(in.Periods))
	for i := range in.Periods {
		p, err := buildPeriodInflow(&in.Periods[i])
		if err != nil {
			return nil, errors.Wrapf(err, "period %d", i)
		}
		periods[i] = p
	}
	return sim.ExternalListInflow(in.Target, periods, opts...), nil
}

// growthFunction maps a growth spec to an inflow function. nil keeps the base constant.
func growthFunction(g *GrowthSpec) sim.InflowFunction {
	if g == nil {
		return nil
	}
	switch g.Type {
	case "linear":
		slope := g.Slope
		return func(base float64, k int) float64 { return base + slope*float64(k) }
	case "exponential":
		rate := g.Rate
		return func(base float64, k int) float64 { return base * math.Pow(1+rate, float64(k)) }
	}
	return nil
}

// String summarizes the definition for log output.
func (s *ModelSpec) String() string {
	return fmt.Sprintf("%s (version %s, %d compartments, %d inflows, fingerprint %s)",
		s.Name, s.Version, len(s.Compartments), len(s.Inflows), s.Fingerprint)
}
