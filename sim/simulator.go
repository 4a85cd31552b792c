package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Config groups the experiment parameters of a Simulator.
type Config struct {
	Runs    int   // Monte-Carlo runs
	Periods int   // simulated periods per run
	Seed    int64 // master seed; every run derives its own stream

	// UseGlobalTCSettings makes NormalizeTCs decide TC adjustment for every
	// compartment instead of each compartment's AdjustOutgoingTCs flag.
	UseGlobalTCSettings bool
	NormalizeTCs        bool

	Workers int // concurrent runs; 0 means GOMAXPROCS
}

// NewConfig returns a Config that normalizes TCs per compartment setting.
func NewConfig(runs, periods int, seed int64) Config {
	return Config{Runs: runs, Periods: periods, Seed: seed, NormalizeTCs: true}
}

// Simulator runs a Model many times and records the resulting flows.
type Simulator struct {
	cfg   Config
	model *Model
	index map[string]int
}

// NewSimulator creates a Simulator.
func NewSimulator(cfg Config) (*Simulator, error) {
	if cfg.Runs <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", cfg.Runs)
	}
	if cfg.Periods <= 0 {
		return nil, fmt.Errorf("periods must be positive, got %d", cfg.Periods)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must be non-negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Model returns the model to be simulated, nil before SetModel.
func (s *Simulator) Model() *Model { return s.model }

// SetModel validates and assigns the model to simulate.
func (s *Simulator) SetModel(m *Model) error {
	if m == nil {
		return fmt.Errorf("nil model")
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid model %q: %w", m.Name, err)
	}
	if err := m.checkPeriods(s.cfg.Periods); err != nil {
		return fmt.Errorf("invalid model %q: %w", m.Name, err)
	}
	s.model = m
	s.index = make(map[string]int, len(m.Compartments))
	for i, c := range m.Compartments {
		s.index[c.Name] = i
	}
	return nil
}

// Describe logs the simulator settings and the model summary.
func (s *Simulator) Describe() {
	logrus.Info("-----------------------")
	logrus.Infof("Simulator: runs=%d periods=%d seed=%d workers=%d", s.cfg.Runs, s.cfg.Periods, s.cfg.Seed, s.cfg.Workers)
	logrus.Infof("TC settings: global=%t normalize=%t", s.cfg.UseGlobalTCSettings, s.cfg.NormalizeTCs)
	if s.model == nil {
		logrus.Info("no model assigned")
		return
	}
	var sinks, stocks, flows int
	for _, c := range s.model.Compartments {
		switch c.Kind {
		case KindSink:
			sinks++
		case KindStock:
			stocks++
		default:
			flows++
		}
	}
	logrus.Infof("Model %q: %d flow compartments, %d stocks, %d sinks, %d inflows",
		s.model.Name, flows, stocks, sinks, len(s.model.Inflows))
	logrus.Info("-----------------------")
}

// adjusts reports whether the outgoing TCs of c are normalized.
func (s *Simulator) adjusts(c *Compartment) bool {
	if !c.HasTransfers() {
		return false
	}
	if s.cfg.UseGlobalTCSettings {
		return s.cfg.NormalizeTCs
	}
	return c.AdjustOutgoingTCs
}

// Run executes all Monte-Carlo runs and returns the recorded flows.
// Runs are independent and execute concurrently; results do not depend on
// the number of workers.
func (s *Simulator) Run(ctx context.Context) (*Results, error) {
	if s.model == nil {
		return nil, fmt.Errorf("no model assigned to simulator")
	}
	bytes := checkFootprint(s.model, s.cfg.Runs, s.cfg.Periods)
	logrus.Infof("Simulating %q: %d runs x %d periods (%d KiB of results)",
		s.model.Name, s.cfg.Runs, s.cfg.Periods, bytes>>10)

	res := newResults(s.model, s.cfg.Runs, s.cfg.Periods)
	streams := NewPartitionedRNG(NewSimulationKey(s.cfg.Seed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for run := 0; run < s.cfg.Runs; run++ {
		g.Go(func() error {
			rng := streams.ForSubsystem(SubsystemRun(run))
			if err := s.runOne(gctx, rng, run, res); err != nil {
				return fmt.Errorf("run %d: %w", run, err)
			}
			logrus.Debugf("run %d complete", run)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logrus.Info("Simulation complete.")
	return res, nil
}

// runOne simulates all periods of one run, writing only row `run` of every
// result matrix.
func (s *Simulator) runOne(ctx context.Context, rng *rand.Rand, run int, res *Results) error {
	comps := s.model.Compartments
	n := len(comps)
	periods := s.cfg.Periods

	inflows := make([][]float64, len(s.model.Inflows))
	for i, in := range s.model.Inflows {
		inflows[i] = in.Draw(rng, periods)
	}

	// tcSeries[c][t][p] is the raw TC of transfer t of compartment c in period p.
	tcSeries := make([][][]float64, n)
	priorities := make([][]int, n)
	for ci, c := range comps {
		tcSeries[ci] = make([][]float64, len(c.Transfers))
		priorities[ci] = make([]int, len(c.Transfers))
		for ti, t := range c.Transfers {
			series := t.Coefficient.Draw(rng, periods)
			for p, v := range series {
				if v < 0 || math.IsNaN(v) {
					series[p] = 0
				}
			}
			tcSeries[ci][ti] = series
			priorities[ci][ti] = t.Priority
		}
	}

	tcs := make([][]float64, n)
	for ci := range comps {
		tcs[ci] = make([]float64, len(comps[ci].Transfers))
	}

	for p := 0; p < periods; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for ci, c := range comps {
			for ti := range c.Transfers {
				tcs[ci][ti] = tcSeries[ci][ti][p]
			}
			if s.adjusts(c) && !AdjustTCs(tcs[ci], priorities[ci]) {
				logrus.Debugf("run %d period %d: outgoing TCs of %q sum to %g after adjustment",
					run, p, c.Name, sumOf(tcs[ci]))
			}
			if inv, ok := res.inventories[c.Name]; ok && p > 0 {
				inv[run][p] = inv[run][p-1]
			}
		}

		b := make([]float64, n)
		for i, in := range s.model.Inflows {
			b[s.index[in.Target()]] += inflows[i][p]
		}
		for ci, c := range comps {
			if c.Kind != KindStock {
				continue
			}
			released := res.releases[c.Name][run][p]
			res.inventories[c.Name][run][p] -= released
			for ti, t := range c.Transfers {
				amt := tcs[ci][ti] * released
				b[s.index[t.Target]] += amt
				if out, ok := res.outflows[c.Name]; ok {
					out[t.Target][run][p] = amt
				}
			}
		}

		x, err := s.solvePeriod(tcs, b)
		if err != nil {
			return fmt.Errorf("period %d: %w", p, err)
		}

		for ci, c := range comps {
			amt := x[ci]
			if in, ok := res.inflows[c.Name]; ok {
				in[run][p] = amt
			}
			switch c.Kind {
			case KindFlow:
				if out, ok := res.outflows[c.Name]; ok {
					for ti, t := range c.Transfers {
						out[t.Target][run][p] = tcs[ci][ti] * amt
					}
				}
			case KindSink:
				res.inventories[c.Name][run][p] += amt
			case KindStock:
				imm := c.Release.ImmediateRate()
				out := res.outflows[c.Name]
				immediate := res.immediate[c.Name]
				for ti, t := range c.Transfers {
					flow := tcs[ci][ti] * amt * imm
					if out != nil {
						out[t.Target][run][p] += flow
					}
					if immediate != nil {
						immediate[t.Target][run][p] = flow
					}
				}
				res.inventories[c.Name][run][p] += amt * (1 - imm)
				c.Release.schedule(res.releases[c.Name][run], p, amt)
			}
		}
	}
	return nil
}

// solvePeriod computes the total inflow of every compartment in one period
// from the external input b, solving x = b + A x where A[target][source]
// holds the share of source's inflow passed on to target within the period.
func (s *Simulator) solvePeriod(tcs [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	for ci, c := range s.model.Compartments {
		share := 1.0
		switch c.Kind {
		case KindSink:
			continue
		case KindStock:
			share = c.Release.ImmediateRate()
		}
		for ti, t := range c.Transfers {
			target := s.index[t.Target]
			m.Set(target, ci, m.At(target, ci)-tcs[ci][ti]*share)
		}
	}

	var x mat.VecDense
	if err := x.SolveVec(m, mat.NewVecDense(n, b)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("mass balance has no unique solution (material trapped in a closed cycle?): %w", err)
		}
		logrus.Warnf("mass balance is ill-conditioned (condition number %g)", float64(cond))
	}
	return x.RawVector().Data, nil
}
