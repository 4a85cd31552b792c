package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isr-ifi/dpmfa/sim/distribution"
)

func mustTriangular(t *testing.T, min, mode, max float64) distribution.Sampler {
	t.Helper()
	s, err := distribution.Triangular(min, mode, max)
	require.NoError(t, err)
	return s
}

func mustListRelease(t *testing.T, rates []float64, delay int) *Release {
	t.Helper()
	r, err := ListRelease(rates, delay)
	require.NoError(t, err)
	return r
}

// newTestModel mirrors the example experiment: two inflows, one stock fed
// directly and through an intermediate flow compartment, three sinks.
func newTestModel(t *testing.T) *Model {
	t.Helper()
	inflow1 := NewFlowCompartment("Inflow1", WithLogInflows(), WithLogOutflows())
	inflow2 := NewFlowCompartment("Inflow2", WithLogInflows(), WithLogOutflows())
	stock1 := NewStock("Stock1", WithLogInflows(), WithLogOutflows(), WithLogImmediateFlows())
	flow1 := NewFlowCompartment("Flow1", WithLogInflows(), WithLogOutflows())
	sink1 := NewSink("Sink1", WithLogInflows(), WithCategories("sinks"))
	sink2 := NewSink("Sink2", WithLogInflows(), WithCategories("sinks"))
	sink3 := NewSink("Sink3", WithLogInflows(), WithCategories("sinks", "road"))

	m := NewModel("Simple Experiment for Testing")
	require.NoError(t, m.SetCompartments([]*Compartment{inflow1, inflow2, stock1, flow1, sink1, sink2, sink3}))

	raw1 := []float64{1000, 0, 0, 0, 0}
	raw2 := []float64{500, 500, 500, 500, 500}
	const cv = 0.5
	var p1, p2 []PeriodInflow
	for i := range raw1 {
		p1 = append(p1, StochasticInflow{Sampler: mustTriangular(t, raw1[i]*(1-cv), raw1[i], raw1[i]*(1+cv))})
		p2 = append(p2, StochasticInflow{Sampler: mustTriangular(t, raw2[i]*(1-cv), raw2[i], raw2[i]*(1+cv))})
	}
	m.AddInflow(ExternalListInflow("Inflow1", p1))
	m.AddInflow(ExternalListInflow("Inflow2", p2))

	inflow1.Transfers = []Transfer{
		StochasticTransfer(mustTriangular(t, 0.7, 0.8, 0.9), "Stock1", 2),
		ConstTransfer(1, "Flow1", 1),
	}
	inflow2.Transfers = []Transfer{
		StochasticTransfer(mustTriangular(t, 0.4, 0.6, 0.8), "Flow1", 2),
		ConstTransfer(1, "Sink3", 1),
	}
	flow1.Transfers = []Transfer{
		TimeDependentDistributionTransfer([]distribution.Sampler{
			mustTriangular(t, 0.05, 0.1, 0.15),
			mustTriangular(t, 0.07, 0.15, 0.23),
			mustTriangular(t, 0.1, 0.2, 0.3),
			mustTriangular(t, 0.2, 0.4, 0.6),
			mustTriangular(t, 0.25, 0.5, 0.75),
		}, "Stock1", 2),
		ConstTransfer(1, "Sink2", 1),
	}
	stock1.Release = mustListRelease(t, []float64{0.5, 0.2, 0.2, 0.1}, 0)
	stock1.Transfers = []Transfer{ConstTransfer(1, "Sink1", 1)}
	return m
}

func runModel(t *testing.T, m *Model, cfg Config) *Results {
	t.Helper()
	s, err := NewSimulator(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SetModel(m))
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	return res
}
