package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimulator_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero runs", Config{Runs: 0, Periods: 5}},
		{"zero periods", Config{Runs: 10, Periods: 0}},
		{"negative workers", Config{Runs: 10, Periods: 5, Workers: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimulator(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewSimulator_DefaultsWorkers(t *testing.T) {
	s, err := NewSimulator(NewConfig(1, 1, 1))
	require.NoError(t, err)
	assert.Positive(t, s.Config().Workers)
	assert.True(t, s.Config().NormalizeTCs)
}

func TestSimulator_Run_WithoutModel_Error(t *testing.T) {
	s, err := NewSimulator(NewConfig(1, 1, 1))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	assert.Error(t, err)
}

func TestSimulator_SplitFlow_DeterministicShares(t *testing.T) {
	// GIVEN a flow compartment splitting 30/70 into two sinks and a fixed inflow of 100
	m := NewModel("split")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewFlowCompartment("A", WithLogOutflows(), WithTransfers(
			ConstTransfer(0.3, "S1", 1),
			ConstTransfer(0.7, "S2", 1),
		)),
		NewSink("S1"),
		NewSink("S2"),
	}))
	m.AddInflow(ExternalListInflow("A", []PeriodInflow{FixedValueInflow(100), FixedValueInflow(100)}))

	// WHEN simulated for 2 periods
	res := runModel(t, m, NewConfig(3, 2, 7))

	// THEN sinks accumulate their share every period
	s1, _ := res.Inventory("S1")
	s2, _ := res.Inventory("S2")
	for run := 0; run < 3; run++ {
		assert.InDelta(t, 30, s1[run][0], 1e-9)
		assert.InDelta(t, 60, s1[run][1], 1e-9)
		assert.InDelta(t, 70, s2[run][0], 1e-9)
		assert.InDelta(t, 140, s2[run][1], 1e-9)
		assert.InDelta(t, 30, res.Outflows("A")["S1"][run][1], 1e-9)
	}
	assert.Equal(t, []string{"S1", "S2"}, res.Sinks())
	assert.Empty(t, res.Stocks())
}

func TestSimulator_Stock_ReleasesOverLaterPeriods(t *testing.T) {
	// GIVEN a stock releasing 50% immediately, then 30% and 20%
	m := NewModel("stock")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewStock("St", WithLogOutflows(), WithLogImmediateFlows(),
			WithTransfers(ConstTransfer(1, "S", 1)),
			WithRelease(mustListRelease(t, []float64{0.5, 0.3, 0.2}, 0))),
		NewSink("S", WithLogInflows()),
	}))
	m.AddInflow(ExternalListInflow("St", []PeriodInflow{FixedValueInflow(100)}))

	// WHEN 100 units enter in period 0
	res := runModel(t, m, NewConfig(1, 3, 1))

	// THEN the sink receives 50, 30, 20 and the stock drains to zero
	in, ok := res.Inflow("S")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{50, 30, 20}, in[0], 1e-9)

	stock, _ := res.Inventory("St")
	assert.InDeltaSlice(t, []float64{50, 20, 0}, stock[0], 1e-9)

	sink, _ := res.Inventory("S")
	assert.InDeltaSlice(t, []float64{50, 80, 100}, sink[0], 1e-9)

	assert.InDeltaSlice(t, []float64{50, 30, 20}, res.Outflows("St")["S"][0], 1e-9)
	assert.InDeltaSlice(t, []float64{50, 0, 0}, res.ImmediateFlows("St")["S"][0], 1e-9)

	released, _ := res.Releases("St")
	assert.InDeltaSlice(t, []float64{0, 30, 20}, released[0], 1e-9)
}

func TestSimulator_Stock_ReleaseBeyondHorizonStaysStored(t *testing.T) {
	m := NewModel("delayed")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewStock("St", WithTransfers(ConstTransfer(1, "S", 1)),
			WithRelease(mustListRelease(t, []float64{1}, 3))),
		NewSink("S"),
	}))
	m.AddInflow(ExternalListInflow("St", []PeriodInflow{FixedValueInflow(10)}))

	res := runModel(t, m, NewConfig(1, 2, 1))

	stock, _ := res.Inventory("St")
	sink, _ := res.Inventory("S")
	assert.InDeltaSlice(t, []float64{10, 10}, stock[0], 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0}, sink[0], 1e-9)
}

func TestSimulator_CycleBetweenFlowCompartments_Solved(t *testing.T) {
	// GIVEN A sends half to B and half to a sink, and B returns everything to A
	m := NewModel("cycle")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewFlowCompartment("A", WithLogInflows(), WithTransfers(
			ConstTransfer(0.5, "B", 1),
			ConstTransfer(0.5, "S", 1),
		)),
		NewFlowCompartment("B", WithTransfers(ConstTransfer(1, "A", 1))),
		NewSink("S"),
	}))
	m.AddInflow(ExternalListInflow("A", []PeriodInflow{FixedValueInflow(100)}))

	res := runModel(t, m, NewConfig(1, 1, 1))

	// THEN the steady state carries 200 through A and all 100 end in the sink
	a, _ := res.Inflow("A")
	s, _ := res.Inventory("S")
	assert.InDelta(t, 200, a[0][0], 1e-9)
	assert.InDelta(t, 100, s[0][0], 1e-9)
}

func TestSimulator_ClosedCycleWithoutExit_Error(t *testing.T) {
	m := NewModel("trap")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewFlowCompartment("A", WithTransfers(ConstTransfer(1, "B", 1))),
		NewFlowCompartment("B", WithTransfers(ConstTransfer(1, "A", 1))),
		NewSink("S"),
	}))
	m.AddInflow(ExternalListInflow("A", []PeriodInflow{FixedValueInflow(1)}))
	s, err := NewSimulator(NewConfig(1, 1, 1))
	require.NoError(t, err)
	require.NoError(t, s.SetModel(m))

	_, err = s.Run(context.Background())

	assert.Error(t, err)
}

func TestSimulator_GlobalTCSettings_DisableNormalization(t *testing.T) {
	// GIVEN TCs summing to 0.6 on a compartment that would normally adjust them
	build := func() *Model {
		m := NewModel("loss")
		require.NoError(t, m.SetCompartments([]*Compartment{
			NewFlowCompartment("A", WithTransfers(
				ConstTransfer(0.3, "S1", 1),
				ConstTransfer(0.3, "S2", 1),
			)),
			NewSink("S1"),
			NewSink("S2"),
		}))
		m.AddInflow(ExternalListInflow("A", []PeriodInflow{FixedValueInflow(100)}))
		return m
	}

	// WHEN global settings turn normalization off
	cfg := NewConfig(1, 1, 1)
	cfg.UseGlobalTCSettings = true
	cfg.NormalizeTCs = false
	raw := runModel(t, build(), cfg)

	// THEN only 60% arrives; with per-compartment settings everything arrives
	s1, _ := raw.Inventory("S1")
	assert.InDelta(t, 30, s1[0][0], 1e-9)

	normalized := runModel(t, build(), NewConfig(1, 1, 1))
	n1, _ := normalized.Inventory("S1")
	assert.InDelta(t, 50, n1[0][0], 1e-9)
}

func TestSimulator_CompartmentOptOut_KeepsRawTCs(t *testing.T) {
	m := NewModel("optout")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewFlowCompartment("A", WithoutTCAdjustment(), WithTransfers(ConstTransfer(0.25, "S", 1))),
		NewSink("S"),
	}))
	m.AddInflow(ExternalListInflow("A", []PeriodInflow{FixedValueInflow(100)}))

	res := runModel(t, m, NewConfig(1, 1, 1))

	s, _ := res.Inventory("S")
	assert.InDelta(t, 25, s[0][0], 1e-9)
}

func TestSimulator_ReferenceModel_ConservesMass(t *testing.T) {
	// GIVEN the example experiment with normalized TCs
	m := newTestModel(t)

	// WHEN simulated
	res := runModel(t, m, NewConfig(50, 5, 2250))

	// THEN everything that entered is in a sink or still in the stock
	in1, _ := res.Inflow("Inflow1")
	in2, _ := res.Inflow("Inflow2")
	last := res.Periods - 1
	for run := 0; run < res.Runs; run++ {
		entered := 0.0
		for p := 0; p < res.Periods; p++ {
			entered += in1[run][p] + in2[run][p]
		}
		held := 0.0
		for _, name := range []string{"Sink1", "Sink2", "Sink3", "Stock1"} {
			inv, ok := res.Inventory(name)
			require.True(t, ok, name)
			held += inv[run][last]
		}
		assert.InDelta(t, entered, held, 1e-6*entered, "run %d", run)
	}
}

func TestSimulator_ReferenceModel_InflowsWithinTriangularSupport(t *testing.T) {
	res := runModel(t, newTestModel(t), NewConfig(30, 5, 2250))

	in1, _ := res.Inflow("Inflow1")
	for run := 0; run < res.Runs; run++ {
		assert.GreaterOrEqual(t, in1[run][0], 500.0)
		assert.LessOrEqual(t, in1[run][0], 1500.0)
		for p := 1; p < res.Periods; p++ {
			assert.Equal(t, 0.0, in1[run][p])
		}
	}
}

func TestSimulator_SameSeed_IdenticalAcrossWorkerCounts(t *testing.T) {
	cfg1 := NewConfig(40, 5, 2250)
	cfg1.Workers = 1
	cfg8 := NewConfig(40, 5, 2250)
	cfg8.Workers = 8

	r1 := runModel(t, newTestModel(t), cfg1)
	r8 := runModel(t, newTestModel(t), cfg8)

	for _, name := range []string{"Sink1", "Sink2", "Sink3", "Stock1"} {
		a, _ := r1.Inventory(name)
		b, _ := r8.Inventory(name)
		assert.Equal(t, a, b, name)
	}
}

func TestSimulator_DifferentSeeds_DifferentResults(t *testing.T) {
	r1 := runModel(t, newTestModel(t), NewConfig(5, 5, 1))
	r2 := runModel(t, newTestModel(t), NewConfig(5, 5, 2))

	a, _ := r1.Inventory("Sink3")
	b, _ := r2.Inventory("Sink3")
	assert.NotEqual(t, a, b)
}

func TestSimulator_TimeDependentListTooShort_SetModelError(t *testing.T) {
	m := NewModel("short")
	require.NoError(t, m.SetCompartments([]*Compartment{
		NewFlowCompartment("A", WithTransfers(TimeDependentListTransfer([]float64{1, 1}, "S", 1))),
		NewSink("S"),
	}))
	m.AddInflow(ExternalListInflow("A", []PeriodInflow{FixedValueInflow(1)}))
	s, err := NewSimulator(NewConfig(1, 3, 1))
	require.NoError(t, err)

	assert.Error(t, s.SetModel(m))
}

func TestSimulator_CancelledContext_Error(t *testing.T) {
	s, err := NewSimulator(NewConfig(10, 5, 1))
	require.NoError(t, err)
	require.NoError(t, s.SetModel(newTestModel(t)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
