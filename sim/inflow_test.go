package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/isr-ifi/dpmfa/sim/distribution"
)

func TestExternalListInflow_DelayAndEnd(t *testing.T) {
	in := ExternalListInflow("A", []PeriodInflow{FixedValueInflow(10), FixedValueInflow(20)}, WithStartDelay(1))

	got := in.Draw(rand.New(rand.NewSource(1)), 4)

	assert.Equal(t, []float64{0, 10, 20, 0}, got)
	assert.Equal(t, "A", in.Target())
}

func TestExternalListInflow_NegativeValuesClamped(t *testing.T) {
	in := ExternalListInflow("A", []PeriodInflow{FixedValueInflow(-5), FixedValueInflow(5)})

	assert.Equal(t, []float64{0, 5}, in.Draw(rand.New(rand.NewSource(1)), 2))
}

func TestExternalListInflow_DerivationScalesAllPeriods(t *testing.T) {
	in := ExternalListInflow("A", []PeriodInflow{FixedValueInflow(10), FixedValueInflow(20)},
		WithDerivation(distribution.Constant(1.5)))

	assert.Equal(t, []float64{15, 30}, in.Draw(rand.New(rand.NewSource(1)), 2))
}

func TestExternalFunctionInflow_DefaultKeepsBase(t *testing.T) {
	in := ExternalFunctionInflow("A", FixedValueInflow(7), nil, WithStartDelay(2))

	assert.Equal(t, []float64{0, 0, 7, 7}, in.Draw(rand.New(rand.NewSource(1)), 4))
}

func TestExternalFunctionInflow_GrowthFunction(t *testing.T) {
	linear := func(base float64, k int) float64 { return base + 10*float64(k) }
	in := ExternalFunctionInflow("A", FixedValueInflow(100), linear)

	assert.Equal(t, []float64{100, 110, 120}, in.Draw(rand.New(rand.NewSource(1)), 3))
}

func TestRandomChoiceInflow_PicksFromSample(t *testing.T) {
	in := RandomChoiceInflow{3, 4}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		assert.Contains(t, []float64{3, 4}, in.Draw(rng))
	}
	assert.Equal(t, 0.0, RandomChoiceInflow{}.Draw(rng))
}
