package distribution

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMean(t *testing.T, s Sampler, n int) (mean, lo, hi float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	lo, hi = math.Inf(1), math.Inf(-1)
	sum := 0.0
	for i := 0; i < n; i++ {
		v := s.Sample(rng)
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return sum / float64(n), lo, hi
}

func TestTriangularSampler_StaysInSupportAndMeanMatches(t *testing.T) {
	s, err := NewSampler(Spec{Type: "triangular", Params: map[string]float64{"min": 0.7, "mode": 0.8, "max": 0.9}})
	require.NoError(t, err)

	mean, lo, hi := sampleMean(t, s, 10000)

	assert.GreaterOrEqual(t, lo, 0.7)
	assert.LessOrEqual(t, hi, 0.9)
	assert.InDelta(t, 0.8, mean, 0.005)
}

func TestTriangularSampler_DegenerateRangeReturnsMode(t *testing.T) {
	s, err := Triangular(0, 0, 0)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		assert.Equal(t, 0.0, s.Sample(rng))
	}
}

func TestTriangularSampler_ModeOutsideRange_Error(t *testing.T) {
	_, err := Triangular(1, 3, 2)
	assert.Error(t, err)
}

func TestNormalSampler_MeanMatchesParam(t *testing.T) {
	s, err := NewSampler(Spec{Type: "normal", Params: map[string]float64{"mean": 500, "std_dev": 50}})
	require.NoError(t, err)

	mean, _, _ := sampleMean(t, s, 20000)

	if math.Abs(mean-500)/500 > 0.01 {
		t.Errorf("normal mean = %.2f, want ≈ 500 (within 1%%)", mean)
	}
}

func TestUniformSampler_StaysInRange(t *testing.T) {
	s, err := NewSampler(Spec{Type: "uniform", Params: map[string]float64{"min": 2, "max": 4}})
	require.NoError(t, err)

	mean, lo, hi := sampleMean(t, s, 10000)

	assert.GreaterOrEqual(t, lo, 2.0)
	assert.LessOrEqual(t, hi, 4.0)
	assert.InDelta(t, 3.0, mean, 0.05)
}

func TestExponentialSampler_MeanIsInverseRate(t *testing.T) {
	s, err := NewSampler(Spec{Type: "exponential", Params: map[string]float64{"rate": 0.5}})
	require.NoError(t, err)

	mean, lo, _ := sampleMean(t, s, 20000)

	assert.GreaterOrEqual(t, lo, 0.0)
	assert.InDelta(t, 2.0, mean, 0.1)
}

func TestEmpiricalSampler_OnlyReturnsGivenValues(t *testing.T) {
	s, err := NewSampler(Spec{Type: "empirical", Values: []float64{1, 2, 3}})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))

	seen := map[float64]bool{}
	for i := 0; i < 1000; i++ {
		seen[s.Sample(rng)] = true
	}

	assert.Equal(t, map[float64]bool{1: true, 2: true, 3: true}, seen)
}

func TestSampler_SameSeedSameSequence(t *testing.T) {
	s, err := NewSampler(Spec{Type: "lognormal", Params: map[string]float64{"mu": 0, "sigma": 1}})
	require.NoError(t, err)
	r1 := rand.New(rand.NewSource(99))
	r2 := rand.New(rand.NewSource(99))
	for i := 0; i < 100; i++ {
		require.Equal(t, s.Sample(r1), s.Sample(r2))
	}
}

func TestNewSampler_InvalidSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"unknown type", Spec{Type: "cauchy"}},
		{"missing param", Spec{Type: "normal", Params: map[string]float64{"mean": 1}}},
		{"negative std dev", Spec{Type: "normal", Params: map[string]float64{"mean": 1, "std_dev": -1}}},
		{"NaN param", Spec{Type: "constant", Params: map[string]float64{"value": math.NaN()}}},
		{"inverted uniform", Spec{Type: "uniform", Params: map[string]float64{"min": 2, "max": 1}}},
		{"zero beta shape", Spec{Type: "beta", Params: map[string]float64{"alpha": 0, "beta": 1}}},
		{"empty empirical", Spec{Type: "empirical"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampler(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestNewCDF_NormalIsHalfAtMean(t *testing.T) {
	cdf, err := NewCDF(Spec{Type: "normal", Params: map[string]float64{"mean": 10, "std_dev": 2}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cdf.CDF(10), 1e-12)
}

func TestNewCDF_EmpiricalRejected(t *testing.T) {
	_, err := NewCDF(Spec{Type: "empirical", Values: []float64{1}})
	assert.Error(t, err)
}

func TestSpec_String_SortsParams(t *testing.T) {
	s := Spec{Type: "triangular", Params: map[string]float64{"mode": 2, "max": 3, "min": 1}}
	assert.Equal(t, "triangular(max=3, min=1, mode=2)", s.String())
}
