// Package testutil provides shared test infrastructure for the DPMFA
// simulator packages: the example model paths and float assertions.
package testutil

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"
)

// ExampleModelPath returns the path of a model file under examples/.
// The path is resolved relative to this source file: sim/internal/testutil/ → examples/.
func ExampleModelPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "examples", name)
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
