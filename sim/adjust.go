package sim

import (
	"math"
	"sort"
)

// AdjustTCs rescales the outgoing transfer coefficients of one compartment so
// that they sum to one. tcs and priorities are parallel slices; tcs is
// modified in place.
//
// The group with the lowest priority absorbs the whole excess or deficit
// first. A group never goes negative and a group summing to zero cannot be
// scaled, so any remainder moves on to the next priority. Sums are compared
// rounded to six decimals. Returns false if the TCs could not be balanced.
func AdjustTCs(tcs []float64, priorities []int) bool {
	if len(tcs) == 0 {
		return true
	}
	sum := sumOf(tcs)
	for _, prio := range distinctAscending(priorities) {
		if round6(sum) == 1 {
			return true
		}
		groupSum := 0.0
		for i, p := range priorities {
			if p == prio {
				groupSum += tcs[i]
			}
		}
		target := math.Max(groupSum-(sum-1), 0)
		for i, p := range priorities {
			if p != prio {
				continue
			}
			if groupSum == 0 {
				tcs[i] = 0
			} else {
				tcs[i] = tcs[i] / groupSum * target
			}
		}
		sum = sumOf(tcs)
	}
	return round6(sum) == 1
}

func distinctAscending(priorities []int) []int {
	seen := make(map[int]bool, len(priorities))
	out := make([]int, 0, len(priorities))
	for _, p := range priorities {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func sumOf(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}
