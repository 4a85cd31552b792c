// Package summary computes statistics of simulated flows across Monte-Carlo runs.
package summary

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/isr-ifi/dpmfa/sim"
)

// PeriodStats describes the distribution of one quantity in one period.
type PeriodStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"` // population standard deviation
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// Series holds the statistics of one quantity for every period.
type Series struct {
	Name    string        `json:"name"`
	Periods []PeriodStats `json:"periods"`
}

// Flow is a logged transfer between two compartments.
type Flow struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Series
}

// Summary aggregates the statistics of all recorded results.
type Summary struct {
	Model          string   `json:"model"`
	Runs           int      `json:"runs"`
	Periods        int      `json:"periods"`
	Outflows       []Flow   `json:"outflows"`
	ImmediateFlows []Flow   `json:"immediate_flows,omitempty"`
	Inflows        []Series `json:"inflows"`
	Inventories    []Series `json:"inventories"`
}

// Stats computes the statistics of one period's values over all runs.
// Safe for empty input (returns zero-value fields).
func Stats(values []float64) PeriodStats {
	if len(values) == 0 {
		return PeriodStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return PeriodStats{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(sorted),
		Q25:    Percentile(sorted, 25),
		Median: Percentile(sorted, 50),
		Q75:    Percentile(sorted, 75),
		Max:    floats.Max(sorted),
	}
}

// Percentile returns the p-th percentile of sorted data, interpolating
// linearly between the two values around rank p/100*(n-1).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return sorted[n-1]
	}
	if lowerIdx == upperIdx {
		return sorted[lowerIdx]
	}
	return sorted[lowerIdx] + (sorted[upperIdx]-sorted[lowerIdx])*(rank-float64(lowerIdx))
}

// SummarizeMatrix computes per-period statistics of a runs x periods matrix.
func SummarizeMatrix(name string, m sim.Matrix) Series {
	s := Series{Name: name, Periods: make([]PeriodStats, m.Periods())}
	for p := range s.Periods {
		s.Periods[p] = Stats(m.Column(p))
	}
	return s
}

// Summarize computes statistics for everything recorded in res.
// Safe for nil results (returns an empty summary).
func Summarize(res *sim.Results) *Summary {
	if res == nil {
		return &Summary{}
	}
	sum := &Summary{Model: res.ModelName, Runs: res.Runs, Periods: res.Periods}

	for _, src := range res.LoggedOutflows() {
		flows := res.Outflows(src)
		for _, tgt := range res.Targets(src) {
			sum.Outflows = append(sum.Outflows, Flow{
				Source: src, Target: tgt,
				Series: SummarizeMatrix(src+" -> "+tgt, flows[tgt]),
			})
		}
	}
	for _, src := range res.LoggedImmediateFlows() {
		flows := res.ImmediateFlows(src)
		for _, tgt := range res.Targets(src) {
			sum.ImmediateFlows = append(sum.ImmediateFlows, Flow{
				Source: src, Target: tgt,
				Series: SummarizeMatrix(src+" -> "+tgt, flows[tgt]),
			})
		}
	}
	for _, name := range res.LoggedInflowNames() {
		m, _ := res.Inflow(name)
		sum.Inflows = append(sum.Inflows, SummarizeMatrix(name, m))
	}
	for _, name := range append(res.Stocks(), res.Sinks()...) {
		m, _ := res.Inventory(name)
		sum.Inventories = append(sum.Inventories, SummarizeMatrix(name, m))
	}
	return sum
}

// Print writes "mean ± std" of every logged outflow in the given period.
func Print(w io.Writer, s *Summary, period int) error {
	if period < 0 || period >= s.Periods {
		return fmt.Errorf("summary period %d outside [0, %d)", period, s.Periods)
	}
	fmt.Fprintln(w, "-----------------------")
	fmt.Fprintf(w, "Logged Outflows (period %d):\n", period)
	fmt.Fprintln(w, "-----------------------")
	last := ""
	for _, f := range s.Outflows {
		if f.Source != last {
			fmt.Fprintf(w, "\nFlows from %s:\n", f.Source)
			last = f.Source
		}
		ps := f.Periods[period]
		fmt.Fprintf(w, " --> %s: Mean = %.0f ± %.0f\n", f.Target, ps.Mean, ps.StdDev)
	}
	fmt.Fprintln(w, "-----------------------")
	return nil
}
