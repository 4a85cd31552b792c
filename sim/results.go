package sim

import (
	"fmt"

	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

// Matrix holds one value per Monte-Carlo run and period: m[run][period].
type Matrix [][]float64

// NewMatrix allocates a zeroed runs x periods matrix on one backing array.
func NewMatrix(runs, periods int) Matrix {
	backing := make([]float64, runs*periods)
	m := make(Matrix, runs)
	for r := range m {
		m[r] = backing[r*periods : (r+1)*periods : (r+1)*periods]
	}
	return m
}

// Column returns the values of all runs for one period.
func (m Matrix) Column(period int) []float64 {
	out := make([]float64, len(m))
	for r, row := range m {
		out[r] = row[period]
	}
	return out
}

// Periods returns the number of periods, 0 for an empty matrix.
func (m Matrix) Periods() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// addInto accumulates o into m element-wise.
func (m Matrix) addInto(o Matrix) {
	for r := range m {
		for p := range m[r] {
			m[r][p] += o[r][p]
		}
	}
}

// Results holds the logged flows and inventories of a simulation.
type Results struct {
	ModelName string
	Runs      int
	Periods   int

	compartments []*Compartment
	categories   []string

	inflows     map[string]Matrix
	outflows    map[string]map[string]Matrix // source -> target
	immediate   map[string]map[string]Matrix // stock -> target
	inventories map[string]Matrix
	releases    map[string]Matrix // stock -> scheduled releases
}

func newResults(m *Model, runs, periods int) *Results {
	res := &Results{
		ModelName:    m.Name,
		Runs:         runs,
		Periods:      periods,
		compartments: m.Compartments,
		categories:   m.Categories(),
		inflows:      map[string]Matrix{},
		outflows:     map[string]map[string]Matrix{},
		immediate:    map[string]map[string]Matrix{},
		inventories:  map[string]Matrix{},
		releases:     map[string]Matrix{},
	}
	for _, c := range m.Compartments {
		if c.LogInflows {
			res.inflows[c.Name] = NewMatrix(runs, periods)
		}
		if c.HasTransfers() && c.LogOutflows {
			res.outflows[c.Name] = map[string]Matrix{}
			for _, t := range c.Transfers {
				res.outflows[c.Name][t.Target] = NewMatrix(runs, periods)
			}
		}
		if c.Kind == KindStock && c.LogImmediateFlows {
			res.immediate[c.Name] = map[string]Matrix{}
			for _, t := range c.Transfers {
				res.immediate[c.Name][t.Target] = NewMatrix(runs, periods)
			}
		}
		if c.Accumulates() {
			res.inventories[c.Name] = NewMatrix(runs, periods)
		}
		if c.Kind == KindStock {
			res.releases[c.Name] = NewMatrix(runs, periods)
		}
	}
	return res
}

// matrixCount returns how many runs x periods matrices newResults allocates.
func matrixCount(m *Model) int {
	n := 0
	for _, c := range m.Compartments {
		if c.LogInflows {
			n++
		}
		if c.HasTransfers() && c.LogOutflows {
			n += len(c.Transfers)
		}
		if c.Kind == KindStock && c.LogImmediateFlows {
			n += len(c.Transfers)
		}
		if c.Accumulates() {
			n++
		}
		if c.Kind == KindStock {
			n++
		}
	}
	return n
}

// totalMemory reports the physical memory in bytes, 0 if unknown.
var totalMemory = memory.TotalMemory

// checkFootprint warns when the result matrices would take more than half of
// the physical memory.
func checkFootprint(m *Model, runs, periods int) uint64 {
	bytes := uint64(matrixCount(m)) * uint64(runs) * uint64(periods) * 8
	if total := totalMemory(); total > 0 && bytes > total/2 {
		logrus.Warnf("result matrices need %d MiB, more than half of the %d MiB of physical memory; consider fewer runs or less logging",
			bytes>>20, total>>20)
	}
	return bytes
}

func (res *Results) names(keep func(*Compartment) bool) []string {
	var out []string
	for _, c := range res.compartments {
		if keep(c) {
			out = append(out, c.Name)
		}
	}
	return out
}

// Categories returns the distinct compartment categories, sorted.
func (res *Results) Categories() []string {
	return res.categories
}

// Sinks returns the names of all sinks (stocks excluded), in model order.
func (res *Results) Sinks() []string {
	return res.names(func(c *Compartment) bool { return c.Kind == KindSink })
}

// Stocks returns the names of all stocks, in model order.
func (res *Results) Stocks() []string {
	return res.names(func(c *Compartment) bool { return c.Kind == KindStock })
}

// LoggedInflows returns the inflow matrices of compartments with inflow logging.
func (res *Results) LoggedInflows() map[string]Matrix {
	return res.inflows
}

// LoggedInflowNames returns the compartments with inflow logging, in model order.
func (res *Results) LoggedInflowNames() []string {
	return res.names(func(c *Compartment) bool { _, ok := res.inflows[c.Name]; return ok })
}

// LoggedOutflows returns the compartments with outflow logging, in model order.
func (res *Results) LoggedOutflows() []string {
	return res.names(func(c *Compartment) bool { _, ok := res.outflows[c.Name]; return ok })
}

// LoggedImmediateFlows returns the stocks with immediate flow logging.
func (res *Results) LoggedImmediateFlows() []string {
	return res.names(func(c *Compartment) bool { _, ok := res.immediate[c.Name]; return ok })
}

// Targets returns the transfer targets of a compartment, in transfer order.
func (res *Results) Targets(source string) []string {
	for _, c := range res.compartments {
		if c.Name == source {
			out := make([]string, 0, len(c.Transfers))
			for _, t := range c.Transfers {
				out = append(out, t.Target)
			}
			return out
		}
	}
	return nil
}

// Inflow returns the logged inflow of a compartment.
func (res *Results) Inflow(name string) (Matrix, bool) {
	m, ok := res.inflows[name]
	return m, ok
}

// Outflows returns the logged outflows of a compartment keyed by target.
func (res *Results) Outflows(source string) map[string]Matrix {
	return res.outflows[source]
}

// ImmediateFlows returns the immediate flows of a stock keyed by target.
func (res *Results) ImmediateFlows(stock string) map[string]Matrix {
	return res.immediate[stock]
}

// Inventory returns the stored amount of a sink or stock at the end of each period.
func (res *Results) Inventory(name string) (Matrix, bool) {
	m, ok := res.inventories[name]
	return m, ok
}

// Releases returns the amount a stock released from storage in each period.
func (res *Results) Releases(stock string) (Matrix, bool) {
	m, ok := res.releases[stock]
	return m, ok
}

// TotalOutflows sums the logged outflows of a compartment over all targets.
func (res *Results) TotalOutflows(source string) (Matrix, error) {
	flows, ok := res.outflows[source]
	if !ok {
		return nil, fmt.Errorf("outflows of %q are not logged", source)
	}
	total := NewMatrix(res.Runs, res.Periods)
	for _, m := range flows {
		total.addInto(m)
	}
	return total, nil
}

// CategoryInflows sums the logged inflows of all compartments in a category.
func (res *Results) CategoryInflows(category string) (Matrix, error) {
	total := NewMatrix(res.Runs, res.Periods)
	found := false
	for _, c := range res.compartments {
		if !c.InCategory(category) {
			continue
		}
		m, ok := res.inflows[c.Name]
		if !ok {
			return nil, fmt.Errorf("compartment %q in category %q does not log inflows", c.Name, category)
		}
		total.addInto(m)
		found = true
	}
	if !found {
		return nil, fmt.Errorf("no compartment in category %q", category)
	}
	return total, nil
}

// CategoryInventory sums the inventories of all sinks and stocks in a category.
func (res *Results) CategoryInventory(category string) (Matrix, error) {
	total := NewMatrix(res.Runs, res.Periods)
	found := false
	for _, c := range res.compartments {
		if !c.InCategory(category) || !c.Accumulates() {
			continue
		}
		total.addInto(res.inventories[c.Name])
		found = true
	}
	if !found {
		return nil, fmt.Errorf("no sink or stock in category %q", category)
	}
	return total, nil
}
