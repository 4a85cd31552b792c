package sim

import "fmt"

// Kind distinguishes how a compartment treats material entering it.
type Kind int

const (
	// KindFlow passes all incoming material on within the same period.
	KindFlow Kind = iota
	// KindSink accumulates all incoming material.
	KindSink
	// KindStock accumulates material and releases it in later periods.
	KindStock
)

func (k Kind) String() string {
	switch k {
	case KindFlow:
		return "flow"
	case KindSink:
		return "sink"
	case KindStock:
		return "stock"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps "flow", "sink" or "stock" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "flow":
		return KindFlow, nil
	case "sink":
		return KindSink, nil
	case "stock":
		return KindStock, nil
	default:
		return 0, fmt.Errorf("unknown compartment kind %q; valid: flow, sink, stock", s)
	}
}

// Compartment is a distinct area of the investigated system: an environmental
// medium, a region or a stage in the fate of a material.
type Compartment struct {
	Name       string
	Kind       Kind
	Categories []string

	LogInflows        bool
	LogOutflows       bool // flow compartments and stocks
	LogImmediateFlows bool // stocks only

	// AdjustOutgoingTCs normalizes outgoing transfer coefficients to sum to
	// one unless global TC settings override it. Always true for stocks.
	AdjustOutgoingTCs bool

	Transfers []Transfer
	Release   *Release // stocks only
}

// CompartmentOption configures a Compartment at construction.
type CompartmentOption func(*Compartment)

// WithLogInflows records the material entering the compartment.
func WithLogInflows() CompartmentOption {
	return func(c *Compartment) { c.LogInflows = true }
}

// WithLogOutflows records the material leaving through each transfer.
func WithLogOutflows() CompartmentOption {
	return func(c *Compartment) { c.LogOutflows = true }
}

// WithLogImmediateFlows records, for stocks, the share of each period's
// inflow that leaves without being stored.
func WithLogImmediateFlows() CompartmentOption {
	return func(c *Compartment) { c.LogImmediateFlows = true }
}

// WithCategories tags the compartment for category aggregation.
func WithCategories(categories ...string) CompartmentOption {
	return func(c *Compartment) { c.Categories = append(c.Categories, categories...) }
}

// WithoutTCAdjustment keeps a flow compartment's sampled TCs as they are.
func WithoutTCAdjustment() CompartmentOption {
	return func(c *Compartment) { c.AdjustOutgoingTCs = false }
}

// WithTransfers sets the outgoing transfers.
func WithTransfers(transfers ...Transfer) CompartmentOption {
	return func(c *Compartment) { c.Transfers = append(c.Transfers, transfers...) }
}

// WithRelease sets the release strategy of a stock.
func WithRelease(r *Release) CompartmentOption {
	return func(c *Compartment) { c.Release = r }
}

// NewFlowCompartment creates a compartment without residence time.
func NewFlowCompartment(name string, opts ...CompartmentOption) *Compartment {
	return newCompartment(name, KindFlow, opts)
}

// NewSink creates a compartment where material accumulates.
func NewSink(name string, opts ...CompartmentOption) *Compartment {
	return newCompartment(name, KindSink, opts)
}

// NewStock creates a compartment that stores material and releases it later.
func NewStock(name string, opts ...CompartmentOption) *Compartment {
	c := newCompartment(name, KindStock, opts)
	c.AdjustOutgoingTCs = true
	return c
}

func newCompartment(name string, kind Kind, opts []CompartmentOption) *Compartment {
	c := &Compartment{Name: name, Kind: kind, AdjustOutgoingTCs: kind != KindSink}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasTransfers reports whether material can leave the compartment.
func (c *Compartment) HasTransfers() bool { return c.Kind != KindSink }

// Accumulates reports whether the compartment keeps an inventory.
func (c *Compartment) Accumulates() bool { return c.Kind != KindFlow }

// InCategory reports whether the compartment carries the given category.
func (c *Compartment) InCategory(category string) bool {
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}
