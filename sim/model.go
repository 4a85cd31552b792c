package sim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Model is a material flow system: compartments connected by transfers and
// fed by external inflows.
type Model struct {
	Name         string
	Compartments []*Compartment
	Inflows      []ExternalInflow
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// SetCompartments replaces all compartments. Names must be unique.
func (m *Model) SetCompartments(compartments []*Compartment) error {
	seen := make(map[string]bool, len(compartments))
	for _, c := range compartments {
		if c == nil {
			return fmt.Errorf("nil compartment")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate compartment name %q", c.Name)
		}
		seen[c.Name] = true
	}
	m.Compartments = compartments
	return nil
}

// AddCompartment appends a compartment with a new name.
func (m *Model) AddCompartment(c *Compartment) error {
	if c == nil {
		return fmt.Errorf("nil compartment")
	}
	if m.Compartment(c.Name) != nil {
		return fmt.Errorf("duplicate compartment name %q", c.Name)
	}
	m.Compartments = append(m.Compartments, c)
	return nil
}

// SetInflows replaces all external inflows.
func (m *Model) SetInflows(inflows []ExternalInflow) {
	m.Inflows = inflows
}

// AddInflow appends an external inflow source.
func (m *Model) AddInflow(in ExternalInflow) {
	m.Inflows = append(m.Inflows, in)
}

// Compartment returns the compartment with the given name, or nil.
func (m *Model) Compartment(name string) *Compartment {
	for _, c := range m.Compartments {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddTransfer appends a transfer to the named compartment.
func (m *Model) AddTransfer(compartment string, t Transfer) error {
	c := m.Compartment(compartment)
	if c == nil {
		return fmt.Errorf("compartment %q is not in the model", compartment)
	}
	if !c.HasTransfers() {
		return fmt.Errorf("compartment %q is a sink and cannot have transfers", compartment)
	}
	c.Transfers = append(c.Transfers, t)
	return nil
}

// SetReleaseStrategy sets the release of the named stock.
func (m *Model) SetReleaseStrategy(stock string, r *Release) error {
	c := m.Compartment(stock)
	if c == nil {
		return fmt.Errorf("there is no such stock: %q", stock)
	}
	if c.Kind != KindStock {
		return fmt.Errorf("compartment %q is a %s, not a stock", stock, c.Kind)
	}
	c.Release = r
	return nil
}

// Categories returns all distinct compartment categories, sorted.
func (m *Model) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range m.Compartments {
		for _, cat := range c.Categories {
			if !seen[cat] {
				seen[cat] = true
				out = append(out, cat)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks that the model can be simulated. All problems found are
// returned together.
func (m *Model) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(m.Compartments) == 0 {
		add("model has no compartments")
	}
	names := make(map[string]bool, len(m.Compartments))
	for _, c := range m.Compartments {
		if c.Name == "" {
			add("compartment with empty name")
		}
		if names[c.Name] {
			add("duplicate compartment name %q", c.Name)
		}
		names[c.Name] = true
	}

	for _, c := range m.Compartments {
		switch c.Kind {
		case KindSink:
			if len(c.Transfers) > 0 {
				add("sink %q has transfers", c.Name)
			}
			if c.Release != nil {
				add("sink %q has a release strategy", c.Name)
			}
		case KindFlow, KindStock:
			if len(c.Transfers) == 0 {
				add("no transfers assigned to %q", c.Name)
			}
			if c.Kind == KindStock && c.Release == nil {
				add("local release from stock %q not assigned", c.Name)
			}
			if c.Kind == KindFlow && c.Release != nil {
				add("flow compartment %q has a release strategy", c.Name)
			}
		default:
			add("compartment %q has unknown kind %v", c.Name, c.Kind)
		}

		targets := make(map[string]bool, len(c.Transfers))
		for _, t := range c.Transfers {
			if t.Coefficient == nil {
				add("transfer from %q to %q has no coefficient", c.Name, t.Target)
			}
			if !names[t.Target] {
				add("transfer from %q targets unknown compartment %q", c.Name, t.Target)
			}
			if targets[t.Target] {
				add("%q has more than one transfer to %q", c.Name, t.Target)
			}
			targets[t.Target] = true
		}
	}

	if len(m.Inflows) == 0 {
		add("no model inflow defined")
	}
	for i, in := range m.Inflows {
		if !names[in.Target()] {
			add("inflow %d targets unknown compartment %q", i, in.Target())
		}
	}
	return errors.Join(errs...)
}

// checkPeriods verifies that time-dependent inputs cover the horizon.
func (m *Model) checkPeriods(periods int) error {
	var errs []error
	for _, c := range m.Compartments {
		for _, t := range c.Transfers {
			if pc, ok := t.Coefficient.(periodChecker); ok {
				if err := pc.checkPeriods(periods); err != nil {
					errs = append(errs, fmt.Errorf("transfer %s -> %s: %w", c.Name, t.Target, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Describe logs the compartments of the model and their transfers.
func (m *Model) Describe() {
	logrus.Info("-----------------------")
	logrus.Infof("Model %q: %d compartments, %d inflows", m.Name, len(m.Compartments), len(m.Inflows))
	logrus.Info("-----------------------")
	for _, c := range m.Compartments {
		logrus.Infof("%s is a %s compartment.", c.Name, c.Kind)
		if len(c.Categories) > 0 {
			logrus.Infof("  categories: %v", c.Categories)
		}
		for _, t := range c.Transfers {
			logrus.Infof("  --> %s: %v", t.Target, t)
		}
		if c.Release != nil {
			logrus.Infof("  release: %v", c.Release)
		}
	}
	for _, in := range m.Inflows {
		logrus.Infof("inflow --> %s: %v", in.Target(), in)
	}
	logrus.Info("-----------------------")
}
