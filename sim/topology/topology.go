// Package topology analyzes the flow network of a model as a directed graph.
package topology

import (
	"io"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1"

	"github.com/isr-ifi/dpmfa/sim"
)

// ExternalPrefix marks the vertices of external sources.
const ExternalPrefix = "external:"

var shapes = map[sim.Kind]string{
	sim.KindFlow:  "ellipse",
	sim.KindSink:  "box",
	sim.KindStock: "cylinder",
}

// fill colors per kind as RGB triples
var fills = map[sim.Kind][3]uint8{
	sim.KindFlow:  {222, 235, 247},
	sim.KindSink:  {229, 245, 224},
	sim.KindStock: {254, 230, 206},
}

// Graph is the flow network of a model.
type Graph struct {
	g     graph.Graph[string, string]
	kinds map[string]sim.Kind
}

// Report lists the structural findings of Analyze.
type Report struct {
	// Unreachable compartments receive no material from any inflow.
	Unreachable []string
	// Trapped flow compartments cannot pass material on to a sink or stock.
	Trapped []string
	// Cycles are strongly connected groups of more than one compartment.
	Cycles [][]string
}

// OK reports whether nothing would prevent a meaningful simulation.
// Cycles alone are fine.
func (r Report) OK() bool {
	return len(r.Unreachable) == 0 && len(r.Trapped) == 0
}

// New builds the graph of m. Edge labels carry the transfer description.
func New(m *sim.Model) (*Graph, error) {
	g := graph.New(graph.StringHash, graph.Directed())
	kinds := make(map[string]sim.Kind, len(m.Compartments))

	for _, c := range m.Compartments {
		fill, err := hexColor(fills[c.Kind])
		if err != nil {
			return nil, err
		}
		err = g.AddVertex(c.Name,
			graph.VertexAttribute("shape", shapes[c.Kind]),
			graph.VertexAttribute("style", "filled"),
			graph.VertexAttribute("fillcolor", fill),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add vertex %s", c.Name)
		}
		kinds[c.Name] = c.Kind
	}
	for _, c := range m.Compartments {
		for _, t := range c.Transfers {
			err := g.AddEdge(c.Name, t.Target, graph.EdgeAttribute("label", t.Coefficient.String()))
			if err != nil {
				return nil, errors.Wrapf(err, "unable to add edge from %s to %s", c.Name, t.Target)
			}
		}
		if c.Release != nil {
			_, props, err := g.VertexWithProperties(c.Name)
			if err != nil {
				return nil, errors.Wrap(err, "unable to get vertex properties")
			}
			props.Attributes["tooltip"] = c.Release.String()
		}
	}
	for _, in := range m.Inflows {
		src := ExternalPrefix + in.Target()
		if _, err := g.Vertex(src); errors.Is(err, graph.ErrVertexNotFound) {
			err = g.AddVertex(src, graph.VertexAttribute("shape", "point"))
			if err != nil {
				return nil, errors.Wrapf(err, "unable to add vertex %s", src)
			}
		}
		err := g.AddEdge(src, in.Target(), graph.EdgeAttribute("style", "dashed"))
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return nil, errors.Wrapf(err, "unable to add inflow edge to %s", in.Target())
		}
	}
	return &Graph{g: g, kinds: kinds}, nil
}

func hexColor(rgb [3]uint8) (string, error) {
	c, err := colors.RGB(rgb[0], rgb[1], rgb[2])
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}
	return c.ToHEX().String(), nil
}

// reachable returns every vertex reachable from start, start included.
func (t *Graph) reachable(start string) (map[string]bool, error) {
	seen := map[string]bool{}
	err := graph.DFS(t.g, start, func(v string) bool {
		seen[v] = true
		return false
	})
	return seen, err
}

// Analyze reports unreachable compartments, trapped flow compartments and cycles.
func (t *Graph) Analyze() (Report, error) {
	var r Report

	adjacency, err := t.g.AdjacencyMap()
	if err != nil {
		return r, errors.Wrap(err, "unable to get adjacency map")
	}
	fed := map[string]bool{}
	for v := range adjacency {
		if _, isCompartment := t.kinds[v]; isCompartment {
			continue
		}
		seen, err := t.reachable(v)
		if err != nil {
			return r, errors.Wrapf(err, "unable to walk from %s", v)
		}
		for name := range seen {
			fed[name] = true
		}
	}

	for name, kind := range t.kinds {
		if !fed[name] {
			r.Unreachable = append(r.Unreachable, name)
		}
		if kind != sim.KindFlow {
			continue
		}
		seen, err := t.reachable(name)
		if err != nil {
			return r, errors.Wrapf(err, "unable to walk from %s", name)
		}
		trapped := true
		for v := range seen {
			if k, ok := t.kinds[v]; ok && k != sim.KindFlow {
				trapped = false
				break
			}
		}
		if trapped {
			r.Trapped = append(r.Trapped, name)
		}
	}
	sort.Strings(r.Unreachable)
	sort.Strings(r.Trapped)

	sccs, err := graph.StronglyConnectedComponents(t.g)
	if err != nil {
		return r, errors.Wrap(err, "unable to compute strongly connected components")
	}
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		sort.Strings(scc)
		r.Cycles = append(r.Cycles, scc)
	}
	sort.Slice(r.Cycles, func(i, j int) bool { return r.Cycles[i][0] < r.Cycles[j][0] })
	return r, nil
}

// WriteDOT renders the graph in Graphviz DOT format.
func (t *Graph) WriteDOT(w io.Writer) error {
	err := draw.DOT(t.g, w, draw.GraphAttribute("rankdir", "LR"))
	if err != nil {
		return errors.Wrap(err, "unable to render dot")
	}
	return nil
}
