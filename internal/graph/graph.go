// Package graph builds the resource dependency graph of a configuration
// and renders it in dot format.
//
// Vertices are resources (primitives, templates, groups, clones and
// masters). Edges point from the resource that must be placed or started
// first to the one that depends on it: container to child, template to
// primitive, and along order and colocation constraints.
//
// Each kind of dependency forms its own layer: structure (containment and
// templates), start order and placement. A layer must stay acyclic; an edge
// that would close a cycle within its layer is kept aside in Graph.Cycles
// instead of being added. Edges of different layers never form a cycle
// together, so ordering a before b while placing a with b is fine.
package graph

import (
	"cmp"
	"errors"
	"slices"

	"ocm.software/open-component-model/bindings/go/dag"

	"github.com/roach88/cibconf/internal/model"
)

// Edge types.
const (
	EdgeContains   = "contains"
	EdgeTemplate   = "template"
	EdgeOrder      = "order"
	EdgeColocation = "colocation"
)

// Layers group edge types that must not form a cycle together.
const (
	LayerStructure = "structure"
	LayerOrder     = "order"
	LayerPlacement = "placement"
)

var layerOf = map[string]string{
	EdgeContains:   LayerStructure,
	EdgeTemplate:   LayerStructure,
	EdgeOrder:      LayerOrder,
	EdgeColocation: LayerPlacement,
}

// Edge is one typed dependency.
type Edge struct {
	From string
	To   string
	Type string
	// Source is the id of the object that produced the edge.
	Source string
}

// Graph is a resource dependency graph.
type Graph struct {
	// layers holds one DAG per layer. Every layer has every vertex; the
	// structure layer also carries the vertex attributes.
	layers map[string]*dag.DirectedAcyclicGraph[string]
	types  map[[2]string][]string
	Cycles []Edge
}

const kindAttr = "kind"

// Build creates the dependency graph for objs.
func Build(objs []*model.Object) *Graph {
	g := &Graph{
		layers: map[string]*dag.DirectedAcyclicGraph[string]{
			LayerStructure: dag.NewDirectedAcyclicGraph[string](),
			LayerOrder:     dag.NewDirectedAcyclicGraph[string](),
			LayerPlacement: dag.NewDirectedAcyclicGraph[string](),
		},
		types: make(map[[2]string][]string),
	}
	for _, o := range objs {
		if spec := o.Spec(); spec != nil && spec.Class == model.ClassResource {
			for name, d := range g.layers {
				if name == LayerStructure {
					_ = d.AddVertex(o.ID, map[string]any{kindAttr: string(o.Kind)})
				} else {
					_ = d.AddVertex(o.ID)
				}
			}
		}
	}
	for _, o := range objs {
		switch o.Kind {
		case model.KindGroup, model.KindClone, model.KindMaster:
			for _, child := range o.Children {
				g.add(Edge{From: o.ID, To: child, Type: EdgeContains, Source: o.ID})
			}
		case model.KindPrimitive:
			for _, id := range o.StrictReferences() {
				g.add(Edge{From: id, To: o.ID, Type: EdgeTemplate, Source: o.ID})
			}
		case model.KindOrder:
			ids := resourceChain(o)
			for i := 0; i+1 < len(ids); i++ {
				g.add(Edge{From: ids[i], To: ids[i+1], Type: EdgeOrder, Source: o.ID})
			}
		case model.KindColocation:
			ids := resourceChain(o)
			for i := 0; i+1 < len(ids); i++ {
				g.add(Edge{From: ids[i+1], To: ids[i], Type: EdgeColocation, Source: o.ID})
			}
		}
	}
	return g
}

func (g *Graph) add(e Edge) {
	if !g.has(e.From) || !g.has(e.To) || e.From == e.To {
		return
	}
	key := [2]string{e.From, e.To}
	if slices.Contains(g.types[key], e.Type) {
		return
	}
	if err := g.layers[layerOf[e.Type]].AddEdge(e.From, e.To); err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			g.Cycles = append(g.Cycles, e)
		}
		return
	}
	g.types[key] = append(g.types[key], e.Type)
	slices.Sort(g.types[key])
}

// CyclesIn returns the rejected edges of one layer.
func (g *Graph) CyclesIn(layer string) []Edge {
	var out []Edge
	for _, e := range g.Cycles {
		if layerOf[e.Type] == layer {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) has(id string) bool {
	_, ok := g.layers[LayerStructure].GetVertex(id)
	return ok
}

// Vertices returns resource ids in sorted order.
func (g *Graph) Vertices() []string {
	return g.layers[LayerStructure].GetVertices()
}

// Kind returns the object kind recorded for a vertex.
func (g *Graph) Kind(id string) model.Kind {
	v, ok := g.layers[LayerStructure].GetVertex(id)
	if !ok {
		return ""
	}
	k, _ := v.Attributes.Load(kindAttr)
	s, _ := k.(string)
	return model.Kind(s)
}

// Edges returns every accepted edge, sorted by endpoints then type.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for pair, types := range g.types {
		for _, typ := range types {
			out = append(out, Edge{From: pair[0], To: pair[1], Type: typ})
		}
	}
	slices.SortFunc(out, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To), cmp.Compare(a.Type, b.Type))
	})
	return out
}

// CycleSources returns the ids of objects whose edges were rejected
// because they would close a cycle.
func (g *Graph) CycleSources() []string {
	var out []string
	for _, e := range g.Cycles {
		if !slices.Contains(out, e.Source) {
			out = append(out, e.Source)
		}
	}
	return out
}

func resourceChain(o *model.Object) []string {
	var ids []string
	for _, r := range o.References() {
		if r.Slot.Strict {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
