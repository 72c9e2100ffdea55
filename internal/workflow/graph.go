// Package workflow declares the stage graph of a run and drives it to
// completion. Nodes run as soon as every node they depend on is done; the
// only ordering guarantees are the declared edges.
package workflow

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// Node is one stage of the graph. Run receives a snapshot of the state taken
// after all of After completed and returns the delta to merge.
type Node struct {
	Name  string
	Phase model.Phase
	After []string
	Run   func(ctx context.Context, snap runstate.State) runstate.Delta
}

// Router is a routing rule evaluated exactly once, right after the node it
// is attached to completes. Skip names the nodes a route leaves out.
type Router struct {
	After  string
	Decide func(runstate.State) model.Route
	Skip   map[model.Route][]string
}

// Graph is a validated, acyclic set of nodes.
type Graph struct {
	nodes  map[string]Node
	order  []string
	router *Router
}

// New validates the nodes and router and returns the graph.
func New(nodes []Node, router *Router) (*Graph, error) {
	g := &Graph{nodes: make(map[string]Node, len(nodes)), router: router}
	for _, n := range nodes {
		if n.Name == "" {
			return nil, eris.New("workflow: node with empty name")
		}
		if n.Run == nil {
			return nil, eris.Errorf("workflow: node %q has no run func", n.Name)
		}
		if _, dup := g.nodes[n.Name]; dup {
			return nil, eris.Errorf("workflow: duplicate node %q", n.Name)
		}
		g.nodes[n.Name] = n
	}
	for _, n := range nodes {
		for _, dep := range n.After {
			if _, ok := g.nodes[dep]; !ok {
				return nil, eris.Errorf("workflow: node %q depends on unknown node %q", n.Name, dep)
			}
		}
	}

	order, err := topoSort(nodes)
	if err != nil {
		return nil, err
	}
	g.order = order

	if router != nil {
		if router.Decide == nil {
			return nil, eris.New("workflow: router has no decide func")
		}
		if _, ok := g.nodes[router.After]; !ok {
			return nil, eris.Errorf("workflow: router attached to unknown node %q", router.After)
		}
		for route, names := range router.Skip {
			for _, name := range names {
				if _, ok := g.nodes[name]; !ok {
					return nil, eris.Errorf("workflow: route %q skips unknown node %q", route, name)
				}
				if name == router.After {
					return nil, eris.Errorf("workflow: route %q skips its own router node %q", route, name)
				}
			}
		}
	}
	return g, nil
}

// Order returns the node names in a deterministic topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Node returns the named node.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// topoSort is Kahn's algorithm with sorted ready sets, so equal graphs give
// equal orders.
func topoSort(nodes []Node) ([]string, error) {
	indeg := make(map[string]int, len(nodes))
	next := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indeg[n.Name] += 0
		for _, dep := range n.After {
			indeg[n.Name]++
			next[dep] = append(next[dep], n.Name)
		}
	}

	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var freed []string
		for _, m := range next[name] {
			indeg[m]--
			if indeg[m] == 0 {
				freed = append(freed, m)
			}
		}
		sort.Strings(freed)
		ready = append(ready, freed...)
	}

	if len(order) != len(nodes) {
		var stuck []string
		for name, d := range indeg {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, eris.Errorf("workflow: cycle among nodes %v", stuck)
	}
	return order, nil
}
