// Package notify holds the notification edges declared between resources
// and the per-run bookkeeping that decides which of them fire.
//
// An edge says: when Source changes, run Action on Target, either right
// away (Immediate) or once at the end of the run (Delayed). Within a run a
// (Target, Action) pair fires at most once no matter how many edges point
// at it.
package notify

import "fmt"

// Timing selects when a notification fires.
type Timing string

const (
	Immediate Timing = "immediate"
	Delayed   Timing = "delayed"
)

// Edge is one declared notification.
type Edge struct {
	Source string
	Target string
	Action string
	Timing Timing
}

// Trigger returns the (target, action) pair the edge fires.
func (e Edge) Trigger() Trigger {
	return Trigger{Target: e.Target, Action: e.Action}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s notifies %s %s (%s)", e.Source, e.Target, e.Action, e.Timing)
}

// Graph is the set of edges in registration order.
type Graph struct {
	edges    []Edge
	bySource map[string][]int
}

func NewGraph() *Graph {
	return &Graph{bySource: map[string][]int{}}
}

// Add registers an edge. Order of registration is preserved.
func (g *Graph) Add(e Edge) {
	g.bySource[e.Source] = append(g.bySource[e.Source], len(g.edges))
	g.edges = append(g.edges, e)
}

// From returns the edges leaving source in registration order.
func (g *Graph) From(source string) []Edge {
	idx := g.bySource[source]
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// Edges returns every edge in registration order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

func (g *Graph) Len() int { return len(g.edges) }
