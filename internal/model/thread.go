package model

import (
	"encoding/json"
	"sort"
)

// RootID is the alias of the synthetic root node of every thread graph.
const RootID = "0"

// RootEnvelope is the payload of the synthetic root node.
var RootEnvelope = Envelope{ID: RootID}

// ThreadEdge links a parent alias to a reply alias. Weight is the depth of
// the reply in its thread.
type ThreadEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Weight int    `json:"weight"`
}

// ThreadGraph is a reply graph keyed by alias. It always contains the
// synthetic root node.
type ThreadGraph struct {
	Nodes map[string]Envelope `json:"nodes"`
	Edges []ThreadEdge        `json:"edges"`
}

// NewThreadGraph returns a graph holding only the root node.
func NewThreadGraph() *ThreadGraph {
	return &ThreadGraph{
		Nodes: map[string]Envelope{RootID: RootEnvelope},
	}
}

// AddNode inserts or replaces a node.
func (g *ThreadGraph) AddNode(env Envelope) {
	g.Nodes[env.ID] = env
}

// AddEdge appends an edge. Both endpoints must already be nodes.
func (g *ThreadGraph) AddEdge(parent, child string, weight int) {
	g.Edges = append(g.Edges, ThreadEdge{Parent: parent, Child: child, Weight: weight})
}

// HasNode reports whether id is a node of the graph.
func (g *ThreadGraph) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// Parents returns the edges pointing at child.
func (g *ThreadGraph) Parents(child string) []ThreadEdge {
	var edges []ThreadEdge
	for _, e := range g.Edges {
		if e.Child == child {
			edges = append(edges, e)
		}
	}
	return edges
}

// Children returns the replies of parent at the given depth, ordered by
// alias so renderings are stable.
func (g *ThreadGraph) Children(parent string, weight int) []Envelope {
	var children []Envelope
	for _, e := range g.Edges {
		if e.Parent == parent && e.Weight == weight {
			children = append(children, g.Nodes[e.Child])
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return LessAlias(children[i].ID, children[j].ID)
	})
	return children
}

// LessAlias orders numeric aliases numerically and falls back to a string
// comparison for pass-through ids.
func LessAlias(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON serializes nodes as a sorted list so output is stable.
func (g *ThreadGraph) MarshalJSON() ([]byte, error) {
	nodes := make([]Envelope, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return LessAlias(nodes[i].ID, nodes[j].ID) })

	return json.Marshal(struct {
		Nodes []Envelope   `json:"nodes"`
		Edges []ThreadEdge `json:"edges"`
	}{nodes, g.Edges})
}

// Roots returns the top-level messages of the graph.
func (g *ThreadGraph) Roots() []Envelope {
	return g.Children(RootID, 0)
}
