package crawler

import (
	"sort"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
)

// LinkGraph is the append-only directed graph built by one crawl.
// Nodes keep first-discovery order and edges keep insertion order so exports are reproducible.
// Not safe for concurrent use.
type LinkGraph struct {
	nodes   map[string]*models.PageNode
	order   []string
	edges   []models.LinkEdge
	edgeSet map[models.LinkEdge]struct{}
	in      map[string]int
	out     map[string]int
}

// NewLinkGraph creates an empty graph
func NewLinkGraph() *LinkGraph {
	return &LinkGraph{
		nodes:   make(map[string]*models.PageNode),
		edgeSet: make(map[models.LinkEdge]struct{}),
		in:      make(map[string]int),
		out:     make(map[string]int),
	}
}

// AddNode adds url at depth, or lowers the depth of an existing node when the new path is shorter.
// Returns true when the node was created
func (g *LinkGraph) AddNode(url string, depth int) bool {
	if n, ok := g.nodes[url]; ok {
		if depth < n.Depth {
			n.Depth = depth
		}
		return false
	}
	g.nodes[url] = &models.PageNode{URL: url, Depth: depth, State: models.NodeStateQueued}
	g.order = append(g.order, url)
	return true
}

// AddEdge records source -> target once. Both endpoints must already be nodes; returns false for
// duplicates and unknown endpoints
func (g *LinkGraph) AddEdge(source, target string) bool {
	if _, ok := g.nodes[source]; !ok {
		return false
	}
	if _, ok := g.nodes[target]; !ok {
		return false
	}
	e := models.LinkEdge{Source: source, Target: target}
	if _, dup := g.edgeSet[e]; dup {
		return false
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
	g.out[source]++
	g.in[target]++
	return true
}

// MarkState moves a node to state and records the fetch outcome
func (g *LinkGraph) MarkState(url string, state models.NodeState, statusCode int, errorType string) {
	n, ok := g.nodes[url]
	if !ok {
		return
	}
	n.State = state
	n.StatusCode = statusCode
	n.ErrorType = errorType
}

// Node returns a copy of the node for url
func (g *LinkGraph) Node(url string) (models.PageNode, bool) {
	n, ok := g.nodes[url]
	if !ok {
		return models.PageNode{}, false
	}
	return *n, true
}

// Has reports whether url is a node
func (g *LinkGraph) Has(url string) bool {
	_, ok := g.nodes[url]
	return ok
}

// Nodes returns copies of all nodes in first-discovery order
func (g *LinkGraph) Nodes() []models.PageNode {
	out := make([]models.PageNode, 0, len(g.order))
	for _, u := range g.order {
		out = append(out, *g.nodes[u])
	}
	return out
}

// Edges returns all edges in insertion order
func (g *LinkGraph) Edges() []models.LinkEdge {
	return append([]models.LinkEdge(nil), g.edges...)
}

// InDegree returns the number of distinct pages linking to url
func (g *LinkGraph) InDegree(url string) int { return g.in[url] }

// OutDegree returns the number of distinct pages url links to
func (g *LinkGraph) OutDegree(url string) int { return g.out[url] }

// NodeCount returns the number of nodes
func (g *LinkGraph) NodeCount() int { return len(g.order) }

// EdgeCount returns the number of edges
func (g *LinkGraph) EdgeCount() int { return len(g.edges) }

// DegreeEntry pairs a node with its in-degree
type DegreeEntry struct {
	URL      string
	InDegree int
}

// Stats summarizes a finished graph
type Stats struct {
	Nodes        int
	Edges        int
	Visited      int
	Failed       int
	Unvisited    int         // Still queued when the crawl stopped (page cap or cancellation)
	MaxDepth     int         // Deepest fetched node
	PagesByDepth map[int]int // Fetched (visited or failed) nodes per depth
	TopLinked    []DegreeEntry
}

// topLinkedCount is how many most-linked pages Stats reports
const topLinkedCount = 5

// ComputeStats derives per-depth counts and the most linked-to pages
func (g *LinkGraph) ComputeStats() Stats {
	st := Stats{
		Nodes:        len(g.order),
		Edges:        len(g.edges),
		PagesByDepth: make(map[int]int),
	}

	ranked := make([]DegreeEntry, 0, len(g.order))
	for _, u := range g.order {
		n := g.nodes[u]
		switch n.State {
		case models.NodeStateVisited:
			st.Visited++
		case models.NodeStateFailed:
			st.Failed++
		default:
			st.Unvisited++
		}
		if n.Visited() {
			st.PagesByDepth[n.Depth]++
			if n.Depth > st.MaxDepth {
				st.MaxDepth = n.Depth
			}
		}
		ranked = append(ranked, DegreeEntry{URL: u, InDegree: g.in[u]})
	}

	// Stable: ties keep discovery order
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].InDegree > ranked[j].InDegree })
	if len(ranked) > topLinkedCount {
		ranked = ranked[:topLinkedCount]
	}
	st.TopLinked = ranked
	return st
}

// SortedDepths returns the keys of PagesByDepth in ascending order
func (s Stats) SortedDepths() []int {
	depths := make([]int, 0, len(s.PagesByDepth))
	for d := range s.PagesByDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}
