package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sriram-PR/gdao-harvester/pkg/models"
)

func TestLinkGraph_AddNodeKeepsMinimumDepth(t *testing.T) {
	g := NewLinkGraph()
	assert.True(t, g.AddNode("u", 3))
	assert.False(t, g.AddNode("u", 5))
	n, _ := g.Node("u")
	assert.Equal(t, 3, n.Depth)

	assert.False(t, g.AddNode("u", 1))
	n, _ = g.Node("u")
	assert.Equal(t, 1, n.Depth)
	assert.Equal(t, models.NodeStateQueued, n.State)
	assert.Equal(t, 1, g.NodeCount())
}

func TestLinkGraph_AddEdge(t *testing.T) {
	g := NewLinkGraph()
	g.AddNode("a", 0)
	g.AddNode("b", 1)

	assert.True(t, g.AddEdge("a", "b"))
	assert.False(t, g.AddEdge("a", "b"), "duplicate")
	assert.False(t, g.AddEdge("a", "missing"), "unknown target")
	assert.False(t, g.AddEdge("missing", "a"), "unknown source")
	assert.True(t, g.AddEdge("b", "a"))

	assert.Equal(t, []models.LinkEdge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}}, g.Edges())
	assert.Equal(t, 1, g.InDegree("b"))
	assert.Equal(t, 1, g.OutDegree("a"))
	assert.Equal(t, 0, g.InDegree("missing"))
}

func TestLinkGraph_MarkState(t *testing.T) {
	g := NewLinkGraph()
	g.AddNode("a", 0)
	g.MarkState("a", models.NodeStateFailed, 500, "HTTP_5xx")
	g.MarkState("missing", models.NodeStateVisited, 200, "")

	n, ok := g.Node("a")
	assert.True(t, ok)
	assert.Equal(t, models.NodeStateFailed, n.State)
	assert.Equal(t, 500, n.StatusCode)
	assert.Equal(t, "HTTP_5xx", n.ErrorType)
	assert.False(t, g.Has("missing"))
}

func TestLinkGraph_ReturnsCopies(t *testing.T) {
	g := NewLinkGraph()
	g.AddNode("a", 0)
	nodes := g.Nodes()
	nodes[0].Depth = 9
	edges := g.Edges()
	_ = append(edges, models.LinkEdge{Source: "x", Target: "y"})

	n, _ := g.Node("a")
	assert.Equal(t, 0, n.Depth)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestComputeStats(t *testing.T) {
	g := NewLinkGraph()
	for i, u := range []string{"root", "a", "b", "c", "d", "e", "f"} {
		depth := 1
		if i == 0 {
			depth = 0
		}
		g.AddNode(u, depth)
	}
	// in-degrees: a=3, b=2, c=2, root=1, d=1, e=0, f=0
	for _, e := range [][2]string{
		{"root", "a"}, {"b", "a"}, {"c", "a"},
		{"root", "b"}, {"a", "b"},
		{"root", "c"}, {"a", "c"},
		{"a", "root"}, {"a", "d"},
	} {
		g.AddEdge(e[0], e[1])
	}
	g.MarkState("root", models.NodeStateVisited, 200, "")
	g.MarkState("a", models.NodeStateVisited, 200, "")
	g.MarkState("b", models.NodeStateFailed, 404, "HTTP_404")

	st := g.ComputeStats()

	assert.Equal(t, 7, st.Nodes)
	assert.Equal(t, 9, st.Edges)
	assert.Equal(t, 2, st.Visited)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 4, st.Unvisited)
	assert.Equal(t, 1, st.MaxDepth)
	assert.Equal(t, map[int]int{0: 1, 1: 2}, st.PagesByDepth)
	assert.Equal(t, []int{0, 1}, st.SortedDepths())
	assert.Equal(t, []DegreeEntry{
		{URL: "a", InDegree: 3},
		{URL: "b", InDegree: 2},
		{URL: "c", InDegree: 2},
		{URL: "root", InDegree: 1},
		{URL: "d", InDegree: 1},
	}, st.TopLinked)
}

func TestComputeStats_Empty(t *testing.T) {
	st := NewLinkGraph().ComputeStats()
	assert.Equal(t, 0, st.Nodes)
	assert.Empty(t, st.TopLinked)
	assert.Empty(t, st.SortedDepths())
}
