package roadgraph

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/pursuit-ops/isochroned/internal/geo"
	provider "github.com/pursuit-ops/isochroned/internal/provider/roadgraph"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// tileEdge is a fetched edge and the tile it came from.
type tileEdge struct {
	edge provider.Edge
	tile string
}

type arc struct {
	to      int
	seconds float64
}

type graphEdge struct {
	line     []core.LngLat
	from, to int
	tile     string
}

// graph is the directed road network built from the fetched edges.
type graph struct {
	nodes []core.LngLat
	index map[string]int
	adj   [][]arc
	edges []graphEdge
}

func nodeKey(p core.LngLat) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
}

func (g *graph) node(p core.LngLat) int {
	key := nodeKey(p)
	if i, ok := g.index[key]; ok {
		return i
	}
	g.nodes = append(g.nodes, p)
	g.adj = append(g.adj, nil)
	g.index[key] = len(g.nodes) - 1
	return len(g.nodes) - 1
}

func lineLength(line []core.LngLat) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += geo.Distance(line[i-1], line[i])
	}
	return total
}

// buildGraph converts edges into a graph. speedFor returns the effective
// speed for an edge in km/h.
func buildGraph(edges []tileEdge, profile core.VehicleProfile, speedFor func(tileEdge) float64) *graph {
	g := &graph{index: make(map[string]int)}
	for _, te := range edges {
		if !Allowed(profile, te.edge) {
			continue
		}
		line, err := geo.LineFromPairs(te.edge.Geometry)
		if err != nil {
			continue
		}
		length := te.edge.Length
		if length <= 0 {
			length = lineLength(line)
		}

		from := g.node(line[0])
		to := g.node(line[len(line)-1])
		seconds := length / (speedFor(te) / 3.6)

		g.adj[from] = append(g.adj[from], arc{to: to, seconds: seconds})
		if !te.edge.Oneway {
			g.adj[to] = append(g.adj[to], arc{to: from, seconds: seconds})
		}
		g.edges = append(g.edges, graphEdge{line: line, from: from, to: to, tile: te.tile})
	}
	return g
}

// nearest returns the node closest to p and its distance in meters.
func (g *graph) nearest(p core.LngLat) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, n := range g.nodes {
		if d := geo.Distance(p, n); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

type item struct {
	node    int
	seconds float64
}

type queue []item

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].seconds < q[j].seconds }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)        { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// shortestTimes runs Dijkstra from source, starting at startSeconds. Nodes
// reached later than budget keep their arrival time but are not expanded.
func (g *graph) shortestTimes(source int, startSeconds, budget float64) []float64 {
	dist := make([]float64, len(g.nodes))
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[source] = startSeconds

	pq := &queue{{node: source, seconds: startSeconds}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		if cur.seconds > dist[cur.node] || cur.seconds > budget {
			continue
		}
		for _, a := range g.adj[cur.node] {
			next := cur.seconds + a.seconds
			if next < dist[a.to] {
				dist[a.to] = next
				heap.Push(pq, item{node: a.to, seconds: next})
			}
		}
	}
	return dist
}
