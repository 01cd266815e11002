// Package route plans the next hop for a vehicle over the road graph.
//
// Roads leaving the source junction are weighted by their live speed,
// every other road by its speed limit, so a vehicle only sees congestion
// one hop ahead.
package route

import (
	"math"

	"github.com/najoast/roadsim/roadmap"
)

// NextHop returns the junction following src on the cheapest path to dst.
// live holds the current speed of each road leaving src, indexed like
// g.Junctions[src].Roads; missing or non-positive entries fall back to the
// road's speed limit. The search is rerun in full on every call and ties
// resolve to the lowest junction id.
func NextHop(g *roadmap.Graph, src, dst int, live []int) (int, bool) {
	if !g.Valid(src) || !g.Valid(dst) || src == dst {
		return -1, false
	}

	n := g.NumJunctions()
	dist := make([]float64, n)
	prev := make([]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0

	for {
		u := -1
		for i := 0; i < n; i++ {
			if done[i] || math.IsInf(dist[i], 1) {
				continue
			}
			if u < 0 || dist[i] < dist[u] {
				u = i
			}
		}
		if u < 0 || u == dst {
			break
		}
		done[u] = true

		for i, r := range g.Junctions[u].Roads {
			if done[r.To] {
				continue
			}
			speed := r.MaxSpeed
			if u == src && i < len(live) && live[i] > 0 {
				speed = live[i]
			}
			alt := dist[u] + float64(r.Length)/float64(speed)
			if alt < dist[r.To] {
				dist[r.To] = alt
				prev[r.To] = u
			}
		}
	}

	if prev[dst] < 0 {
		return -1, false
	}
	hop := dst
	for prev[hop] != src {
		hop = prev[hop]
	}
	return hop, true
}

// Reachable reports whether any path leads from src to dst.
func Reachable(g *roadmap.Graph, src, dst int) bool {
	_, ok := NextHop(g, src, dst, nil)
	return ok
}

// RoadTo returns the index of the road from junction to next, or -1.
// When parallel roads join the same pair of junctions the first one in
// layout order is returned, even if NextHop relaxed through another.
func RoadTo(g *roadmap.Graph, junction, next int) int {
	return g.RoadTo(junction, next)
}
