// Package roadmap holds the static road network: a junction arena indexed
// by dense id, each junction owning its outgoing roads.
package roadmap

import (
	"fmt"

	"github.com/samber/lo"
)

// Road is a directed edge owned by its origin junction.
type Road struct {
	From     int
	To       int
	Length   int
	MaxSpeed int
}

// Junction is a node of the road network.
type Junction struct {
	ID       int
	Roads    []Road
	HasLight bool
}

// Graph is the junction arena. It is immutable once loaded and may be
// shared read-only between actors.
type Graph struct {
	Junctions []Junction
}

// New returns a graph of n junctions with no roads.
func New(n int) *Graph {
	g := &Graph{Junctions: make([]Junction, n)}
	for i := range g.Junctions {
		g.Junctions[i].ID = i
	}
	return g
}

// NumJunctions returns the junction count.
func (g *Graph) NumJunctions() int {
	return len(g.Junctions)
}

// NumRoads returns the total road count.
func (g *Graph) NumRoads() int {
	return lo.SumBy(g.Junctions, func(j Junction) int { return len(j.Roads) })
}

// NumLights returns how many junctions carry a traffic light.
func (g *Graph) NumLights() int {
	return lo.CountBy(g.Junctions, func(j Junction) bool { return j.HasLight })
}

// Valid reports whether id names a junction.
func (g *Graph) Valid(id int) bool {
	return id >= 0 && id < len(g.Junctions)
}

// AddRoad appends a road to the origin junction.
func (g *Graph) AddRoad(r Road) error {
	if !g.Valid(r.From) || !g.Valid(r.To) {
		return fmt.Errorf("road %d->%d: junction out of range [0,%d): %w", r.From, r.To, len(g.Junctions), ErrMalformed)
	}
	if r.Length < 0 || r.MaxSpeed <= 0 {
		return fmt.Errorf("road %d->%d: length %d speed %d: %w", r.From, r.To, r.Length, r.MaxSpeed, ErrMalformed)
	}
	g.Junctions[r.From].Roads = append(g.Junctions[r.From].Roads, r)
	return nil
}

// SetLight marks a junction as lit. Junctions without roads stay unlit.
func (g *Graph) SetLight(id int) error {
	if !g.Valid(id) {
		return fmt.Errorf("traffic light at %d: junction out of range: %w", id, ErrMalformed)
	}
	if len(g.Junctions[id].Roads) > 0 {
		g.Junctions[id].HasLight = true
	}
	return nil
}

// RoadTo returns the index of the first road from junction leading to next, or -1.
func (g *Graph) RoadTo(junction, next int) int {
	if !g.Valid(junction) {
		return -1
	}
	for i, r := range g.Junctions[junction].Roads {
		if r.To == next {
			return i
		}
	}
	return -1
}
