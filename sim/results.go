package sim

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"

	"github.com/najoast/roadsim/roadmap"
)

// RoadResult is the final tally of one road.
type RoadResult struct {
	From  int
	To    int
	Total int
	Peak  int
}

// JunctionResult is the final tally of one junction and its roads.
type JunctionResult struct {
	ID      int
	Total   int
	Crashes int
	Roads   []RoadResult
}

// Results returns the cumulative counters of every junction in id order.
func (m *MapActor) Results() []JunctionResult {
	return lo.Map(m.graph.Junctions, func(j roadmap.Junction, i int) JunctionResult {
		return JunctionResult{
			ID:      j.ID,
			Total:   m.junctions[i].total,
			Crashes: m.junctions[i].crashes,
			Roads: lo.Map(j.Roads, func(r roadmap.Road, k int) RoadResult {
				rs := m.roads[i][k]
				return RoadResult{From: r.From, To: r.To, Total: rs.total, Peak: rs.peak}
			}),
		}
	})
}

// WriteResults writes the results artifact to w.
func WriteResults(w io.Writer, results []JunctionResult) error {
	bw := bufio.NewWriter(w)
	for _, j := range results {
		fmt.Fprintf(bw, "Junction %d: %d total vehicles and %d crashes\n", j.ID, j.Total, j.Crashes)
		for _, r := range j.Roads {
			fmt.Fprintf(bw, "--> Road from %d to %d: Total vehicles %d and %d maximum concurrently\n", r.From, r.To, r.Total, r.Peak)
		}
	}
	return bw.Flush()
}

// WriteResultsFile writes the results artifact to path, replacing it.
func WriteResultsFile(path string, results []JunctionResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	if err := WriteResults(f, results); err != nil {
		f.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	return f.Close()
}
