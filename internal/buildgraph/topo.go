package buildgraph

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// Topo is the build order: a linear order plus waves of mutually
// independent targets that may be processed in parallel.
type Topo struct {
	Order   []TargetID
	Batches [][]TargetID
	Cyclic  bool
	Cycles  []TargetID // узлы, оставшиеся в цикле
}

func (g *Graph) toposort() *Topo {
	nodeCount := len(g.Edges)
	indeg := make([]int, len(g.Indeg))
	copy(indeg, g.Indeg)

	topo := &Topo{
		Order:   make([]TargetID, 0, nodeCount),
		Batches: make([][]TargetID, 0),
	}

	current := make([]TargetID, 0, nodeCount)
	for i := 0; i < nodeCount; i++ {
		if indeg[i] == 0 {
			id, err := safecast.Conv[TargetID](i)
			if err != nil {
				panic(fmt.Errorf("target id overflow: %w", err))
			}
			current = append(current, id)
		}
	}
	slices.Sort(current)

	visited := 0
	for len(current) > 0 {
		batch := make([]TargetID, len(current))
		copy(batch, current)
		topo.Batches = append(topo.Batches, batch)

		next := make([]TargetID, 0)
		for _, id := range batch {
			topo.Order = append(topo.Order, id)
			visited++
			for _, to := range g.Edges[int(id)] {
				indeg[int(to)]--
				if indeg[int(to)] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if visited != nodeCount {
		topo.Cyclic = true
		for i := 0; i < nodeCount; i++ {
			if indeg[i] > 0 {
				id, err := safecast.Conv[TargetID](i)
				if err != nil {
					panic(fmt.Errorf("target id overflow: %w", err))
				}
				topo.Cycles = append(topo.Cycles, id)
			}
		}
		slices.Sort(topo.Cycles)
	}

	return topo
}
