// Package buildgraph orders templated libraries and their consumer into a
// dependency DAG. Link scopes are resolved once, while the graph is built;
// nodes carry no mutable link policy.
package buildgraph

import (
	"fmt"
	"slices"
	"strings"

	"stencil/internal/diag"
	"stencil/internal/source"
)

// Target is one library node as the graph sees it. Span points at the
// manifest that declared the library; zero when built in code.
type Target struct {
	Name  string
	Deps  []string
	Scope LinkScope
	Into  string
	Span  source.Span
}

// Graph is the validated build DAG: libraries plus the consumer node, edges
// pointing from a dependency to its dependents so Kahn batches come out in
// build order.
type Graph struct {
	Consumer   string
	ConsumerID TargetID
	Index      Index
	Targets    []*Target    // slot per ID, nil for the consumer slot
	Edges      [][]TargetID // Edges[dep] = dependents
	Indeg      []int
	Topo       *Topo

	deps  [][]TargetID // resolved dependency IDs per node, declared order
	order []TargetID   // library IDs in input order
}

// Build validates the targets against the consumer and assembles the graph.
// Every problem is reported; ok=false when any is an error.
func Build(targets []Target, consumer string, reporter diag.Reporter) (*Graph, bool) {
	ok := true
	if consumer == "" {
		diag.ReportError(reporter, diag.GrfUnknownConsumer, source.Span{},
			"no consumer configured").Emit()
		return nil, false
	}

	idx := buildIndex(targets, consumer)
	nodeCount := len(idx.IDToName)
	g := &Graph{
		Consumer:   consumer,
		ConsumerID: idx.NameToID[consumer],
		Index:      idx,
		Targets:    make([]*Target, nodeCount),
		Edges:      make([][]TargetID, nodeCount),
		Indeg:      make([]int, nodeCount),
		deps:       make([][]TargetID, nodeCount),
	}

	for i := range targets {
		t := &targets[i]
		if t.Name == "" {
			diag.ReportError(reporter, diag.CfgMissingField, t.Span,
				fmt.Sprintf("build target #%d has no name", i+1)).Emit()
			ok = false
			continue
		}
		if t.Name == consumer {
			diag.ReportError(reporter, diag.GrfDuplicateTarget, t.Span,
				fmt.Sprintf("library %q collides with the consumer name", t.Name)).Emit()
			ok = false
			continue
		}
		id := idx.NameToID[t.Name]
		if first := g.Targets[id]; first != nil {
			diag.ReportError(reporter, diag.GrfDuplicateTarget, t.Span,
				fmt.Sprintf("duplicate build target %q", t.Name)).
				WithNote(first.Span, fmt.Sprintf("previous declaration of %q", t.Name)).
				Emit()
			ok = false
			continue
		}
		g.Targets[id] = t
		g.order = append(g.order, id)
	}

	for _, from := range g.order {
		t := g.Targets[from]
		seen := make(map[TargetID]struct{}, len(t.Deps))
		for _, depName := range t.Deps {
			switch {
			case depName == "":
				diag.ReportError(reporter, diag.GrfUnknownDependency, t.Span,
					fmt.Sprintf("library %q declares an empty dependency", t.Name)).Emit()
				ok = false
				continue
			case depName == t.Name:
				diag.ReportError(reporter, diag.GrfSelfDependency, t.Span,
					fmt.Sprintf("library %q depends on itself", t.Name)).Emit()
				ok = false
				continue
			case depName == consumer:
				diag.ReportError(reporter, diag.GrfUnknownDependency, t.Span,
					fmt.Sprintf("library %q cannot depend on consumer %q", t.Name, consumer)).Emit()
				ok = false
				continue
			}
			depID, known := idx.NameToID[depName]
			if !known || g.Targets[depID] == nil {
				diag.ReportError(reporter, diag.GrfUnknownDependency, t.Span,
					fmt.Sprintf("library %q depends on unknown library %q", t.Name, depName)).Emit()
				ok = false
				continue
			}
			if _, dup := seen[depID]; dup {
				continue
			}
			seen[depID] = struct{}{}

			g.deps[from] = append(g.deps[from], depID)
			g.Edges[depID] = append(g.Edges[depID], from)
			g.Indeg[int(from)]++
		}

		into := t.Into
		if into == "" {
			into = consumer
		}
		if into != consumer {
			diag.ReportError(reporter, diag.GrfUnknownConsumer, t.Span,
				fmt.Sprintf("library %q links into unknown consumer %q", t.Name, into)).Emit()
			ok = false
			continue
		}
		g.Edges[from] = append(g.Edges[from], g.ConsumerID)
		g.Indeg[int(g.ConsumerID)]++
	}

	for from := range g.Edges {
		if len(g.Edges[from]) > 1 {
			slices.Sort(g.Edges[from])
		}
	}

	g.Topo = g.toposort()
	if g.Topo.Cyclic {
		g.reportCycles(reporter)
		ok = false
	}
	return g, ok
}

// Name returns the target name behind an ID.
func (g *Graph) Name(id TargetID) string {
	return g.Index.IDToName[int(id)]
}

// IsConsumer reports whether the node is the consumer sink.
func (g *Graph) IsConsumer(id TargetID) bool {
	return id == g.ConsumerID
}

// Libraries returns the library IDs in manifest order.
func (g *Graph) Libraries() []TargetID {
	return g.order
}

// Target returns the library behind an ID, nil for the consumer.
func (g *Graph) Target(id TargetID) *Target {
	return g.Targets[int(id)]
}

func (g *Graph) reportCycles(reporter diag.Reporter) {
	names := make([]string, 0, len(g.Topo.Cycles))
	for _, id := range g.Topo.Cycles {
		if g.Targets[int(id)] == nil {
			continue
		}
		names = append(names, g.Name(id))
	}
	summary := strings.Join(names, " -> ")

	for _, id := range g.Topo.Cycles {
		t := g.Targets[int(id)]
		if t == nil {
			continue
		}
		diag.ReportError(reporter, diag.GrfDependencyCycle, t.Span,
			fmt.Sprintf("library %q participates in a dependency cycle: %s", t.Name, summary)).Emit()
	}
}
