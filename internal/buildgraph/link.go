package buildgraph

// LinkLine is the consumer's resolved link input: which archives enter the
// link command and which libraries contribute their generated include dirs
// to anything compiling against the consumer.
type LinkLine struct {
	Consumer string
	Archives []string // library names, dependents before dependencies
	Includes []string // library names whose gen dirs are exported
}

// ResolveLink walks the libraries in manifest order and applies the scope
// of each into-edge: private contributes the archive alone, public
// re-exports the library's transitive dependencies as well, interface
// contributes the include dir only.
func (g *Graph) ResolveLink() LinkLine {
	line := LinkLine{Consumer: g.Consumer}
	inArchives := make(map[TargetID]struct{}, len(g.order))
	inIncludes := make(map[TargetID]struct{}, len(g.order))

	addArchive := func(id TargetID) {
		if _, dup := inArchives[id]; dup {
			return
		}
		inArchives[id] = struct{}{}
		line.Archives = append(line.Archives, g.Name(id))
	}
	addInclude := func(id TargetID) {
		if _, dup := inIncludes[id]; dup {
			return
		}
		inIncludes[id] = struct{}{}
		line.Includes = append(line.Includes, g.Name(id))
	}

	for _, id := range g.order {
		t := g.Targets[int(id)]
		switch t.Scope {
		case ScopeInterface:
			addInclude(id)
		case ScopePrivate:
			addArchive(id)
		case ScopePublic:
			addArchive(id)
			addInclude(id)
			g.eachTransitiveDep(id, func(dep TargetID) {
				addArchive(dep)
				addInclude(dep)
			})
		}
	}
	return line
}

// Dependencies returns the direct dependency IDs of a library in declared
// order. The pipeline uses them for include paths during compilation.
func (g *Graph) Dependencies(id TargetID) []TargetID {
	return g.deps[int(id)]
}

// eachTransitiveDep visits every transitive dependency once, each
// dependency before its own dependencies.
func (g *Graph) eachTransitiveDep(id TargetID, visit func(TargetID)) {
	seen := make(map[TargetID]struct{})
	var walk func(TargetID)
	walk = func(cur TargetID) {
		for _, dep := range g.deps[int(cur)] {
			if _, done := seen[dep]; done {
				continue
			}
			seen[dep] = struct{}{}
			visit(dep)
			walk(dep)
		}
	}
	walk(id)
}
