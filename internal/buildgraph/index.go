package buildgraph

import "sort"

// TargetID numbers a node of the build graph: a library or the consumer.
type TargetID uint32

// Index maps target names to stable IDs and back.
type Index struct {
	NameToID map[string]TargetID
	IDToName []string
}

// собрать уникальные имена, sort.Strings, раздать ID по порядку
func buildIndex(targets []Target, consumer string) Index {
	uniq := make(map[string]struct{}, len(targets)+1)
	if consumer != "" {
		uniq[consumer] = struct{}{}
	}
	for _, t := range targets {
		if t.Name != "" {
			uniq[t.Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]TargetID, len(names))
	for i, name := range names {
		nameToID[name] = TargetID(i)
	}

	return Index{
		NameToID: nameToID,
		IDToName: names,
	}
}
