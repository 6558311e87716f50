package buildpipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stencil/internal/axis"
	"stencil/internal/buildgraph"
	"stencil/internal/diag"
	"stencil/internal/expand"
	"stencil/internal/gencache"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

// generateLibraries expands every library template, walking the graph
// batches in dependency order. A library whose dependency failed is
// skipped with its own diagnostic. Returns false when any library failed.
//
// Генерация идёт последовательно: FileSet не потокобезопасен, а цена
// подстановки ничтожна рядом с компиляцией, где и работает --jobs.
func generateLibraries(req *BuildRequest, graph *buildgraph.Graph, byName map[string]manifest.Library, layout paths, cache *gencache.Cache) ([]LibraryResult, bool) {
	order := make([]string, 0, len(byName))
	for _, batch := range graph.Topo.Batches {
		for _, id := range batch {
			if graph.IsConsumer(id) {
				continue
			}
			order = append(order, graph.Name(id))
		}
	}
	emitQueued(req.Progress, order)

	results := make([]LibraryResult, 0, len(order))
	failed := make(map[string]struct{})
	ok := true

	for _, name := range order {
		lib := byName[name]
		res := LibraryResult{Name: name, GenDir: layout.genDir(name)}

		if dep, bad := failedDependency(graph, name, failed); bad {
			diag.ReportError(req.Reporter, diag.GrfDependencyFailed, source.Span{},
				fmt.Sprintf("library %q skipped: dependency %q failed", name, dep)).Emit()
			err := fmt.Errorf("dependency %q failed", dep)
			emitTarget(req.Progress, name, StageGenerate, StatusError, err, 0)
			res.Failed = true
			failed[name] = struct{}{}
			results = append(results, res)
			ok = false
			continue
		}

		start := time.Now()
		emitTarget(req.Progress, name, StageGenerate, StatusWorking, nil, 0)
		genRes, fromCache, err := generateLibrary(req, lib, layout, cache)
		if err != nil {
			emitTarget(req.Progress, name, StageGenerate, StatusError, err, time.Since(start))
			res.Failed = true
			failed[name] = struct{}{}
			results = append(results, res)
			ok = false
			continue
		}
		res.Files = unitNames(genRes)
		res.FromCache = fromCache
		results = append(results, res)
		emitTarget(req.Progress, name, StageGenerate, StatusDone, nil, time.Since(start))
	}

	return results, ok
}

// failedDependency returns the first direct dependency of name that is in
// the failed set.
func failedDependency(graph *buildgraph.Graph, name string, failed map[string]struct{}) (string, bool) {
	id, ok := graph.Index.NameToID[name]
	if !ok {
		return "", false
	}
	for _, depID := range graph.Dependencies(id) {
		dep := graph.Name(depID)
		if _, bad := failed[dep]; bad {
			return dep, true
		}
	}
	return "", false
}

// generateLibrary expands one library template, consulting the
// fingerprint cache first.
func generateLibrary(req *BuildRequest, lib manifest.Library, layout paths, cache *gencache.Cache) (*expand.Result, bool, error) {
	// Expand перепроверяет то же, что и Plan; дубликаты предупреждений
	// гасим на уровне репортера
	rep := diag.NewDedupReporter(req.Reporter)

	origin := fmt.Sprintf("%s: library %q axes", req.Manifest.Path, lib.Name)
	set, ok := axis.ParseDecls(req.FileSet, origin, lib.AxisDecls, rep)
	if !ok {
		return nil, false, fmt.Errorf("invalid axes for library %q", lib.Name)
	}

	expReq := expand.Request{
		Template: req.Manifest.TemplatePath(lib),
		OutDir:   layout.genDir(lib.Name),
		Axes:     set,
		Tokens:   lib.Tokens,
	}

	plan, err := expand.Plan(req.FileSet, expReq, rep)
	if err != nil {
		return nil, false, err
	}
	// результат раскрытия несёт полные пути, остальной конвейер
	// работает с именами внутри genDir
	names := unitNames(plan)

	var want *gencache.Fingerprint
	if tmpl, loaded := req.FileSet.GetByPath(expReq.Template); loaded {
		want = gencache.New(lib.Name, tmpl.Content, set.Digest(), lib.Tokens, names)
	}

	if !req.Force && want != nil {
		got, hit, getErr := cache.Get(lib.Name)
		if getErr == nil && hit && got.Matches(want) && gencache.OutputsExist(expReq.OutDir, names) {
			return plan, true, nil
		}
	}

	res, err := expand.Expand(req.FileSet, expReq, rep)
	if err != nil {
		return nil, false, err
	}
	if putErr := cache.Put(want); putErr != nil {
		diag.ReportWarning(req.Reporter, diag.GenInfo, source.Span{},
			fmt.Sprintf("failed to store fingerprint for %q: %v", lib.Name, putErr)).Emit()
	}
	reportStaleFiles(req.Reporter, lib.Name, expReq.OutDir, unitNames(res))
	return res, false, nil
}

func unitNames(res *expand.Result) []string {
	names := make([]string, len(res.Files))
	for i, path := range res.Files {
		names[i] = filepath.Base(path)
	}
	return names
}

// reportStaleFiles flags files in the generation directory that the
// current combination set no longer produces. They are left in place:
// the compile step works off the produced list, so a stale file is noise
// rather than a hazard.
func reportStaleFiles(reporter diag.Reporter, lib, dir string, produced []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	current := make(map[string]struct{}, len(produced))
	for _, name := range produced {
		current[name] = struct{}{}
	}
	var stale []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := current[entry.Name()]; !ok {
			stale = append(stale, entry.Name())
		}
	}
	if len(stale) == 0 {
		return
	}
	sort.Strings(stale)
	diag.ReportInfo(reporter, diag.GenStaleFiles, source.Span{},
		fmt.Sprintf("library %q has stale files in %s: %s", lib, dir, strings.Join(stale, ", "))).Emit()
}
