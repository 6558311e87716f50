// Package buildpipeline orchestrates the build: manifest targets are
// resolved into a dependency graph, templates are expanded into concrete
// sources, the sources are compiled and archived with the external
// toolchain, and the archives are linked into the consumer.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stencil/internal/buildgraph"
	"stencil/internal/diag"
	"stencil/internal/gencache"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

// ErrFailed reports that the pipeline stopped on errors. Details are in
// the diagnostics handed to the reporter.
var ErrFailed = errors.New("build failed")

// BuildRequest configures a pipeline run.
type BuildRequest struct {
	Manifest *manifest.Manifest
	FileSet  *source.FileSet
	Reporter diag.Reporter

	// Profile selects the target/<profile>/ output subtree.
	Profile string
	// OutputRoot overrides the manifest root as the target/ parent.
	OutputRoot string
	Binding    manifest.BindingMode
	// Jobs caps compile parallelism; <=0 means GOMAXPROCS.
	Jobs int
	// Force regenerates and recompiles everything, ignoring fingerprints.
	Force         bool
	PrintCommands bool
	Progress      ProgressSink
}

// BuildResult captures build artefacts and timings.
type BuildResult struct {
	Graph *buildgraph.Graph
	Link  buildgraph.LinkLine
	// IncludeDirs are the generated-header directories the link line
	// exports, resolved to paths.
	IncludeDirs []string
	OutputPath  string
	Libraries   []LibraryResult
	Timings     Timings
}

// LibraryResult describes what the pipeline did for one library.
type LibraryResult struct {
	Name      string
	GenDir    string
	Files     []string // generated file names, combination order
	Objects   []string
	Archive   string
	FromCache bool // generation skipped, fingerprint matched
	Compiled  bool // objects were rebuilt in this run
	Failed    bool
}

// paths собирает раскладку каталога target/<profile> в одном месте
type paths struct {
	root    string
	profile string
}

func (p paths) profileDir() string          { return filepath.Join(p.root, "target", p.profile) }
func (p paths) genDir(lib string) string    { return filepath.Join(p.profileDir(), "gen", lib) }
func (p paths) objDir(lib string) string    { return filepath.Join(p.profileDir(), "obj", lib) }
func (p paths) archivePath(l string) string { return filepath.Join(p.profileDir(), "lib", "lib"+l+".a") }
func (p paths) fingerprintDir() string      { return filepath.Join(p.profileDir(), "fingerprints") }

func (p paths) outputPath(consumer string, kind manifest.ConsumerKind) string {
	switch kind {
	case manifest.KindStatic:
		return filepath.Join(p.profileDir(), "lib"+consumer+".a")
	default:
		return filepath.Join(p.profileDir(), "lib"+consumer+".so")
	}
}

// Build runs the full pipeline. Diagnostics go to req.Reporter; the
// returned error is ErrFailed when any stage reported errors.
func Build(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	var result BuildResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || req.Manifest == nil {
		return result, fmt.Errorf("missing build request")
	}
	if req.FileSet == nil {
		return result, fmt.Errorf("missing file set")
	}
	if req.Reporter == nil {
		return result, fmt.Errorf("missing reporter")
	}
	reqCopy := *req
	req = &reqCopy

	if req.Profile == "" {
		req.Profile = "debug"
	}
	layout := paths{root: req.OutputRoot, profile: req.Profile}
	if layout.root == "" {
		layout.root = req.Manifest.Root
	}

	// resolve: манифест -> граф зависимостей
	resolveStart := time.Now()
	emitStage(req.Progress, StageResolve, StatusWorking, nil, 0)

	libs := req.Manifest.ActiveLibraries(req.Binding)
	graph, ok := resolveGraph(req.Manifest, libs, req.Reporter)
	result.Graph = graph
	if !ok {
		emitStage(req.Progress, StageResolve, StatusError, ErrFailed, time.Since(resolveStart))
		return result, ErrFailed
	}
	result.Link = graph.ResolveLink()
	for _, name := range result.Link.Includes {
		result.IncludeDirs = append(result.IncludeDirs, layout.genDir(name))
	}
	result.Timings.Set(StageResolve, time.Since(resolveStart))
	emitStage(req.Progress, StageResolve, StatusDone, nil, result.Timings.Duration(StageResolve))

	byName := make(map[string]manifest.Library, len(libs))
	for _, lib := range libs {
		byName[lib.Name] = lib
	}

	// generate: шаблоны -> конкретные исходники, по батчам графа
	generateStart := time.Now()
	cache := openCache(layout, req.Reporter)
	results, genOK := generateLibraries(req, graph, byName, layout, cache)
	result.Libraries = results
	result.Timings.Set(StageGenerate, time.Since(generateStart))
	if !genOK {
		emitStage(req.Progress, StageGenerate, StatusError, ErrFailed, result.Timings.Duration(StageGenerate))
		return result, ErrFailed
	}
	emitStage(req.Progress, StageGenerate, StatusDone, nil, result.Timings.Duration(StageGenerate))

	// compile: параллельно по единицам, --jobs ограничивает воркеры
	compileStart := time.Now()
	if err := compileLibraries(ctx, req, graph, layout, result.Libraries); err != nil {
		result.Timings.Set(StageCompile, time.Since(compileStart))
		emitStage(req.Progress, StageCompile, StatusError, err, result.Timings.Duration(StageCompile))
		if errors.Is(err, ErrFailed) {
			return result, ErrFailed
		}
		return result, err
	}
	result.Timings.Set(StageCompile, time.Since(compileStart))
	emitStage(req.Progress, StageCompile, StatusDone, nil, result.Timings.Duration(StageCompile))

	// archive: ar rcs по каждой библиотеке
	archiveStart := time.Now()
	if err := archiveLibraries(ctx, req, layout, result.Libraries); err != nil {
		result.Timings.Set(StageArchive, time.Since(archiveStart))
		emitStage(req.Progress, StageArchive, StatusError, err, result.Timings.Duration(StageArchive))
		return result, ErrFailed
	}
	result.Timings.Set(StageArchive, time.Since(archiveStart))
	emitStage(req.Progress, StageArchive, StatusDone, nil, result.Timings.Duration(StageArchive))

	// link: архивы с видимостью public/private -> потребитель
	linkStart := time.Now()
	emitTarget(req.Progress, graph.Consumer, StageLink, StatusWorking, nil, 0)
	outputPath, err := linkConsumer(ctx, req, layout, result.Link, result.Libraries)
	result.OutputPath = outputPath
	if err != nil {
		result.Timings.Set(StageLink, time.Since(linkStart))
		emitTarget(req.Progress, graph.Consumer, StageLink, StatusError, err, result.Timings.Duration(StageLink))
		return result, ErrFailed
	}
	result.Timings.Set(StageLink, time.Since(linkStart))
	emitTarget(req.Progress, graph.Consumer, StageLink, StatusDone, nil, result.Timings.Duration(StageLink))

	return result, nil
}

// resolveGraph maps manifest libraries onto graph targets and builds the
// dependency graph. Deps pointing at binding-gated libraries get their
// own diagnostic before the generic unknown-dependency one would fire.
func resolveGraph(m *manifest.Manifest, libs []manifest.Library, reporter diag.Reporter) (*buildgraph.Graph, bool) {
	all := make(map[string]struct{}, len(m.Libraries))
	for _, lib := range m.Libraries {
		all[lib.Name] = struct{}{}
	}
	active := make(map[string]struct{}, len(libs))
	for _, lib := range libs {
		active[lib.Name] = struct{}{}
	}

	gated := false
	for _, lib := range libs {
		for _, dep := range lib.Deps {
			if _, isActive := active[dep]; isActive {
				continue
			}
			if _, exists := all[dep]; exists {
				diag.ReportError(reporter, diag.GrfUnknownDependency, source.Span{},
					fmt.Sprintf("library %q depends on %q, which is excluded by the binding settings",
						lib.Name, dep)).Emit()
				gated = true
			}
		}
	}
	if gated {
		return nil, false
	}

	targets := make([]buildgraph.Target, len(libs))
	for i, lib := range libs {
		targets[i] = buildgraph.Target{
			Name:  lib.Name,
			Deps:  lib.Deps,
			Scope: lib.Scope,
			Into:  lib.Into,
		}
	}
	return buildgraph.Build(targets, m.Consumer.Name, reporter)
}

// openCache opens the fingerprint cache, degrading to nil (regenerate
// everything) when the directory cannot be created.
func openCache(layout paths, reporter diag.Reporter) *gencache.Cache {
	cache, err := gencache.Open(layout.fingerprintDir())
	if err != nil {
		diag.ReportWarning(reporter, diag.GenInfo, source.Span{},
			fmt.Sprintf("fingerprint cache unavailable, regenerating everything: %v", err)).Emit()
		return nil
	}
	return cache
}

// RemoveTargetDir удаляет target/<profile> целиком
func RemoveTargetDir(root, profile string) error {
	layout := paths{root: root, profile: profile}
	dir := layout.profileDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}
