package buildpipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"stencil/internal/buildgraph"
	"stencil/internal/diag"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

// compileUnit is one generated source scheduled for compilation.
type compileUnit struct {
	lib int // index into the results slice
	src string
	obj string
}

// compilableSource reports whether a generated file is fed to the
// compiler. Header templates expand into headers; those are exported via
// include dirs instead.
func compilableSource(name string) bool {
	switch filepath.Ext(name) {
	case ".c", ".cc", ".cpp", ".cxx":
		return true
	default:
		return false
	}
}

func objectName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".o"
}

// compileIncludeArgs assembles the -I flags for one library: manifest
// include dirs, the library's own generation dir, then the generation
// dirs of its direct dependencies.
func compileIncludeArgs(req *BuildRequest, graph *buildgraph.Graph, layout paths, lib string) []string {
	var args []string
	for _, dir := range req.Manifest.IncludeDirPaths() {
		args = append(args, "-I", dir)
	}
	args = append(args, "-I", layout.genDir(lib))
	id, ok := graph.Index.NameToID[lib]
	if !ok {
		return args
	}
	for _, depID := range graph.Dependencies(id) {
		args = append(args, "-I", layout.genDir(graph.Name(depID)))
	}
	return args
}

// compileLibraries compiles every generated source into an object file,
// in parallel across units. Jobs caps the worker count.
func compileLibraries(ctx context.Context, req *BuildRequest, graph *buildgraph.Graph, layout paths, results []LibraryResult) error {
	pic := req.Manifest.Consumer.Kind == manifest.KindShared

	// собираем план компиляции и решаем, кого можно пропустить
	var units []compileUnit
	for i := range results {
		res := &results[i]
		objDir := layout.objDir(res.Name)
		for _, file := range res.Files {
			if !compilableSource(file) {
				continue
			}
			res.Objects = append(res.Objects, filepath.Join(objDir, objectName(file)))
		}
		if len(res.Objects) == 0 {
			continue
		}
		if !req.Force && res.FromCache && allFilesExist(res.Objects) {
			continue
		}
		if err := os.MkdirAll(objDir, 0o755); err != nil {
			diag.ReportError(req.Reporter, diag.TlcCompileFailed, source.Span{},
				fmt.Sprintf("failed to create object dir for %q: %v", res.Name, err)).Emit()
			return ErrFailed
		}
		res.Compiled = true
		for _, file := range res.Files {
			if !compilableSource(file) {
				continue
			}
			units = append(units, compileUnit{
				lib: i,
				src: filepath.Join(res.GenDir, file),
				obj: filepath.Join(objDir, objectName(file)),
			})
		}
	}
	if len(units) == 0 {
		return nil
	}

	cc := req.Manifest.Toolchain.CC
	if _, err := exec.LookPath(cc); err != nil {
		diag.ReportError(req.Reporter, diag.TlcCompilerNotFound, source.Span{},
			fmt.Sprintf("compiler %q not found in PATH", cc)).Emit()
		return ErrFailed
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	for i := range results {
		if results[i].Compiled {
			emitTarget(req.Progress, results[i].Name, StageCompile, StatusWorking, nil, 0)
		}
	}

	// Ошибки и длительности пишутся по уникальному индексу юнита,
	// мьютекс не нужен
	errs := make([]error, len(units))
	durs := make([]time.Duration, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))

	for i, unit := range units {
		g.Go(func(i int, unit compileUnit) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					errs[i] = gctx.Err()
					return nil
				default:
				}
				start := time.Now()
				args := []string{"-c"}
				args = append(args, req.Manifest.Toolchain.CFlags...)
				if pic {
					args = append(args, "-fPIC")
				}
				args = append(args, compileIncludeArgs(req, graph, layout, results[unit.lib].Name)...)
				args = append(args, unit.src, "-o", unit.obj)
				errs[i] = runCommand(gctx, req.PrintCommands, cc, args...)
				durs[i] = time.Since(start)
				return nil
			}
		}(i, unit))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// диагностика в батчевом порядке, после завершения воркеров
	libErr := make(map[int]error, len(results))
	libDur := make(map[int]time.Duration, len(results))
	for i, unit := range units {
		libDur[unit.lib] += durs[i]
		if errs[i] == nil {
			continue
		}
		if _, seen := libErr[unit.lib]; !seen {
			libErr[unit.lib] = errs[i]
		}
		diag.ReportError(req.Reporter, diag.TlcCompileFailed, source.Span{},
			fmt.Sprintf("library %q: %s: %v", results[unit.lib].Name, filepath.Base(unit.src), errs[i])).Emit()
	}

	failed := false
	for i := range results {
		if !results[i].Compiled {
			continue
		}
		if err, bad := libErr[i]; bad {
			results[i].Failed = true
			failed = true
			emitTarget(req.Progress, results[i].Name, StageCompile, StatusError, err, libDur[i])
			continue
		}
		emitTarget(req.Progress, results[i].Name, StageCompile, StatusDone, nil, libDur[i])
	}
	if failed {
		return ErrFailed
	}
	return nil
}

// archiveLibraries packs each library's objects into a static archive.
func archiveLibraries(ctx context.Context, req *BuildRequest, layout paths, results []LibraryResult) error {
	ar := req.Manifest.Toolchain.AR
	needed := false
	for i := range results {
		if len(results[i].Objects) > 0 {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}
	if _, err := exec.LookPath(ar); err != nil {
		diag.ReportError(req.Reporter, diag.TlcArchiveFailed, source.Span{},
			fmt.Sprintf("archiver %q not found in PATH", ar)).Emit()
		return ErrFailed
	}

	for i := range results {
		res := &results[i]
		if len(res.Objects) == 0 {
			continue
		}
		res.Archive = layout.archivePath(res.Name)
		if !req.Force && !res.Compiled && fileExists(res.Archive) {
			continue
		}
		start := time.Now()
		emitTarget(req.Progress, res.Name, StageArchive, StatusWorking, nil, 0)
		if err := os.MkdirAll(filepath.Dir(res.Archive), 0o755); err != nil {
			diag.ReportError(req.Reporter, diag.TlcArchiveFailed, source.Span{},
				fmt.Sprintf("failed to create archive dir for %q: %v", res.Name, err)).Emit()
			emitTarget(req.Progress, res.Name, StageArchive, StatusError, err, time.Since(start))
			return ErrFailed
		}
		// старый архив убираем: ar rcs дописывает, а не замещает
		if err := os.Remove(res.Archive); err != nil && !os.IsNotExist(err) {
			diag.ReportError(req.Reporter, diag.TlcArchiveFailed, source.Span{},
				fmt.Sprintf("failed to replace archive for %q: %v", res.Name, err)).Emit()
			emitTarget(req.Progress, res.Name, StageArchive, StatusError, err, time.Since(start))
			return ErrFailed
		}
		args := append([]string{"rcs", res.Archive}, res.Objects...)
		if err := runCommand(ctx, req.PrintCommands, ar, args...); err != nil {
			diag.ReportError(req.Reporter, diag.TlcArchiveFailed, source.Span{},
				fmt.Sprintf("library %q: %v", res.Name, err)).Emit()
			emitTarget(req.Progress, res.Name, StageArchive, StatusError, err, time.Since(start))
			return ErrFailed
		}
		emitTarget(req.Progress, res.Name, StageArchive, StatusDone, nil, time.Since(start))
	}
	return nil
}

func allFilesExist(paths []string) bool {
	for _, p := range paths {
		if !fileExists(p) {
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// runCommand executes an external tool, echoing the command line when
// printCommands is set. Stderr is captured into the returned error.
func runCommand(ctx context.Context, printCommands bool, name string, args ...string) error {
	if printCommands {
		if _, err := fmt.Fprintf(os.Stdout, "%s %s\n", name, strings.Join(args, " ")); err != nil {
			return fmt.Errorf("failed to print command: %w", err)
		}
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %s", name, msg)
	}
	return nil
}
