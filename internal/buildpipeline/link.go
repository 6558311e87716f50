package buildpipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"stencil/internal/buildgraph"
	"stencil/internal/diag"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

// ValidateLink rejects a link line that contributes nothing to the
// consumer: every library private-scoped with no archives would leave
// the consumer empty.
func ValidateLink(consumer string, line buildgraph.LinkLine) error {
	if len(line.Archives) == 0 && len(line.Includes) == 0 {
		return fmt.Errorf("consumer %q links nothing: no library contributes an archive or headers", consumer)
	}
	return nil
}

// linkConsumer produces the consumer artefact from the resolved link
// line. Shared consumers are linked with the whole archive contents so
// every instantiated symbol stays visible; static consumers are packed
// from the member objects directly, since ar does not merge archives.
func linkConsumer(ctx context.Context, req *BuildRequest, layout paths, line buildgraph.LinkLine, results []LibraryResult) (string, error) {
	consumer := req.Manifest.Consumer.Name
	if err := ValidateLink(consumer, line); err != nil {
		diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{}, err.Error()).Emit()
		return "", err
	}

	byName := make(map[string]*LibraryResult, len(results))
	for i := range results {
		byName[results[i].Name] = &results[i]
	}

	var archives []string
	var objects []string
	for _, name := range line.Archives {
		res, ok := byName[name]
		if !ok || res.Archive == "" {
			// библиотека без компилируемых единиц отдаёт только заголовки
			continue
		}
		archives = append(archives, res.Archive)
		objects = append(objects, res.Objects...)
	}

	outputPath := layout.outputPath(consumer, req.Manifest.Consumer.Kind)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		err = fmt.Errorf("failed to create output dir: %w", err)
		diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{}, err.Error()).Emit()
		return outputPath, err
	}

	if len(archives) == 0 {
		// заголовочный потребитель: линковать нечего, артефакт не нужен
		return "", nil
	}

	switch req.Manifest.Consumer.Kind {
	case manifest.KindStatic:
		ar := req.Manifest.Toolchain.AR
		if _, err := exec.LookPath(ar); err != nil {
			err = fmt.Errorf("archiver %q not found in PATH", ar)
			diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{}, err.Error()).Emit()
			return outputPath, err
		}
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			err = fmt.Errorf("failed to replace %s: %w", outputPath, err)
			diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{}, err.Error()).Emit()
			return outputPath, err
		}
		args := append([]string{"rcs", outputPath}, objects...)
		if err := runCommand(ctx, req.PrintCommands, ar, args...); err != nil {
			diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{},
				fmt.Sprintf("consumer %q: %v", consumer, err)).Emit()
			return outputPath, err
		}

	default:
		cc := req.Manifest.Toolchain.CC
		if _, err := exec.LookPath(cc); err != nil {
			err = fmt.Errorf("compiler %q not found in PATH", cc)
			diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{}, err.Error()).Emit()
			return outputPath, err
		}
		args := sharedLinkArgs(outputPath, archives, req.Manifest.Toolchain.LDFlags)
		if err := runCommand(ctx, req.PrintCommands, cc, args...); err != nil {
			diag.ReportError(req.Reporter, diag.TlcLinkFailed, source.Span{},
				fmt.Sprintf("consumer %q: %v", consumer, err)).Emit()
			return outputPath, err
		}
	}

	return outputPath, nil
}

// sharedLinkArgs builds the command line for a shared consumer. With no
// object on the line the linker would pull nothing out of the archives,
// so on ELF platforms the archives are wrapped in --whole-archive.
func sharedLinkArgs(outputPath string, archives, ldflags []string) []string {
	args := []string{"-shared", "-o", outputPath}
	switch runtime.GOOS {
	case "darwin":
		for _, archive := range archives {
			args = append(args, "-Wl,-force_load,"+archive)
		}
	default:
		args = append(args, "-Wl,--whole-archive")
		args = append(args, archives...)
		args = append(args, "-Wl,--no-whole-archive")
	}
	if runtime.GOOS != "windows" {
		args = append(args, "-pthread")
	}
	args = append(args, ldflags...)
	return args
}
