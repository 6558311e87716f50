package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stencil/internal/buildpipeline"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [path]",
	Short: "Build a stencil project",
	Long:  "Build a stencil project using stencil.toml as the target definition: expand every library template, compile and archive the results, and link them into the consumer.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().Bool("release", false, "optimize for release")
	buildCmd.Flags().String("binding", "auto", "binding gate override (auto|on|off)")
	buildCmd.Flags().Int("jobs", 0, "max parallel compile workers (0=auto)")
	buildCmd.Flags().Bool("force", false, "ignore fingerprints and regenerate everything")
	buildCmd.Flags().Bool("print-commands", false, "print compiler and archiver command lines")
	buildCmd.Flags().String("ui", "auto", "user interface (auto|on|off)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cleanupProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanupProf()

	release, err := cmd.Flags().GetBool("release")
	if err != nil {
		return err
	}
	bindingValue, err := cmd.Flags().GetString("binding")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	printCommands, err := cmd.Flags().GetBool("print-commands")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}

	binding, ok := manifest.ParseBindingMode(bindingValue)
	if !ok {
		return fmt.Errorf("invalid --binding value %q (expected auto|on|off)", bindingValue)
	}
	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	startDir := "."
	if len(args) > 0 && args[0] != "" {
		startDir = args[0]
	}

	bag, reporter, err := newDiagnostics(cmd)
	if err != nil {
		return err
	}
	fs := source.NewFileSet()

	m, ok := manifest.Load(fs, startDir, reporter)
	if !ok {
		printDiagnostics(cmd, bag, fs)
		return buildpipeline.ErrFailed
	}

	profile := "debug"
	if release {
		profile = "release"
	}

	buildReq := buildpipeline.BuildRequest{
		Manifest:      m,
		FileSet:       fs,
		Reporter:      reporter,
		Profile:       profile,
		Binding:       binding,
		Jobs:          jobs,
		Force:         force,
		PrintCommands: printCommands,
	}

	libs := m.ActiveLibraries(binding)
	targets := make([]string, 0, len(libs)+1)
	for _, lib := range libs {
		targets = append(targets, lib.Name)
	}
	targets = append(targets, m.Consumer.Name)

	var buildRes buildpipeline.BuildResult
	if shouldUseTUI(uiModeValue) && len(targets) > 1 {
		buildRes, err = runBuildWithUI(cmd.Context(), "stencil build", targets, &buildReq)
	} else {
		buildRes, err = buildpipeline.Build(cmd.Context(), &buildReq)
	}

	printDiagnostics(cmd, bag, fs)
	if err != nil {
		printStageTimings(cmd, os.Stdout, buildRes.Timings)
		return err
	}

	printBuildSummary(cmd, m.Root, buildRes)
	printStageTimings(cmd, os.Stdout, buildRes.Timings)
	return nil
}

func printBuildSummary(cmd *cobra.Command, root string, res buildpipeline.BuildResult) {
	if beQuiet(cmd) {
		return
	}
	for _, lib := range res.Libraries {
		switch {
		case lib.FromCache && !lib.Compiled:
			fmt.Fprintf(os.Stdout, "  %s (cached)\n", lib.Name)
		case lib.Archive != "":
			fmt.Fprintf(os.Stdout, "  %s -> %s\n", lib.Name, formatPathForOutput(root, lib.Archive))
		default:
			fmt.Fprintf(os.Stdout, "  %s (headers only)\n", lib.Name)
		}
	}
	if res.OutputPath != "" {
		fmt.Fprintf(os.Stdout, "built %s\n", formatPathForOutput(root, res.OutputPath))
	}
}

func formatPathForOutput(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	if strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
