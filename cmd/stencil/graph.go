package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stencil/internal/buildgraph"
	"stencil/internal/buildpipeline"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

var graphCmd = &cobra.Command{
	Use:   "graph [flags] [path]",
	Short: "Show the resolved build graph",
	Long:  "Resolve stencil.toml into the library dependency graph and print the targets, their link scopes, the build batches and the consumer link line.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().String("format", "text", "output format (text|json)")
	graphCmd.Flags().String("binding", "auto", "binding gate override (auto|on|off)")
}

type graphTargetJSON struct {
	Name  string   `json:"name"`
	Scope string   `json:"scope"`
	Deps  []string `json:"deps,omitempty"`
	Into  string   `json:"into"`
}

type graphJSON struct {
	Consumer string            `json:"consumer"`
	Targets  []graphTargetJSON `json:"targets"`
	Batches  [][]string        `json:"batches"`
	Archives []string          `json:"link_archives"`
	Includes []string          `json:"link_includes"`
}

func runGraph(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	switch format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}
	bindingValue, err := cmd.Flags().GetString("binding")
	if err != nil {
		return err
	}
	binding, ok := manifest.ParseBindingMode(bindingValue)
	if !ok {
		return fmt.Errorf("invalid --binding value %q (expected auto|on|off)", bindingValue)
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

	libs := m.ActiveLibraries(binding)
	targets := make([]buildgraph.Target, len(libs))
	for i, lib := range libs {
		targets[i] = buildgraph.Target{
			Name:  lib.Name,
			Deps:  lib.Deps,
			Scope: lib.Scope,
			Into:  lib.Into,
		}
	}
	graph, ok := buildgraph.Build(targets, m.Consumer.Name, reporter)
	printDiagnostics(cmd, bag, fs)
	if !ok {
		return buildpipeline.ErrFailed
	}

	line := graph.ResolveLink()
	if format == "json" {
		return printGraphJSON(os.Stdout, libs, graph, line)
	}
	printGraphText(os.Stdout, libs, graph, line)
	return nil
}

func printGraphText(out *os.File, libs []manifest.Library, graph *buildgraph.Graph, line buildgraph.LinkLine) {
	fmt.Fprintf(out, "consumer: %s\n", graph.Consumer)
	fmt.Fprintln(out, "targets:")
	for _, lib := range libs {
		entry := fmt.Sprintf("  %s (%s)", lib.Name, lib.Scope)
		if len(lib.Deps) > 0 {
			entry += " <- " + strings.Join(lib.Deps, ", ")
		}
		fmt.Fprintln(out, entry)
	}
	fmt.Fprintln(out, "batches:")
	for i, batch := range graph.Topo.Batches {
		names := make([]string, len(batch))
		for j, id := range batch {
			names[j] = graph.Name(id)
		}
		fmt.Fprintf(out, "  %d: %s\n", i+1, strings.Join(names, ", "))
	}
	fmt.Fprintf(out, "link archives: %s\n", strings.Join(line.Archives, ", "))
	if len(line.Includes) > 0 {
		fmt.Fprintf(out, "link includes: %s\n", strings.Join(line.Includes, ", "))
	}
}

func printGraphJSON(out *os.File, libs []manifest.Library, graph *buildgraph.Graph, line buildgraph.LinkLine) error {
	payload := graphJSON{
		Consumer: graph.Consumer,
		Archives: line.Archives,
		Includes: line.Includes,
	}
	for _, lib := range libs {
		payload.Targets = append(payload.Targets, graphTargetJSON{
			Name:  lib.Name,
			Scope: lib.Scope.String(),
			Deps:  lib.Deps,
			Into:  lib.Into,
		})
	}
	for _, batch := range graph.Topo.Batches {
		names := make([]string, len(batch))
		for j, id := range batch {
			names[j] = graph.Name(id)
		}
		payload.Batches = append(payload.Batches, names)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
