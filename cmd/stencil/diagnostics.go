package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stencil/internal/diag"
	"stencil/internal/diagfmt"
	"stencil/internal/source"
)

// newDiagnostics allocates the bag and reporter every command funnels its
// diagnostics through. The cap comes from --max-diagnostics.
func newDiagnostics(cmd *cobra.Command) (*diag.Bag, diag.Reporter, error) {
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	bag := diag.NewBag(maxDiagnostics)
	return bag, diag.BagReporter{Bag: bag}, nil
}

// useColor resolves the persistent --color flag against the terminal.
func useColor(cmd *cobra.Command) bool {
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false
	}
	return colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))
}

func beQuiet(cmd *cobra.Command) bool {
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return false
	}
	return quiet
}

// printDiagnostics renders whatever accumulated in the bag to stderr.
// Warnings and infos are dropped under --quiet; errors always print.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, fs *source.FileSet) {
	if bag.Len() == 0 {
		return
	}
	bag.Sort()
	bag.Dedup()

	printable := bag
	if beQuiet(cmd) {
		printable = diag.NewBag(bag.Len())
		for _, d := range bag.Items() {
			if d.Severity >= diag.SevError {
				printable.Add(d)
			}
		}
		if printable.Len() == 0 {
			return
		}
	}

	format, err := cmd.Root().PersistentFlags().GetString("diag-format")
	if err != nil {
		format = "pretty"
	}
	switch format {
	case "json":
		_ = diagfmt.JSON(os.Stderr, printable, fs, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         diagfmt.PathModeRelative,
			IncludeNotes:     true,
			IncludeFixes:     true,
		})
	case "short":
		items := printable.Items()
		diags := make([]*diag.Diagnostic, len(items))
		for i := range items {
			diags[i] = &items[i]
		}
		if out := diag.FormatShortDiagnostics(diags, fs, true); out != "" {
			fmt.Fprintln(os.Stderr, out)
		}
	default:
		opts := diagfmt.PrettyOpts{
			Color:       useColor(cmd),
			Context:     1,
			PathMode:    diagfmt.PathModeAuto,
			ShowNotes:   true,
			ShowFixes:   true,
			ShowPreview: true,
		}
		diagfmt.Pretty(os.Stderr, printable, fs, opts)
	}
}
