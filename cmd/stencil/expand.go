// Package main implements the stencil CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stencil/internal/axis"
	"stencil/internal/expand"
	"stencil/internal/observ"
	"stencil/internal/source"
)

var expandCmd = &cobra.Command{
	Use:   "expand --template FILE --out DIR --axis DECL...",
	Short: "Expand a template across its substitution axes",
	Long: `Expand a parameterized template into one concrete source file per
combination of axis values. An axis declaration reads

    Token=TypeExpr!Tag;TypeExpr!Tag;...

where Token is the placeholder replaced in the template and Tag is the
suffix appended to each generated file name. The generated paths are
printed one per line, in enumeration order.`,
	RunE: runExpand,
}

func init() {
	expandCmd.Flags().String("template", "", "template file to expand")
	expandCmd.Flags().String("out", "", "output directory for generated units")
	expandCmd.Flags().StringArray("axis", nil, "axis declaration (repeatable, declaration order matters)")
	expandCmd.Flags().StringArray("token", nil, "declare a placeholder token the template must bind (repeatable)")
	expandCmd.Flags().Bool("dry-run", false, "validate and list the units without writing files")
	_ = expandCmd.MarkFlagRequired("template")
	_ = expandCmd.MarkFlagRequired("out")
	_ = expandCmd.MarkFlagRequired("axis")
}

func runExpand(cmd *cobra.Command, args []string) error {
	cleanupProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanupProf()

	template, err := cmd.Flags().GetString("template")
	if err != nil {
		return err
	}
	outDir, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	decls, err := cmd.Flags().GetStringArray("axis")
	if err != nil {
		return err
	}
	tokens, err := cmd.Flags().GetStringArray("token")
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	bag, reporter, err := newDiagnostics(cmd)
	if err != nil {
		return err
	}
	fs := source.NewFileSet()
	timer := observ.NewTimer()

	parsePhase := timer.Begin("parse-axes")
	set, ok := axis.ParseDecls(fs, "command line", decls, reporter)
	timer.End(parsePhase, fmt.Sprintf("%d axis(es)", len(set.Axes)))

	var result *expand.Result
	if ok {
		req := expand.Request{
			Template: template,
			OutDir:   outDir,
			Axes:     set,
			Tokens:   tokens,
		}
		expandPhase := timer.Begin("expand")
		if dryRun {
			result, err = expand.Plan(fs, req, reporter)
		} else {
			result, err = expand.Expand(fs, req, reporter)
		}
		units := 0
		if result != nil {
			units = len(result.Files)
		}
		timer.End(expandPhase, fmt.Sprintf("%d unit(s)", units))
	} else {
		err = expand.ErrFailed
	}

	printDiagnostics(cmd, bag, fs)
	if timingsEnabled(cmd) {
		fmt.Fprint(os.Stderr, timer.Summary())
	}
	if err != nil {
		return err
	}

	for _, path := range result.Files {
		if _, printErr := fmt.Fprintln(os.Stdout, path); printErr != nil {
			return printErr
		}
	}
	if !beQuiet(cmd) && dryRun {
		_, printErr := fmt.Fprintf(os.Stderr, "dry run: %d unit(s) planned, nothing written\n", len(result.Files))
		if printErr != nil {
			return printErr
		}
	}
	return nil
}
