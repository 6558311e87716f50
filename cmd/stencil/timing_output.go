package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"stencil/internal/buildpipeline"
)

// printStageTimings prints per-stage durations when --timings is set.
func printStageTimings(cmd *cobra.Command, out io.Writer, timings buildpipeline.Timings) {
	if out == nil {
		return
	}
	if !timingsEnabled(cmd) {
		return
	}
	for _, stage := range buildpipeline.Stages() {
		if !timings.Has(stage) {
			continue
		}
		if _, printErr := fmt.Fprintf(out, "%-8s %.1f ms\n", stage, toMillis(timings.Duration(stage))); printErr != nil {
			panic(printErr)
		}
	}
	if _, printErr := fmt.Fprintf(out, "total    %.1f ms\n", toMillis(timings.Total())); printErr != nil {
		panic(printErr)
	}
}

func timingsEnabled(cmd *cobra.Command) bool {
	enabled, err := cmd.Root().PersistentFlags().GetBool("timings")
	return err == nil && enabled
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
