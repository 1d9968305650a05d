package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reeldex/internal/config"
	"reeldex/internal/logging"
	"reeldex/internal/respool"
)

func newStepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List pipeline steps in execution order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.config
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}

			nop := logging.NewNop()
			steps := buildSteps(cfg, config.Series{}, respool.New(nop), nop)

			rows := make([][]string, 0, len(steps))
			for i, step := range steps {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					step.Name(),
					step.OutputDirName(),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Step", "Output directory"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintln(out, "Skip steps per run with --skip, or per series with skip_steps in selective mode.")
			return nil
		},
	}
}
