package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reeldex/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Verify directories, disk space, and external tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.config
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := 0

			for _, line := range renderSectionHeader("Directories and disk", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range preflight.RunAll(cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("External tools", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, status := range preflight.CheckSystemDeps(cfg) {
				kind := statusOK
				detail := status.Command
				switch {
				case status.Available:
				case status.Optional:
					kind = statusWarn
					detail = status.Detail + "; required only when its step runs"
				default:
					kind = statusError
					detail = status.Detail
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
			}

			fmt.Fprintln(out)
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			fmt.Fprintln(out, "All preflight checks passed.")
			return nil
		},
	}
}
