package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	root := &cobra.Command{
		Use:           "reeldex",
		Short:         "Resumable TV-series processing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			return ctx.ensureConfig()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Path to configuration file")

	root.AddCommand(
		newRunCommand(ctx),
		newStepsCommand(ctx),
		newStateCommand(ctx),
		newSearchCommand(ctx),
		newPreflightCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
