package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reeldex/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.config
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}
			out := cmd.OutOrStdout()

			source := ctx.configPath
			if !ctx.configExists {
				source = fmt.Sprintf("defaults (no file at %s)", ctx.configPath)
			}
			fmt.Fprintf(out, "Config:    %s\n", source)
			fmt.Fprintf(out, "Library:   %s\n", cfg.Paths.LibraryDir)
			fmt.Fprintf(out, "State:     %s\n", cfg.Paths.StateDir)
			fmt.Fprintf(out, "Logs:      %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Catalog:   %s\n", cfg.CatalogPath())
			fmt.Fprintf(out, "Logging:   %s at %s\n", cfg.Logging.Format, cfg.Logging.Level)
			metricsValue := yesNo(cfg.Metrics.Enabled)
			if cfg.Metrics.Enabled {
				metricsValue = fmt.Sprintf("yes (%s)", cfg.Metrics.ListenAddr)
			}
			fmt.Fprintf(out, "Metrics:   %s\n", metricsValue)
			fmt.Fprintln(out)

			if len(cfg.Series) == 0 {
				fmt.Fprintln(out, "No series configured. Add [[series]] entries to the configuration file.")
				return nil
			}

			rows := make([][]string, 0, len(cfg.Series))
			for _, series := range cfg.Series {
				skips := "-"
				if len(series.SkipSteps) > 0 {
					skips = strings.Join(series.SkipSteps, ", ")
				}
				rows = append(rows, []string{series.Name, series.Mode, series.SourceDir, skips})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Series", "Mode", "Source", "Skip steps"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(ctx.configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Point library_dir and your [[series]] sources at real directories before running reeldex.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}
