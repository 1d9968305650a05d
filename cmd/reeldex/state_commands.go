package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reeldex/internal/config"
	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/respool"
	"reeldex/internal/state"
	"reeldex/internal/textutil"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage checkpoint documents",
	}
	cmd.AddCommand(
		newStateShowCommand(ctx),
		newStateOrphansCommand(ctx),
		newStateResetCommand(ctx),
		newStateRebuildCommand(ctx),
	)
	return cmd
}

func newStateShowCommand(ctx *commandContext) *cobra.Command {
	var seriesName string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the checkpoint document for a series",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, series, _, err := openStateStore(ctx, seriesName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			exists, err := stateDocumentExists(store)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintf(out, "No checkpoint document for %q yet; it is created on the first run.\n", series.Name)
				return nil
			}

			doc, _, err := store.LoadOrCreate()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Series:          %s\n", textutil.DisplayTitle(doc.SeriesName))
			fmt.Fprintf(out, "Document:        %s\n", store.Path())
			fmt.Fprintf(out, "Started:         %s\n", formatTime(doc.StartedAt))
			fmt.Fprintf(out, "Last checkpoint: %s\n", formatTime(doc.LastCheckpoint))
			fmt.Fprintln(out)

			if len(doc.CompletedSteps) == 0 {
				fmt.Fprintln(out, "No completed checkpoints recorded.")
			} else {
				fmt.Fprintln(out, renderTable(
					[]string{"Step", "Units", "Last completed"},
					buildCheckpointRows(doc),
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
			}

			if n := len(doc.InProgressSteps); n > 0 {
				fmt.Fprintf(out, "\n%d unit(s) were interrupted mid-step; see `reeldex state orphans --series %q`.\n", n, series.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Configured series to inspect")
	_ = cmd.MarkFlagRequired("series")
	return cmd
}

func newStateOrphansCommand(ctx *commandContext) *cobra.Command {
	var seriesName string

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List units interrupted mid-step in a previous run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, series, _, err := openStateStore(ctx, seriesName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			exists, err := stateDocumentExists(store)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintf(out, "No checkpoint document for %q yet; it is created on the first run.\n", series.Name)
				return nil
			}
			if _, _, err := store.LoadOrCreate(); err != nil {
				return err
			}

			orphans := store.Orphans()
			if len(orphans) == 0 {
				fmt.Fprintln(out, "No interrupted units recorded.")
				return nil
			}

			rows := make([][]string, 0, len(orphans))
			for _, marker := range orphans {
				tempFiles := "-"
				if len(marker.TempFiles) > 0 {
					tempFiles = strings.Join(marker.TempFiles, ", ")
				}
				rows = append(rows, []string{marker.Step, marker.UnitID, formatTime(marker.StartedAt), tempFiles})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Step", "Unit", "Started", "Temp files"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			fmt.Fprintln(out, "The next run reprocesses these units. Temp files are reported, never deleted; inspect or remove them by hand.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Configured series to inspect")
	_ = cmd.MarkFlagRequired("series")
	return cmd
}

func newStateResetCommand(ctx *commandContext) *cobra.Command {
	var seriesName string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the checkpoint document for a series",
		Long: `Reset removes the checkpoint document. Output files are left in place, so
the next run surveys the filesystem and adopts finished artifacts before
reprocessing anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, series, _, err := openStateStore(ctx, seriesName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			exists, err := stateDocumentExists(store)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintf(out, "No checkpoint document for %q; nothing to remove.\n", series.Name)
				return nil
			}

			if err := store.Cleanup(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed checkpoint document %s.\n", store.Path())
			fmt.Fprintln(out, "The next run will rebuild it from the outputs on disk.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Configured series to reset")
	_ = cmd.MarkFlagRequired("series")
	return cmd
}

func newStateRebuildCommand(ctx *commandContext) *cobra.Command {
	var seriesName string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the checkpoint document from outputs on disk",
		Long: `Rebuild discards the checkpoint document and reconstructs it by surveying
each step's output directory. Every unit whose required outputs are present
and non-empty is recorded as completed. Useful after editing the library by
hand or restoring it from a backup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, series, cfg, err := openStateStore(ctx, seriesName)
			if err != nil {
				return err
			}

			nop := logging.NewNop()
			steps := buildSteps(cfg, series, respool.New(nop), nop)

			checkpoints, err := pipeline.Reconstruct(cmd.Context(), steps, nop)
			if err != nil {
				return err
			}

			if err := store.Cleanup(); err != nil {
				return err
			}
			if err := store.Seed(checkpoints); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rebuilt %s from outputs on disk: %d checkpoint(s) adopted.\n", store.Path(), len(checkpoints))
			return nil
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Configured series to rebuild")
	_ = cmd.MarkFlagRequired("series")
	return cmd
}

// openStateStore resolves the series and opens its checkpoint store with a
// silent logger so command output stays clean.
func openStateStore(ctx *commandContext, seriesName string) (*state.Store, config.Series, *config.Config, error) {
	series, cfg, err := ctx.findSeries(seriesName)
	if err != nil {
		return nil, config.Series{}, nil, err
	}
	store, err := state.Open(cfg.Paths.StateDir, series.Name, logging.NewNop())
	if err != nil {
		return nil, config.Series{}, nil, err
	}
	return store, series, cfg, nil
}

// stateDocumentExists reports whether the document is already on disk.
// Display commands check this before LoadOrCreate, which would otherwise
// persist a fresh document as a side effect of reading.
func stateDocumentExists(store *state.Store) (bool, error) {
	if _, err := os.Stat(store.Path()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat state file: %w", err)
	}
	return true, nil
}

func buildCheckpointRows(doc *state.ProcessingState) [][]string {
	type stepSummary struct {
		units map[string]struct{}
		last  time.Time
	}

	var order []string
	byStep := make(map[string]*stepSummary)
	for _, cp := range doc.CompletedSteps {
		summary, ok := byStep[cp.Step]
		if !ok {
			summary = &stepSummary{units: make(map[string]struct{})}
			byStep[cp.Step] = summary
			order = append(order, cp.Step)
		}
		summary.units[cp.UnitID] = struct{}{}
		if cp.CompletedAt.After(summary.last) {
			summary.last = cp.CompletedAt
		}
	}

	rows := make([][]string, 0, len(order))
	for _, step := range order {
		summary := byStep[step]
		rows = append(rows, []string{step, strconv.Itoa(len(summary.units)), formatTime(summary.last)})
	}
	return rows
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "never"
	}
	return value.UTC().Format(time.RFC3339)
}
