package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reeldex/internal/catalog"
	"reeldex/internal/textutil"
)

const searchDialogueWidth = 72

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		seriesName string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <term>...",
		Short: "Search indexed transcripts for dialogue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, cfg, err := ctx.findSeries(seriesName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			query := strings.Join(args, " ")

			catalogPath := cfg.CatalogPath()
			if _, err := os.Stat(catalogPath); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Fprintf(out, "No catalog at %s; run the index step first.\n", catalogPath)
					return nil
				}
				return fmt.Errorf("stat catalog: %w", err)
			}

			store, err := catalog.Open(catalogPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			hits, err := store.Search(cmd.Context(), textutil.Slug(series.Name), query, limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintf(out, "No matches for %q in %s.\n", query, textutil.DisplayTitle(series.Name))
				return nil
			}

			rows := make([][]string, 0, len(hits))
			for _, hit := range hits {
				rows = append(rows, []string{
					hit.UnitID,
					formatTimestamp(hit.StartSec),
					truncateText(hit.Text, searchDialogueWidth),
				})
			}
			fmt.Fprintf(out, "%d match(es) for %q in %s:\n", len(hits), query, textutil.DisplayTitle(series.Name))
			fmt.Fprintln(out, renderTable(
				[]string{"Episode", "At", "Dialogue"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Configured series to search")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of matches to return")
	_ = cmd.MarkFlagRequired("series")
	return cmd
}

func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// truncateText collapses whitespace and clips long dialogue so table rows
// stay on one line.
func truncateText(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
