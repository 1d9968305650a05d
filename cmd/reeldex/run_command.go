package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"reeldex/internal/config"
	"reeldex/internal/indexer"
	"reeldex/internal/logging"
	"reeldex/internal/metrics"
	"reeldex/internal/pipeline"
	"reeldex/internal/preflight"
	"reeldex/internal/respool"
	"reeldex/internal/scenedetect"
	"reeldex/internal/state"
	"reeldex/internal/textutil"
	"reeldex/internal/transcode"
	"reeldex/internal/transcribe"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		seriesName  string
		skipSteps   []string
		fromScratch bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a series through every pipeline step",
		Long: `Run walks every episode of the series through transcode, detect_scenes,
transcribe, and index, checkpointing each completed unit. Interrupt it at any
point and the next run resumes from the checkpoint document; completed work is
skipped, partial work is redone.

Exit codes: 0 all units succeeded, 1 the run aborted, 2 the run finished but
some units failed, 130 interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, ctx, seriesName, skipSteps, fromScratch)
		},
	}

	cmd.Flags().StringVarP(&seriesName, "series", "s", "", "Configured series to process")
	cmd.Flags().StringSliceVar(&skipSteps, "skip", nil, "Step names to skip for this run")
	cmd.Flags().BoolVar(&fromScratch, "from-scratch", false, "Discard the checkpoint document before running")
	_ = cmd.MarkFlagRequired("series")

	return cmd
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, seriesName string, skipSteps []string, fromScratch bool) error {
	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	series, cfg, err := ctx.findSeries(seriesName)
	if err != nil {
		return err
	}

	if err := checkRunPreconditions(cfg); err != nil {
		return err
	}

	// One run per series at a time. The checkpoint document has no
	// cross-process coordination, so concurrent runs would corrupt it.
	lockPath := filepath.Join(cfg.Paths.StateDir, textutil.Slug(series.Name)+".lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another reeldex run for %q is already in progress", series.Name)
	}
	defer func() { _ = lock.Unlock() }()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
		go func() {
			if err := collector.StartServer(cfg.Metrics.ListenAddr); err != nil {
				logger.Warn("metrics endpoint stopped", logging.Error(err))
			}
		}()
	}

	store, err := state.Open(cfg.Paths.StateDir, series.Name, logger)
	if err != nil {
		return err
	}
	if fromScratch {
		if err := store.Cleanup(); err != nil {
			return err
		}
		logger.Info("checkpoint document discarded",
			logging.String(logging.FieldSeries, series.Name))
	}

	pool := respool.New(logger)

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:     store,
		Pool:      pool,
		Collector: collector,
		Logger:    logger,
		Steps:     buildSteps(cfg, series, pool, logger),
		Skips:     pipeline.ResolveSkips(skipSteps, series),
	})
	if err != nil {
		return err
	}

	report, runErr := runner.Run(runCtx)
	if code := pipeline.ExitCode(report, runErr); code != 0 {
		return &exitError{code: code, err: runErr}
	}
	return nil
}

// buildSteps assembles the pipeline in execution order. Skips are resolved
// elsewhere; the full chain is always constructed so skip decisions never
// change step wiring.
func buildSteps(cfg *config.Config, series config.Series, pool *respool.Pool, logger *slog.Logger) []pipeline.Step {
	return []pipeline.Step{
		transcode.New(cfg, series, logger),
		scenedetect.New(cfg, series, logger),
		transcribe.New(cfg, series, pool, logger),
		indexer.New(cfg, series, pool, logger),
	}
}

// checkRunPreconditions fails fast when the environment cannot support a
// run. Optional tools are not enforced here; the step that needs them
// validates availability when it actually runs.
func checkRunPreconditions(cfg *config.Config) error {
	failed := 0
	for _, result := range preflight.RunAll(cfg) {
		if !result.Passed {
			failed++
		}
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		if !status.Available && !status.Optional {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d preflight check(s) failed; run `reeldex preflight` for the full report", failed)
	}
	return nil
}
