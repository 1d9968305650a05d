package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reeldex/internal/logging"
	"reeldex/internal/metrics"
	"reeldex/internal/respool"
	"reeldex/internal/state"
)

// Runner drives every registered step for one series, in order, sharing a
// single checkpoint store and resource pool across the run.
type Runner struct {
	store     *state.Store
	pool      *respool.Pool
	collector *metrics.Collector
	executor  *Executor
	base      *slog.Logger
	logger    *slog.Logger
	steps     []Step
	skips     map[string]struct{}
}

// RunnerOptions configures a pipeline run.
type RunnerOptions struct {
	Store     *state.Store
	Pool      *respool.Pool
	Collector *metrics.Collector
	Logger    *slog.Logger
	Steps     []Step
	Skips     map[string]struct{}
}

// NewRunner validates the wiring for a run.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if len(opts.Steps) == 0 {
		return nil, errors.New("at least one step is required")
	}
	return &Runner{
		store:     opts.Store,
		pool:      opts.Pool,
		collector: opts.Collector,
		executor:  NewExecutor(opts.Store, opts.Logger),
		base:      opts.Logger,
		logger:    logging.NewComponentLogger(opts.Logger, "runner"),
		steps:     opts.Steps,
		skips:     opts.Skips,
	}, nil
}

// Run executes the pipeline once. When no checkpoint document exists yet the
// filesystem is surveyed first so outputs from untracked runs are adopted
// instead of redone. Steps run sequentially; the first fatal error stops the
// run, per-unit failures do not. The pool is flushed on every exit path.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var total Report

	runID := uuid.NewString()
	ctx = logging.WithRunID(logging.WithSeries(ctx, r.store.Series()), runID)
	logger := logging.WithContext(ctx, r.logger)

	if r.pool != nil {
		defer r.pool.Reset()
	}

	doc, existed, err := r.store.LoadOrCreate()
	if err != nil {
		r.collector.IncRun("failed")
		return total, err
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("steps", len(r.steps)),
		logging.Bool("resumed", existed))

	if !existed {
		if err := r.adoptExistingOutputs(ctx, logger); err != nil {
			r.collector.IncRun(runOutcome(total, err))
			return total, err
		}
	}
	r.reportOrphans(logger, doc)

	for _, step := range r.steps {
		name := step.Name()
		if _, skip := r.skips[name]; skip {
			logger.Info("step skipped by configuration",
				logging.String(logging.FieldStep, name))
			continue
		}

		started := time.Now()
		report, err := r.executor.Run(ctx, step)
		r.collector.ObserveStepDuration(name, time.Since(started))
		r.recordUnits(name, report)
		total.Add(report)
		if err != nil {
			r.collector.IncRun(runOutcome(total, err))
			r.logRunSummary(logger, total, err)
			return total, err
		}
	}

	r.collector.IncRun(runOutcome(total, nil))
	r.logRunSummary(logger, total, nil)
	return total, nil
}

// adoptExistingOutputs seeds a brand-new checkpoint document from whatever
// finished artifacts are already on disk, so a lost or deleted state file
// does not force the whole library through the pipeline again.
func (r *Runner) adoptExistingOutputs(ctx context.Context, logger *slog.Logger) error {
	checkpoints, err := Reconstruct(ctx, r.steps, r.base)
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		return nil
	}
	if err := r.store.Seed(checkpoints); err != nil {
		return err
	}
	logger.Info("checkpoints rebuilt from outputs on disk",
		logging.String(logging.FieldEventType, "state_reconstructed"),
		logging.Int("checkpoints", len(checkpoints)))
	return nil
}

// reportOrphans surfaces markers left by an interrupted run. The temp files
// they name are reported, never deleted; whether a partial artifact is worth
// salvaging is the operator's call.
func (r *Runner) reportOrphans(logger *slog.Logger, doc *state.ProcessingState) {
	for _, marker := range doc.InProgressSteps {
		logging.WarnWithContext(logger, "unit was interrupted in a previous run", "orphaned_marker",
			logging.String(logging.FieldStep, marker.Step),
			logging.String(logging.FieldUnit, marker.UnitID),
			logging.Time("started_at", marker.StartedAt),
			logging.Any("temp_files", marker.TempFiles),
			logging.String(logging.FieldImpact, "unit will be reprocessed; temp files are left for inspection"))
	}
}

func (r *Runner) recordUnits(step string, report Report) {
	r.collector.AddUnits(step, "skipped", report.Skipped)
	r.collector.AddUnits(step, "healed", report.Healed)
	r.collector.AddUnits(step, "reprocessed", report.Reprocessed)
	r.collector.AddUnits(step, "processed", report.Processed)
	r.collector.AddUnits(step, "failed", report.Failed)
}

func (r *Runner) logRunSummary(logger *slog.Logger, total Report, err error) {
	attrs := []logging.Attr{
		logging.Int("considered", total.Considered),
		logging.Int("skipped", total.Skipped),
		logging.Int("healed", total.Healed),
		logging.Int("reprocessed", total.Reprocessed),
		logging.Int("processed", total.Processed),
		logging.Int("failed", total.Failed),
	}
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		attrs = append(attrs, logging.String(logging.FieldEventType, "run_interrupted"))
		logger.Info("run interrupted", logging.Args(attrs...)...)
	case err != nil:
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			append(attrs, logging.Error(err))...)
	default:
		attrs = append(attrs, logging.String(logging.FieldEventType, "run_complete"))
		logger.Info("run finished", logging.Args(attrs...)...)
	}
}

func runOutcome(total Report, err error) string {
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		return "interrupted"
	case err != nil:
		return "failed"
	case total.Failed > 0:
		return "partial"
	default:
		return "success"
	}
}
