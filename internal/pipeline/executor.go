package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reeldex/internal/logging"
	"reeldex/internal/state"
)

// Report tallies what the executor did with each considered unit. The
// buckets are disjoint; after an uninterrupted run they sum to Considered.
type Report struct {
	Considered  int
	Skipped     int
	Healed      int
	Reprocessed int
	Processed   int
	Failed      int
}

// Add folds another report into r.
func (r *Report) Add(other Report) {
	r.Considered += other.Considered
	r.Skipped += other.Skipped
	r.Healed += other.Healed
	r.Reprocessed += other.Reprocessed
	r.Processed += other.Processed
	r.Failed += other.Failed
}

// Executor drives a single step across all of its units, consulting the
// checkpoint store and the filesystem to decide which units still need work.
type Executor struct {
	store  *state.Store
	logger *slog.Logger
}

// NewExecutor returns an executor writing checkpoints through store.
func NewExecutor(store *state.Store, logger *slog.Logger) *Executor {
	return &Executor{
		store:  store,
		logger: logging.NewComponentLogger(logger, "executor"),
	}
}

type pendingUnit struct {
	item      Item
	missing   []OutputSpec
	reprocess bool
}

// Run executes one step: validate, enumerate units, classify each unit
// against outputs on disk and recorded checkpoints, then process the units
// that still need work. Per-unit failures are logged and counted without
// stopping the remaining units; configuration, resource, and persistence
// failures abort the run. The summary is always logged, interrupt included.
func (e *Executor) Run(ctx context.Context, step Step) (Report, error) {
	var report Report
	if step == nil {
		return report, errors.New("step is required")
	}
	if e.store == nil {
		return report, errors.New("checkpoint store is required")
	}

	name := step.Name()
	stepCtx := logging.WithStep(ctx, name)
	logger := logging.WithContext(stepCtx, e.logger)

	if err := step.Validate(); err != nil {
		return report, e.fail(logger, err)
	}

	units, err := step.Units(stepCtx)
	if err != nil {
		return report, e.fail(logger, fmt.Errorf("enumerate units: %w", err))
	}
	report.Considered = len(units)
	if len(units) == 0 {
		logger.Info("no units to process",
			logging.String(logging.FieldEventType, "step_complete"))
		return report, nil
	}

	logger.Info("step started",
		logging.String(logging.FieldEventType, "step_start"),
		logging.Int(logging.FieldUnitCount, len(units)))

	pending := make([]pendingUnit, 0, len(units))
	for _, item := range units {
		missing := Missing(step.Outputs(item))
		completed := e.store.IsStepCompleted(name, item.ID)
		switch {
		case len(missing) == 0 && completed:
			report.Skipped++
			logger.Debug("unit already complete",
				logging.String(logging.FieldUnit, item.ID))
		case len(missing) == 0:
			// Outputs on disk are ground truth. Adopt them as completed
			// instead of redoing the work.
			if err := e.store.MarkStepCompleted(name, item.ID); err != nil {
				return report, e.fail(logger, fmt.Errorf("record healed checkpoint: %w", err))
			}
			report.Healed++
			logger.Info("adopted existing outputs",
				logging.Args(append(logging.DecisionAttrs("checkpoint_heal", "skip", "outputs present without checkpoint"),
					logging.String(logging.FieldUnit, item.ID))...)...)
		case completed:
			logging.WarnWithContext(logger, "outputs missing despite checkpoint", "state_drift",
				append(logging.DecisionAttrs("state_drift", "reprocess", "filesystem wins over stale checkpoint"),
					logging.String(logging.FieldUnit, item.ID),
					logging.Int("missing_outputs", len(missing)),
					logging.String(logging.FieldImpact, "unit will be reprocessed"))...)
			pending = append(pending, pendingUnit{item: item, missing: missing, reprocess: true})
		default:
			pending = append(pending, pendingUnit{item: item, missing: missing})
		}
	}

	if len(pending) == 0 {
		logStepSummary(logger, report)
		return report, nil
	}

	runErr := e.processPending(stepCtx, logger, step, pending, &report)
	logStepSummary(logger, report)
	return report, runErr
}

func (e *Executor) processPending(ctx context.Context, logger *slog.Logger, step Step, pending []pendingUnit, report *Report) error {
	if err := step.LoadResources(ctx); err != nil {
		return e.fail(logger, err)
	}
	defer func() {
		if err := step.Finalize(ctx); err != nil {
			logger.Warn("step finalize failed", logging.Error(err))
		}
	}()

	name := step.Name()
	for index, unit := range pending {
		if err := ctx.Err(); err != nil {
			logger.Info("step interrupted",
				logging.String(logging.FieldEventType, "step_interrupted"),
				logging.Int("units_remaining", len(pending)-index))
			return fmt.Errorf("%s interrupted: %w", name, err)
		}

		item := unit.item
		unitCtx := logging.WithUnit(ctx, item.ID)
		unitLogger := logging.WithContext(unitCtx, logger)

		tempFiles := missingPaths(unit.missing)
		if scratch, ok := step.(ScratchFiler); ok {
			tempFiles = append(tempFiles, scratch.ScratchFiles(item)...)
		}
		if err := e.store.MarkStepStarted(name, item.ID, tempFiles); err != nil {
			return e.fail(unitLogger, fmt.Errorf("record step start: %w", err))
		}

		unitLogger.Info("unit processing",
			logging.String(logging.FieldEventType, "unit_start"),
			logging.Int(logging.FieldUnitIndex, index+1),
			logging.Int(logging.FieldUnitCount, len(pending)),
			logging.Int("missing_outputs", len(unit.missing)))

		if err := step.Process(unitCtx, item, unit.missing); err != nil {
			if cause := unitCtx.Err(); cause != nil || errors.Is(err, context.Canceled) {
				if cause == nil {
					cause = context.Canceled
				}
				unitLogger.Info("step interrupted",
					logging.String(logging.FieldEventType, "step_interrupted"),
					logging.Error(err))
				return fmt.Errorf("%s interrupted: %w", name, cause)
			}
			// The in-progress marker stays so the next run can report the
			// unit's temp files.
			report.Failed++
			logging.ErrorWithContext(unitLogger, "unit processing failed", "unit_failure",
				logging.Error(err))
			continue
		}

		if err := e.store.MarkStepCompleted(name, item.ID); err != nil {
			return e.fail(unitLogger, fmt.Errorf("record step completion: %w", err))
		}
		if unit.reprocess {
			report.Reprocessed++
		} else {
			report.Processed++
		}
		unitLogger.Info("unit completed",
			logging.String(logging.FieldEventType, "unit_complete"))
	}
	return nil
}

func (e *Executor) fail(logger *slog.Logger, err error) error {
	logging.ErrorWithContext(logger, "step failed", "step_failure", logging.Error(err))
	return err
}

func logStepSummary(logger *slog.Logger, report Report) {
	logger.Info("step finished",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Int("considered", report.Considered),
		logging.Int("skipped", report.Skipped),
		logging.Int("healed", report.Healed),
		logging.Int("reprocessed", report.Reprocessed),
		logging.Int("processed", report.Processed),
		logging.Int("failed", report.Failed))
}
