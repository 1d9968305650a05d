package pipeline

import "context"

// Step is one stage of the pipeline. The executor drives each step through
// Validate, Units, and then Process for every unit whose outputs are not
// already accounted for by a checkpoint.
//
// Implementations must be safe to re-run: Process receives the missing
// outputs for the unit and must produce exactly those files, writing through
// temp paths so a kill mid-step never leaves a plausible final artifact.
type Step interface {
	// Name returns the stable checkpoint identity for the step. Renaming
	// a step orphans its prior checkpoints, so names should never change
	// once a library has been processed.
	Name() string

	// OutputDirName returns the directory name the step writes under the
	// series library root.
	OutputDirName() string

	// Validate checks configuration and tool availability before any unit
	// is touched.
	Validate() error

	// Units enumerates the work units for this run in processing order.
	Units(ctx context.Context) ([]Item, error)

	// Outputs declares every file the step produces for the item. The
	// executor compares these against disk to decide skip, heal, or
	// reprocess.
	Outputs(item Item) []OutputSpec

	// LoadResources acquires any expensive shared state the step needs.
	// Called once per run, only when at least one unit will be processed.
	LoadResources(ctx context.Context) error

	// Process produces the missing outputs for the item.
	Process(ctx context.Context, item Item, missing []OutputSpec) error

	// Finalize releases resources acquired by LoadResources. Called once
	// after the last unit, even when some units failed.
	Finalize(ctx context.Context) error
}

// ScratchFiler is implemented by steps that write intermediate files outside
// their declared outputs. The executor records these in the in-progress
// marker so an interrupted run can name its leftovers.
type ScratchFiler interface {
	ScratchFiles(item Item) []string
}
