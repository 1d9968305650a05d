package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reeldex/internal/logging"
	"reeldex/internal/state"
)

// Reconstruct rebuilds checkpoint records from the filesystem alone. Each
// step's units are checked against their declared outputs; every unit whose
// required outputs are all present gets a checkpoint stamped with the
// current time. No existing state file is consulted, so the result reflects
// artifact truth and nothing else. For an unchanged filesystem the returned
// (step, unit) membership is identical across calls.
func Reconstruct(ctx context.Context, steps []Step, logger *slog.Logger) ([]state.StepCheckpoint, error) {
	logger = logging.NewComponentLogger(logger, "reconstruct")
	var checkpoints []state.StepCheckpoint
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := step.Name()
		units, err := step.Units(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s units: %w", name, err)
		}
		adopted := 0
		for _, item := range units {
			if len(Missing(step.Outputs(item))) != 0 {
				continue
			}
			checkpoints = append(checkpoints, state.StepCheckpoint{
				Step:        name,
				UnitID:      item.ID,
				CompletedAt: time.Now().UTC(),
			})
			adopted++
		}
		logger.Debug("step outputs surveyed",
			logging.String(logging.FieldStep, name),
			logging.Int("units", len(units)),
			logging.Int("adopted", adopted))
	}
	return checkpoints, nil
}
