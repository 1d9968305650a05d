package state

import (
	"slices"
	"time"
)

// StepCheckpoint asserts that a unit completed a step. Records are
// append-only; duplicates for the same pair are tolerated and any match
// satisfies a completion lookup.
type StepCheckpoint struct {
	Step        string    `json:"step"`
	UnitID      string    `json:"unit_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// InProgress marks a unit whose step began but never recorded completion.
// TempFiles lists the partial artifacts the step may have left behind.
// Markers are removed only by a matching completion, never expired.
type InProgress struct {
	Step      string    `json:"step"`
	UnitID    string    `json:"unit_id"`
	StartedAt time.Time `json:"started_at"`
	TempFiles []string  `json:"temp_files,omitempty"`
}

// ProcessingState is the checkpoint document persisted per series.
type ProcessingState struct {
	SeriesName      string           `json:"series_name"`
	StartedAt       time.Time        `json:"started_at"`
	LastCheckpoint  time.Time        `json:"last_checkpoint"`
	CompletedSteps  []StepCheckpoint `json:"completed_steps"`
	InProgressSteps []InProgress     `json:"in_progress,omitempty"`
}

// NewProcessingState returns an empty document for the named series.
func NewProcessingState(seriesName string) *ProcessingState {
	now := time.Now().UTC()
	return &ProcessingState{
		SeriesName:     seriesName,
		StartedAt:      now,
		LastCheckpoint: now,
		CompletedSteps: []StepCheckpoint{},
	}
}

// IsCompleted reports whether any checkpoint matches the pair.
func (p *ProcessingState) IsCompleted(step, unitID string) bool {
	for _, cp := range p.CompletedSteps {
		if cp.Step == step && cp.UnitID == unitID {
			return true
		}
	}
	return false
}

// MarkCompleted appends a checkpoint for the pair and drops any matching
// in-progress markers.
func (p *ProcessingState) MarkCompleted(step, unitID string) {
	p.CompletedSteps = append(p.CompletedSteps, StepCheckpoint{
		Step:        step,
		UnitID:      unitID,
		CompletedAt: time.Now().UTC(),
	})
	p.removeInProgress(step, unitID)
}

// MarkStarted appends an in-progress marker for the pair.
func (p *ProcessingState) MarkStarted(step, unitID string, tempFiles []string) {
	p.InProgressSteps = append(p.InProgressSteps, InProgress{
		Step:      step,
		UnitID:    unitID,
		StartedAt: time.Now().UTC(),
		TempFiles: slices.Clone(tempFiles),
	})
}

func (p *ProcessingState) removeInProgress(step, unitID string) {
	if len(p.InProgressSteps) == 0 {
		return
	}
	kept := p.InProgressSteps[:0]
	for _, entry := range p.InProgressSteps {
		if entry.Step == step && entry.UnitID == unitID {
			continue
		}
		kept = append(kept, entry)
	}
	p.InProgressSteps = kept
}
