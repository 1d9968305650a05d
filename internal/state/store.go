package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"reeldex/internal/fileutil"
	"reeldex/internal/logging"
	"reeldex/internal/textutil"
)

// Store owns the checkpoint document for a single series. All mutations
// persist the full document atomically before returning.
type Store struct {
	path   string
	series string
	logger *slog.Logger

	mu  sync.Mutex
	doc *ProcessingState
}

// Open prepares a store rooted at dir for the named series. Open does not
// touch the filesystem; the document is read or created by LoadOrCreate.
func Open(dir, seriesName string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	seriesName = strings.TrimSpace(seriesName)
	if seriesName == "" {
		return nil, errors.New("series name is required")
	}
	return &Store{
		path:   filepath.Join(dir, textutil.Slug(seriesName)+".state.json"),
		series: seriesName,
		logger: logging.NewComponentLogger(logger, "state"),
	}, nil
}

// Path returns the checkpoint document location.
func (s *Store) Path() string {
	return s.path
}

// Series returns the series name the store was opened for.
func (s *Store) Series() string {
	return s.series
}

// LoadOrCreate reads the checkpoint document from disk. When none exists a
// fresh document is created and persisted immediately so interrupted runs
// always leave a resumable file behind. The returned snapshot is a copy;
// mutations must go through the store. The boolean reports whether a
// document already existed on disk.
func (s *Store) LoadOrCreate() (*ProcessingState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("read state file %s: %w", s.path, err)
		}
		s.doc = NewProcessingState(s.series)
		if err := s.persistLocked(); err != nil {
			s.doc = nil
			return nil, false, err
		}
		s.logger.Debug("checkpoint document created",
			logging.String("path", s.path))
		return cloneState(s.doc), false, nil
	}

	doc := &ProcessingState{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, false, fmt.Errorf("state file %s is corrupt: %w (remove it or run 'reeldex state rebuild')", s.path, err)
	}
	if doc.CompletedSteps == nil {
		doc.CompletedSteps = []StepCheckpoint{}
	}
	if doc.SeriesName == "" {
		doc.SeriesName = s.series
	}
	s.doc = doc
	s.logger.Debug("checkpoint document loaded",
		logging.String("path", s.path),
		logging.Int("checkpoints", len(doc.CompletedSteps)),
		logging.Int("in_progress", len(doc.InProgressSteps)))
	return cloneState(s.doc), true, nil
}

// IsStepCompleted reports whether the unit already completed the step.
func (s *Store) IsStepCompleted(step, unitID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return false
	}
	return s.doc.IsCompleted(step, unitID)
}

// CompletedUnits lists the units recorded as complete for the step, in
// first-recorded order with duplicate checkpoints collapsed.
func (s *Store) CompletedUnits(step string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	var units []string
	for _, cp := range s.doc.CompletedSteps {
		if cp.Step != step {
			continue
		}
		if !slices.Contains(units, cp.UnitID) {
			units = append(units, cp.UnitID)
		}
	}
	return units
}

// MarkStepStarted records an in-progress marker naming the temp files the
// step is about to produce, then persists the document.
func (s *Store) MarkStepStarted(step, unitID string, tempFiles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return errors.New("checkpoint document not loaded")
	}
	s.doc.MarkStarted(step, unitID, tempFiles)
	return s.persistLocked()
}

// MarkStepCompleted appends a checkpoint for the unit, clears any matching
// in-progress markers, and persists the document.
func (s *Store) MarkStepCompleted(step, unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return errors.New("checkpoint document not loaded")
	}
	s.doc.MarkCompleted(step, unitID)
	return s.persistLocked()
}

// InProgressFor returns the markers recorded for one step.
func (s *Store) InProgressFor(step string) []InProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	var out []InProgress
	for _, entry := range s.doc.InProgressSteps {
		if entry.Step != step {
			continue
		}
		entry.TempFiles = slices.Clone(entry.TempFiles)
		out = append(out, entry)
	}
	return out
}

// Orphans returns all in-progress markers currently recorded. Right after
// LoadOrCreate these are by definition leftovers from an interrupted run.
func (s *Store) Orphans() []InProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	out := make([]InProgress, len(s.doc.InProgressSteps))
	for i, entry := range s.doc.InProgressSteps {
		out[i] = entry
		out[i].TempFiles = slices.Clone(entry.TempFiles)
	}
	return out
}

// Seed replaces the document with a fresh one holding the given checkpoints
// and persists it. Used to adopt completions reconstructed from outputs
// already on disk.
func (s *Store) Seed(checkpoints []StepCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := NewProcessingState(s.series)
	doc.CompletedSteps = slices.Clone(checkpoints)
	s.doc = doc
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.logger.Debug("checkpoint document seeded",
		logging.String("path", s.path),
		logging.Int("checkpoints", len(checkpoints)))
	return nil
}

// Cleanup deletes the persisted document entirely. The store must be
// reloaded with LoadOrCreate before further use.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state file %s: %w", s.path, err)
	}
	s.doc = nil
	s.logger.Debug("checkpoint document removed",
		logging.String("path", s.path))
	return nil
}

// Snapshot returns a copy of the current document for display.
func (s *Store) Snapshot() (*ProcessingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, errors.New("checkpoint document not loaded")
	}
	return cloneState(s.doc), nil
}

func (s *Store) persistLocked() error {
	s.doc.LastCheckpoint = time.Now().UTC()
	if err := fileutil.WriteJSONAtomic(s.path, s.doc); err != nil {
		return fmt.Errorf("persist state file: %w", err)
	}
	s.logger.Debug("checkpoint document persisted",
		logging.String("path", s.path),
		logging.Int("in_progress", len(s.doc.InProgressSteps)))
	return nil
}

func cloneState(p *ProcessingState) *ProcessingState {
	clone := &ProcessingState{
		SeriesName:     p.SeriesName,
		StartedAt:      p.StartedAt,
		LastCheckpoint: p.LastCheckpoint,
		CompletedSteps: slices.Clone(p.CompletedSteps),
	}
	if len(p.InProgressSteps) > 0 {
		clone.InProgressSteps = make([]InProgress, len(p.InProgressSteps))
		for i, entry := range p.InProgressSteps {
			clone.InProgressSteps[i] = entry
			clone.InProgressSteps[i].TempFiles = slices.Clone(entry.TempFiles)
		}
	}
	return clone
}
