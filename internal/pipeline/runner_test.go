package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/respool"
	"reeldex/internal/state"
)

func newRunnerStore(t *testing.T, dir string) *state.Store {
	t.Helper()
	store, err := state.Open(filepath.Join(dir, "state"), "The Expanse", logging.NewNop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	return store
}

func TestRunnerProcessesStepsInOrder(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)

	var order []string
	record := func(ctx context.Context, item pipeline.Item) error {
		step, _ := logging.StepFromContext(ctx)
		order = append(order, step+":"+item.ID)
		return nil
	}
	first := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01", "s01e02"}, onUnit: record}
	second := &fakeStep{name: "detect_scenes", dir: dir, unitIDs: []string{"s01e01", "s01e02"}, onUnit: record}

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Logger: logging.NewNop(),
		Steps:  []pipeline.Step{first, second},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	total, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := pipeline.Report{Considered: 4, Processed: 4}
	if total != want {
		t.Fatalf("total = %+v, want %+v", total, want)
	}
	wantOrder := []string{
		"transcode:s01e01", "transcode:s01e02",
		"detect_scenes:s01e01", "detect_scenes:s01e02",
	}
	if fmt.Sprint(order) != fmt.Sprint(wantOrder) {
		t.Fatalf("order = %v, want %v", order, wantOrder)
	}
}

func TestRunnerSkipsConfiguredSteps(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)
	transcode := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01"}}
	transcribe := &fakeStep{name: "transcribe", dir: dir, unitIDs: []string{"s01e01"}}

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Logger: logging.NewNop(),
		Steps:  []pipeline.Step{transcode, transcribe},
		Skips:  map[string]struct{}{"transcribe": {}},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	total, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if total.Considered != 1 {
		t.Fatalf("skipped step's units must not be considered, total = %+v", total)
	}
	if len(transcribe.processed) != 0 {
		t.Fatalf("skipped step was processed: %v", transcribe.processed)
	}
	if store.IsStepCompleted("transcribe", "s01e01") {
		t.Fatal("skipped step must not be checkpointed")
	}
}

func TestRunnerRebuildsStateFromOutputs(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)
	step := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01", "s01e02"}}

	// s01e01's output survives from a run whose state file was lost.
	writeOutput(t, step.outputPath("s01e01"), "encoded")

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Logger: logging.NewNop(),
		Steps:  []pipeline.Step{step},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	total, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// The rebuilt checkpoint turns s01e01 into a silent skip, not a heal.
	want := pipeline.Report{Considered: 2, Skipped: 1, Processed: 1}
	if total != want {
		t.Fatalf("total = %+v, want %+v", total, want)
	}
	if len(step.processed) != 1 || step.processed[0] != "s01e02" {
		t.Fatalf("processed = %v, want [s01e02]", step.processed)
	}
}

func TestRunnerStopsOnFatalStepError(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)
	broken := &fakeStep{
		name:    "transcribe",
		dir:     dir,
		unitIDs: []string{"s01e01"},
		loadErr: pipeline.Wrap(pipeline.ErrResource, "transcribe", "load model", "model missing", nil),
	}
	after := &fakeStep{name: "build_index", dir: dir, unitIDs: []string{"s01e01"}}

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Logger: logging.NewNop(),
		Steps:  []pipeline.Step{broken, after},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	total, err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !errors.Is(err, pipeline.ErrResource) {
		t.Fatalf("expected resource marker, got %v", err)
	}
	if len(after.processed) != 0 {
		t.Fatal("steps after a fatal error must not run")
	}
	if got := pipeline.ExitCode(total, err); got != 1 {
		t.Fatalf("ExitCode = %d, want 1", got)
	}
}

func TestRunnerContinuesAfterUnitFailures(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)
	flaky := &fakeStep{
		name:    "transcode",
		dir:     dir,
		unitIDs: []string{"s01e01", "s01e02"},
		failFor: map[string]error{"s01e01": errors.New("boom")},
	}
	after := &fakeStep{name: "detect_scenes", dir: dir, unitIDs: []string{"s01e02"}}

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Logger: logging.NewNop(),
		Steps:  []pipeline.Step{flaky, after},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	total, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unit failures must not fail the run, got %v", err)
	}
	if total.Failed != 1 {
		t.Fatalf("total = %+v, want 1 failed", total)
	}
	if len(after.processed) != 1 {
		t.Fatal("later steps must still run after unit failures")
	}
	if got := pipeline.ExitCode(total, nil); got != 2 {
		t.Fatalf("ExitCode = %d, want 2", got)
	}
}

func TestRunnerReportsOrphanedMarkers(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)
	if _, _, err := store.LoadOrCreate(); err != nil {
		t.Fatalf("LoadOrCreate returned error: %v", err)
	}
	if err := store.MarkStepStarted("transcode", "s01e05", []string{"/tmp/s01e05.tmp.mp4"}); err != nil {
		t.Fatalf("MarkStepStarted returned error: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	step := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e05"}}

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Logger: logger,
		Steps:  []pipeline.Step{step},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "interrupted in a previous run") {
		t.Fatalf("expected orphan warning in logs:\n%s", out)
	}
	if !strings.Contains(out, "s01e05.tmp.mp4") {
		t.Fatalf("expected temp file named in logs:\n%s", out)
	}
	// The interrupted unit got reprocessed, which cleared its marker.
	if got := store.Orphans(); len(got) != 0 {
		t.Fatalf("expected marker cleared after reprocess, got %+v", got)
	}
}

func TestRunnerFlushesPoolOnExit(t *testing.T) {
	dir := t.TempDir()
	store := newRunnerStore(t, dir)
	pool := respool.New(logging.NewNop())
	if _, err := pool.Acquire(context.Background(), "speech-model:base", func() (any, error) {
		return "model", nil
	}); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	step := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01"}}
	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Store:  store,
		Pool:   pool,
		Logger: logging.NewNop(),
		Steps:  []pipeline.Step{step},
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if pool.Size() != 0 {
		t.Fatalf("pool not flushed, %d resources resident", pool.Size())
	}
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	if _, err := pipeline.NewRunner(pipeline.RunnerOptions{Logger: logging.NewNop()}); err == nil {
		t.Fatal("expected error for missing store")
	}
	store := newRunnerStore(t, t.TempDir())
	if _, err := pipeline.NewRunner(pipeline.RunnerOptions{Store: store, Logger: logging.NewNop()}); err == nil {
		t.Fatal("expected error for empty step list")
	}
}
