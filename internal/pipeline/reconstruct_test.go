package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/state"
)

func membership(checkpoints []state.StepCheckpoint) map[[2]string]bool {
	set := make(map[[2]string]bool, len(checkpoints))
	for _, cp := range checkpoints {
		set[[2]string{cp.Step, cp.UnitID}] = true
	}
	return set
}

func TestReconstructAdoptsOnlyPresentOutputs(t *testing.T) {
	dir := t.TempDir()
	transcode := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01", "s01e02"}}
	scenes := &fakeStep{name: "detect_scenes", dir: dir, unitIDs: []string{"s01e01", "s01e02"}}

	writeOutput(t, transcode.outputPath("s01e01"), "encoded")
	writeOutput(t, transcode.outputPath("s01e02"), "encoded")
	writeOutput(t, scenes.outputPath("s01e01"), "scene data")
	// detect_scenes s01e02 exists but is empty, so it must not be adopted.
	writeOutput(t, scenes.outputPath("s01e02"), "")

	checkpoints, err := pipeline.Reconstruct(context.Background(), []pipeline.Step{transcode, scenes}, logging.NewNop())
	if err != nil {
		t.Fatalf("Reconstruct returned error: %v", err)
	}
	got := membership(checkpoints)
	want := map[[2]string]bool{
		{"transcode", "s01e01"}:     true,
		{"transcode", "s01e02"}:     true,
		{"detect_scenes", "s01e01"}: true,
	}
	if len(got) != len(want) {
		t.Fatalf("membership = %v, want %v", got, want)
	}
	for pair := range want {
		if !got[pair] {
			t.Fatalf("missing checkpoint for %v", pair)
		}
	}
	for _, cp := range checkpoints {
		if cp.CompletedAt.IsZero() {
			t.Fatalf("checkpoint %+v has zero timestamp", cp)
		}
	}
}

func TestReconstructIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	step := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01", "s01e02", "s01e03"}}
	writeOutput(t, step.outputPath("s01e01"), "encoded")
	writeOutput(t, step.outputPath("s01e03"), "encoded")

	first, err := pipeline.Reconstruct(context.Background(), []pipeline.Step{step}, logging.NewNop())
	if err != nil {
		t.Fatalf("first Reconstruct returned error: %v", err)
	}
	second, err := pipeline.Reconstruct(context.Background(), []pipeline.Step{step}, logging.NewNop())
	if err != nil {
		t.Fatalf("second Reconstruct returned error: %v", err)
	}
	a, b := membership(first), membership(second)
	if len(a) != len(b) {
		t.Fatalf("membership changed between runs: %v vs %v", a, b)
	}
	for pair := range a {
		if !b[pair] {
			t.Fatalf("pair %v missing from second run", pair)
		}
	}
}

func TestReconstructSeedsStore(t *testing.T) {
	dir := t.TempDir()
	step := &fakeStep{name: "transcode", dir: dir, unitIDs: []string{"s01e01"}}
	writeOutput(t, step.outputPath("s01e01"), "encoded")

	checkpoints, err := pipeline.Reconstruct(context.Background(), []pipeline.Step{step}, logging.NewNop())
	if err != nil {
		t.Fatalf("Reconstruct returned error: %v", err)
	}

	store, err := state.Open(dir, "The Expanse", logging.NewNop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := store.Seed(checkpoints); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	if !store.IsStepCompleted("transcode", "s01e01") {
		t.Fatal("reconstructed checkpoint not queryable after Seed")
	}
}

func TestReconstructPropagatesUnitErrors(t *testing.T) {
	step := &fakeStep{name: "transcode", dir: t.TempDir(), unitsErr: errors.New("scan failed")}
	if _, err := pipeline.Reconstruct(context.Background(), []pipeline.Step{step}, logging.NewNop()); err == nil {
		t.Fatal("expected error from unit enumeration")
	}
}

func TestReconstructHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	step := &fakeStep{name: "transcode", dir: t.TempDir(), unitIDs: []string{"s01e01"}}
	if _, err := pipeline.Reconstruct(ctx, []pipeline.Step{step}, logging.NewNop()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
