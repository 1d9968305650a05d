package transcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reeldex/internal/config"
	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/transcode"
)

func newTestStep(t *testing.T, episodes ...string) (*transcode.Step, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	source := t.TempDir()
	for _, name := range episodes {
		if err := os.WriteFile(filepath.Join(source, name), []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	series := config.Series{Name: "The Expanse", SourceDir: source}
	return transcode.New(&cfg, series, logging.NewNop()), &cfg
}

func fakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateRejectsMissingFFmpeg(t *testing.T) {
	step, cfg := newTestStep(t)
	cfg.Transcode.FFmpegBinary = filepath.Join(t.TempDir(), "no-such-ffmpeg")

	err := step.Validate()
	if err == nil {
		t.Fatal("expected validation error for unresolvable ffmpeg")
	}
	if !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateAcceptsResolvableBinary(t *testing.T) {
	step, cfg := newTestStep(t)
	cfg.Transcode.FFmpegBinary = fakeBinary(t)

	if err := step.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestUnitsEnumerateEpisodesInOrder(t *testing.T) {
	step, _ := newTestStep(t, "S01E02.mkv", "S01E01.mkv", "notes.txt")

	units, err := step.Units(context.Background())
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].ID != "s01e01" || units[1].ID != "s01e02" {
		t.Fatalf("unexpected unit order: %s, %s", units[0].ID, units[1].ID)
	}
	if units[0].SourcePath == "" {
		t.Fatal("expected source path on unit")
	}
}

func TestOutputsUnderSeriesLibrary(t *testing.T) {
	step, cfg := newTestStep(t)
	item := pipeline.Item{ID: "s01e01"}

	outputs := step.Outputs(item)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	want := filepath.Join(cfg.Paths.LibraryDir, "the-expanse", "media", "s01e01.mp4")
	if outputs[0].Path != want {
		t.Fatalf("unexpected output path: %s", outputs[0].Path)
	}
	if !outputs[0].Required {
		t.Fatal("expected transcode output to be required")
	}
}

func TestScratchFilesNameTempOutput(t *testing.T) {
	step, _ := newTestStep(t)
	scratch := step.ScratchFiles(pipeline.Item{ID: "s01e01"})
	if len(scratch) != 1 {
		t.Fatalf("expected 1 scratch file, got %d", len(scratch))
	}
	if !strings.HasSuffix(scratch[0], "s01e01.tmp.mp4") {
		t.Fatalf("unexpected scratch path: %s", scratch[0])
	}
}

func TestProcessMovesTempToFinal(t *testing.T) {
	step, cfg := newTestStep(t, "S01E01.mkv")
	ctx := context.Background()

	units, err := step.Units(ctx)
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	item := units[0]

	var gotArgs []string
	step.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		gotArgs = args
		dest := args[len(args)-1]
		return os.WriteFile(dest, []byte("encoded"), 0o644)
	})

	if err := step.LoadResources(ctx); err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	if err := step.Process(ctx, item, step.Outputs(item)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	final := step.Outputs(item)[0].Path
	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("expected final output: %v", err)
	}
	if string(data) != "encoded" {
		t.Fatalf("unexpected output content: %q", data)
	}
	if _, err := os.Stat(step.ScratchFiles(item)[0]); !os.IsNotExist(err) {
		t.Fatal("expected temp file to be renamed away")
	}

	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-i "+item.SourcePath) {
		t.Fatalf("expected source input in args: %s", joined)
	}
	if !strings.Contains(joined, "-c:v "+cfg.Transcode.VideoCodec) {
		t.Fatalf("expected video codec in args: %s", joined)
	}
	if !strings.HasSuffix(gotArgs[len(gotArgs)-1], ".tmp.mp4") {
		t.Fatalf("expected ffmpeg to write the temp path, got %s", gotArgs[len(gotArgs)-1])
	}
}

func TestProcessWrapsToolFailure(t *testing.T) {
	step, _ := newTestStep(t, "S01E01.mkv")
	ctx := context.Background()

	units, err := step.Units(ctx)
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	item := units[0]

	step.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("encoder exploded")
	})

	if err := step.LoadResources(ctx); err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	err = step.Process(ctx, item, step.Outputs(item))
	if err == nil {
		t.Fatal("expected error from failing tool")
	}
	if !errors.Is(err, pipeline.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, statErr := os.Stat(step.Outputs(item)[0].Path); !os.IsNotExist(statErr) {
		t.Fatal("expected no final output after tool failure")
	}
}

func TestProcessReturnsCanceledOnInterrupt(t *testing.T) {
	step, _ := newTestStep(t, "S01E01.mkv")

	units, err := step.Units(context.Background())
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	item := units[0]

	ctx, cancel := context.WithCancel(context.Background())
	step.WithCommandRunner(func(runCtx context.Context, _ string, _ ...string) error {
		cancel()
		return runCtx.Err()
	})

	if err := step.LoadResources(ctx); err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	err = step.Process(ctx, item, step.Outputs(item))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, pipeline.ErrExternalTool) {
		t.Fatal("interrupt must not be classified as a tool failure")
	}
}
