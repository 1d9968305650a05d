package transcribe_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reeldex/internal/config"
	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/respool"
	"reeldex/internal/transcribe"
)

const toolOutput = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 0, "to": 2500}, "text": " Hello there."},
    {"offsets": {"from": 2500, "to": 2600}, "text": "   "},
    {"offsets": {"from": 2600, "to": 4000}, "text": " General Kenobi."}
  ]
}`

func fakeBinary(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestStep(t *testing.T, episodes ...string) (*transcribe.Step, *config.Config, *respool.Pool) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Transcode.FFmpegBinary = fakeBinary(t, "ffmpeg")
	cfg.Transcribe.Binary = fakeBinary(t, "whisper-cli")

	source := t.TempDir()
	for _, name := range episodes {
		if err := os.WriteFile(filepath.Join(source, name), []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	pool := respool.New(logging.NewNop())
	series := config.Series{Name: "The Expanse", SourceDir: source}
	return transcribe.New(&cfg, series, pool, logging.NewNop()), &cfg, pool
}

// stubRunner answers the ffmpeg extraction by writing the wav destination
// and the transcriber call by writing tool JSON next to --output-file.
func stubRunner(t *testing.T, transcriberPayload string) func(context.Context, string, ...string) error {
	t.Helper()
	return func(_ context.Context, name string, args ...string) error {
		if strings.Contains(filepath.Base(name), "ffmpeg") {
			dest := args[len(args)-1]
			return os.WriteFile(dest, []byte("RIFFaudio"), 0o644)
		}
		for i, arg := range args {
			if arg == "--output-file" && i+1 < len(args) {
				return os.WriteFile(args[i+1]+".json", []byte(transcriberPayload), 0o644)
			}
		}
		t.Fatal("transcriber invoked without --output-file")
		return nil
	}
}

func TestValidateRequiresModel(t *testing.T) {
	step, cfg, _ := newTestStep(t)
	cfg.Transcribe.Model = "  "
	err := step.Validate()
	if !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidatePassesWithResolvableTools(t *testing.T) {
	step, _, _ := newTestStep(t)
	if err := step.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadResourcesSharesModelThroughPool(t *testing.T) {
	step, cfg, pool := newTestStep(t)
	ctx := context.Background()

	if err := step.LoadResources(ctx); err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	id := "speech-model:" + cfg.Transcribe.Model
	if pool.Refs(id) != 1 {
		t.Fatalf("expected 1 reference on the model, got %d", pool.Refs(id))
	}

	if err := step.Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if pool.Refs(id) != 0 {
		t.Fatalf("expected model evicted after finalize, got %d refs", pool.Refs(id))
	}
	// A second finalize must be harmless.
	if err := step.Finalize(ctx); err != nil {
		t.Fatalf("repeat Finalize failed: %v", err)
	}
}

func TestLoadResourcesFailsWhenTranscriberMissing(t *testing.T) {
	step, cfg, _ := newTestStep(t)
	cfg.Transcribe.Binary = filepath.Join(t.TempDir(), "no-such-transcriber")

	err := step.LoadResources(context.Background())
	if !errors.Is(err, pipeline.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestProcessWritesNormalizedTranscript(t *testing.T) {
	step, cfg, _ := newTestStep(t, "S01E01.mkv")
	step.WithCommandRunner(stubRunner(t, toolOutput))
	ctx := context.Background()

	units, err := step.Units(ctx)
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	item := units[0]

	if err := step.LoadResources(ctx); err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	defer step.Finalize(ctx)

	if err := step.Process(ctx, item, step.Outputs(item)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	data, err := os.ReadFile(step.Outputs(item)[0].Path)
	if err != nil {
		t.Fatalf("expected transcript document: %v", err)
	}
	var doc transcribe.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal transcript: %v", err)
	}

	if doc.UnitID != "s01e01" || doc.Model != cfg.Transcribe.Model || doc.Language != cfg.Transcribe.Language {
		t.Fatalf("unexpected document header: %#v", doc)
	}
	if len(doc.Segments) != 2 {
		t.Fatalf("expected blank segment dropped, got %#v", doc.Segments)
	}
	first := doc.Segments[0]
	if first.Seq != 1 || first.StartSec != 0 || first.EndSec != 2.5 || first.Text != "Hello there." {
		t.Fatalf("unexpected first segment: %#v", first)
	}
	second := doc.Segments[1]
	if second.Seq != 2 || second.StartSec != 2.6 || second.EndSec != 4 || second.Text != "General Kenobi." {
		t.Fatalf("unexpected second segment: %#v", second)
	}

	for _, scratch := range step.ScratchFiles(item) {
		if _, err := os.Stat(scratch); !os.IsNotExist(err) {
			t.Fatalf("expected scratch file %s to be removed", scratch)
		}
	}
}

func TestProcessWrapsTranscriberFailure(t *testing.T) {
	step, _, _ := newTestStep(t, "S01E01.mkv")
	step.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if strings.Contains(filepath.Base(name), "ffmpeg") {
			return os.WriteFile(args[len(args)-1], []byte("RIFFaudio"), 0o644)
		}
		return errors.New("model file not found")
	})
	ctx := context.Background()

	units, err := step.Units(ctx)
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	if err := step.LoadResources(ctx); err != nil {
		t.Fatalf("LoadResources failed: %v", err)
	}
	defer step.Finalize(ctx)

	err = step.Process(ctx, units[0], step.Outputs(units[0]))
	if !errors.Is(err, pipeline.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transcribe audio") {
		t.Fatalf("expected operation in error: %v", err)
	}
}

func TestScratchFilesNameIntermediates(t *testing.T) {
	step, _, _ := newTestStep(t)
	scratch := step.ScratchFiles(pipeline.Item{ID: "s01e01"})
	if len(scratch) != 2 {
		t.Fatalf("expected 2 scratch files, got %d", len(scratch))
	}
	if !strings.HasSuffix(scratch[0], "s01e01.tmp.wav") || !strings.HasSuffix(scratch[1], "s01e01.tmp.json") {
		t.Fatalf("unexpected scratch files: %v", scratch)
	}
}
