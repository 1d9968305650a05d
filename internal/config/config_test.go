package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reeldex/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "reeldex", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "media", "reeldex") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Transcode.VideoCodec != "libx264" {
		t.Fatalf("unexpected video codec default: %q", cfg.Transcode.VideoCodec)
	}
	if cfg.Scenes.Threshold != 0.4 {
		t.Fatalf("unexpected scene threshold default: %v", cfg.Scenes.Threshold)
	}
	if cfg.Transcribe.Model != "base" {
		t.Fatalf("unexpected transcribe model default: %q", cfg.Transcribe.Model)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("expected metrics disabled by default")
	}
	if cfg.FFmpegBinary() != "ffmpeg" || cfg.FFprobeBinary() != "ffprobe" {
		t.Fatalf("unexpected tool binaries: %q %q", cfg.FFmpegBinary(), cfg.FFprobeBinary())
	}
	if cfg.TranscribeBinary() != "whisper-cli" {
		t.Fatalf("unexpected transcribe binary: %q", cfg.TranscribeBinary())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.LibraryDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reeldex.toml")

	type payload struct {
		Paths struct {
			LibraryDir string `toml:"library_dir"`
			StateDir   string `toml:"state_dir"`
		} `toml:"paths"`
		Series []struct {
			Name      string   `toml:"name"`
			SourceDir string   `toml:"source_dir"`
			Mode      string   `toml:"mode"`
			SkipSteps []string `toml:"skip_steps"`
		} `toml:"series"`
		Transcode struct {
			CRF    int    `toml:"crf"`
			Preset string `toml:"preset"`
		} `toml:"transcode"`
	}
	custom := payload{}
	custom.Paths.LibraryDir = filepath.Join(tempDir, "library")
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Series = append(custom.Series, struct {
		Name      string   `toml:"name"`
		SourceDir string   `toml:"source_dir"`
		Mode      string   `toml:"mode"`
		SkipSteps []string `toml:"skip_steps"`
	}{
		Name:      "The Expanse",
		SourceDir: filepath.Join(tempDir, "source"),
		Mode:      "Selective",
		SkipSteps: []string{"transcribe", " transcribe ", ""},
	})
	custom.Transcode.CRF = 23
	custom.Transcode.Preset = "FAST"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Transcode.CRF != 23 {
		t.Fatalf("expected crf 23, got %d", cfg.Transcode.CRF)
	}
	if cfg.Transcode.Preset != "fast" {
		t.Fatalf("expected normalized preset, got %q", cfg.Transcode.Preset)
	}

	series, ok := cfg.FindSeries("the expanse")
	if !ok {
		t.Fatal("expected case-insensitive series lookup to succeed")
	}
	if series.Mode != config.ModeSelective {
		t.Fatalf("expected normalized mode, got %q", series.Mode)
	}
	if len(series.SkipSteps) != 1 || series.SkipSteps[0] != "transcribe" {
		t.Fatalf("expected deduplicated skip steps, got %v", series.SkipSteps)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Series = []config.Series{{Name: "Show", SourceDir: "/tmp/src", Mode: config.ModeFull}}
		return cfg
	}

	cfg := base()
	cfg.Transcode.CRF = 99
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range crf")
	}

	cfg = base()
	cfg.Scenes.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range scene threshold")
	}

	cfg = base()
	cfg.Series = append(cfg.Series, config.Series{Name: "show", SourceDir: "/tmp/other", Mode: config.ModeFull})
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate series names")
	}

	cfg = base()
	cfg.Series[0].Mode = "partial"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown series mode")
	}

	cfg = base()
	cfg.Series[0].SkipSteps = []string{"transcribe"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for skip_steps with full mode")
	}

	cfg = base()
	cfg.Paths.StateDir = cfg.Paths.LibraryDir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for overlapping state and library dirs")
	}

	cfg = base()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for metrics without listen addr")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[transcode]") {
		t.Fatalf("sample config missing transcode section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
}

func TestExpandPathTilde(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	got, err := config.ExpandPath("~/media")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	if got != filepath.Join(tempHome, "media") {
		t.Fatalf("unexpected expansion: %q", got)
	}
}
