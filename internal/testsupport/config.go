package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reeldex/internal/config"
	"reeldex/internal/textutil"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	for _, dir := range []string{cfgVal.Paths.LibraryDir, cfgVal.Paths.StateDir, cfgVal.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSeries appends a series whose source directory contains the named
// episode files.
func WithSeries(name string, episodes ...string) ConfigOption {
	return func(b *configBuilder) {
		source := filepath.Join(b.baseDir, "source", textutil.Slug(name))
		if err := os.MkdirAll(source, 0o755); err != nil {
			b.t.Fatalf("mkdir source dir: %v", err)
		}
		for _, episode := range episodes {
			target := filepath.Join(source, episode)
			if err := os.WriteFile(target, []byte("media"), 0o644); err != nil {
				b.t.Fatalf("write episode %s: %v", episode, err)
			}
		}
		b.cfg.Series = append(b.cfg.Series, config.Series{Name: name, SourceDir: source})
	}
}

// WithSkipSteps sets the skip list on the most recently added series.
func WithSkipSteps(steps ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(b.cfg.Series) == 0 {
			b.t.Fatal("WithSkipSteps requires a preceding WithSeries")
		}
		b.cfg.Series[len(b.cfg.Series)-1].SkipSteps = steps
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default reeldex external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "whisper-cli"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
