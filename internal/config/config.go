package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Series describes one show the pipeline can process.
type Series struct {
	Name      string   `toml:"name"`
	SourceDir string   `toml:"source_dir"`
	Mode      string   `toml:"mode"`
	SkipSteps []string `toml:"skip_steps"`
}

// Transcode contains configuration for the media conversion step.
type Transcode struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	VideoCodec    string `toml:"video_codec"`
	CRF           int    `toml:"crf"`
	Preset        string `toml:"preset"`
	AudioCodec    string `toml:"audio_codec"`
}

// Scenes contains configuration for scene boundary detection.
type Scenes struct {
	Threshold       float64 `toml:"threshold"`
	MinSceneSeconds float64 `toml:"min_scene_seconds"`
}

// Transcribe contains configuration for speech-to-text transcription.
type Transcribe struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Index contains configuration for the searchable transcript catalog.
type Index struct {
	CatalogFilename   string  `toml:"catalog_filename"`
	MinSegmentSeconds float64 `toml:"min_segment_seconds"`
}

// Metrics contains configuration for the optional Prometheus endpoint.
type Metrics struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reeldex.
//
// Configuration sections by subsystem:
//   - Paths: library, state, and log directories
//   - Series: the shows the pipeline knows about
//   - Transcode: ffmpeg conversion settings
//   - Scenes: scene boundary detection thresholds
//   - Transcribe: speech-to-text binary and model
//   - Index: transcript catalog settings
//   - Metrics: optional Prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Series     []Series   `toml:"series"`
	Transcode  Transcode  `toml:"transcode"`
	Scenes     Scenes     `toml:"scenes"`
	Transcribe Transcribe `toml:"transcribe"`
	Index      Index      `toml:"index"`
	Metrics    Metrics    `toml:"metrics"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reeldex/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/reeldex/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reeldex.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run needs. LibraryDir is
// created on a best-effort basis so commands that only read state can run
// when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FindSeries returns the configured series with the given name.
func (c *Config) FindSeries(name string) (Series, bool) {
	needle := strings.TrimSpace(name)
	for _, series := range c.Series {
		if strings.EqualFold(series.Name, needle) {
			return series, true
		}
	}
	return Series{}, false
}

// SeriesNames lists the configured series in declaration order.
func (c *Config) SeriesNames() []string {
	names := make([]string, 0, len(c.Series))
	for _, series := range c.Series {
		names = append(names, series.Name)
	}
	return names
}

// FFmpegBinary returns the ffmpeg executable used for transcoding and
// scene detection.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Transcode.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Transcode.FFprobeBinary); bin != "" {
		return bin
	}
	return defaultFFprobeBinary
}

// TranscribeBinary returns the speech-to-text executable.
func (c *Config) TranscribeBinary() string {
	if bin := strings.TrimSpace(c.Transcribe.Binary); bin != "" {
		return bin
	}
	return defaultTranscribeBinary
}

// CatalogPath returns the location of the SQLite transcript catalog. It
// lives beside the checkpoint documents so wiping the state directory
// resets both.
func (c *Config) CatalogPath() string {
	name := strings.TrimSpace(c.Index.CatalogFilename)
	if name == "" {
		name = defaultCatalogFilename
	}
	return filepath.Join(c.Paths.StateDir, name)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
