package scenedetect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"reeldex/internal/config"
	"reeldex/internal/fileutil"
	"reeldex/internal/library"
	"reeldex/internal/logging"
	"reeldex/internal/media/ffprobe"
	"reeldex/internal/pipeline"
	"reeldex/internal/textutil"
)

const stepName = "detect_scenes"

var ptsTimePattern = regexp.MustCompile(`pts_time:\s*([0-9]+(?:\.[0-9]+)?)`)

// Scene is one contiguous span between detected cuts.
type Scene struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// Document is the scenes artifact written per episode.
type Document struct {
	UnitID      string  `json:"unit_id"`
	Source      string  `json:"source"`
	DurationSec float64 `json:"duration_sec"`
	Threshold   float64 `json:"threshold"`
	Scenes      []Scene `json:"scenes"`
}

// Step scores frame-to-frame change on each episode with ffmpeg's scene
// filter and records the resulting boundaries as JSON.
type Step struct {
	cfg    *config.Config
	series config.Series
	logger *slog.Logger
	root   string

	commandRunner func(ctx context.Context, name string, args ...string) (string, error)
	prober        func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// New returns the scene detection step for one series.
func New(cfg *config.Config, series config.Series, logger *slog.Logger) *Step {
	root := ""
	if cfg != nil {
		root = filepath.Join(cfg.Paths.LibraryDir, textutil.Slug(series.Name))
	}
	return &Step{
		cfg:    cfg,
		series: series,
		logger: logging.NewComponentLogger(logger, stepName),
		root:   root,
		prober: ffprobe.Inspect,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Step) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	s.commandRunner = runner
}

// WithProber sets a custom media prober (for testing).
func (s *Step) WithProber(prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)) {
	s.prober = prober
}

// Name implements pipeline.Step.
func (s *Step) Name() string { return stepName }

// OutputDirName implements pipeline.Step.
func (s *Step) OutputDirName() string { return "scenes" }

// Validate checks the configuration and that ffmpeg and ffprobe resolve.
func (s *Step) Validate() error {
	if s.cfg == nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "configuration not loaded", nil)
	}
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "resolve ffmpeg", s.cfg.FFmpegBinary(), err)
	}
	if _, err := exec.LookPath(s.cfg.FFprobeBinary()); err != nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "resolve ffprobe", s.cfg.FFprobeBinary(), err)
	}
	return nil
}

// Units enumerates the series' source episodes in season/episode order.
func (s *Step) Units(ctx context.Context) ([]pipeline.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	episodes, err := library.Scan(s.series.SourceDir)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.ErrValidation, stepName, "enumerate episodes", "", err)
	}
	items := make([]pipeline.Item, 0, len(episodes))
	for _, episode := range episodes {
		items = append(items, pipeline.Item{ID: episode.Key, SourcePath: episode.Path})
	}
	return items, nil
}

// Outputs implements pipeline.Step.
func (s *Step) Outputs(item pipeline.Item) []pipeline.OutputSpec {
	return []pipeline.OutputSpec{{Path: s.outputPath(item), Required: true}}
}

// LoadResources creates the output directory.
func (s *Step) LoadResources(context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.root, s.OutputDirName()), 0o755); err != nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "create output dir", "", err)
	}
	return nil
}

// Process probes the episode duration, runs the scene-score pass, and
// writes the boundary document atomically.
func (s *Step) Process(ctx context.Context, item pipeline.Item, _ []pipeline.OutputSpec) error {
	input := s.inputPath(item)

	probe, err := s.prober(ctx, s.cfg.FFprobeBinary(), input)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Wrap(pipeline.ErrExternalTool, stepName, "probe duration", item.ID, err)
	}

	output, err := s.run(ctx, s.cfg.FFmpegBinary(), detectArgs(input, s.cfg.Scenes.Threshold)...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Wrap(pipeline.ErrExternalTool, stepName, "score scene changes", item.ID, err)
	}

	doc := Document{
		UnitID:      item.ID,
		Source:      input,
		DurationSec: probe.DurationSeconds(),
		Threshold:   s.cfg.Scenes.Threshold,
		Scenes:      buildScenes(parseSceneTimes(output), probe.DurationSeconds(), s.cfg.Scenes.MinSceneSeconds),
	}
	if err := fileutil.WriteJSONAtomic(s.outputPath(item), doc); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, stepName, "write scenes document", item.ID, err)
	}

	s.logger.Debug("scenes detected",
		logging.String(logging.FieldUnit, item.ID),
		logging.Int("scene_count", len(doc.Scenes)))
	return nil
}

// Finalize implements pipeline.Step. The step holds no shared resources.
func (s *Step) Finalize(context.Context) error { return nil }

func (s *Step) outputPath(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".scenes.json")
}

// inputPath prefers the transcoded episode and falls back to the source
// when the transcode step was skipped for this series.
func (s *Step) inputPath(item pipeline.Item) string {
	transcoded := filepath.Join(s.root, "media", item.ID+".mp4")
	if fileutil.OutputExists(transcoded) {
		return transcoded
	}
	return item.SourcePath
}

func (s *Step) run(ctx context.Context, name string, args ...string) (string, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s: %w: %s", name, err, lastLine(output))
	}
	return string(output), nil
}

// detectArgs builds the null-muxer scene pass. showinfo logs at the default
// loglevel, so no -loglevel flag here.
func detectArgs(source string, threshold float64) []string {
	filter := fmt.Sprintf("select='gt(scene,%.3f)',showinfo", threshold)
	return []string{
		"-hide_banner", "-nostdin",
		"-i", source,
		"-vf", filter,
		"-an", "-sn",
		"-f", "null", "-",
	}
}

// parseSceneTimes extracts the pts_time values showinfo printed for the
// frames the select filter let through.
func parseSceneTimes(output string) []float64 {
	matches := ptsTimePattern.FindAllStringSubmatch(output, -1)
	times := make([]float64, 0, len(matches))
	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		times = append(times, value)
	}
	return times
}

// buildScenes turns cut timestamps into contiguous spans covering the whole
// episode. Cuts closer than minGap to the previous scene start are merged.
func buildScenes(boundaries []float64, duration, minGap float64) []Scene {
	starts := []float64{0}
	last := 0.0
	for _, boundary := range boundaries {
		if boundary-last < minGap {
			continue
		}
		starts = append(starts, boundary)
		last = boundary
	}
	if duration < last {
		duration = last
	}

	scenes := make([]Scene, len(starts))
	for i, start := range starts {
		end := duration
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		scenes[i] = Scene{Index: i, StartSec: start, EndSec: end}
	}
	return scenes
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
