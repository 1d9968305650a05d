package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reeldex/internal/config"
	"reeldex/internal/fileutil"
	"reeldex/internal/library"
	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/textutil"
)

const stepName = "transcode"

// Step normalizes every source episode into the library container so the
// steps after it work against a predictable codec and layout.
type Step struct {
	cfg    *config.Config
	series config.Series
	logger *slog.Logger
	root   string

	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New returns the transcode step for one series.
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
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Step) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Name implements pipeline.Step.
func (s *Step) Name() string { return stepName }

// OutputDirName implements pipeline.Step.
func (s *Step) OutputDirName() string { return "media" }

// Validate checks the configuration and that ffmpeg can be resolved.
func (s *Step) Validate() error {
	if s.cfg == nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "configuration not loaded", nil)
	}
	if strings.TrimSpace(s.series.SourceDir) == "" {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "series source_dir is empty", nil)
	}
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "resolve ffmpeg", s.cfg.FFmpegBinary(), err)
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

// ScratchFiles names the temp file ffmpeg writes before the atomic rename.
func (s *Step) ScratchFiles(item pipeline.Item) []string {
	return []string{s.scratchPath(item)}
}

// LoadResources creates the output directory.
func (s *Step) LoadResources(context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.root, s.OutputDirName()), 0o755); err != nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "create output dir", "", err)
	}
	return nil
}

// Process transcodes one episode, writing through a temp path so a kill
// mid-encode never leaves a plausible final file.
func (s *Step) Process(ctx context.Context, item pipeline.Item, _ []pipeline.OutputSpec) error {
	final := s.outputPath(item)
	temp := s.scratchPath(item)

	args := buildArgs(s.cfg, item.SourcePath, temp)
	if err := s.run(ctx, s.cfg.FFmpegBinary(), args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Wrap(pipeline.ErrExternalTool, stepName, "transcode episode", item.ID, err)
	}

	if err := fileutil.MoveFile(temp, final); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, stepName, "finalize output", item.ID, err)
	}

	s.logger.Debug("episode transcoded",
		logging.String(logging.FieldUnit, item.ID),
		logging.String("output", final))
	return nil
}

// Finalize implements pipeline.Step. The step holds no shared resources.
func (s *Step) Finalize(context.Context) error { return nil }

func (s *Step) outputPath(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".mp4")
}

func (s *Step) scratchPath(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".tmp.mp4")
}

// run executes a command, using the custom runner if set.
func (s *Step) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildArgs constructs the ffmpeg argument slice for one episode. First
// video stream, first audio stream when present, metadata and chapters
// carried over, faststart for streaming playback.
func buildArgs(cfg *config.Config, source, dest string) []string {
	args := make([]string, 0, 24)
	args = append(args, "-hide_banner", "-nostdin", "-y", "-loglevel", "error")
	args = append(args, "-i", source)
	args = append(args, "-map", "0:v:0", "-map", "0:a:0?")
	args = append(args,
		"-c:v", cfg.Transcode.VideoCodec,
		"-crf", strconv.Itoa(cfg.Transcode.CRF),
		"-preset", cfg.Transcode.Preset,
		"-c:a", cfg.Transcode.AudioCodec,
	)
	args = append(args, "-map_metadata", "0", "-map_chapters", "0")
	args = append(args, "-movflags", "+faststart")
	args = append(args, dest)
	return args
}
