package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"reeldex/internal/config"
	"reeldex/internal/fileutil"
	"reeldex/internal/library"
	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/respool"
	"reeldex/internal/textutil"
)

const stepName = "transcribe"

// Segment is one transcribed span.
type Segment struct {
	Seq      int     `json:"seq"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// Document is the transcript artifact written per episode.
type Document struct {
	UnitID   string    `json:"unit_id"`
	Language string    `json:"language"`
	Model    string    `json:"model"`
	Segments []Segment `json:"segments"`
}

// modelHandle is the pooled speech-model resource. Loading it verifies the
// transcriber binary once per run; every unit then shares the handle.
type modelHandle struct {
	binary string
	model  string
}

// Step extracts each episode's audio and runs the configured whisper.cpp
// compatible CLI over it, normalizing the tool's JSON into the transcript
// document the index step consumes.
type Step struct {
	cfg    *config.Config
	series config.Series
	pool   *respool.Pool
	logger *slog.Logger
	root   string

	lease         *respool.Lease
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New returns the transcription step for one series.
func New(cfg *config.Config, series config.Series, pool *respool.Pool, logger *slog.Logger) *Step {
	root := ""
	if cfg != nil {
		root = filepath.Join(cfg.Paths.LibraryDir, textutil.Slug(series.Name))
	}
	return &Step{
		cfg:    cfg,
		series: series,
		pool:   pool,
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
func (s *Step) OutputDirName() string { return "transcripts" }

// Validate checks the configuration and that both tools resolve. Series
// that cannot provide the transcriber should list this step in skip_steps
// instead.
func (s *Step) Validate() error {
	if s.cfg == nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "configuration not loaded", nil)
	}
	if s.pool == nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "resource pool not provided", nil)
	}
	if strings.TrimSpace(s.cfg.Transcribe.Model) == "" {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "transcribe model is empty", nil)
	}
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "resolve ffmpeg", s.cfg.FFmpegBinary(), err)
	}
	if _, err := exec.LookPath(s.cfg.TranscribeBinary()); err != nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "resolve transcriber", s.cfg.TranscribeBinary(), err)
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

// ScratchFiles names the intermediate audio and raw tool output.
func (s *Step) ScratchFiles(item pipeline.Item) []string {
	return []string{s.scratchWav(item), s.scratchJSON(item)}
}

// LoadResources creates the output directory and takes a lease on the
// shared speech model so repeated steps in one run verify it only once.
func (s *Step) LoadResources(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.root, s.OutputDirName()), 0o755); err != nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "create output dir", "", err)
	}

	model := s.cfg.Transcribe.Model
	lease, err := s.pool.Acquire(ctx, "speech-model:"+model, func() (any, error) {
		resolved, err := exec.LookPath(s.cfg.TranscribeBinary())
		if err != nil {
			return nil, fmt.Errorf("resolve transcriber %s: %w", s.cfg.TranscribeBinary(), err)
		}
		return &modelHandle{binary: resolved, model: model}, nil
	})
	if err != nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "load speech model", model, err)
	}
	s.lease = lease
	return nil
}

// Process extracts mono 16kHz audio, transcribes it, and writes the
// normalized transcript document.
func (s *Step) Process(ctx context.Context, item pipeline.Item, _ []pipeline.OutputSpec) error {
	handle, ok := s.lease.Value().(*modelHandle)
	if !ok || handle == nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "speech model not loaded", "", nil)
	}

	input := s.inputPath(item)
	wav := s.scratchWav(item)
	toolJSON := s.scratchJSON(item)

	if err := s.run(ctx, s.cfg.FFmpegBinary(), extractArgs(input, wav)...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Wrap(pipeline.ErrExternalTool, stepName, "extract audio", item.ID, err)
	}
	defer func() { _ = os.Remove(wav) }()

	if err := s.run(ctx, handle.binary, transcribeArgs(handle.model, s.cfg.Transcribe.Language, wav, toolJSON)...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Wrap(pipeline.ErrExternalTool, stepName, "transcribe audio", item.ID, err)
	}
	defer func() { _ = os.Remove(toolJSON) }()

	segments, err := parseToolOutput(toolJSON)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrExternalTool, stepName, "parse transcriber output", item.ID, err)
	}

	doc := Document{
		UnitID:   item.ID,
		Language: s.cfg.Transcribe.Language,
		Model:    handle.model,
		Segments: segments,
	}
	if err := fileutil.WriteJSONAtomic(s.outputPath(item), doc); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, stepName, "write transcript", item.ID, err)
	}

	s.logger.Debug("episode transcribed",
		logging.String(logging.FieldUnit, item.ID),
		logging.Int("segment_count", len(segments)))
	return nil
}

// Finalize releases the speech-model lease; the last holder evicts it.
func (s *Step) Finalize(context.Context) error {
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
	return nil
}

func (s *Step) outputPath(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".json")
}

func (s *Step) scratchWav(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".tmp.wav")
}

func (s *Step) scratchJSON(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".tmp.json")
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

// extractArgs produces the mono 16kHz WAV the transcriber expects.
func extractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// transcribeArgs builds the whisper.cpp CLI invocation. --output-file takes
// the destination without its extension; the tool appends .json.
func transcribeArgs(model, language, wav, jsonOut string) []string {
	return []string{
		"--model", model,
		"--language", language,
		"--output-json",
		"--output-file", strings.TrimSuffix(jsonOut, ".json"),
		"--no-prints",
		"--file", wav,
	}
}

// toolPayload matches the whisper.cpp --output-json document. Offsets are
// milliseconds from the start of the audio.
type toolPayload struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseToolOutput(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload toolPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse transcriber json: %w", err)
	}

	segments := make([]Segment, 0, len(payload.Transcription))
	for _, entry := range payload.Transcription {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Seq:      len(segments) + 1,
			StartSec: float64(entry.Offsets.From) / 1000,
			EndSec:   float64(entry.Offsets.To) / 1000,
			Text:     text,
		})
	}
	return segments, nil
}
