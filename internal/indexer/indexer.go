package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reeldex/internal/catalog"
	"reeldex/internal/config"
	"reeldex/internal/fileutil"
	"reeldex/internal/library"
	"reeldex/internal/logging"
	"reeldex/internal/pipeline"
	"reeldex/internal/respool"
	"reeldex/internal/scenedetect"
	"reeldex/internal/textutil"
	"reeldex/internal/transcribe"
)

const stepName = "index"

// Document is the per-episode index summary. It is the step's
// checkpointable artifact; the catalog rows it mirrors live in SQLite.
type Document struct {
	UnitID       string    `json:"unit_id"`
	Series       string    `json:"series"`
	SegmentCount int       `json:"segment_count"`
	IndexedCount int       `json:"indexed_count"`
	SceneCount   int       `json:"scene_count,omitempty"`
	DurationSec  float64   `json:"duration_sec,omitempty"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Step loads each episode's transcript, filters segments worth indexing,
// and writes them to the shared search catalog plus a summary document.
type Step struct {
	cfg    *config.Config
	series config.Series
	pool   *respool.Pool
	logger *slog.Logger
	root   string
	key    string

	lease *respool.Lease
}

// New returns the index step for one series.
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
		key:    textutil.Slug(series.Name),
	}
}

// Name implements pipeline.Step.
func (s *Step) Name() string { return stepName }

// OutputDirName implements pipeline.Step.
func (s *Step) OutputDirName() string { return "index" }

// Validate checks the configuration.
func (s *Step) Validate() error {
	if s.cfg == nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "configuration not loaded", nil)
	}
	if s.pool == nil {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "resource pool not provided", nil)
	}
	if strings.TrimSpace(s.cfg.CatalogPath()) == "" {
		return pipeline.Wrap(pipeline.ErrConfiguration, stepName, "validate", "catalog path is empty", nil)
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

// LoadResources creates the output directory and takes a lease on the
// shared catalog handle. The pool closes the database when the last
// leaseholder finishes.
func (s *Step) LoadResources(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.root, s.OutputDirName()), 0o755); err != nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "create output dir", "", err)
	}

	path := s.cfg.CatalogPath()
	lease, err := s.pool.Acquire(ctx, "catalog:"+path, func() (any, error) {
		store, err := catalog.Open(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
	if err != nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "open catalog", path, err)
	}
	s.lease = lease
	return nil
}

// Process reads the episode transcript, upserts its searchable segments
// into the catalog, and writes the summary document.
func (s *Step) Process(ctx context.Context, item pipeline.Item, _ []pipeline.OutputSpec) error {
	store, ok := s.lease.Value().(*catalog.Store)
	if !ok || store == nil {
		return pipeline.Wrap(pipeline.ErrResource, stepName, "catalog not loaded", "", nil)
	}

	transcript, err := s.loadTranscript(item)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrValidation, stepName, "load transcript",
			item.ID+" (run the transcribe step first or skip index)", err)
	}

	rows := make([]catalog.Segment, 0, len(transcript.Segments))
	for _, segment := range transcript.Segments {
		if segment.EndSec-segment.StartSec < s.cfg.Index.MinSegmentSeconds {
			continue
		}
		rows = append(rows, catalog.Segment{
			UnitID:   item.ID,
			Seq:      segment.Seq,
			StartSec: segment.StartSec,
			EndSec:   segment.EndSec,
			Text:     segment.Text,
		})
	}

	if err := store.UpsertSegments(ctx, s.key, item.ID, rows); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Wrap(pipeline.ErrTransient, stepName, "upsert catalog segments", item.ID, err)
	}

	sceneCount, duration := s.loadScenes(item)
	doc := Document{
		UnitID:       item.ID,
		Series:       s.key,
		SegmentCount: len(transcript.Segments),
		IndexedCount: len(rows),
		SceneCount:   sceneCount,
		DurationSec:  duration,
		IndexedAt:    time.Now().UTC(),
	}
	if err := fileutil.WriteJSONAtomic(s.outputPath(item), doc); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, stepName, "write index document", item.ID, err)
	}

	s.logger.Debug("episode indexed",
		logging.String(logging.FieldUnit, item.ID),
		logging.Int("indexed_segments", len(rows)))
	return nil
}

// Finalize releases the catalog lease; the last holder closes the database.
func (s *Step) Finalize(context.Context) error {
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
	return nil
}

func (s *Step) outputPath(item pipeline.Item) string {
	return filepath.Join(s.root, s.OutputDirName(), item.ID+".index.json")
}

func (s *Step) transcriptPath(item pipeline.Item) string {
	return filepath.Join(s.root, "transcripts", item.ID+".json")
}

func (s *Step) scenesPath(item pipeline.Item) string {
	return filepath.Join(s.root, "scenes", item.ID+".scenes.json")
}

func (s *Step) loadTranscript(item pipeline.Item) (transcribe.Document, error) {
	var doc transcribe.Document
	data, err := os.ReadFile(s.transcriptPath(item))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse transcript: %w", err)
	}
	return doc, nil
}

// loadScenes enriches the summary when the scenes artifact exists. The
// index step works without it since detect_scenes may be skipped.
func (s *Step) loadScenes(item pipeline.Item) (int, float64) {
	data, err := os.ReadFile(s.scenesPath(item))
	if err != nil {
		return 0, 0
	}
	var doc scenedetect.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, 0
	}
	return len(doc.Scenes), doc.DurationSec
}
