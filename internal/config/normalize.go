package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSeries(); err != nil {
		return err
	}
	c.normalizeTranscode()
	c.normalizeScenes()
	c.normalizeTranscribe()
	c.normalizeIndex()
	c.normalizeMetrics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSeries() error {
	for i := range c.Series {
		series := &c.Series[i]
		series.Name = strings.TrimSpace(series.Name)

		var err error
		if series.SourceDir, err = expandPath(strings.TrimSpace(series.SourceDir)); err != nil {
			return fmt.Errorf("series[%d].source_dir: %w", i, err)
		}

		series.Mode = strings.ToLower(strings.TrimSpace(series.Mode))
		if series.Mode == "" {
			series.Mode = ModeFull
		}

		if len(series.SkipSteps) > 0 {
			steps := make([]string, 0, len(series.SkipSteps))
			seen := make(map[string]struct{}, len(series.SkipSteps))
			for _, step := range series.SkipSteps {
				trimmed := strings.TrimSpace(step)
				if trimmed == "" {
					continue
				}
				if _, exists := seen[trimmed]; exists {
					continue
				}
				seen[trimmed] = struct{}{}
				steps = append(steps, trimmed)
			}
			series.SkipSteps = steps
		}
	}
	return nil
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	c.Transcode.VideoCodec = strings.TrimSpace(c.Transcode.VideoCodec)
	if c.Transcode.VideoCodec == "" {
		c.Transcode.VideoCodec = defaultVideoCodec
	}
	if c.Transcode.CRF <= 0 {
		c.Transcode.CRF = defaultVideoCRF
	}
	c.Transcode.Preset = strings.ToLower(strings.TrimSpace(c.Transcode.Preset))
	if c.Transcode.Preset == "" {
		c.Transcode.Preset = defaultVideoPreset
	}
	c.Transcode.AudioCodec = strings.TrimSpace(c.Transcode.AudioCodec)
	if c.Transcode.AudioCodec == "" {
		c.Transcode.AudioCodec = defaultAudioCodec
	}
}

func (c *Config) normalizeScenes() {
	if c.Scenes.Threshold <= 0 {
		c.Scenes.Threshold = defaultSceneThreshold
	}
	if c.Scenes.MinSceneSeconds <= 0 {
		c.Scenes.MinSceneSeconds = defaultMinSceneSeconds
	}
}

func (c *Config) normalizeTranscribe() {
	c.Transcribe.Binary = strings.TrimSpace(c.Transcribe.Binary)
	c.Transcribe.Model = strings.TrimSpace(c.Transcribe.Model)
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultTranscribeModel
	}
	c.Transcribe.Language = strings.ToLower(strings.TrimSpace(c.Transcribe.Language))
	if c.Transcribe.Language == "" {
		c.Transcribe.Language = defaultTranscribeLanguage
	}
}

func (c *Config) normalizeIndex() {
	c.Index.CatalogFilename = strings.TrimSpace(c.Index.CatalogFilename)
	if c.Index.CatalogFilename == "" {
		c.Index.CatalogFilename = defaultCatalogFilename
	}
	if c.Index.MinSegmentSeconds <= 0 {
		c.Index.MinSegmentSeconds = defaultMinSegmentSeconds
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = defaultMetricsListenAddr
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
