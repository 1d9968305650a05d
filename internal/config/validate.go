package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSeries(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateScenes(); err != nil {
		return err
	}
	if err := c.validateTranscribe(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.StateDir == c.Paths.LibraryDir {
		return errors.New("paths.state_dir must differ from paths.library_dir")
	}
	return nil
}

func (c *Config) validateSeries() error {
	seen := make(map[string]int, len(c.Series))
	for i, series := range c.Series {
		if series.Name == "" {
			return fmt.Errorf("series[%d].name must be set", i)
		}
		key := strings.ToLower(series.Name)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("series[%d].name %q duplicates series[%d]", i, series.Name, prev)
		}
		seen[key] = i
		if strings.TrimSpace(series.SourceDir) == "" {
			return fmt.Errorf("series[%d].source_dir must be set", i)
		}
		switch series.Mode {
		case ModeFull, ModeSelective:
		default:
			return fmt.Errorf("series[%d].mode must be %q or %q, got %q", i, ModeFull, ModeSelective, series.Mode)
		}
		if series.Mode == ModeFull && len(series.SkipSteps) > 0 {
			return fmt.Errorf("series[%d].skip_steps requires mode = %q", i, ModeSelective)
		}
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.CRF < 0 || c.Transcode.CRF > 51 {
		return errors.New("transcode.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateScenes() error {
	if c.Scenes.Threshold <= 0 || c.Scenes.Threshold >= 1 {
		return errors.New("scenes.threshold must be between 0 and 1 exclusive")
	}
	if c.Scenes.MinSceneSeconds <= 0 {
		return errors.New("scenes.min_scene_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTranscribe() error {
	if strings.TrimSpace(c.Transcribe.Model) == "" {
		return errors.New("transcribe.model must be set")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.ListenAddr) == "" {
		return errors.New("metrics.listen_addr must be set when metrics.enabled is true")
	}
	return nil
}
