package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"reeldex/internal/config"
)

type commandContext struct {
	configFlag string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

// ensureConfig loads the configuration once per invocation. Commands that
// reach it through PersistentPreRunE can assume directories exist.
func (c *commandContext) ensureConfig() error {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(c.configFlag)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.configErr
}

// findSeries resolves the --series flag against the loaded configuration.
func (c *commandContext) findSeries(name string) (config.Series, *config.Config, error) {
	cfg := c.config
	if cfg == nil {
		return config.Series{}, nil, fmt.Errorf("configuration not loaded")
	}
	if name == "" {
		return config.Series{}, nil, fmt.Errorf("a series name is required (use --series)")
	}
	series, ok := cfg.FindSeries(name)
	if !ok {
		return config.Series{}, nil, fmt.Errorf("series %q is not configured", name)
	}
	return series, cfg, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for current := cmd; current != nil; current = current.Parent() {
		if current.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
