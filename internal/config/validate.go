package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateStages()
}

func (c *Config) validateBatch() error {
	if c.Batch.HardCap < 1 {
		return errors.New("batch.hard_cap must be at least 1")
	}
	if c.Batch.Parallel < 1 {
		return errors.New("batch.parallel must be at least 1")
	}
	if c.Batch.MinFreeGiB < 0 {
		return errors.New("batch.min_free_gib must be non-negative")
	}
	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.MinDurationSeconds < 0 {
		return errors.New("quality.min_duration_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, toggle := range c.Stages {
		if toggle.Suffix == "" {
			return fmt.Errorf("stages.%s.suffix must be set", name)
		}
	}
	return nil
}
