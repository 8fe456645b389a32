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
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ProjectsDir) == "" {
		return errors.New("paths.projects_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if err := ensurePositiveMap(map[string]int{
		"encoding.width":                c.Encoding.Width,
		"encoding.height":               c.Encoding.Height,
		"encoding.clip_timeout_seconds": c.Encoding.ClipTimeoutSeconds,
		"encoding.join_timeout_seconds": c.Encoding.JoinTimeoutSeconds,
		"encoding.run_timeout_seconds":  c.Encoding.RunTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Encoding.Width%2 != 0 || c.Encoding.Height%2 != 0 {
		return errors.New("encoding.width and encoding.height must be even for yuv420p output")
	}
	if c.Encoding.CRF < 0 || c.Encoding.CRF > 51 {
		return errors.New("encoding.crf must be between 0 and 51")
	}
	if c.Encoding.RunTimeoutSeconds < c.Encoding.ClipTimeoutSeconds {
		return errors.New("encoding.run_timeout_seconds must be at least encoding.clip_timeout_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
