package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.ModelDir == "" {
		return errors.New("paths.model_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q must be host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.MaxInputGiB <= 0 {
		return errors.New("media.max_input_gib must be positive")
	}
	if c.Media.MaxInputGiB > maxInputGiBCeiling {
		return fmt.Errorf("media.max_input_gib must not exceed %d", maxInputGiBCeiling)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.InferenceTickMS < minInferenceTickMS {
		return fmt.Errorf("transcription.inference_tick_ms must be at least %d", minInferenceTickMS)
	}
	if c.Transcription.DownloadTimeout < 0 {
		return errors.New("transcription.download_timeout must be non-negative")
	}
	parsed, err := url.Parse(c.Transcription.CatalogBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("transcription.catalog_base_url %q must be an absolute URL", c.Transcription.CatalogBaseURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
