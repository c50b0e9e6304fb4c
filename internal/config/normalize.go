package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMedia()
	c.normalizeTranscription()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.model_dir", &c.Paths.ModelDir, defaultModelDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Media.MaxInputGiB == 0 {
		c.Media.MaxInputGiB = defaultMaxInputGiB
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.WhisperBinary = strings.TrimSpace(c.Transcription.WhisperBinary)
	if c.Transcription.WhisperBinary == "" {
		c.Transcription.WhisperBinary = defaultWhisperBinary
	}
	c.Transcription.DefaultModel = strings.TrimSpace(c.Transcription.DefaultModel)
	if c.Transcription.DefaultModel == "" {
		c.Transcription.DefaultModel = defaultModel
	}
	c.Transcription.CatalogBaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.CatalogBaseURL), "/")
	if c.Transcription.CatalogBaseURL == "" {
		c.Transcription.CatalogBaseURL = defaultCatalogBaseURL
	}
	if c.Transcription.InferenceTickMS == 0 {
		c.Transcription.InferenceTickMS = defaultInferenceTickMS
	}
	if c.Transcription.DownloadTimeout == 0 {
		c.Transcription.DownloadTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
