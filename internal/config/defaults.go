package config

const (
	defaultWorkDir         = "~/.cache/mediadesk/work"
	defaultOutputDir       = "~/Downloads"
	defaultModelDir        = "~/.local/share/mediadesk/models"
	defaultLogDir          = "~/.local/share/mediadesk/logs"
	defaultAPIBind         = "127.0.0.1:7488"
	defaultFFmpegBinary    = "ffmpeg"
	defaultMaxInputGiB     = 2
	defaultWhisperBinary   = "whisper-cli"
	defaultModel           = "Xenova/whisper-base"
	defaultCatalogBaseURL  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultInferenceTickMS = 500
	defaultDownloadTimeout = 1800
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	maxInputGiBCeiling     = 2
	minInferenceTickMS     = 50
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			ModelDir:  defaultModelDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Media: Media{
			FFmpegBinary: defaultFFmpegBinary,
			MaxInputGiB:  defaultMaxInputGiB,
		},
		Transcription: Transcription{
			WhisperBinary:   defaultWhisperBinary,
			DefaultModel:    defaultModel,
			CatalogBaseURL:  defaultCatalogBaseURL,
			InferenceTickMS: defaultInferenceTickMS,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
