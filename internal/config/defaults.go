package config

const (
	defaultLibraryDir         = "~/media/reeldex"
	defaultStateDir           = "~/.local/share/reeldex/state"
	defaultLogDir             = "~/.local/share/reeldex/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultVideoCodec         = "libx264"
	defaultVideoCRF           = 20
	defaultVideoPreset        = "medium"
	defaultAudioCodec         = "aac"
	defaultSceneThreshold     = 0.4
	defaultMinSceneSeconds    = 2.0
	defaultTranscribeBinary   = "whisper-cli"
	defaultTranscribeModel    = "base"
	defaultTranscribeLanguage = "en"
	defaultCatalogFilename    = "catalog.db"
	defaultMinSegmentSeconds  = 1.0
	defaultMetricsListenAddr  = "127.0.0.1:9941"

	// ModeFull processes every step for every unit.
	ModeFull = "full"
	// ModeSelective honors the per-series skip list.
	ModeSelective = "selective"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Transcode: Transcode{
			VideoCodec: defaultVideoCodec,
			CRF:        defaultVideoCRF,
			Preset:     defaultVideoPreset,
			AudioCodec: defaultAudioCodec,
		},
		Scenes: Scenes{
			Threshold:       defaultSceneThreshold,
			MinSceneSeconds: defaultMinSceneSeconds,
		},
		Transcribe: Transcribe{
			Model:    defaultTranscribeModel,
			Language: defaultTranscribeLanguage,
		},
		Index: Index{
			CatalogFilename:   defaultCatalogFilename,
			MinSegmentSeconds: defaultMinSegmentSeconds,
		},
		Metrics: Metrics{
			ListenAddr: defaultMetricsListenAddr,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
