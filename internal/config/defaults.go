package config

const (
	defaultProjectsDir        = "~/.local/share/slidecast/projects"
	defaultStateDir           = "~/.local/share/slidecast/state"
	defaultLogDir             = "~/.local/share/slidecast/logs"
	defaultAPIBind            = "127.0.0.1:7590"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultWidth              = 1920
	defaultHeight             = 1080
	defaultPixelFormat        = "yuv420p"
	defaultVideoCodec         = "libx264"
	defaultAudioCodec         = "aac"
	defaultCRF                = 18
	defaultPreset             = "slow"
	defaultClipTimeoutSeconds = 600
	defaultJoinTimeoutSeconds = 600
	defaultRunTimeoutSeconds  = 3600
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectsDir: defaultProjectsDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Encoding: Encoding{
			FFmpegBinary:       defaultFFmpegBinary,
			FFprobeBinary:      defaultFFprobeBinary,
			Width:              defaultWidth,
			Height:             defaultHeight,
			PixelFormat:        defaultPixelFormat,
			VideoCodec:         defaultVideoCodec,
			AudioCodec:         defaultAudioCodec,
			CRF:                defaultCRF,
			Preset:             defaultPreset,
			ClipTimeoutSeconds: defaultClipTimeoutSeconds,
			JoinTimeoutSeconds: defaultJoinTimeoutSeconds,
			RunTimeoutSeconds:  defaultRunTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
