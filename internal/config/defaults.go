package config

const (
	defaultConfigPath        = "~/.config/screenclip/config.toml"
	defaultStateDir          = "~/.local/share/screenclip"
	defaultRecordingsDir     = "~/Videos/screenclip"
	defaultLogDir            = "~/.local/share/screenclip/logs"
	defaultDisplay           = ":0.0"
	defaultFrameRate         = 30
	defaultSystemAudioDevice = "@DEFAULT_MONITOR@"
	defaultMicrophoneDevice  = "default"
	defaultPlaybackDevice    = "default"
	defaultCaptureChunkMS    = 1000
	defaultTrimChunkMS       = 100
	defaultDurationRetryMS   = 500
	defaultSurfaceWidth      = 1920
	defaultSurfaceHeight     = 1080
	defaultUploadTimeout     = 120
	defaultUploadTitle       = "My Screen Recording"
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	uploadURLEnv             = "SCREENCLIP_UPLOAD_URL"
)

const (
	minFrameRate = 1
	maxFrameRate = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:      defaultStateDir,
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
		},
		Capture: Capture{
			Display:           defaultDisplay,
			FrameRate:         defaultFrameRate,
			SystemAudio:       true,
			SystemAudioDevice: defaultSystemAudioDevice,
			Microphone:        true,
			MicrophoneDevice:  defaultMicrophoneDevice,
			ChunkIntervalMS:   defaultCaptureChunkMS,
		},
		Trim: Trim{
			FrameRate:            defaultFrameRate,
			ChunkIntervalMS:      defaultTrimChunkMS,
			DurationRetryDelayMS: defaultDurationRetryMS,
			DefaultWidth:         defaultSurfaceWidth,
			DefaultHeight:        defaultSurfaceHeight,
			Playback:             true,
			PlaybackDevice:       defaultPlaybackDevice,
		},
		Upload: Upload{
			TimeoutSeconds: defaultUploadTimeout,
			DefaultTitle:   defaultUploadTitle,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
